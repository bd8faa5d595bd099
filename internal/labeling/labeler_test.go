package labeling

import "testing"

func TestLabel_Weak(t *testing.T) {
	// Every review inherits the user's verdict regardless of score.
	for _, score := range []float64{0, 50, 100} {
		if label, ok := Label(StrategyWeak, score, 50, true); !ok || label != 1 {
			t.Errorf("weak satisfied score=%v: (%d, %v), want (1, true)", score, label, ok)
		}
		if label, ok := Label(StrategyWeak, score, 50, false); !ok || label != 0 {
			t.Errorf("weak unsatisfied score=%v: (%d, %v), want (0, true)", score, label, ok)
		}
	}
}

func TestLabel_Hybrid(t *testing.T) {
	cases := []struct {
		name      string
		score     float64
		avg       float64
		satisfied bool
		want      int
	}{
		{"satisfied high extreme", 90, 50, true, 1},
		{"satisfied high boundary", 85, 50, true, 1},
		{"satisfied low extreme", 20, 50, true, 0},
		{"satisfied low boundary", 35, 50, true, 0},
		{"satisfied middle above avg", 60, 50, true, 1},
		{"satisfied middle below avg", 40, 50, true, 0},
		{"satisfied middle at avg sides with verdict", 50, 50, true, 0},
		{"unsatisfied low extreme", 10, 50, false, 0},
		{"unsatisfied high extreme", 95, 50, false, 1},
		{"unsatisfied middle below avg", 40, 50, false, 0},
		{"unsatisfied middle above avg", 70, 50, false, 1},
		{"unsatisfied middle at avg sides with verdict", 50, 50, false, 1},
	}
	for _, c := range cases {
		label, ok := Label(StrategyHybrid, c.score, c.avg, c.satisfied)
		if !ok {
			t.Errorf("%s: excluded, hybrid never excludes", c.name)
			continue
		}
		if label != c.want {
			t.Errorf("%s: label = %d, want %d", c.name, label, c.want)
		}
	}
}

func TestLabel_Extreme(t *testing.T) {
	cases := []struct {
		name      string
		score     float64
		satisfied bool
		wantLabel int
		wantOK    bool
	}{
		{"satisfied high", 85, true, 1, true},
		{"satisfied high boundary", 80, true, 1, true},
		{"satisfied low", 30, true, 0, true},
		{"satisfied low boundary", 40, true, 0, true},
		{"satisfied middle excluded", 60, true, 0, false},
		{"unsatisfied low", 20, false, 0, true},
		{"unsatisfied high", 90, false, 1, true},
		{"unsatisfied middle excluded", 55, false, 0, false},
	}
	for _, c := range cases {
		label, ok := Label(StrategyExtreme, c.score, 50, c.satisfied)
		if ok != c.wantOK {
			t.Errorf("%s: ok = %v, want %v", c.name, ok, c.wantOK)
			continue
		}
		if ok && label != c.wantLabel {
			t.Errorf("%s: label = %d, want %d", c.name, label, c.wantLabel)
		}
	}
}

func TestLabel_Relative(t *testing.T) {
	cases := []struct {
		name      string
		score     float64
		avg       float64
		satisfied bool
		want      int
	}{
		{"satisfied above avg", 60, 50, true, 1},
		{"satisfied below avg", 40, 50, true, 0},
		{"satisfied at avg", 50, 50, true, 0},
		{"unsatisfied below avg", 40, 50, false, 0},
		{"unsatisfied above avg", 60, 50, false, 1},
		{"unsatisfied at avg", 50, 50, false, 1},
		// Extremes are never excluded under relative.
		{"satisfied extreme high", 99, 50, true, 1},
		{"unsatisfied extreme low", 1, 50, false, 0},
	}
	for _, c := range cases {
		label, ok := Label(StrategyRelative, c.score, c.avg, c.satisfied)
		if !ok {
			t.Errorf("%s: excluded, relative never excludes", c.name)
			continue
		}
		if label != c.want {
			t.Errorf("%s: label = %d, want %d", c.name, label, c.want)
		}
	}
}

func TestLabel_UnknownStrategyFallsBackToHybrid(t *testing.T) {
	label, ok := Label("nonsense", 90, 50, true)
	if !ok || label != 1 {
		t.Errorf("unknown strategy: (%d, %v), want hybrid behavior (1, true)", label, ok)
	}
}

func TestValid(t *testing.T) {
	for _, s := range []string{StrategyWeak, StrategyHybrid, StrategyExtreme, StrategyRelative} {
		if !Valid(s) {
			t.Errorf("Valid(%q) = false, want true", s)
		}
	}
	if Valid("majority") {
		t.Error("Valid(majority) = true, want false")
	}
}

func TestConfidence(t *testing.T) {
	cases := []struct {
		score float64
		label int
		want  float64
	}{
		{90, 1, 0.9},
		{90, 0, 0.1},
		{20, 0, 0.8},
		{20, 1, 0.2},
		{100, 1, 1.0},
		{0, 0, 1.0},
	}
	for _, c := range cases {
		got := Confidence(c.score, c.label)
		if diff := got - c.want; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("Confidence(%v, %d) = %v, want %v", c.score, c.label, got, c.want)
		}
	}
}

func TestConfidence_Clamped(t *testing.T) {
	if got := Confidence(120, 1); got != 1.0 {
		t.Errorf("Confidence(120, 1) = %v, want 1.0", got)
	}
	if got := Confidence(120, 0); got != 0 {
		t.Errorf("Confidence(120, 0) = %v, want 0", got)
	}
}
