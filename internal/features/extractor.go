package features

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
)

// ErrEmbeddingUnavailable is returned when the embedding backend cannot
// be reached or rejects the request.
var ErrEmbeddingUnavailable = errors.New("embedding backend unavailable")

// TextEmbedder produces an embedding vector for a text with a named model.
type TextEmbedder interface {
	Embed(ctx context.Context, model, text string) ([]float32, error)
}

// Vector is the full feature vector of one review: the embedding followed
// by three scalar signals (length, product keyword, delivery keyword).
type Vector struct {
	Values       []float64
	LengthSignal float64
	HasProduct   bool
	HasDelivery  bool
	Chars        int
}

// Extractor turns review texts into classifier feature vectors.
type Extractor struct {
	embedder TextEmbedder
	model    string
	dims     int
}

// NewExtractor creates an Extractor using the given embedder and model.
// dims is the expected embedding dimensionality; a mismatched backend
// response is treated as an embedding failure.
func NewExtractor(embedder TextEmbedder, model string, dims int) *Extractor {
	return &Extractor{embedder: embedder, model: model, dims: dims}
}

// Dims returns the total feature vector length (embedding + 3 scalars).
func (e *Extractor) Dims() int {
	return e.dims + 3
}

// Extract builds the feature vector for a single review text. Empty text
// is embedded as the empty string, not skipped; character counts are in
// runes since reviews are Korean.
func (e *Extractor) Extract(ctx context.Context, text string) (Vector, error) {
	emb, err := e.embedder.Embed(ctx, e.model, text)
	if err != nil {
		return Vector{}, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}
	if len(emb) != e.dims {
		return Vector{}, fmt.Errorf("%w: got %d dims, want %d", ErrEmbeddingUnavailable, len(emb), e.dims)
	}

	chars := utf8.RuneCountInString(text)
	v := Vector{
		Values:       make([]float64, 0, e.dims+3),
		LengthSignal: lengthSignal(chars),
		HasProduct:   HasProductKeyword(text),
		HasDelivery:  HasDeliveryKeyword(text),
		Chars:        chars,
	}
	for _, f := range emb {
		v.Values = append(v.Values, float64(f))
	}
	v.Values = append(v.Values, v.LengthSignal, boolFeature(v.HasProduct), boolFeature(v.HasDelivery))
	return v, nil
}

// ExtractBatch extracts feature vectors for multiple texts concurrently,
// preserving input order. Returns nil (not error) for empty/nil input.
func (e *Extractor) ExtractBatch(ctx context.Context, texts []string) ([]Vector, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	results := make([]Vector, len(texts))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4) // Bound concurrency to avoid overwhelming the backend.

	for i, text := range texts {
		i, text := i, text
		g.Go(func() error {
			v, err := e.Extract(gCtx, text)
			if err != nil {
				return fmt.Errorf("extracting features for text %d: %w", i, err)
			}
			results[i] = v
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func lengthSignal(chars int) float64 {
	if chars > 100 {
		chars = 100
	}
	return float64(chars) / 100.0
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
