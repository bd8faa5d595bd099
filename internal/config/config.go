package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
)

type Config struct {
	Server   ServerConfig
	Ollama   OllamaConfig
	Storage  StorageConfig
	Training TrainingConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port     int
	APIToken string
}

type OllamaConfig struct {
	BaseURL    string
	EmbedModel string
	EmbedDims  int
}

type StorageConfig struct {
	DataDir string
}

// DBPath is the SQLite database file inside the data directory.
func (s StorageConfig) DBPath() string {
	return filepath.Join(s.DataDir, "revd.db")
}

// ModelsDir holds the trained model artifacts.
func (s StorageConfig) ModelsDir() string {
	return filepath.Join(s.DataDir, "models")
}

type TrainingConfig struct {
	// OriginalCSV is the curated base dataset merged with stored
	// feedback on every retraining run. It may be absent.
	OriginalCSV string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		Server: ServerConfig{
			Port: 4200,
		},
		Ollama: OllamaConfig{
			BaseURL:    "http://localhost:11434",
			EmbedModel: "nomic-embed-text",
			EmbedDims:  768,
		},
		Storage: StorageConfig{
			DataDir: dataDir,
		},
		Training: TrainingConfig{
			OriginalCSV: filepath.Join(dataDir, "dataset", "original.csv"),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.revcheck.revd) and
// the API token falls back to macOS Keychain.
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/revd/config.json
// and the API token falls back to $XDG_DATA_HOME/revd/secrets.json.
//
// Environment variables (REVD_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), keychainReader{})
}

// keychain abstracts secret-store access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	// Try the platform secret store for the API token if still empty.
	if cfg.Server.APIToken == "" {
		if token, err := kc.Get("revd", "api_token"); err == nil && token != "" {
			cfg.Server.APIToken = token
		}
	}

	return cfg, nil
}

// EnsureAPIToken returns the configured API token, generating and
// persisting a fresh one on first server start.
func EnsureAPIToken(cfg *Config) (string, error) {
	if cfg.Server.APIToken != "" {
		return cfg.Server.APIToken, nil
	}

	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating api token: %w", err)
	}
	token := hex.EncodeToString(buf)

	if err := keychainSet("revd", "api_token", token); err != nil {
		return "", fmt.Errorf("storing api token: %w", err)
	}
	cfg.Server.APIToken = token
	return token, nil
}

// keychainReader reads from the platform secret store.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
