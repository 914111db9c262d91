// internal/config/config.go
package conf

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Główny config aplikacji
type Config struct {
	LogLevel string                     `json:"log_level"`
	Backend  string                     `json:"backend"`  // nazwa aktywnego backendu z mapy Backends
	Backends map[string]json.RawMessage `json:"backends"` // nazwa -> surowy JSON backendu
	APIKey   string                     `json:"api_key,omitempty"`

	Database DatabaseConfig `json:"database"`
	Import   ImportConfig   `json:"import"`
	Retry    RetryConfig    `json:"retry"`
	Cache    CacheConfig    `json:"cache"`
	Upload   UploadConfig   `json:"upload"`
	Events   EventsConfig   `json:"events"`
	Server   ServerConfig   `json:"server"`
	Watch    WatchConfig    `json:"watch"`
}

type DatabaseConfig struct {
	Driver string `json:"driver"` // sqlite | sqlite-cgo | mysql | postgres
	DSN    string `json:"dsn,omitempty"`
}

type ImportConfig struct {
	UpdateBatchSize    int     `json:"update_batch_size"`
	TitleCaseThreshold float64 `json:"title_case_threshold"`
	DefaultUnit        string  `json:"default_unit"`
	Operator           string  `json:"operator,omitempty"`
}

type RetryConfig struct {
	MaxAttempts int `json:"max_attempts"`
	BaseDelayMs int `json:"base_delay_ms"`
	MaxDelayMs  int `json:"max_delay_ms"`
}

type CacheConfig struct {
	Enabled    bool   `json:"enabled"`
	RedisURL   string `json:"redis_url,omitempty"`
	TTLSeconds int    `json:"ttl_seconds"`
}

type UploadConfig struct {
	Target string   `json:"target"` // backend | s3
	S3     S3Config `json:"s3"`
}

type S3Config struct {
	Endpoint    string `json:"endpoint"`
	AccessKey   string `json:"access_key"`
	SecretKey   string `json:"secret_key"`
	Bucket      string `json:"bucket"`
	Region      string `json:"region,omitempty"`
	UseSSL      bool   `json:"use_ssl"`
	Prefix      string `json:"prefix,omitempty"`
	URLExpiryMs int    `json:"url_expiry_ms,omitempty"`
}

type EventsConfig struct {
	NATSURL string `json:"nats_url,omitempty"`
	Subject string `json:"subject"`
}

type ServerConfig struct {
	Addr           string   `json:"addr"`
	AllowedOrigins []string `json:"allowed_origins,omitempty"`
}

type WatchConfig struct {
	Enabled     bool   `json:"enabled"`
	Dir         string `json:"dir"`
	Kind        string `json:"kind"`
	PollSec     int    `json:"poll_sec"`
	AutoConfirm bool   `json:"auto_confirm"`
	MaxAttempts int    `json:"max_attempts"` // po tylu nieudanych przebiegach plik jest porzucany
}

// Przykładowy config backendu HTTP (używany do domyślnego JSON-a)
type HTTPBackendDefaults struct {
	BaseURL    string `json:"base_url"`
	APIKey     string `json:"api_key"`
	BulkUpdate bool   `json:"bulk_update"`
	TimeoutSec int    `json:"timeout_sec"`
	PerPage    int    `json:"per_page"`
}

// Default zwraca konfigurację startową (pierwsze uruchomienie).
func Default() *Config {
	rawHTTP, _ := json.Marshal(HTTPBackendDefaults{
		BaseURL:    "https://api.example.com/v1",
		APIKey:     "",
		BulkUpdate: false,
		TimeoutSec: 20,
		PerPage:    100,
	})
	rawLocal, _ := json.Marshal(map[string]any{"bulk_update": true})

	return &Config{
		LogLevel: "info",
		Backend:  "local",
		Backends: map[string]json.RawMessage{
			"http":  rawHTTP,
			"local": rawLocal,
		},
		Database: DatabaseConfig{Driver: "sqlite"},
		Import: ImportConfig{
			UpdateBatchSize:    5,
			TitleCaseThreshold: 0.5,
			DefaultUnit:        "oz",
		},
		Retry: RetryConfig{MaxAttempts: 4, BaseDelayMs: 500, MaxDelayMs: 8000},
		Cache: CacheConfig{Enabled: false, TTLSeconds: 60},
		Upload: UploadConfig{
			Target: "backend",
			S3:     S3Config{Region: "us-east-1", UseSSL: true, Prefix: "imports/"},
		},
		Events: EventsConfig{Subject: "barsync.import.completed"},
		Server: ServerConfig{Addr: ":8080"},
		Watch:  WatchConfig{Enabled: false, Dir: "./imports_in", Kind: "ingredient", PollSec: 10, MaxAttempts: 3},
	}
}

func LoadOrCreate(path string) (*Config, bool, error) {
	// upewnij się, że katalog istnieje
	_ = os.MkdirAll(filepath.Dir(path), 0o755)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			if err := Save(path, cfg); err != nil {
				return nil, false, fmt.Errorf("błąd zapisu domyślnego configa: %w", err)
			}
			return cfg, true, nil
		}
		return nil, false, fmt.Errorf("błąd otwierania configa: %w", err)
	}

	if isYAML(path) {
		// yaml -> generyczna mapa -> json, żeby RawMessage w Backends działał tak samo
		var generic map[string]any
		if err := yaml.Unmarshal(data, &generic); err != nil {
			return nil, false, fmt.Errorf("błąd parsowania configa: %w", err)
		}
		if data, err = json.Marshal(generic); err != nil {
			return nil, false, fmt.Errorf("błąd parsowania configa: %w", err)
		}
	}

	// start od domyślnych, plik nadpisuje tylko to co podał
	cfg := Default()
	cfg.Backends = nil
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, false, fmt.Errorf("błąd parsowania configa: %w", err)
	}
	if cfg.Backends == nil {
		cfg.Backends = map[string]json.RawMessage{}
	}
	return cfg, false, nil
}

func Save(path string, cfg *Config) error {
	_ = os.MkdirAll(filepath.Dir(path), 0o755)

	if isYAML(path) {
		raw, err := json.Marshal(cfg)
		if err != nil {
			return err
		}
		var generic map[string]any
		if err := json.Unmarshal(raw, &generic); err != nil {
			return err
		}
		out, err := yaml.Marshal(generic)
		if err != nil {
			return err
		}
		return os.WriteFile(path, out, 0o644)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(cfg)
}

// Helper do odczytu konkretnego backendu do struktury docelowej
func (c *Config) UnmarshalBackend(name string, v any) error {
	raw, ok := c.Backends[name]
	if !ok {
		return fmt.Errorf("brak backendu %q w configu", name)
	}
	return json.Unmarshal(raw, v)
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
