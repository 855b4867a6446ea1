package config

import (
	"fmt"
	"os"
	"regexp"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config defines service configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	DB         DBConfig         `yaml:"db"`
	Log        LogConfig        `yaml:"log"`
	Collection CollectionConfig `yaml:"collection"`
	Features   FeatureConfig    `yaml:"features"`
	Storage    StorageConfig    `yaml:"storage"`
	Email      EmailConfig      `yaml:"email"`
}

type ServerConfig struct {
	Host string `yaml:"host" env:"HANDWRITING_SERVER_HOST"`
	Port int    `yaml:"port" env:"HANDWRITING_SERVER_PORT"`
}

type DBConfig struct {
	Path string `yaml:"path" env:"HANDWRITING_DB_PATH"`
}

type LogConfig struct {
	Level string `yaml:"level" env:"HANDWRITING_LOG_LEVEL"`
}

// CollectionConfig holds the knobs of the collection task itself.
type CollectionConfig struct {
	TargetImages    int      `yaml:"target_images" env:"HANDWRITING_TARGET_IMAGES"`
	MaxFileSize     int64    `yaml:"max_file_size" env:"HANDWRITING_MAX_FILE_SIZE"`
	AllowedTypes    []string `yaml:"allowed_types" env:"HANDWRITING_ALLOWED_TYPES" envSeparator:","`
	WorkerIDPattern string   `yaml:"worker_id_pattern" env:"HANDWRITING_WORKER_ID_PATTERN"`
	CodeLetters     int      `yaml:"code_letters" env:"HANDWRITING_CODE_LETTERS"`
	CodeDigits      int      `yaml:"code_digits" env:"HANDWRITING_CODE_DIGITS"`
}

type FeatureConfig struct {
	AllowSkipping bool `yaml:"allow_skipping" env:"HANDWRITING_ALLOW_SKIPPING"`
	TrackTiming   bool `yaml:"track_timing" env:"HANDWRITING_TRACK_TIMING"`
}

// StorageConfig selects the upload transport. Mode "direct" writes
// straight to the local object root; "function" posts base64 payloads
// to an intermediary upload function.
type StorageConfig struct {
	Mode        string `yaml:"mode" env:"HANDWRITING_STORAGE_MODE"`
	Root        string `yaml:"root" env:"HANDWRITING_STORAGE_ROOT"`
	FunctionURL string `yaml:"function_url" env:"HANDWRITING_UPLOAD_FUNCTION_URL"`
	Prefix      string `yaml:"prefix" env:"HANDWRITING_STORAGE_PREFIX"`
	ProgressDir string `yaml:"progress_dir" env:"HANDWRITING_PROGRESS_DIR"`
}

type EmailConfig struct {
	Enabled     bool   `yaml:"enabled" env:"HANDWRITING_EMAIL_ENABLED"`
	FunctionURL string `yaml:"function_url" env:"HANDWRITING_EMAIL_FUNCTION_URL"`
	AdminEmail  string `yaml:"admin_email" env:"ADMIN_EMAIL"`
	Domain      string `yaml:"domain" env:"MAILGUN_DOMAIN"`
}

const (
	StorageModeDirect   = "direct"
	StorageModeFunction = "function"
)

// Load reads configuration from an optional YAML file, then applies
// environment overrides and validates the result.
func Load() (Config, error) {
	cfg := Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		DB: DBConfig{
			Path: "handwriting.db",
		},
		Log: LogConfig{
			Level: "info",
		},
		Collection: CollectionConfig{
			TargetImages:    30,
			MaxFileSize:     5 * 1024 * 1024,
			AllowedTypes:    []string{"image/jpeg", "image/png", "image/webp"},
			WorkerIDPattern: "^[a-zA-Z0-9]{3,20}$",
			CodeLetters:     3,
			CodeDigits:      5,
		},
		Features: FeatureConfig{
			AllowSkipping: true,
			TrackTiming:   true,
		},
		Storage: StorageConfig{
			Mode:        StorageModeFunction,
			Root:        "data/objects",
			FunctionURL: "http://localhost:8080/functions/upload-image",
			Prefix:      "images/",
			ProgressDir: "data/progress",
		},
	}

	if path := os.Getenv("HANDWRITING_CONFIG_PATH"); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the configuration once at startup.
func (c Config) Validate() error {
	if c.Collection.TargetImages <= 0 {
		return fmt.Errorf("target_images must be positive, got %d", c.Collection.TargetImages)
	}
	if c.Collection.MaxFileSize <= 0 {
		return fmt.Errorf("max_file_size must be positive, got %d", c.Collection.MaxFileSize)
	}
	if len(c.Collection.AllowedTypes) == 0 {
		return fmt.Errorf("allowed_types must not be empty")
	}
	if _, err := regexp.Compile(c.Collection.WorkerIDPattern); err != nil {
		return fmt.Errorf("invalid worker_id_pattern: %w", err)
	}
	if c.Collection.CodeLetters <= 0 || c.Collection.CodeDigits <= 0 {
		return fmt.Errorf("code_letters and code_digits must be positive")
	}
	switch c.Storage.Mode {
	case StorageModeDirect, StorageModeFunction:
	default:
		return fmt.Errorf("unknown storage mode %q", c.Storage.Mode)
	}
	if c.Storage.Mode == StorageModeFunction && c.Storage.FunctionURL == "" {
		return fmt.Errorf("storage function_url required in function mode")
	}
	if c.Email.Enabled && c.Email.FunctionURL == "" {
		return fmt.Errorf("email function_url required when email is enabled")
	}
	return nil
}

// WorkerIDRegexp compiles the configured worker ID pattern. Validate
// has already confirmed it compiles.
func (c Config) WorkerIDRegexp() *regexp.Regexp {
	return regexp.MustCompile(c.Collection.WorkerIDPattern)
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}
