package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// CoordinatorConfig holds the Coordinator's recognized keys (spec §6).
type CoordinatorConfig struct {
	BindAddress             string   `yaml:"bind_address"`
	Port                    int      `yaml:"port"`
	MaxConnections          int      `yaml:"max_connections"`
	RequestTimeoutS         int      `yaml:"request_timeout_s"`
	TokenExpirationDays     int      `yaml:"token_expiration_days"`
	MaxUsersPerRift         int      `yaml:"max_users_per_rift"`
	BroadcastQueueCapacity  int      `yaml:"broadcast_queue_capacity"`
	DebounceWindowMS        int      `yaml:"debounce_window_ms"`
	PostgresDSN             string   `yaml:"postgres_dsn"`
	BlobDir                 string   `yaml:"blob_dir"`
	LogLevel                string   `yaml:"log_level"`
	Features                Features `yaml:"enable_feature"`
}

// Features gates peripheral functionality the protocol reserves message
// variants for but whose semantics are out of this spec's core (§1).
type Features struct {
	Chat    bool `yaml:"chat"`
	Uploads bool `yaml:"uploads"`
}

// defaultCoordinatorConfig returns the values LoadCoordinatorConfig starts
// from before it unmarshals the YAML file over them, so any key the file
// omits keeps its default.
func defaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		BindAddress:            "0.0.0.0",
		Port:                   8443,
		MaxConnections:         1024,
		RequestTimeoutS:        30,
		TokenExpirationDays:    30,
		MaxUsersPerRift:        64,
		BroadcastQueueCapacity: 1024,
		DebounceWindowMS:       250,
		BlobDir:                "./rift-blobs",
		LogLevel:               "info",
	}
}

// LoadCoordinatorConfig reads path, applies defaults, then applies
// environment overrides (file → environment parse order, spec §6).
func LoadCoordinatorConfig(path string) (*CoordinatorConfig, error) {
	cfg := defaultCoordinatorConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading coordinator config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing coordinator config: %w", err)
		}
	}

	applyCoordinatorEnvOverrides(&cfg)
	return &cfg, nil
}

func applyCoordinatorEnvOverrides(cfg *CoordinatorConfig) {
	if v, ok := os.LookupEnv("RIFT_BIND_ADDRESS"); ok {
		cfg.BindAddress = v
	}
	if v, ok := os.LookupEnv("RIFT_PORT"); ok {
		fmt.Sscanf(v, "%d", &cfg.Port)
	}
	if v, ok := os.LookupEnv("RIFT_POSTGRES_DSN"); ok {
		cfg.PostgresDSN = v
	}
	if v, ok := os.LookupEnv("RIFT_LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
}

// ValidateCoordinatorConfig checks required invariants, in the teacher's
// Validate()-returns-[]error style (internal/config.Validate).
func ValidateCoordinatorConfig(cfg *CoordinatorConfig) []error {
	var errs []error
	if cfg.Port <= 0 || cfg.Port > 65535 {
		errs = append(errs, fmt.Errorf("port must be between 1 and 65535, got %d", cfg.Port))
	}
	if cfg.BroadcastQueueCapacity <= 0 {
		errs = append(errs, fmt.Errorf("broadcast_queue_capacity must be positive"))
	}
	if cfg.MaxUsersPerRift <= 0 {
		errs = append(errs, fmt.Errorf("max_users_per_rift must be positive"))
	}
	return errs
}
