package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DaemonConfig holds the Daemon's recognized keys.
type DaemonConfig struct {
	CoordinatorURL      string   `yaml:"coordinator_url"`
	IPCPort             int      `yaml:"ipc_port"`
	DebounceWindowMS    int      `yaml:"debounce_window_ms"`
	SuppressionWindowMS int      `yaml:"suppression_window_ms"`
	MaxFileSizeBytes    int64    `yaml:"max_file_size_bytes"`
	LargeFileThreshold  int64    `yaml:"large_file_threshold_bytes"`
	IgnorePatterns      []string `yaml:"ignore_patterns"`
	IdleGraceS          int      `yaml:"idle_grace_s"` // 0 = stay alive indefinitely
	LogLevel            string   `yaml:"log_level"`
	StateDir            string   `yaml:"state_dir"`
}

func defaultDaemonConfig() DaemonConfig {
	return DaemonConfig{
		CoordinatorURL:      "ws://127.0.0.1:8443",
		IPCPort:             7417,
		DebounceWindowMS:    150,
		SuppressionWindowMS: 500,
		MaxFileSizeBytes:    50 * 1024 * 1024,
		LargeFileThreshold:  1024 * 1024, // 1 MiB, per §5 "offloaded to a blocking pool above a size threshold"
		IgnorePatterns: []string{
			".git/", ".rift/", "*.swp", "*.swo", "*~", ".DS_Store",
		},
		IdleGraceS: 0,
		LogLevel:   "info",
		StateDir:   defaultStateDir(),
	}
}

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".rift"
	}
	return home + "/.rift"
}

// LoadDaemonConfig reads path (if non-empty), applies defaults, then
// environment overrides.
func LoadDaemonConfig(path string) (*DaemonConfig, error) {
	cfg := defaultDaemonConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading daemon config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing daemon config: %w", err)
		}
	}

	applyDaemonEnvOverrides(&cfg)
	return &cfg, nil
}

func applyDaemonEnvOverrides(cfg *DaemonConfig) {
	if v, ok := os.LookupEnv("RIFT_COORDINATOR_URL"); ok {
		cfg.CoordinatorURL = v
	}
	if v, ok := os.LookupEnv("RIFT_IPC_PORT"); ok {
		fmt.Sscanf(v, "%d", &cfg.IPCPort)
	}
	if v, ok := os.LookupEnv("RIFT_LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
}

// ValidateDaemonConfig mirrors ValidateCoordinatorConfig's shape.
func ValidateDaemonConfig(cfg *DaemonConfig) []error {
	var errs []error
	if cfg.CoordinatorURL == "" {
		errs = append(errs, fmt.Errorf("coordinator_url is required"))
	}
	if cfg.IPCPort <= 0 || cfg.IPCPort > 65535 {
		errs = append(errs, fmt.Errorf("ipc_port must be between 1 and 65535, got %d", cfg.IPCPort))
	}
	return errs
}
