// Package config loads the service configuration from environment variables
// and an optional YAML file, and provides helpers for distinguishing real
// configuration values from scaffolding placeholders.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Configs holds the static configuration for the Forgeplane service.
type Configs struct {
	// App configuration
	AppName     string `mapstructure:"app_name"`
	AppEnv      string `mapstructure:"app_env"`
	AppPort     int    `mapstructure:"app_port"`
	AppLogLevel string `mapstructure:"app_log_level"`

	// AppURL is the front-end origin allowed by the CORS policy.
	AppURL string `mapstructure:"app_url"`

	// GitHub configuration
	GitHubToken            string `mapstructure:"github_token"`
	GitHubOrganizationName string `mapstructure:"github_organization_name"`

	// GitLab configuration
	GitLabToken   string `mapstructure:"gitlab_token"`
	GitLabBaseUrl string `mapstructure:"gitlab_base_url"`

	// ProgramsRoot is the directory containing the infrastructure programs
	// (templates/<name>/pulumi and platforms/<type> working directories).
	ProgramsRoot string `mapstructure:"programs_root"`

	// EngineBinary is the IaC engine executable invoked per stack.
	EngineBinary string `mapstructure:"engine_binary"`

	// InstallBinary is the dependency-install executable for working directories.
	InstallBinary string `mapstructure:"install_binary"`

	// Store configuration
	StoreBackend string `mapstructure:"store_backend"` // memory | sqlite
	StorePath    string `mapstructure:"store_path"`

	// Tracing configuration
	TracingEnabled  bool   `mapstructure:"tracing_enabled"`
	TracingExporter string `mapstructure:"tracing_exporter"`
	TracingEndpoint string `mapstructure:"tracing_endpoint"`

	// MetricsEnabled toggles the /metrics endpoint.
	MetricsEnabled bool `mapstructure:"metrics_enabled"`
}

// Load reads configuration from the environment (and configPath when given)
// into a Configs value. Environment variables use upper snake case
// (APP_PORT, GITHUB_TOKEN, ...).
func Load(configPath string) (*Configs, error) {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	// Explicit binds so AutomaticEnv covers keys absent from any file.
	for _, key := range []string{
		"app_name", "app_env", "app_port", "app_log_level", "app_url",
		"github_token", "github_organization_name",
		"gitlab_token", "gitlab_base_url",
		"programs_root", "engine_binary", "install_binary",
		"store_backend", "store_path",
		"tracing_enabled", "tracing_exporter", "tracing_endpoint",
		"metrics_enabled",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env key %s: %w", key, err)
		}
	}

	cfg := &Configs{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_name", "forgeplane")
	v.SetDefault("app_env", "development")
	v.SetDefault("app_port", 8080)
	v.SetDefault("app_log_level", "info")
	v.SetDefault("app_url", "http://localhost:3001")
	v.SetDefault("programs_root", "programs")
	v.SetDefault("engine_binary", "pulumi")
	v.SetDefault("install_binary", "npm")
	v.SetDefault("store_backend", "memory")
	v.SetDefault("store_path", "forgeplane.db")
	v.SetDefault("tracing_enabled", false)
	v.SetDefault("tracing_exporter", "stdout")
	v.SetDefault("metrics_enabled", true)
}
