package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

const (
	DefaultBranch     = "main"
	DefaultIntervalMs = 180000
	DefaultDataDir    = "data"
	DefaultLogLevel   = "info"
	DefaultDockerHost = "unix:///var/run/docker.sock"
	DefaultNamespace  = "default"
	DefaultTimeoutMs  = 300000
)

// Runtime names a target can declare. Each one maps to a dedicated deployer.
const (
	RuntimeHelm    = "helm"
	RuntimeCompose = "compose"
)

// CronParser accepts the classic five-field cron expressions for the
// optional schedule trigger.
var CronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Config is the full monitor configuration, read once at startup.
type Config struct {
	// RepoPath is the local working copy of the watched repository. It is
	// cloned from RemoteURL when missing.
	RepoPath   string `mapstructure:"repoPath" validate:"required"`
	RemoteURL  string `mapstructure:"remoteUrl" validate:"required"`
	Branch     string `mapstructure:"branch"`
	IntervalMs int    `mapstructure:"intervalMs" validate:"gt=0"`
	// Schedule optionally replaces the fixed interval with a five-field
	// cron expression.
	Schedule   string   `mapstructure:"schedule"`
	DataDir    string   `mapstructure:"dataDir"`
	LogLevel   string   `mapstructure:"logLevel" validate:"omitempty,oneof=debug info warn error"`
	Kubeconfig string   `mapstructure:"kubeconfig"`
	DockerHost string   `mapstructure:"dockerHost"`
	GitAuth    *GitAuth `mapstructure:"gitAuth"`
	Targets    []Target `mapstructure:"targets" validate:"required,min=1,dive"`
}

// GitAuth carries credentials for HTTPS remotes. Anonymous access is the
// default.
type GitAuth struct {
	Username string `mapstructure:"username"`
	Token    string `mapstructure:"token"`
}

// Target binds a path prefix inside the watched repository to one deployable
// unit. Targets are immutable after load.
type Target struct {
	Name       string `mapstructure:"name" validate:"required"`
	PathPrefix string `mapstructure:"pathPrefix" validate:"required"`
	Runtime    string `mapstructure:"runtime" validate:"required,oneof=helm compose"`
	Namespace  string `mapstructure:"namespace"`
	// Chart is the chart directory relative to the repository root. Helm
	// targets default it to PathPrefix.
	Chart             string `mapstructure:"chart"`
	ValuesFile        string `mapstructure:"valuesFile"`
	ComposeFile       string `mapstructure:"composeFile"`
	ReadinessSelector string `mapstructure:"readinessSelector"`
	TimeoutMs         int    `mapstructure:"timeoutMs" validate:"gte=0"`
}

// Interval is the polling period between scheduled cycles.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.IntervalMs) * time.Millisecond
}

// HasRuntime reports whether any registered target uses the given runtime.
func (c *Config) HasRuntime(runtime string) bool {
	for _, target := range c.Targets {
		if target.Runtime == runtime {
			return true
		}
	}
	return false
}

// Timeout bounds the apply call and the readiness poll of one task each.
func (t Target) Timeout() time.Duration {
	return time.Duration(t.TimeoutMs) * time.Millisecond
}

// Manager interface
type Manager interface {
	LoadAndValidateConfig() (*Config, error)
}

type manager struct {
	validator      *validator.Validate
	configFilePath string
}

// NewManager creates a new Manager
func NewManager(completeFilePath string) Manager {
	return &manager{
		validator:      validator.New(),
		configFilePath: completeFilePath,
	}
}

// LoadAndValidateConfig loads the configuration
func (m *manager) LoadAndValidateConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(m.configFilePath)
	v.SetDefault("branch", DefaultBranch)
	v.SetDefault("intervalMs", DefaultIntervalMs)
	v.SetDefault("dataDir", DefaultDataDir)
	v.SetDefault("logLevel", DefaultLogLevel)
	v.SetDefault("dockerHost", DefaultDockerHost)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyTargetDefaults(&config)

	if err := m.validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func applyTargetDefaults(config *Config) {
	for i := range config.Targets {
		target := &config.Targets[i]
		if target.Namespace == "" {
			target.Namespace = DefaultNamespace
		}
		if target.TimeoutMs == 0 {
			target.TimeoutMs = DefaultTimeoutMs
		}
		if target.Runtime == RuntimeHelm && target.Chart == "" {
			target.Chart = target.PathPrefix
		}
	}
}

// validateConfig validates the configuration beyond struct tags: the cron
// expression must parse and the target registry must be internally
// consistent. A malformed registry is fatal at startup.
func (m *manager) validateConfig(config *Config) error {
	if err := m.validator.Struct(config); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if config.Schedule != "" {
		if _, err := CronParser.Parse(config.Schedule); err != nil {
			return fmt.Errorf("invalid schedule %q: %w", config.Schedule, err)
		}
	}

	seen := make(map[string]struct{})
	for _, target := range config.Targets {
		if _, ok := seen[target.Name]; ok {
			return fmt.Errorf("duplicate target name %q", target.Name)
		}
		seen[target.Name] = struct{}{}

		switch target.Runtime {
		case RuntimeHelm:
			if target.ReadinessSelector == "" {
				return fmt.Errorf("target %q: readinessSelector is required for helm targets", target.Name)
			}
		case RuntimeCompose:
			if target.ComposeFile == "" {
				return fmt.Errorf("target %q: composeFile is required for compose targets", target.Name)
			}
		}
	}
	return nil
}
