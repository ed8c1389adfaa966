// Package config loads the recognised configuration keys of spec.md §6
// through viper, so the core is constructed from one explicit value instead
// of scattered os.Getenv lookups.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every tunable named in spec.md §6's configuration table.
type Config struct {
	MaxConcurrentAgents int           `mapstructure:"max_concurrent_agents"`
	MaxToolCalls        int           `mapstructure:"max_tool_calls"`
	AgentTimeout        time.Duration `mapstructure:"agent_timeout"`
	ExecutionTimeout    time.Duration `mapstructure:"execution_timeout"`
	ComplexityThreshold float64       `mapstructure:"complexity_threshold"`

	Supervisor struct {
		EnableQualityGates bool    `mapstructure:"enable_quality_gates"`
		QualityThreshold   float64 `mapstructure:"quality_threshold"`
		MaxRetryOnFailure  int     `mapstructure:"max_retry_on_failure"`
		MaxReactIterations int     `mapstructure:"max_react_iterations"`
		EnableResearch     bool    `mapstructure:"enable_research"`
	} `mapstructure:"supervisor"`

	EnableLongTextProcessing bool `mapstructure:"enable_long_text_processing"`
	EnableTeamMode           bool `mapstructure:"enable_team_mode"`

	// ReviewerTimeout is the per-reviewer-call cap from spec.md §4.5 ("default 30s").
	ReviewerTimeout time.Duration `mapstructure:"reviewer_timeout"`
	// ToolCallTimeout bounds an individual tool invocation.
	ToolCallTimeout time.Duration `mapstructure:"tool_call_timeout"`
	// MaxToolTurns is the Sub-Agent's per-step tool-call-turn budget (spec.md §4.4 step 3).
	MaxToolTurns int `mapstructure:"max_tool_turns"`

	// RecoveryFilePath is where Shutdown writes the IDs of tasks still
	// running at shutdown, with a timestamp; nothing is written when no task
	// is running. Sandbox Gateway instances are not listed in this file.
	RecoveryFilePath string `mapstructure:"recovery_file_path"`
}

// Defaults mirrors the defaults called out inline in spec.md.
func Defaults() *Config {
	c := &Config{
		MaxConcurrentAgents: 100,
		MaxToolCalls:        1500,
		AgentTimeout:        300 * time.Second,
		ExecutionTimeout:    3600 * time.Second,
		ComplexityThreshold: 0.5,
		ReviewerTimeout:     30 * time.Second,
		ToolCallTimeout:     30 * time.Second,
		MaxToolTurns:        20,
		RecoveryFilePath:    "swarm_recovery.json",
	}
	c.Supervisor.EnableQualityGates = true
	c.Supervisor.QualityThreshold = 0.7
	c.Supervisor.MaxRetryOnFailure = 2
	c.Supervisor.MaxReactIterations = 5
	c.Supervisor.EnableResearch = true
	c.EnableLongTextProcessing = true
	c.EnableTeamMode = true
	return c
}

// Load builds a Config from defaults, an optional YAML file, and environment
// variables (SWARM_* prefix), in that precedence order — following the
// layered-source pattern of AminAzmoo-Netly's internal/config/loader.go.
func Load(path string) (*Config, error) {
	v := viper.New()
	def := Defaults()
	setDefaults(v, def)

	v.SetEnvPrefix("SWARM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, err
			}
		}
	}

	cfg := Defaults()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, c *Config) {
	v.SetDefault("max_concurrent_agents", c.MaxConcurrentAgents)
	v.SetDefault("max_tool_calls", c.MaxToolCalls)
	v.SetDefault("agent_timeout", c.AgentTimeout)
	v.SetDefault("execution_timeout", c.ExecutionTimeout)
	v.SetDefault("complexity_threshold", c.ComplexityThreshold)
	v.SetDefault("supervisor.enable_quality_gates", c.Supervisor.EnableQualityGates)
	v.SetDefault("supervisor.quality_threshold", c.Supervisor.QualityThreshold)
	v.SetDefault("supervisor.max_retry_on_failure", c.Supervisor.MaxRetryOnFailure)
	v.SetDefault("supervisor.max_react_iterations", c.Supervisor.MaxReactIterations)
	v.SetDefault("supervisor.enable_research", c.Supervisor.EnableResearch)
	v.SetDefault("enable_long_text_processing", c.EnableLongTextProcessing)
	v.SetDefault("enable_team_mode", c.EnableTeamMode)
	v.SetDefault("reviewer_timeout", c.ReviewerTimeout)
	v.SetDefault("tool_call_timeout", c.ToolCallTimeout)
	v.SetDefault("max_tool_turns", c.MaxToolTurns)
	v.SetDefault("recovery_file_path", c.RecoveryFilePath)
}
