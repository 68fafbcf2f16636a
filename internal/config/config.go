// Package config loads process configuration from an optional YAML file and
// the environment. It is read once at startup and not modified afterwards.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// EnvPrefix prefixes optional settings: GHAEXEC_<SECTION>_<FIELD>.
	EnvPrefix = "GHAEXEC_"
)

// Required environment variables.
const (
	EnvOwner = "GITHUB_OWNER"
	EnvRepo  = "GITHUB_REPO"
	EnvToken = "GITHUB_TOKEN"
	// EnvTokenFallback is read when EnvToken is unset.
	EnvTokenFallback = "GITHUB_PERSONAL_ACCESS_TOKEN"
	EnvLogLevel      = "LOG_LEVEL"
)

type Config struct {
	GitHub  GitHubConfig  `koanf:"github"`
	Poll    PollConfig    `koanf:"poll"`
	Exec    ExecConfig    `koanf:"exec"`
	Log     LogConfig     `koanf:"log"`
	Metrics MetricsConfig `koanf:"metrics"`
	Janitor JanitorConfig `koanf:"janitor"`
	Policy  PolicyConfig  `koanf:"policy"`
}

type GitHubConfig struct {
	Owner             string  `koanf:"owner"`
	Repo              string  `koanf:"repo"`
	Token             Secret  `koanf:"token"`
	APIURL            string  `koanf:"api_url"`
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	Burst             int     `koanf:"burst"`
}

type PollConfig struct {
	Interval time.Duration `koanf:"interval"`
	MaxTicks int           `koanf:"max_ticks"`
}

type ExecConfig struct {
	SettleDelay   time.Duration `koanf:"settle_delay"`
	WorkflowPath  string        `koanf:"workflow_path"`
	BranchPrefix  string        `koanf:"branch_prefix"`
	CommitMessage string        `koanf:"commit_message"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type MetricsConfig struct {
	// Addr is the listen address of the /metrics endpoint. Empty disables it.
	Addr string `koanf:"addr"`
}

type JanitorConfig struct {
	MaxAge time.Duration `koanf:"max_age"`
}

type PolicyConfig struct {
	Rules []PolicyRule `koanf:"rules"`
}

// PolicyRule is a CEL expression over the decoded workflow, bound to `doc`.
type PolicyRule struct {
	Name    string `koanf:"name"`
	Expr    string `koanf:"expr"`
	Message string `koanf:"message"`
}

// MissingError names every required variable that is absent.
type MissingError struct {
	Vars []string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("missing required configuration: %s", strings.Join(e.Vars, ", "))
}

// Default returns the configuration with every optional setting at its default.
func Default() Config {
	return Config{
		GitHub: GitHubConfig{
			RequestsPerSecond: 10,
			Burst:             5,
		},
		Poll: PollConfig{
			Interval: 10 * time.Second,
			MaxTicks: 60,
		},
		Exec: ExecConfig{
			SettleDelay:   5 * time.Second,
			WorkflowPath:  ".github/workflows/ghaexec.yml",
			BranchPrefix:  "ghaexec",
			CommitMessage: "Run workflow via ghaexec",
		},
		Log: LogConfig{
			Level:  "INFO",
			Format: "json",
		},
		Janitor: JanitorConfig{
			MaxAge: 24 * time.Hour,
		},
	}
}

// Load reads the configuration with Read and validates it, including the
// required repository settings.
func Load(configPath string) (Config, error) {
	cfg, err := Read(configPath)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Read reads configPath, if not empty, then overrides it with the
// environment. The result is not validated.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables
//  2. YAML config file
//  3. Defaults
//
// Environment variable mapping:
//
//	GITHUB_OWNER -> github.owner
//	GITHUB_TOKEN -> github.token
//	LOG_LEVEL -> log.level
//	GHAEXEC_POLL_MAX_TICKS -> poll.max_ticks
//	GHAEXEC_GITHUB_API_URL -> github.api_url
func Read(configPath string) (Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		info, err := os.Stat(configPath)
		if err != nil {
			return Config{}, fmt.Errorf("could not read config file: %w", err)
		}
		if info.Size() > maxConfigFileSize {
			return Config{}, fmt.Errorf("config file %s exceeds %d bytes", configPath, maxConfigFileSize)
		}
		data, err := os.ReadFile(configPath)
		if err != nil {
			return Config{}, fmt.Errorf("could not read config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if !cfg.GitHub.Token.IsSet() {
		cfg.GitHub.Token = Secret(k.String("github.token_fallback"))
	}
	return cfg, nil
}

// envKey maps an environment variable to a config key. Unrelated variables
// map to "" and are skipped.
func envKey(s string) string {
	switch s {
	case EnvOwner:
		return "github.owner"
	case EnvRepo:
		return "github.repo"
	case EnvToken:
		return "github.token"
	case EnvTokenFallback:
		return "github.token_fallback"
	case EnvLogLevel:
		return "log.level"
	}

	rest, ok := strings.CutPrefix(s, EnvPrefix)
	if !ok {
		return ""
	}
	section, field, ok := strings.Cut(strings.ToLower(rest), "_")
	if !ok || field == "" {
		return ""
	}
	return section + "." + field
}

// Validate checks required values and ranges.
func (c Config) Validate() error {
	var missing []string
	if c.GitHub.Owner == "" {
		missing = append(missing, EnvOwner)
	}
	if c.GitHub.Repo == "" {
		missing = append(missing, EnvRepo)
	}
	if !c.GitHub.Token.IsSet() {
		missing = append(missing, EnvToken)
	}
	if len(missing) > 0 {
		return &MissingError{Vars: missing}
	}
	return c.validateOptional()
}

// ValidateLocal checks only the settings that do not involve the remote
// repository. Commands that never call the provider use it.
func (c Config) ValidateLocal() error {
	return c.validateOptional()
}

func (c Config) validateOptional() error {
	if c.Poll.MaxTicks < 1 {
		return fmt.Errorf("poll.max_ticks must be at least 1, got %d", c.Poll.MaxTicks)
	}
	if c.Poll.Interval < 0 {
		return fmt.Errorf("poll.interval cannot be negative")
	}
	if c.Exec.SettleDelay < 0 {
		return fmt.Errorf("exec.settle_delay cannot be negative")
	}
	if c.Exec.WorkflowPath == "" {
		return fmt.Errorf("exec.workflow_path cannot be empty")
	}
	if !strings.HasPrefix(c.Exec.WorkflowPath, ".github/workflows/") {
		return fmt.Errorf("exec.workflow_path must be under .github/workflows/, got %s", c.Exec.WorkflowPath)
	}
	if c.Exec.BranchPrefix == "" || strings.HasSuffix(c.Exec.BranchPrefix, "/") {
		return fmt.Errorf("exec.branch_prefix must be non-empty and not end with /")
	}
	if c.Janitor.MaxAge <= 0 {
		return fmt.Errorf("janitor.max_age must be positive")
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console, got %s", c.Log.Format)
	}
	for i, rule := range c.Policy.Rules {
		if rule.Name == "" || rule.Expr == "" {
			return fmt.Errorf("policy.rules[%d] needs a name and an expr", i)
		}
	}
	return nil
}
