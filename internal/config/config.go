// Package config loads kiln's YAML configuration: the poller's cycle
// timing, the adapter and executor backend settings, the store location,
// and the registered project/repo mapping the WorkflowExecutor resolves
// checkout paths from.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/agentic-metallurgy/kiln/internal/adapters/github"
	"github.com/agentic-metallurgy/kiln/internal/executor"
	"github.com/agentic-metallurgy/kiln/internal/logging"
)

// Config is the root configuration loaded from YAML. Use Load to read from
// a file or DefaultConfig for sensible defaults.
type Config struct {
	Poller         *PollerConfig           `yaml:"poller"`
	Adapters       *AdaptersConfig         `yaml:"adapters"`
	Executor       *executor.BackendConfig `yaml:"executor"`
	Store          *StoreConfig            `yaml:"store"`
	Logging        *logging.Config         `yaml:"logging"`
	Projects       []*ProjectConfig        `yaml:"projects"`
	DefaultProject string                  `yaml:"default_project"`
}

// PollerConfig holds the cycle-timing and dispatch-policy settings named by
// the configuration surface: base interval, RunnerPool capacity, the
// watched status set, the single authorized triggering actor, the stale
// workflow threshold, and the hibernation probe cadence.
type PollerConfig struct {
	Boards                   []BoardConfig `yaml:"boards"`
	PollInterval             string        `yaml:"poll_interval"`
	MaxConcurrentWorkflows   int           `yaml:"max_concurrent_workflows"`
	WatchedStatuses          []string      `yaml:"watched_statuses"`
	AllowedUsername          string        `yaml:"allowed_username"`
	StaleThreshold           string        `yaml:"stale_threshold"`
	HibernationProbeInterval string        `yaml:"hibernation_probe_interval"`
}

// BoardConfig identifies one (repo, board) pair the Poller watches.
type BoardConfig struct {
	Repo  string `yaml:"repo"`
	Board string `yaml:"board"`
}

// AdaptersConfig holds configuration for the ticket-source adapter. Only
// GitHub is implemented; the field is a pointer so a future adapter can be
// added the way the lineage adds one adapter config struct per provider.
type AdaptersConfig struct {
	GitHub *github.Config `yaml:"github"`
}

// StoreConfig holds settings for the SQLite-backed persistence layer.
type StoreConfig struct {
	Path   string `yaml:"path"`
	PureGo bool   `yaml:"pure_go"` // use modernc.org/sqlite instead of mattn/go-sqlite3
}

// ProjectConfig maps one registered project to its local checkout path and
// the repo it corresponds to on the ticket adapter.
type ProjectConfig struct {
	Name          string               `yaml:"name"`
	Path          string               `yaml:"path"`
	DefaultBranch string               `yaml:"default_branch"`
	GitHub        *ProjectGitHubConfig `yaml:"github,omitempty"`
}

// ProjectGitHubConfig identifies the owner/repo a project corresponds to.
type ProjectGitHubConfig struct {
	Owner string `yaml:"owner"`
	Repo  string `yaml:"repo"`
}

// DefaultConfig returns a Config with sensible defaults: a 30s base
// interval, 3-way concurrency, the default watched-status set, and a 1h
// stale threshold, matching the configuration surface's documented
// defaults.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Poller: &PollerConfig{
			Boards:                   []BoardConfig{},
			PollInterval:             "30s",
			MaxConcurrentWorkflows:   3,
			WatchedStatuses:          []string{"Research", "Plan", "Implement"},
			StaleThreshold:           "1h",
			HibernationProbeInterval: "5m",
		},
		Adapters: &AdaptersConfig{
			GitHub: github.DefaultConfig(),
		},
		Executor: executor.DefaultBackendConfig(),
		Store: &StoreConfig{
			Path:   filepath.Join(homeDir, ".kiln", "data"),
			PureGo: false,
		},
		Logging:  logging.DefaultConfig(),
		Projects: []*ProjectConfig{},
	}
}

// Load reads and parses configuration from a YAML file at path, applying
// environment variable overrides for the §6 configuration surface after
// the file is parsed. If the file does not exist, defaults (with env
// overrides still applied) are returned.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else {
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if cfg.Store != nil {
		cfg.Store.Path = expandPath(cfg.Store.Path)
	}
	for _, p := range cfg.Projects {
		p.Path = expandPath(p.Path)
	}

	return cfg, nil
}

// applyEnvOverrides applies the configuration surface's documented
// environment variables on top of whatever Load already parsed from YAML.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("POLL_INTERVAL"); v != "" {
		cfg.Poller.PollInterval = v + "s"
		if _, err := strconv.Atoi(v); err != nil {
			cfg.Poller.PollInterval = v
		}
	}
	if v := os.Getenv("MAX_CONCURRENT_WORKFLOWS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Poller.MaxConcurrentWorkflows = n
		}
	}
	if v := os.Getenv("WATCHED_STATUSES"); v != "" {
		cfg.Poller.WatchedStatuses = strings.Split(v, ",")
	}
	if v := os.Getenv("ALLOWED_USERNAME"); v != "" {
		cfg.Poller.AllowedUsername = v
	}
	if v := os.Getenv("STALE_THRESHOLD"); v != "" {
		cfg.Poller.StaleThreshold = v + "s"
		if _, err := strconv.Atoi(v); err != nil {
			cfg.Poller.StaleThreshold = v
		}
	}
	if v := os.Getenv("HIBERNATION_PROBE_INTERVAL"); v != "" {
		cfg.Poller.HibernationProbeInterval = v + "s"
		if _, err := strconv.Atoi(v); err != nil {
			cfg.Poller.HibernationProbeInterval = v
		}
	}
	if v := os.Getenv("GITHUB_TOKEN"); v != "" && cfg.Adapters != nil && cfg.Adapters.GitHub != nil {
		cfg.Adapters.GitHub.Token = v
	}
}

// Save writes cfg to a YAML file at path, creating the parent directory if
// needed.
func Save(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// DefaultConfigPath returns ~/.kiln/config.yaml.
func DefaultConfigPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".kiln", "config.yaml")
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[1:])
	}
	return path
}

// Validate checks the configuration and returns a plain error for a missing
// adapters.github section, a missing token while github is enabled, an
// empty board list, or an empty poller.allowed_username.
func (c *Config) Validate() error {
	if c.Adapters == nil || c.Adapters.GitHub == nil {
		return fmt.Errorf("adapters.github configuration is required")
	}
	if c.Adapters.GitHub.Enabled && c.Adapters.GitHub.Token == "" {
		return fmt.Errorf("adapters.github.token is required when github is enabled")
	}
	if c.Poller == nil || len(c.Poller.Boards) == 0 {
		return fmt.Errorf("at least one poller board must be configured")
	}
	if c.Poller.AllowedUsername == "" {
		return fmt.Errorf("poller.allowed_username is required")
	}
	return nil
}

// PollIntervalDuration parses Poller.PollInterval, defaulting to 30s on a
// parse error or empty value.
func (c *Config) PollIntervalDuration() time.Duration {
	return parseDurationOr(c.Poller.PollInterval, 30*time.Second)
}

// StaleThresholdDuration parses Poller.StaleThreshold, defaulting to 1h.
func (c *Config) StaleThresholdDuration() time.Duration {
	return parseDurationOr(c.Poller.StaleThreshold, time.Hour)
}

// HibernationProbeIntervalDuration parses Poller.HibernationProbeInterval,
// defaulting to 5m. The Poller does not take this value: poller.New fixes
// the hibernation probe interval at 5 minutes.
func (c *Config) HibernationProbeIntervalDuration() time.Duration {
	return parseDurationOr(c.Poller.HibernationProbeInterval, 5*time.Minute)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// GetProject returns the project configuration for a given checkout path.
func (c *Config) GetProject(path string) *ProjectConfig {
	for _, project := range c.Projects {
		if project.Path == path {
			return project
		}
	}
	return nil
}

// GetProjectByName returns the project configuration matching name,
// case-insensitively.
func (c *Config) GetProjectByName(name string) *ProjectConfig {
	nameLower := strings.ToLower(name)
	for _, project := range c.Projects {
		if strings.ToLower(project.Name) == nameLower {
			return project
		}
	}
	return nil
}

// GetProjectByRepo returns the project configuration whose GitHub
// owner/repo matches repo (in "owner/repo" form).
func (c *Config) GetProjectByRepo(repo string) *ProjectConfig {
	for _, project := range c.Projects {
		if project.GitHub == nil {
			continue
		}
		if fmt.Sprintf("%s/%s", project.GitHub.Owner, project.GitHub.Repo) == repo {
			return project
		}
	}
	return nil
}

// GetDefaultProject returns the default project, falling back to the
// first configured project. Returns nil if no projects are configured.
func (c *Config) GetDefaultProject() *ProjectConfig {
	if c.DefaultProject != "" {
		if proj := c.GetProjectByName(c.DefaultProject); proj != nil {
			return proj
		}
	}
	if len(c.Projects) > 0 {
		return c.Projects[0]
	}
	return nil
}

// BoardRefs converts the configured boards into ticket.BoardRef-shaped
// (repo, board) pairs for Poller construction. Returned as plain strings
// pairs to avoid an import cycle with internal/ticket; cmd/kiln converts
// them at wiring time.
func (c *Config) BoardRefs() []BoardConfig {
	if c.Poller == nil {
		return nil
	}
	return c.Poller.Boards
}
