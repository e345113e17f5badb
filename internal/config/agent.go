package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Agent is the full agent configuration.
type Agent struct {
	ServerURL          string `toml:"server_url"`
	APIKey             string `toml:"api_key"`
	AgentID            string `toml:"agent_id"`
	ReportIntervalSecs int    `toml:"report_interval_secs"`
}

// DefaultAgent returns an Agent with every optional field populated with its
// documented default.
func DefaultAgent() Agent {
	return Agent{
		ReportIntervalSecs: 30,
	}
}

// AgentConfigPaths returns the path resolution order for the agent config:
// explicit path (if non-empty), then the user config directory, then the
// system config directory.
func AgentConfigPaths(explicit string) []string {
	var paths []string
	if explicit != "" {
		paths = append(paths, explicit)
	}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "panoptikon-agent", "agent.toml"))
	}
	paths = append(paths, filepath.Join(string(filepath.Separator), "etc", "panoptikon-agent", "agent.toml"))
	return paths
}

// LoadAgent resolves the agent config path (explicit wins, then user config
// dir, then system config dir) and loads the first file that exists.
func LoadAgent(explicit string) (Agent, error) {
	var lastErr error
	for _, path := range AgentConfigPaths(explicit) {
		cfg, err := loadAgentFile(path)
		if err == nil {
			return cfg, nil
		}
		if !os.IsNotExist(err) {
			return Agent{}, err
		}
		lastErr = err
	}
	return Agent{}, fmt.Errorf("no agent config found: %w", lastErr)
}

func loadAgentFile(path string) (Agent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Agent{}, err
	}

	cfg := DefaultAgent()
	dec := toml.NewDecoder(strings.NewReader(string(data)))
	if err := dec.Decode(&cfg); err != nil {
		return Agent{}, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if errs := cfg.validate(); len(errs) > 0 {
		return Agent{}, aggregateErrors(errs)
	}
	return cfg, nil
}

func (c Agent) validate() []string {
	var problems []string
	if c.ServerURL == "" {
		problems = append(problems, "server_url must not be empty")
	}
	if c.APIKey == "" {
		problems = append(problems, "api_key must not be empty")
	}
	if c.AgentID == "" {
		problems = append(problems, "agent_id must not be empty")
	}
	if c.ReportIntervalSecs <= 0 {
		problems = append(problems, "report_interval_secs must be positive")
	}
	return problems
}
