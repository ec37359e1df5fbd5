package hub

import (
	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/configloader"
)

// History modes for chat message persistence across queries.
const (
	HistoryPersist = "persist"
	HistoryReset   = "reset"
)

// Config describes the set of tool providers to launch and how chat history
// behaves between queries.
type Config struct {
	Servers []*ServerConfig `json:"servers" yaml:"servers"`

	// History is "persist" to carry messages across queries in the same chat,
	// or "reset" (default) to start every query from a clean history.
	History string `json:"history,omitempty" yaml:"history,omitempty"`
}

// ServerConfig describes one tool-provider process.
type ServerConfig struct {
	ID      string   `json:"id" yaml:"id"`
	Command string   `json:"command" yaml:"command"`
	Args    []string `json:"args,omitempty" yaml:"args,omitempty"`
	Env     []string `json:"env,omitempty" yaml:"env,omitempty"`
}

// LoadConfig from file
func LoadConfig(file string) (*Config, error) {
	cfg := new(Config)
	if file == "" {
		return cfg, nil
	}

	err := configloader.UnmarshalAndExpand(file, cfg)
	if err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// Validate checks the configuration for obvious mistakes.
func (c *Config) Validate() error {
	seen := map[string]bool{}
	for _, sc := range c.Servers {
		if sc.ID == "" {
			return errors.New("server id is required")
		}
		if seen[sc.ID] {
			return errors.Newf("duplicate server id: %s", sc.ID)
		}
		seen[sc.ID] = true
		if sc.Command == "" {
			return errors.Newf("server %s: command is required", sc.ID)
		}
	}
	switch c.History {
	case "", HistoryPersist, HistoryReset:
	default:
		return errors.Newf("invalid history mode: %s", c.History)
	}
	return nil
}
