package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Load reads and validates the agent configuration file at path
// (typically "./agent_0.cfg", per §6), expanding environment variables in
// the string fields that commonly carry them (sandbox paths, session and
// pilot identifiers) and applying the defaults described in defaults.go.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &LoadError{File: path, Err: ErrConfigNotFound}
		}
		return nil, &LoadError{File: path, Err: err}
	}

	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, &LoadError{File: path, Err: fmt.Errorf("%w: %v", ErrInvalidJSON, err)}
	}

	c.PilotID = ExpandEnv(c.PilotID)
	c.SessionID = ExpandEnv(c.SessionID)
	c.PilotSandbox = ExpandEnv(c.PilotSandbox)

	applyDefaults(&c)

	if err := Validate(&c); err != nil {
		return nil, err
	}

	return &c, nil
}
