// File-based configuration overlay: a YAML file with ${VAR} /
// ${VAR:-default} environment-variable substitution, layered on top of
// the env-var defaults Load() produces. Grounded on the teacher's
// pkg/config/anchor_config.go, which reads its own AnchorConfig the same
// way (os.ReadFile, substitute ${VAR} tokens, then yaml.Unmarshal).
package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} or ${VAR_NAME:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// FileOverrides is the subset of Config an operator typically wants in a
// checked-in deployment file rather than scattered across env vars:
// topology, ledger cadence, and trust/rate-limit policy. Secrets
// (DATABASE_URL, STATE_HMAC_SECRET, JWT_SECRET) are deliberately absent —
// those stay env-only so they never land in a committed file.
type FileOverrides struct {
	ListenAddr         string   `yaml:"listenAddr"`
	MetricsAddr        string   `yaml:"metricsAddr"`
	HealthAddr         string   `yaml:"healthAddr"`
	CheckpointInterval uint64   `yaml:"checkpointInterval"`
	CommitmentInterval uint64   `yaml:"commitmentInterval"`
	TrustedKeyVersions []string `yaml:"trustedKeyVersions"`
	CORSOrigins        []string `yaml:"corsOrigins"`
	RateLimitRequests  int      `yaml:"rateLimitRequests"`
	RateLimitWindow    int      `yaml:"rateLimitWindow"`
	LogLevel           string   `yaml:"logLevel"`
}

// LoadFileOverrides reads and parses a YAML overrides file, substituting
// ${VAR_NAME} / ${VAR_NAME:-default} tokens from the environment before
// parsing.
func LoadFileOverrides(path string) (*FileOverrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	expanded := substituteEnvVars(string(data))

	var f FileOverrides
	if err := yaml.Unmarshal([]byte(expanded), &f); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &f, nil
}

// ApplyFile overlays non-zero fields from a FileOverrides file onto c.
// Values already set by env vars win only where the file leaves its own
// field at its zero value, so an operator can override just the fields
// they care about.
func (c *Config) ApplyFile(path string) error {
	f, err := LoadFileOverrides(path)
	if err != nil {
		return err
	}
	if f.ListenAddr != "" {
		c.ListenAddr = f.ListenAddr
	}
	if f.MetricsAddr != "" {
		c.MetricsAddr = f.MetricsAddr
	}
	if f.HealthAddr != "" {
		c.HealthAddr = f.HealthAddr
	}
	if f.CheckpointInterval != 0 {
		c.CheckpointInterval = f.CheckpointInterval
	}
	if f.CommitmentInterval != 0 {
		c.CommitmentInterval = f.CommitmentInterval
	}
	if len(f.TrustedKeyVersions) > 0 {
		c.TrustedKeyVersions = f.TrustedKeyVersions
	}
	if len(f.CORSOrigins) > 0 {
		c.CORSOrigins = f.CORSOrigins
	}
	if f.RateLimitRequests != 0 {
		c.RateLimitRequests = f.RateLimitRequests
	}
	if f.RateLimitWindow != 0 {
		c.RateLimitWindow = f.RateLimitWindow
	}
	if f.LogLevel != "" {
		c.LogLevel = f.LogLevel
	}
	return nil
}

func substituteEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultValue := ""
		if len(groups) >= 4 {
			defaultValue = groups[3]
		}
		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}
