package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the Signal bridge.
type Config struct {
	General       GeneralConfig       `json:"general" yaml:"general"`
	Signal        SignalConfig        `json:"signal" yaml:"signal"`
	Agent         AgentConfig         `json:"agent" yaml:"agent"`
	Transcription TranscriptionConfig `json:"transcription" yaml:"transcription"`
	Gateway       GatewayConfig       `json:"gateway" yaml:"gateway"`
}

type GeneralConfig struct {
	LogLevel string `json:"logLevel" yaml:"logLevel"`
	LogFile  string `json:"logFile,omitempty" yaml:"logFile,omitempty"` // optional log file path
}

// SignalConfig configures the signal-cli daemon and the inbound loop.
type SignalConfig struct {
	Account               string         `json:"account" yaml:"account"`
	AllowedNumbers        FlexStringList `json:"allowedNumbers" yaml:"allowedNumbers"`
	HTTPAddr              string         `json:"httpAddr" yaml:"httpAddr"`
	CLIPath               string         `json:"cliPath,omitempty" yaml:"cliPath,omitempty"`
	AttachmentsDir        string         `json:"attachmentsDir,omitempty" yaml:"attachmentsDir,omitempty"`
	ReplyMode             string         `json:"replyMode" yaml:"replyMode"` // "direct" | "agent"
	StartupTimeoutSeconds int            `json:"startupTimeoutSeconds" yaml:"startupTimeoutSeconds"`
}

// AgentConfig configures the upstream agent endpoint.
type AgentConfig struct {
	URL            string `json:"url" yaml:"url"`
	TimeoutSeconds int    `json:"timeoutSeconds" yaml:"timeoutSeconds"`
	// ForwardAudio forwards raw voice notes (base64) to the agent when
	// transcription is not configured.
	ForwardAudio bool `json:"forwardAudio" yaml:"forwardAudio"`
}

// TranscriptionConfig configures the voice note transcription backend.
// Transcription is enabled when an API key is set.
type TranscriptionConfig struct {
	APIBase       string   `json:"apiBase" yaml:"apiBase"`
	APIKey        string   `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
	Model         string   `json:"model" yaml:"model"`
	Language      string   `json:"language,omitempty" yaml:"language,omitempty"`
	AcceptedTypes []string `json:"acceptedTypes,omitempty" yaml:"acceptedTypes,omitempty"`
}

// GatewayConfig configures the outbound HTTP gateway.
type GatewayConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Host    string `json:"host" yaml:"host"`
	Port    int    `json:"port" yaml:"port"`
}

// FlexStringList is a []string that also accepts arrays containing
// numbers (e.g. ["+123", 456] both become "+123", "456"). Phone
// numbers in hand-written config files show up both ways.
type FlexStringList []string

func (f *FlexStringList) UnmarshalJSON(data []byte) error {
	// Try []string first
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	// Fallback: array of mixed types
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			result = append(result, s)
			continue
		}
		var n float64
		if err := json.Unmarshal(item, &n); err == nil {
			result = append(result, strconv.FormatInt(int64(n), 10))
			continue
		}
		result = append(result, string(item))
	}
	*f = result
	return nil
}

func (f *FlexStringList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.SequenceNode {
		return fmt.Errorf("line %d: expected a list", node.Line)
	}
	result := make([]string, 0, len(node.Content))
	for _, item := range node.Content {
		if item.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: expected a scalar list entry", item.Line)
		}
		result = append(result, item.Value)
	}
	*f = result
	return nil
}

// DefaultConfigDir returns the default config directory (~/.signalbridge).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".signalbridge"
	}
	return filepath.Join(home, ".signalbridge")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load reads a config file (JSON, or YAML when the file ends in
// .yaml/.yml), expands environment variable references, applies
// defaults for unset fields, and validates the result.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.Signal.AttachmentsDir = ExpandPath(cfg.Signal.AttachmentsDir)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // Keep original if no env var and no default
		}
		return val
	})
}

// Save writes the config in the format matching the path's extension.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "", "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	if cfg.Signal.Account == "" {
		errs = append(errs, "signal.account is required")
	} else if !strings.HasPrefix(cfg.Signal.Account, "+") {
		errs = append(errs, "signal.account must be a phone number in E.164 form (+...)")
	}
	if len(cfg.Signal.AllowedNumbers) == 0 {
		errs = append(errs, "signal.allowedNumbers must list at least one number")
	}
	if cfg.Signal.HTTPAddr == "" {
		errs = append(errs, "signal.httpAddr is required")
	}
	switch cfg.Signal.ReplyMode {
	case "direct", "agent":
		// valid
	default:
		errs = append(errs, "signal.replyMode must be one of: direct, agent")
	}
	if cfg.Signal.StartupTimeoutSeconds < 1 {
		errs = append(errs, "signal.startupTimeoutSeconds must be >= 1")
	}

	if cfg.Agent.URL == "" {
		errs = append(errs, "agent.url is required")
	}
	if cfg.Agent.TimeoutSeconds < 1 {
		errs = append(errs, "agent.timeoutSeconds must be >= 1")
	}

	if cfg.Gateway.Enabled {
		if cfg.Gateway.Port < 1 || cfg.Gateway.Port > 65535 {
			errs = append(errs, "gateway.port must be between 1 and 65535")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
