// Package config loads run configurations from the legacy parameter file or
// from YAML.
package config

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	FormatText  = "text"
	FormatJSONL = "jsonl"

	EnvWorkers = "TRDENS_WORKERS"
	EnvFormat  = "TRDENS_FORMAT"
)

var ErrInvalid = errors.New("invalid run configuration")

// Transition names a pair of 0-based eigenstate indices. In YAML it is
// either "i,f" or a mapping with initial and final keys.
type Transition struct {
	Initial int `yaml:"initial" json:"initial"`
	Final   int `yaml:"final" json:"final"`
}

func (t *Transition) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		parsed, err := parsePair(node.Value)
		if err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		*t = parsed
		return nil
	}
	type plain Transition
	return node.Decode((*plain)(t))
}

type Config struct {
	Initial     string       `yaml:"initial"`
	Final       string       `yaml:"final"`
	Output      string       `yaml:"output"`
	Body        int          `yaml:"body"`
	JOp         int          `yaml:"j_op"`
	TOp         int          `yaml:"t_op"`
	Spectator   bool         `yaml:"spectator"`
	Truncate    bool         `yaml:"truncate"`
	Workers     int          `yaml:"workers"`
	Format      string       `yaml:"format"`
	Transitions []Transition `yaml:"transitions"`

	// Dir anchors relative base names; it is the config file's directory.
	Dir string `yaml:"-"`
}

// Default returns the settings used for keys a file leaves out.
func Default() *Config {
	return &Config{Body: 1, Workers: 1, Format: FormatText}
}

// Load reads path as YAML when it ends in .yaml or .yml and as a parameter
// file otherwise, then applies environment overrides and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	var cfg *Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		cfg, err = ParseYAML(data)
	default:
		cfg, err = ParseParams(bytes.NewReader(data))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	cfg.Dir = filepath.Dir(path)
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func ParseYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return cfg, nil
}

// ParseParams reads the line-oriented parameter file: initial base, final
// base, output base, body count, "J,T", spectator flag, then one "i,f" line
// per transition. Reading stops at the first line that is not a pair.
func ParseParams(r io.Reader) (*Config, error) {
	cfg := Default()
	sc := bufio.NewScanner(r)
	var lines []string
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(lines) < 6 {
		return nil, fmt.Errorf("%w: parameter file has %d of 6 header lines", ErrInvalid, len(lines))
	}

	cfg.Initial, cfg.Final, cfg.Output = lines[0], lines[1], lines[2]
	body, err := strconv.Atoi(lines[3])
	if err != nil {
		return nil, fmt.Errorf("%w: body count %q", ErrInvalid, lines[3])
	}
	cfg.Body = body
	op, err := parsePair(lines[4])
	if err != nil {
		return nil, fmt.Errorf("operator rank: %w", err)
	}
	cfg.JOp, cfg.TOp = op.Initial, op.Final
	switch lines[5] {
	case "0":
	case "1":
		cfg.Spectator = true
	default:
		return nil, fmt.Errorf("%w: spectator flag %q, want 0 or 1", ErrInvalid, lines[5])
	}
	for _, line := range lines[6:] {
		t, err := parsePair(line)
		if err != nil {
			break
		}
		cfg.Transitions = append(cfg.Transitions, t)
	}
	return cfg, nil
}

func parsePair(s string) (Transition, error) {
	a, b, ok := strings.Cut(s, ",")
	if !ok {
		return Transition{}, fmt.Errorf("%w: %q is not a comma-separated pair", ErrInvalid, s)
	}
	i, err1 := strconv.Atoi(strings.TrimSpace(a))
	f, err2 := strconv.Atoi(strings.TrimSpace(b))
	if err1 != nil || err2 != nil {
		return Transition{}, fmt.Errorf("%w: %q is not an integer pair", ErrInvalid, s)
	}
	return Transition{Initial: i, Final: f}, nil
}

// ApplyEnv overrides workers and format from the environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvWorkers); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalid, EnvWorkers, v)
		}
		c.Workers = n
	}
	if v, ok := lookup(EnvFormat); ok && v != "" {
		c.Format = strings.ToLower(v)
	}
	return nil
}

func (c *Config) Validate() error {
	var problems []string
	if c.Initial == "" || c.Final == "" || c.Output == "" {
		problems = append(problems, "initial, final and output are required")
	}
	if c.Body != 1 && c.Body != 2 {
		problems = append(problems, fmt.Sprintf("body count %d, want 1 or 2", c.Body))
	}
	maxT := 2
	if c.Body == 1 {
		maxT = 1
	}
	if c.JOp < 0 || c.TOp < 0 || c.TOp > maxT {
		problems = append(problems, fmt.Sprintf("operator J=%d T=%d out of range", c.JOp, c.TOp))
	}
	if c.Workers < 1 {
		problems = append(problems, fmt.Sprintf("workers %d, want at least 1", c.Workers))
	}
	if c.Format != FormatText && c.Format != FormatJSONL {
		problems = append(problems, fmt.Sprintf("format %q, want %s or %s", c.Format, FormatText, FormatJSONL))
	}
	if len(c.Transitions) == 0 {
		problems = append(problems, "no transitions")
	}
	for i, t := range c.Transitions {
		if t.Initial < 0 || t.Final < 0 {
			problems = append(problems, fmt.Sprintf("transition %d (%d,%d) has a negative index", i, t.Initial, t.Final))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// Resolve anchors a relative path at Dir.
func (c *Config) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || c.Dir == "" {
		return p
	}
	return filepath.Join(c.Dir, p)
}

func (c *Config) InitialBase() string { return c.Resolve(c.Initial) }
func (c *Config) FinalBase() string   { return c.Resolve(c.Final) }
func (c *Config) OutputBase() string  { return c.Resolve(c.Output) }
