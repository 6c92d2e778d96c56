package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const legacyParams = `ne20_i
ne20_f
out/ne20
2
0,0
1
0,0
0,1

1,0
end
5,5
`

func TestParseParams(t *testing.T) {
	cfg, err := ParseParams(strings.NewReader(legacyParams))
	require.NoError(t, err)

	assert.Equal(t, "ne20_i", cfg.Initial)
	assert.Equal(t, "ne20_f", cfg.Final)
	assert.Equal(t, "out/ne20", cfg.Output)
	assert.Equal(t, 2, cfg.Body)
	assert.True(t, cfg.Spectator)
	assert.Equal(t, []Transition{{0, 0}, {0, 1}, {1, 0}}, cfg.Transitions, "reading stops at the first non-pair line")
	assert.Equal(t, FormatText, cfg.Format)
	assert.Equal(t, 1, cfg.Workers)
}

func TestParseParamsRejectsBadHeader(t *testing.T) {
	tests := map[string]string{
		"short":     "a\nb\nc\n",
		"body":      "a\nb\nc\ntwo\n0,0\n0\n",
		"operator":  "a\nb\nc\n1\n0\n0\n",
		"spectator": "a\nb\nc\n1\n0,0\nyes\n",
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseParams(strings.NewReader(input))
			require.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestParseYAML(t *testing.T) {
	cfg, err := ParseYAML([]byte(`
initial: ne20
final: ne20
output: ne20_gt
body: 1
j_op: 1
t_op: 1
truncate: true
workers: 4
format: jsonl
transitions:
  - "0,0"
  - {initial: 1, final: 2}
`))
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.JOp)
	assert.Equal(t, 1, cfg.TOp)
	assert.True(t, cfg.Truncate)
	assert.False(t, cfg.Spectator)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, FormatJSONL, cfg.Format)
	assert.Equal(t, []Transition{{0, 0}, {1, 2}}, cfg.Transitions)
	require.NoError(t, cfg.Validate())
}

func TestParseYAMLBadTransition(t *testing.T) {
	_, err := ParseYAML([]byte("transitions:\n  - \"zero\"\n"))
	require.ErrorIs(t, err, ErrInvalid)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	env := map[string]string{EnvWorkers: "8", EnvFormat: "JSONL"}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	require.NoError(t, cfg.ApplyEnv(lookup))
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, FormatJSONL, cfg.Format)

	env[EnvWorkers] = "many"
	require.ErrorIs(t, cfg.ApplyEnv(lookup), ErrInvalid)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := Default()
		c.Initial, c.Final, c.Output = "a", "a", "out"
		c.Transitions = []Transition{{0, 0}}
		return c
	}
	require.NoError(t, valid().Validate())

	tests := map[string]func(*Config){
		"missing output":  func(c *Config) { c.Output = "" },
		"body":            func(c *Config) { c.Body = 3 },
		"one-body T=2":    func(c *Config) { c.TOp = 2 },
		"workers":         func(c *Config) { c.Workers = 0 },
		"format":          func(c *Config) { c.Format = "csv" },
		"no transitions":  func(c *Config) { c.Transitions = nil },
		"negative states": func(c *Config) { c.Transitions = []Transition{{-1, 0}} },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			c := valid()
			mutate(c)
			require.ErrorIs(t, c.Validate(), ErrInvalid)
		})
	}
}

func TestLoadResolvesRelativeToConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte("initial: waves/ne20\nfinal: /abs/ne20\noutput: ne20\ntransitions: [\"0,0\"]\n"), 0644))
	t.Setenv(EnvWorkers, "3")
	t.Setenv(EnvFormat, "")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "waves/ne20"), cfg.InitialBase())
	assert.Equal(t, "/abs/ne20", cfg.FinalBase())
	assert.Equal(t, filepath.Join(dir, "ne20"), cfg.OutputBase())
	assert.Equal(t, 3, cfg.Workers)
}

func TestLoadLegacyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "params.dat")
	require.NoError(t, os.WriteFile(path, []byte(legacyParams), 0644))
	t.Setenv(EnvWorkers, "")
	t.Setenv(EnvFormat, "")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "ne20_i"), cfg.InitialBase())
}
