// Package manifest records what a density run read and wrote.
package manifest

import (
	"encoding/json"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/trdens-dev/trdens/internal/density"
	"github.com/trdens-dev/trdens/internal/fileutil"
)

const (
	// Suffix is appended to the output base to name the manifest file.
	Suffix = ".manifest.json"
	// CurrentVersion is stamped into every manifest written by this build.
	CurrentVersion = "1"
)

// Operator mirrors density.Operator with stable JSON names.
type Operator struct {
	Body int `json:"body"`
	J    int `json:"j"`
	T    int `json:"t"`
}

// Manifest is written next to the density files of one run.
type Manifest struct {
	RunID     string            `json:"run_id"`
	Version   string            `json:"version"`
	CreatedAt time.Time         `json:"created_at"`
	Operator  Operator          `json:"operator"`
	Spectator bool              `json:"spectator,omitempty"`
	Truncate  bool              `json:"truncate,omitempty"`
	Format    string            `json:"format"`
	Inputs    map[string]string `json:"inputs"`
	Outputs   map[string]string `json:"outputs"`
	Result    *density.Result   `json:"result,omitempty"`
}

// Path returns the manifest location for an output base name.
func Path(outputBase string) string {
	return outputBase + Suffix
}

// New starts a manifest with a fresh run id.
func New(op density.Operator, format string) *Manifest {
	return &Manifest{
		RunID:    uuid.NewString(),
		Version:  CurrentVersion,
		Operator: Operator{Body: op.Body, J: op.J, T: op.T},
		Format:   format,
		Inputs:   make(map[string]string),
		Outputs:  make(map[string]string),
	}
}

// RecordInputs hashes every input file.
func (m *Manifest) RecordInputs(paths []string) error {
	hashes, err := fileutil.HashFiles(paths)
	if err != nil {
		return err
	}
	for path, hash := range hashes {
		m.Inputs[path] = hash
	}
	return nil
}

// RecordOutputs hashes every output file.
func (m *Manifest) RecordOutputs(paths []string) error {
	hashes, err := fileutil.HashFiles(paths)
	if err != nil {
		return err
	}
	for path, hash := range hashes {
		m.Outputs[path] = hash
	}
	return nil
}

// OutputPaths returns the recorded outputs in sorted order.
func (m *Manifest) OutputPaths() []string {
	paths := make([]string, 0, len(m.Outputs))
	for path := range m.Outputs {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// Stale lists recorded outputs that are missing or whose content changed.
func (m *Manifest) Stale() []string {
	return changedPaths(m.Outputs)
}

// ChangedInputs lists recorded inputs that are missing or whose content
// changed since the run.
func (m *Manifest) ChangedInputs() []string {
	return changedPaths(m.Inputs)
}

func changedPaths(hashes map[string]string) []string {
	paths := make([]string, 0, len(hashes))
	for path := range hashes {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	var out []string
	for _, path := range paths {
		hash, err := fileutil.HashFile(path)
		if err != nil || hash != hashes[path] {
			out = append(out, path)
		}
	}
	return out
}

// Load reads a manifest. A missing file is reported as os.ErrNotExist.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if m.Inputs == nil {
		m.Inputs = make(map[string]string)
	}
	if m.Outputs == nil {
		m.Outputs = make(map[string]string)
	}
	return &m, nil
}

// Save writes the manifest, stamping CreatedAt when it is unset.
func (m *Manifest) Save(path string) error {
	if m.Version == "" {
		m.Version = CurrentVersion
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return fileutil.WriteIfChanged(path, append(data, '\n'))
}
