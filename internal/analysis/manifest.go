package analysis

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Manifest is the machine-readable run descriptor written next to the
// reports so automation can consume a job directory without parsing the
// human-readable summary.
type Manifest struct {
	RunID        string         `yaml:"run_id,omitempty"`
	GeneratedAt  time.Time      `yaml:"generated_at"`
	Source       string         `yaml:"source,omitempty"`
	Files        int            `yaml:"files_processed"`
	FilesError   int            `yaml:"files_with_errors"`
	FilesCopied  int            `yaml:"files_copied"`
	StatusTotals map[string]int `yaml:"status_totals"`
	Artifacts    []string       `yaml:"artifacts"`
}

// WriteManifest marshals m to path as YAML.
func WriteManifest(path string, m Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return eris.Wrap(err, "analysis: marshal manifest")
	}
	return eris.Wrapf(os.WriteFile(path, data, 0o644), "analysis: write manifest %s", path)
}
