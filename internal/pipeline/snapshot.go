package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/roadpulse/highway-etl/internal/domain"
)

// Snapshots writes each run's final batch to a timestamped JSON file before
// persistence, so a failed write can be replayed through the file source.
type Snapshots struct {
	dir string
}

// NewSnapshots creates a snapshot writer rooted at dir. An empty dir
// disables snapshots.
func NewSnapshots(dir string) *Snapshots {
	return &Snapshots{dir: dir}
}

// Save marshals v to <dir>/<name>_<yyyymmddHHMM>.json and returns the path.
// Disabled writers return "" with no error.
func (s *Snapshots) Save(name string, v any) (string, error) {
	if s == nil || s.dir == "" {
		return "", nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	path := filepath.Join(s.dir, fmt.Sprintf("%s_%s.json", name, domain.Now().Format("200601021504")))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	return path, nil
}
