package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fenixctl/enroller/internal/model"
)

// ErrPreferencesCorrupt is returned when the stored record cannot be decoded.
var ErrPreferencesCorrupt = errors.New("preferences file is corrupt")

const appDirName = "fenix-enroller"

// FilePreferenceRepository keeps the operator record in a JSON file.
type FilePreferenceRepository struct {
	path string
	mu   sync.Mutex
}

// NewFilePreferenceRepository creates a new FilePreferenceRepository. An
// empty path selects config.json under the user configuration directory.
func NewFilePreferenceRepository(path string) (*FilePreferenceRepository, error) {
	if path == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("resolve config dir: %w", err)
		}
		path = filepath.Join(dir, appDirName, "config.json")
	}
	return &FilePreferenceRepository{path: path}, nil
}

// Path returns the file backing the repository.
func (r *FilePreferenceRepository) Path() string { return r.path }

// Load reads the record. A missing file yields an empty record.
func (r *FilePreferenceRepository) Load(_ context.Context) (*model.Preferences, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prefs := &model.Preferences{}
	raw, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return normalized(prefs), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read preferences: %w", err)
	}
	if err := json.Unmarshal(raw, prefs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPreferencesCorrupt, err)
	}
	return normalized(prefs), nil
}

// Save replaces the record. The file is written to a sibling temp file and
// renamed so readers never see a partial record.
func (r *FilePreferenceRepository) Save(_ context.Context, prefs *model.Preferences) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	raw, err := json.MarshalIndent(normalized(prefs), "", "  ")
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create preferences dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".prefs-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write preferences: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		return fmt.Errorf("replace preferences: %w", err)
	}
	return nil
}

// normalized replaces nil collections so the stored JSON is stable.
func normalized(p *model.Preferences) *model.Preferences {
	if p.SelectedCourses == nil {
		p.SelectedCourses = []string{}
	}
	if p.SelectedShifts == nil {
		p.SelectedShifts = model.Choices{}
	}
	if p.Goals == nil {
		p.Goals = []model.RegistrationGoal{}
	}
	return p
}
