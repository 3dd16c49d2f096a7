// Package file provides file-based persistence for workflow templates, documents and instances.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dukex/docstates/pkg/persistence"
)

const (
	templatesDir  = "templates"
	documentsDir  = "documents"
	instancesDir  = "instances"
	logEntriesDir = "log_entries"
	errorLogsDir  = "error_logs"
)

// Persistence implements the persistence.Persistence interface using JSON files under root.
// All repositories share one mutex, so a single process may use it concurrently.
type Persistence struct {
	store        *store
	templateRepo *TemplateRepository
	documentRepo *DocumentRepository
	instanceRepo *InstanceRepository
	errorLogRepo *ErrorLogRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	s := &store{root: strings.Replace(root, "file://", "", 1)}

	return &Persistence{
		store:        s,
		templateRepo: &TemplateRepository{store: s},
		documentRepo: &DocumentRepository{store: s},
		instanceRepo: &InstanceRepository{store: s},
		errorLogRepo: &ErrorLogRepository{store: s},
	}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.store.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) TemplateRepository() persistence.TemplateRepository {
	return fp.templateRepo
}

func (fp *Persistence) DocumentRepository() persistence.DocumentRepository {
	return fp.documentRepo
}

func (fp *Persistence) InstanceRepository() persistence.InstanceRepository {
	return fp.instanceRepo
}

func (fp *Persistence) ErrorLogRepository() persistence.ErrorLogRepository {
	return fp.errorLogRepo
}

type store struct {
	mu   sync.RWMutex
	root string
}

func (s *store) path(kind, id string) string {
	return filepath.Clean(filepath.Join(s.root, kind, id+".json"))
}

// read decodes the record into target and reports whether it exists.
func (s *store) read(kind, id string, target any) (bool, error) {
	body, err := os.ReadFile(s.path(kind, id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}

		return false, fmt.Errorf("failed to read %s %s: %w", kind, id, err)
	}

	err = json.Unmarshal(body, target)
	if err != nil {
		return false, fmt.Errorf("failed to unmarshal %s %s: %w", kind, id, err)
	}

	return true, nil
}

// write replaces the record through a rename so readers never see a partial file.
func (s *store) write(kind, id string, value any) error {
	err := os.MkdirAll(filepath.Join(s.root, kind), 0750)
	if err != nil {
		return fmt.Errorf("failed to create %s directory: %w", kind, err)
	}

	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s %s: %w", kind, id, err)
	}

	target := s.path(kind, id)
	tmp := target + ".tmp"

	err = os.WriteFile(tmp, data, 0600)
	if err != nil {
		return fmt.Errorf("failed to write %s %s: %w", kind, id, err)
	}

	err = os.Rename(tmp, target)
	if err != nil {
		return fmt.Errorf("failed to commit %s %s: %w", kind, id, err)
	}

	return nil
}

func (s *store) remove(kind, id string) error {
	err := os.Remove(s.path(kind, id))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete %s %s: %w", kind, id, err)
	}

	return nil
}

// ids lists the identifiers stored under kind.
func (s *store) ids(kind string) ([]string, error) {
	matches, err := fs.Glob(os.DirFS(s.root), kind+"/*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", kind, err)
	}

	ids := make([]string, 0, len(matches))
	for _, match := range matches {
		ids = append(ids, strings.TrimSuffix(filepath.Base(match), ".json"))
	}

	return ids, nil
}
