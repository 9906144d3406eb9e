package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"selfheal/domain/entities"
	"selfheal/domain/interfaces"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	locatorsFile = "locators.json"
	scriptsFile  = "scripts.json"
)

// fileStorage keeps locators and scripts as JSON documents in one directory.
// Both documents are cached in memory and rewritten atomically on change.
type fileStorage struct {
	locators *fileLocators
	scripts  *fileScripts
}

// NewFileStorage - opens or creates the JSON stores under dir
func NewFileStorage(dir string, logger *logrus.Logger) (interfaces.Storage, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	locators := &fileLocators{path: filepath.Join(dir, locatorsFile), data: map[string]string{}}
	if err := readJSON(locators.path, &locators.data); err != nil {
		return nil, fmt.Errorf("failed to load locators: %w", err)
	}
	if locators.data == nil {
		locators.data = map[string]string{}
	}

	scripts := &fileScripts{path: filepath.Join(dir, scriptsFile), now: time.Now}
	if err := readJSON(scripts.path, &scripts.data); err != nil {
		return nil, fmt.Errorf("failed to load scripts: %w", err)
	}
	if n := len(scripts.data); n > 0 {
		scripts.last = scripts.data[n-1].CreatedAt
	}

	logger.WithFields(logrus.Fields{
		"dir":      dir,
		"locators": len(locators.data),
		"scripts":  len(scripts.data),
	}).Info("File storage opened")

	return &fileStorage{locators: locators, scripts: scripts}, nil
}

func (s *fileStorage) Locators() interfaces.LocatorStore { return s.locators }
func (s *fileStorage) Scripts() interfaces.ScriptStore   { return s.scripts }
func (s *fileStorage) Close() error                      { return nil }

type fileLocators struct {
	mu   sync.RWMutex
	path string
	data map[string]string
}

// Get - returns the selector stored under name
func (l *fileLocators) Get(ctx context.Context, name string) (string, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	sel, ok := l.data[name]
	return sel, ok, nil
}

// Put - upserts the selector and rewrites the document
func (l *fileLocators) Put(ctx context.Context, name string, selector string) error {
	if name == "" || selector == "" {
		return fmt.Errorf("%w: locator name and selector are required", entities.ErrStoreWrite)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	prev, existed := l.data[name]
	if existed && prev == selector {
		return nil
	}

	l.data[name] = selector
	if err := writeJSON(l.path, l.data); err != nil {
		if existed {
			l.data[name] = prev
		} else {
			delete(l.data, name)
		}
		return fmt.Errorf("%w: %v", entities.ErrStoreWrite, err)
	}
	return nil
}

// List - returns a copy of all locators
func (l *fileLocators) List(ctx context.Context) (map[string]string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]string, len(l.data))
	for k, v := range l.data {
		out[k] = v
	}
	return out, nil
}

type fileScripts struct {
	mu   sync.RWMutex
	path string
	data []entities.Script
	last time.Time
	now  func() time.Time
}

// Save - appends a new script version
func (s *fileScripts) Save(ctx context.Context, name string, code string) (entities.Script, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	script := entities.Script{
		ID:        uuid.NewString(),
		Name:      scriptName(name),
		Code:      code,
		CreatedAt: monotonic(s.last, s.now()),
	}

	s.data = append(s.data, script)
	if err := writeJSON(s.path, s.data); err != nil {
		s.data = s.data[:len(s.data)-1]
		return entities.Script{}, fmt.Errorf("%w: %v", entities.ErrStoreWrite, err)
	}
	s.last = script.CreatedAt
	return script, nil
}

// List - returns all scripts, most recent first
func (s *fileScripts) List(ctx context.Context) ([]entities.Script, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]entities.Script, len(s.data))
	for i, script := range s.data {
		out[len(s.data)-1-i] = script
	}
	return out, nil
}

// readJSON leaves v untouched when the file does not exist yet
func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

// writeJSON replaces path atomically through a temp file in the same directory
func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
