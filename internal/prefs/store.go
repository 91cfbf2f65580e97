// Package prefs persists the operator-editable agent preferences.
package prefs

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// DefaultLocationLabel is reported when no location has been saved
const DefaultLocationLabel = "Mobile Device"

// Prefs is the on-disk preference document
type Prefs struct {
	LocationName string `yaml:"location_name,omitempty"`
	ServerHost   string `yaml:"server_host,omitempty"` // overrides the configured host when set
}

// Store reads and writes Prefs from a YAML file.
// The file is re-read on every call so edits made by another process
// are seen on the next connection attempt.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore creates a store backed by path
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path
func (s *Store) Path() string {
	return s.path
}

// Load returns the stored prefs, or empty prefs if the file does not exist
func (s *Store) Load() (Prefs, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() (Prefs, error) {
	var p Prefs
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return p, nil
		}
		return p, err
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, err
	}
	return p, nil
}

// LocationLabel returns the saved location name or DefaultLocationLabel
func (s *Store) LocationLabel() string {
	p, err := s.Load()
	if err != nil {
		return DefaultLocationLabel
	}
	if label := strings.TrimSpace(p.LocationName); label != "" {
		return label
	}
	return DefaultLocationLabel
}

// ServerHost returns the saved host override, empty if none
func (s *Store) ServerHost() string {
	p, err := s.Load()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(p.ServerHost)
}

// SetLocationLabel saves the location name
func (s *Store) SetLocationLabel(label string) error {
	return s.update(func(p *Prefs) { p.LocationName = strings.TrimSpace(label) })
}

// SetServerHost saves the host override; empty clears it
func (s *Store) SetServerHost(host string) error {
	return s.update(func(p *Prefs) { p.ServerHost = strings.TrimSpace(host) })
}

func (s *Store) update(fn func(*Prefs)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.load()
	if err != nil {
		return err
	}
	fn(&p)

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(&p)
	if err != nil {
		return err
	}

	// Write atomically: write to temp file, then rename
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmpPath, s.path)
}
