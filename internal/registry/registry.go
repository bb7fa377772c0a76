// Package registry maintains the global project registry at
// ~/.recall/registry.yaml: a best-effort map of known project stores used
// for discovery across machines and checkouts. Nothing in the core reads
// it; failures to write are logged and swallowed.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Entry describes one known project store.
type Entry struct {
	Name     string    `yaml:"name"`
	DBPath   string    `yaml:"db_path"`
	LastUsed time.Time `yaml:"last_used"`
}

// Registry is the on-disk registry document.
type Registry struct {
	Projects []Entry `yaml:"projects"`
}

// DefaultPath returns ~/.recall/registry.yaml.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".recall", "registry.yaml"), nil
}

// Load reads the registry at path. A missing or corrupt file yields an
// empty registry.
func Load(path string) *Registry {
	data, err := os.ReadFile(path)
	if err != nil {
		return &Registry{}
	}

	var reg Registry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("registry unreadable, starting empty")
		return &Registry{}
	}
	return &reg
}

// Touch records that a project store was used, adding it if unknown, and
// persists the registry. Best effort: errors are logged, never returned.
func Touch(path, name, dbPath string) {
	reg := Load(path)

	now := time.Now().UTC()
	found := false
	for i := range reg.Projects {
		if reg.Projects[i].DBPath == dbPath {
			reg.Projects[i].Name = name
			reg.Projects[i].LastUsed = now
			found = true
			break
		}
	}
	if !found {
		reg.Projects = append(reg.Projects, Entry{
			Name:     name,
			DBPath:   dbPath,
			LastUsed: now,
		})
	}

	sort.Slice(reg.Projects, func(i, j int) bool {
		return reg.Projects[i].LastUsed.After(reg.Projects[j].LastUsed)
	})

	if err := save(path, reg); err != nil {
		log.Debug().Err(err).Str("path", path).Msg("registry update skipped")
	}
}

func save(path string, reg *Registry) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(reg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
