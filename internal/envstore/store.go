// Package envstore persists environment records on disk.
package envstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sahilm/fuzzy"
	"gopkg.in/yaml.v3"

	"paul-envs/internal/envgen"
)

const (
	recordFile = "env.yaml"
	envsDir    = "envs"
)

var (
	ErrNotFound      = errors.New("environment not found")
	ErrAlreadyExists = errors.New("environment already exists")
	ErrInvalidName   = errors.New("invalid environment name")
)

// Record is what create persists for an environment
type Record struct {
	Name       string        `yaml:"name"`
	ProjectDir string        `yaml:"project_dir"`
	CreatedAt  time.Time     `yaml:"created_at"`
	Params     envgen.Params `yaml:"params"`
}

// Store keeps one directory per environment under <root>/envs
type Store struct {
	root string
}

// New creates a store rooted at dataDir
func New(dataDir string) (*Store, error) {
	root := filepath.Join(dataDir, envsDir)
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &Store{root: root}, nil
}

// Dir returns the directory of an environment
func (s *Store) Dir(name string) string {
	return filepath.Join(s.root, name)
}

// Exists reports whether an environment is stored
func (s *Store) Exists(name string) bool {
	_, err := os.Stat(filepath.Join(s.Dir(name), recordFile))
	return err == nil
}

// Save writes rec and the Dockerfile rendered from it
func (s *Store) Save(rec *Record, dockerfile []byte, overwrite bool) error {
	if err := ValidateName(rec.Name); err != nil {
		return err
	}
	if !overwrite && s.Exists(rec.Name) {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, rec.Name)
	}

	dir := s.Dir(rec.Name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create environment directory: %w", err)
	}

	data, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(dir, recordFile), data); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	if dockerfile != nil {
		if err := writeFileAtomic(filepath.Join(dir, envgen.DockerfileName), dockerfile); err != nil {
			return fmt.Errorf("failed to write Dockerfile: %w", err)
		}
	}
	return nil
}

// Load reads a stored environment
func (s *Store) Load(name string) (*Record, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.Dir(name), recordFile))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read record: %w", err)
	}

	var rec Record
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode record %s: %w", name, err)
	}
	rec.Name = name
	return &rec, nil
}

// Delete removes an environment directory
func (s *Store) Delete(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if !s.Exists(name) {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return os.RemoveAll(s.Dir(name))
}

// Names returns the stored environment names, sorted
func (s *Store) Names() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read data directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() && s.Exists(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Suggest returns stored names close to name, best match first
func (s *Store) Suggest(name string) []string {
	names, err := s.Names()
	if err != nil || len(names) == 0 {
		return nil
	}

	matches := fuzzy.Find(name, names)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.Str)
	}
	return out
}

// ValidateName checks that name can be used as a directory and image name
func ValidateName(name string) error {
	if name == "" || SanitizeName(name) != name {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// SanitizeName derives an environment name from a directory name
func SanitizeName(name string) string {
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "_", "-")
	name = strings.ReplaceAll(name, ".", "-")
	var result strings.Builder
	for _, c := range name {
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '-' {
			result.WriteRune(c)
		}
	}
	return strings.Trim(result.String(), "-")
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
