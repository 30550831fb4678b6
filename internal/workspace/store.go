package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultContext is the documented fallback when no active context has been
// persisted yet.
const DefaultContext = "default"

// Store reads and writes workspace state under a base directory
// (~/.config/cpc by default): one YAML file per workspace under envs/, and
// a small file holding the active workspace name.
//
// Switching the infra provisioner's state partition to match the active
// context is a side effect performed by the CLI layer, not by the store.
type Store struct {
	BaseDir string
}

// NewStore returns a store rooted at the user's config directory.
func NewStore() (*Store, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return &Store{BaseDir: filepath.Join(home, ".config", "cpc")}, nil
}

func (s *Store) activePath() string {
	return filepath.Join(s.BaseDir, "current_cluster_context")
}

// ConfigPath returns the per-workspace file path.
func (s *Store) ConfigPath(name string) string {
	return filepath.Join(s.BaseDir, "envs", name+".yaml")
}

// ActiveContext returns the persisted active workspace name, falling back
// to DefaultContext when none has been set.
func (s *Store) ActiveContext() (string, error) {
	data, err := os.ReadFile(s.activePath())
	if errors.Is(err, os.ErrNotExist) {
		return DefaultContext, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read active context: %w", err)
	}
	name := strings.TrimSpace(string(data))
	if name == "" {
		return DefaultContext, nil
	}
	return name, nil
}

// SetActiveContext validates and persists the active workspace name. A
// workspace file that does not exist yet is created with defaults, not
// treated as an error.
func (s *Store) SetActiveContext(name string) error {
	if err := ValidateContextName(name); err != nil {
		return err
	}

	if !s.Exists(name) {
		if err := s.Save(New(name)); err != nil {
			return fmt.Errorf("failed to create workspace %s: %w", name, err)
		}
	}

	if err := os.MkdirAll(s.BaseDir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(s.activePath(), []byte(name+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to persist active context: %w", err)
	}
	return nil
}

// Exists reports whether the workspace has a persisted file.
func (s *Store) Exists(name string) bool {
	_, err := os.Stat(s.ConfigPath(name))
	return err == nil
}

// Load reads a workspace. A missing file yields a fresh default workspace;
// corrupt files are errors.
func (s *Store) Load(name string) (*Workspace, error) {
	data, err := os.ReadFile(s.ConfigPath(name))
	if errors.Is(err, os.ErrNotExist) {
		return New(name), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read workspace %s: %w", name, err)
	}

	var ws Workspace
	if err := yaml.Unmarshal(data, &ws); err != nil {
		return nil, fmt.Errorf("failed to decode workspace %s: %w", name, err)
	}
	if ws.Name == "" {
		ws.Name = name
	}
	return &ws, nil
}

// Save writes the workspace file atomically (write to temp, rename).
func (s *Store) Save(ws *Workspace) error {
	dir := filepath.Dir(s.ConfigPath(ws.Name))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create envs directory: %w", err)
	}

	data, err := yaml.Marshal(ws)
	if err != nil {
		return fmt.Errorf("failed to encode workspace %s: %w", ws.Name, err)
	}

	tmp, err := os.CreateTemp(dir, ws.Name+"-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write workspace %s: %w", ws.Name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	return os.Rename(tmp.Name(), s.ConfigPath(ws.Name))
}

// Clone copies a workspace's configuration (versions, network) to a fresh,
// valid destination name. Roster history is not copied. An optional tag is
// recorded on the clone's addon pins for traceability.
func (s *Store) Clone(source, dest, tag string) error {
	if err := ValidateContextName(dest); err != nil {
		return err
	}
	if source == dest {
		return &ValidationError{Field: "context name", Msg: "source and destination must differ"}
	}
	if !s.Exists(source) {
		return fmt.Errorf("source workspace %s does not exist", source)
	}
	if s.Exists(dest) {
		return &ValidationError{Field: "context name", Msg: fmt.Sprintf("%q already exists", dest)}
	}

	src, err := s.Load(source)
	if err != nil {
		return err
	}

	clone := &Workspace{
		Name:     dest,
		Versions: src.Versions,
		Network:  src.Network,
	}
	if src.Versions.Addons != nil {
		copied := make(map[string]string, len(src.Versions.Addons))
		for k, v := range src.Versions.Addons {
			copied[k] = v
		}
		clone.Versions.Addons = copied
	}
	if tag != "" {
		if clone.Versions.Addons == nil {
			clone.Versions.Addons = map[string]string{}
		}
		clone.Versions.Addons["clone-tag"] = tag
	}

	return s.Save(clone)
}

// DeleteConfig removes the persisted workspace file. Destroying the
// workspace's infrastructure and state partition is sequenced by the caller
// before this, and is not rolled back if this step fails.
func (s *Store) DeleteConfig(name string) error {
	if err := os.Remove(s.ConfigPath(name)); err != nil {
		return fmt.Errorf("failed to remove workspace config %s: %w", name, err)
	}
	return nil
}
