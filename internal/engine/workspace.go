package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Workspace is the engine's addressable storage: a flat namespace of
// named byte buffers backed by a private directory. Names never
// contain path separators.
type Workspace struct {
	dir string
}

// NewWorkspace creates the backing directory and returns the
// workspace.
func NewWorkspace(dir string) (*Workspace, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create engine workspace: %w", err)
	}
	return &Workspace{dir: dir}, nil
}

// Dir returns the backing directory path.
func (w *Workspace) Dir() string {
	return w.dir
}

// WriteFile stores data under name, overwriting any prior content.
func (w *Workspace) WriteFile(name string, data []byte) error {
	path, err := w.resolve(name)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadFile returns the content stored under name.
func (w *Workspace) ReadFile(name string) ([]byte, error) {
	path, err := w.resolve(name)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

// Remove deletes the entry stored under name, if present.
func (w *Workspace) Remove(name string) error {
	path, err := w.resolve(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// resolve validates a flat name and returns its on-disk path.
func (w *Workspace) resolve(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("workspace entry name is empty")
	}
	if strings.ContainsAny(name, `/\`) || name != filepath.Base(name) {
		return "", fmt.Errorf("workspace entry name must be flat: %s", name)
	}
	return filepath.Join(w.dir, name), nil
}
