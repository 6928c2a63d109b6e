package scripttool

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/flemzord/toolgate/internal/tool"
)

// SidecarSuffix is appended to a script path to name its sidecar.
const SidecarSuffix = ".tool.json"

// Sidecar is the generated description of one script module.
type Sidecar struct {
	// Script is the base name of the script file.
	Script string `json:"script"`

	// ScriptMTime is the script's modification time, in Unix milliseconds,
	// when the sidecar was generated.
	ScriptMTime int64 `json:"script_mtime"`

	Group string     `json:"group,omitempty"`
	Rules string     `json:"rules,omitempty"`
	Tools []ToolSpec `json:"tools"`
}

// ToolSpec describes one function exported by a script.
type ToolSpec struct {
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Parameters  json.RawMessage      `json:"parameters,omitempty"`
	Function    string               `json:"function,omitempty"`
	Permission  *tool.PermissionSpec `json:"permission,omitempty"`
	ReturnType  string               `json:"return_type,omitempty"`
	OutputLimit int                  `json:"output_limit,omitempty"`
	SkipCache   bool                 `json:"skip_cache,omitempty"`
}

// SidecarPath returns the sidecar path for a script.
func SidecarPath(script string) string { return script + SidecarSuffix }

// IsSidecar reports whether path names a sidecar file.
func IsSidecar(path string) bool { return strings.HasSuffix(path, SidecarSuffix) }

// ReadSidecar loads and checks a sidecar file.
func ReadSidecar(path string) (Sidecar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Sidecar{}, err
	}
	var sc Sidecar
	if err := json.Unmarshal(data, &sc); err != nil {
		return Sidecar{}, fmt.Errorf("%w: %s: %w", ErrInvalidSidecar, filepath.Base(path), err)
	}
	if err := sc.validate(); err != nil {
		return Sidecar{}, fmt.Errorf("%w: %s: %w", ErrInvalidSidecar, filepath.Base(path), err)
	}
	return sc, nil
}

// WriteSidecar writes sc next to its script through a temporary file, so
// readers never see a partial sidecar.
func WriteSidecar(path string, sc Sidecar) error {
	data, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode sidecar: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".sidecar-*")
	if err != nil {
		return fmt.Errorf("create sidecar: %w", err)
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write sidecar: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close sidecar: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("rename sidecar: %w", err)
	}
	return nil
}

func (sc Sidecar) validate() error {
	seen := make(map[string]struct{}, len(sc.Tools))
	for i, t := range sc.Tools {
		if strings.TrimSpace(t.Name) == "" {
			return fmt.Errorf("tools[%d]: name is required", i)
		}
		if _, dup := seen[t.Name]; dup {
			return fmt.Errorf("tools[%d]: duplicate name %q", i, t.Name)
		}
		seen[t.Name] = struct{}{}
		if t.OutputLimit < 0 {
			return fmt.Errorf("tools[%d]: output_limit must not be negative", i)
		}
		if t.Permission != nil {
			if err := t.Permission.Permission.Validate(); err != nil {
				return fmt.Errorf("tools[%d]: %w", i, err)
			}
		}
	}
	return nil
}
