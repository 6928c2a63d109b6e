package tool

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"slices"
	"strings"
	"testing"
)

type registryTestTool struct {
	name string
	perm Permission
}

func (t registryTestTool) Name() string                  { return t.name }
func (t registryTestTool) Description() string           { return "registry test tool" }
func (t registryTestTool) Schema() json.RawMessage       { return json.RawMessage(`{}`) }
func (t registryTestTool) DefaultPermission() Permission { return t.perm }
func (t registryTestTool) Execute(context.Context, json.RawMessage) (Output, error) {
	return Output{Data: "ok"}, nil
}

func quietRegistry(opts ...Option) *Registry {
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	return NewRegistry(opts...)
}

func toolsNamed(names ...string) []Tool {
	out := make([]Tool, 0, len(names))
	for _, n := range names {
		out = append(out, registryTestTool{name: n})
	}
	return out
}

func definitionNames(defs []Definition) []string {
	names := make([]string, 0, len(defs))
	for _, d := range defs {
		names = append(names, d.Name)
	}
	return names
}

func TestRegistryRegisterTool_EmptyName(t *testing.T) {
	t.Parallel()

	r := quietRegistry()
	for _, name := range []string{"", "   "} {
		if err := r.RegisterTool(registryTestTool{name: name}); !errors.Is(err, ErrEmptyToolName) {
			t.Fatalf("RegisterTool(%q): expected ErrEmptyToolName, got %v", name, err)
		}
	}
}

func TestRegistryRejectsPaddedNames(t *testing.T) {
	t.Parallel()

	r := quietRegistry()
	if err := r.RegisterTool(registryTestTool{name: " lookup"}); !errors.Is(err, ErrPaddedName) {
		t.Fatalf("RegisterTool: expected ErrPaddedName, got %v", err)
	}

	err := r.RegisterGroup(Group{Name: "g", Tools: toolsNamed("ok", "padded ")})
	if !errors.Is(err, ErrPaddedName) {
		t.Fatalf("RegisterGroup: expected ErrPaddedName, got %v", err)
	}
	if len(r.Names()) != 0 || len(r.Groups()) != 0 {
		t.Errorf("rejected group left %v / %v", r.Names(), r.Groups())
	}

	if err := r.RegisterGroup(Group{Name: " g", Tools: toolsNamed("ok")}); !errors.Is(err, ErrPaddedName) {
		t.Fatalf("padded group name: expected ErrPaddedName, got %v", err)
	}

	if err := r.RegisterGroup(Group{Name: "g", Tools: toolsNamed("ok")}); err != nil {
		t.Fatal(err)
	}
	if _, ok := r.Lookup("ok"); !ok {
		t.Error("grouped tool missing after registration")
	}
}

func TestRegistryRegisterTool_OverwritesAndKeepsFlag(t *testing.T) {
	t.Parallel()

	r := quietRegistry()
	if err := r.RegisterTool(registryTestTool{name: "read_file"}); err != nil {
		t.Fatalf("RegisterTool: %v", err)
	}
	if !r.IsToolEnabled("read_file") {
		t.Fatal("new standalone tool should be enabled")
	}
	if err := r.SetToolEnabled("read_file", false); err != nil {
		t.Fatalf("SetToolEnabled: %v", err)
	}

	replacement := registryTestTool{name: "read_file", perm: Public}
	if err := r.RegisterTool(replacement); err != nil {
		t.Fatalf("RegisterTool (overwrite): %v", err)
	}
	if r.IsToolEnabled("read_file") {
		t.Error("overwrite should preserve the disabled flag")
	}
	got, ok := r.Lookup("read_file")
	if !ok || got.DefaultPermission() != Public {
		t.Errorf("Lookup should return the replacement, got %#v", got)
	}
}

func TestRegistryRegisterGroup_EmptyIsNoop(t *testing.T) {
	t.Parallel()

	r := quietRegistry()
	if err := r.RegisterGroup(Group{Name: "empty"}); err != nil {
		t.Fatalf("RegisterGroup: %v", err)
	}
	if len(r.Groups()) != 0 {
		t.Errorf("empty group should not be registered, got %v", r.Groups())
	}
}

func TestRegistryGroupGating(t *testing.T) {
	t.Parallel()

	r := quietRegistry()
	if err := r.RegisterTool(registryTestTool{name: "standalone"}); err != nil {
		t.Fatal(err)
	}
	if err := r.RegisterGroup(Group{Name: "fs", Tools: toolsNamed("ls", "cat")}); err != nil {
		t.Fatal(err)
	}

	if got := definitionNames(r.EnabledDefinitions()); !slices.Equal(got, []string{"standalone"}) {
		t.Errorf("with group disabled: got %v", got)
	}
	if got := definitionNames(r.Definitions()); !slices.Equal(got, []string{"cat", "ls", "standalone"}) {
		t.Errorf("Definitions: got %v", got)
	}

	if err := r.SetGroupEnabled("fs", true); err != nil {
		t.Fatal(err)
	}
	if got := definitionNames(r.EnabledDefinitions()); !slices.Equal(got, []string{"cat", "ls", "standalone"}) {
		t.Errorf("with group enabled: got %v", got)
	}

	if err := r.SetToolEnabled("cat", false); err != nil {
		t.Fatal(err)
	}
	if got := definitionNames(r.EnabledDefinitions()); !slices.Equal(got, []string{"ls", "standalone"}) {
		t.Errorf("with cat disabled: got %v", got)
	}

	// Enabling the group again re-enables its tools.
	if err := r.SetGroupEnabled("fs", true); err != nil {
		t.Fatal(err)
	}
	if !r.IsToolEnabled("cat") {
		t.Error("enabling a group should enable its tools")
	}
}

func TestRegistryToggleGroup(t *testing.T) {
	t.Parallel()

	r := quietRegistry()
	if err := r.RegisterGroup(Group{Name: "fs", Tools: toolsNamed("ls")}); err != nil {
		t.Fatal(err)
	}
	on, err := r.ToggleGroupEnabled("fs")
	if err != nil || !on {
		t.Fatalf("first toggle: got %v, %v", on, err)
	}
	on, err = r.ToggleGroupEnabled("fs")
	if err != nil || on {
		t.Fatalf("second toggle: got %v, %v", on, err)
	}
	if _, err := r.ToggleGroupEnabled("missing"); !errors.Is(err, ErrToolNotFound) {
		t.Errorf("unknown group: expected ErrToolNotFound, got %v", err)
	}
}

func TestRegistryRegisterGroup_ReloadKeepsFlagAndDropsStale(t *testing.T) {
	t.Parallel()

	r := quietRegistry()
	if err := r.RegisterGroup(Group{Name: "scripts", Tools: toolsNamed("a", "b")}); err != nil {
		t.Fatal(err)
	}
	if err := r.SetGroupEnabled("scripts", true); err != nil {
		t.Fatal(err)
	}

	if err := r.RegisterGroup(Group{Name: "scripts", Tools: toolsNamed("a", "c")}); err != nil {
		t.Fatal(err)
	}
	if !r.IsGroupEnabled("scripts") {
		t.Error("reload should keep the group enabled")
	}
	if got := r.Names(); !slices.Equal(got, []string{"a", "c"}) {
		t.Errorf("Names after reload: got %v", got)
	}

	r.UnregisterGroup("scripts")
	if len(r.Names()) != 0 || len(r.Groups()) != 0 {
		t.Errorf("UnregisterGroup left %v / %v", r.Names(), r.Groups())
	}
}

func TestRegistryToolRules(t *testing.T) {
	t.Parallel()

	r := quietRegistry()
	if err := r.RegisterGroup(Group{
		Name:  "web",
		Tools: toolsNamed("fetch"),
		Rules: StaticRules("Only fetch public URLs."),
	}); err != nil {
		t.Fatal(err)
	}
	if err := r.RegisterGroup(Group{
		Name:  "fs",
		Tools: toolsNamed("ls", "cat"),
		Rules: func(enabled []string) string { return "Use " + strings.Join(enabled, " then ") + "." },
	}); err != nil {
		t.Fatal(err)
	}
	if err := r.RegisterGroup(Group{Name: "off", Tools: toolsNamed("hidden"), Rules: StaticRules("never shown")}); err != nil {
		t.Fatal(err)
	}

	if got := r.ToolRules(); got != "" {
		t.Errorf("no enabled groups: got %q", got)
	}

	for _, g := range []string{"web", "fs"} {
		if err := r.SetGroupEnabled(g, true); err != nil {
			t.Fatal(err)
		}
	}
	if err := r.SetToolEnabled("cat", false); err != nil {
		t.Fatal(err)
	}

	want := "## fs\nTools: ls\nUse ls.\n\n## web\nTools: fetch\nOnly fetch public URLs."
	if got := r.ToolRules(); got != want {
		t.Errorf("ToolRules:\n got %q\nwant %q", got, want)
	}
}

func TestRegistryEffectivePermission(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		toolPerm  Permission
		overrides Overrides
		want      Permission
	}{
		{
			name: "global default",
			want: DefaultPermission,
		},
		{
			name:     "tool default",
			toolPerm: Public,
			want:     Public,
		},
		{
			name:     "partial tool default merges with global",
			toolPerm: Permission{Result: ResultAlways},
			want:     Permission{Execution: ExecAskOnce, Result: ResultAlways},
		},
		{
			name:      "override wins field by field",
			toolPerm:  Permission{Execution: ExecAuto, Result: ResultOnError},
			overrides: Overrides{"t": {Permission: Permission{Execution: ExecAskAlways}}},
			want:      Permission{Execution: ExecAskAlways, Result: ResultOnError},
		},
		{
			name:      "override for another tool is ignored",
			toolPerm:  Public,
			overrides: Overrides{"other": {Permission: Permission{Execution: ExecAskAlways}}},
			want:      Public,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := quietRegistry(WithOverrides(tt.overrides))
			if err := r.RegisterTool(registryTestTool{name: "t", perm: tt.toolPerm}); err != nil {
				t.Fatal(err)
			}
			got, err := r.EffectivePermission("t")
			if err != nil {
				t.Fatalf("EffectivePermission: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRegistryEffectivePermission_Unknown(t *testing.T) {
	t.Parallel()

	r := quietRegistry()
	if _, err := r.EffectivePermission("nope"); !errors.Is(err, ErrToolNotFound) {
		t.Errorf("expected ErrToolNotFound, got %v", err)
	}
}

func TestTruncateForAudit(t *testing.T) {
	t.Parallel()

	short := "hello"
	if got := truncateForAudit(short); got != short {
		t.Errorf("short string changed: %q", got)
	}

	long := strings.Repeat("é", maxAuditDetailLen)
	got := truncateForAudit(long)
	if !strings.HasSuffix(got, "...(truncated)") {
		t.Errorf("missing truncation suffix")
	}
	body := strings.TrimSuffix(got, "...(truncated)")
	if len(body) > maxAuditDetailLen || !strings.HasPrefix(long, body) {
		t.Errorf("truncated body is not a valid prefix")
	}
}
