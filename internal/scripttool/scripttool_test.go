package scripttool

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/flemzord/toolgate/internal/tool"
)

const parserScript = `name=$(basename "$1" .sh)
echo "$name" >> "%COUNT%"
printf '{"group":"%s","rules":"Use %s.","tools":[{"name":"%s_run","description":"runs %s","function":"main","parameters":{"type":"object","properties":{"text":{"type":"string"}}},"permission":{"execution":"auto"},"return_type":"{function: string}"}]}\n' "$name" "$name" "$name" "$name"
`

const echoScript = `read -r line
echo "diagnostic line"
printf '{"ok":true,"data":%s}\n' "$line"
`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

type fixture struct {
	dir       string
	countFile string
	runner    *Runner
	loader    *Loader
}

func newFixture(t *testing.T, withParser bool) *fixture {
	t.Helper()
	requireShell(t)

	f := &fixture{dir: t.TempDir()}
	lang := Language{Interpreter: []string{"sh"}}
	if withParser {
		support := t.TempDir()
		f.countFile = filepath.Join(support, "count")
		parser := filepath.Join(support, "parse.sh")
		writeFile(t, parser, strings.ReplaceAll(parserScript, "%COUNT%", f.countFile))
		lang.Parser = []string{"sh", parser}
	}
	languages := map[string]Language{".sh": lang}
	f.runner = NewRunner(RunnerConfig{Languages: languages, Timeout: 10 * time.Second, Logger: quietLogger()})
	f.loader = NewLoader(LoaderConfig{Dir: f.dir, Languages: languages, Logger: quietLogger()}, f.runner)
	return f
}

func (f *fixture) parses(t *testing.T) int {
	t.Helper()
	data, err := os.ReadFile(f.countFile)
	if errors.Is(err, os.ErrNotExist) {
		return 0
	}
	if err != nil {
		t.Fatalf("read count: %v", err)
	}
	return strings.Count(string(data), "\n")
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoadGeneratesAndReusesSidecar(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)
	script := filepath.Join(f.dir, "echo.sh")
	writeFile(t, script, echoScript)

	modules, err := f.loader.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(modules) != 1 || !modules[0].Reparsed {
		t.Fatalf("first load: %+v", modules)
	}

	sc, err := ReadSidecar(SidecarPath(script))
	if err != nil {
		t.Fatalf("ReadSidecar: %v", err)
	}
	info, _ := os.Stat(script)
	if sc.Script != "echo.sh" || sc.ScriptMTime != info.ModTime().UnixMilli() {
		t.Errorf("sidecar header = %q/%d", sc.Script, sc.ScriptMTime)
	}
	if sc.Group != "echo" || len(sc.Tools) != 1 || sc.Tools[0].Name != "echo_run" {
		t.Errorf("sidecar body = %+v", sc)
	}
	if p := sc.Tools[0].Permission; p == nil || p.Permission.Execution != tool.ExecAuto {
		t.Errorf("permission = %+v", p)
	}

	modules, err = f.loader.Load(context.Background())
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if len(modules) != 1 || modules[0].Reparsed {
		t.Errorf("second load should reuse the sidecar: %+v", modules)
	}
	if n := f.parses(t); n != 1 {
		t.Errorf("parser ran %d times, want 1", n)
	}
}

func TestLoadStalenessUsesMTime(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)
	script := filepath.Join(f.dir, "echo.sh")
	writeFile(t, script, echoScript)
	if _, err := f.loader.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	info, _ := os.Stat(script)
	orig := info.ModTime()

	// A content change that preserves the mtime is not noticed.
	writeFile(t, script, echoScript+"\n# edited\n")
	if err := os.Chtimes(script, orig, orig); err != nil {
		t.Fatal(err)
	}
	modules, _ := f.loader.Load(context.Background())
	if len(modules) != 1 || modules[0].Reparsed {
		t.Fatalf("same mtime should not reparse: %+v", modules)
	}

	later := orig.Add(2 * time.Second)
	if err := os.Chtimes(script, later, later); err != nil {
		t.Fatal(err)
	}
	modules, _ = f.loader.Load(context.Background())
	if len(modules) != 1 || !modules[0].Reparsed {
		t.Fatalf("newer mtime should reparse: %+v", modules)
	}
	if n := f.parses(t); n != 2 {
		t.Errorf("parser ran %d times, want 2", n)
	}
}

func TestLoadWithoutParser(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	fresh := filepath.Join(f.dir, "fresh.sh")
	writeFile(t, fresh, echoScript)
	info, _ := os.Stat(fresh)
	if err := WriteSidecar(SidecarPath(fresh), Sidecar{
		Script:      "fresh.sh",
		ScriptMTime: info.ModTime().UnixMilli(),
		Tools:       []ToolSpec{{Name: "fresh_run", Description: "d"}},
	}); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(f.dir, "orphan.sh"), echoScript)

	modules, err := f.loader.Load(context.Background())
	if !errors.Is(err, ErrStaleSidecar) {
		t.Fatalf("expected ErrStaleSidecar, got %v", err)
	}
	if len(modules) != 1 || modules[0].GroupName() != "fresh" {
		t.Fatalf("expected only the fresh module, got %+v", modules)
	}
}

func TestLoadIgnoresOtherFiles(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)
	writeFile(t, filepath.Join(f.dir, "notes.txt"), "hello")
	if err := os.Mkdir(filepath.Join(f.dir, "sub.sh"), 0o700); err != nil {
		t.Fatal(err)
	}
	modules, err := f.loader.Load(context.Background())
	if err != nil || len(modules) != 0 {
		t.Fatalf("got %+v, %v", modules, err)
	}
}

func TestLoadMissingDir(t *testing.T) {
	t.Parallel()

	l := NewLoader(LoaderConfig{Dir: filepath.Join(t.TempDir(), "nope"), Logger: quietLogger()}, NewRunner(RunnerConfig{}))
	modules, err := l.Load(context.Background())
	if err != nil || modules != nil {
		t.Fatalf("got %v, %v", modules, err)
	}
}

func TestLoadInvalidParserOutput(t *testing.T) {
	t.Parallel()
	requireShell(t)

	dir := t.TempDir()
	support := t.TempDir()
	parser := filepath.Join(support, "parse.sh")
	writeFile(t, parser, "echo 'not json'\n")
	langs := map[string]Language{".sh": {Interpreter: []string{"sh"}, Parser: []string{"sh", parser}}}
	runner := NewRunner(RunnerConfig{Languages: langs, Logger: quietLogger()})
	l := NewLoader(LoaderConfig{Dir: dir, Languages: langs, Logger: quietLogger()}, runner)
	writeFile(t, filepath.Join(dir, "x.sh"), echoScript)

	if _, err := l.Load(context.Background()); !errors.Is(err, ErrParser) {
		t.Fatalf("expected ErrParser, got %v", err)
	}
}

func TestReadSidecarValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{name: "valid", content: `{"script":"a.py","script_mtime":1,"tools":[{"name":"a","description":"d"}]}`},
		{name: "bad json", content: `{`, wantErr: true},
		{name: "missing name", content: `{"tools":[{"description":"d"}]}`, wantErr: true},
		{name: "duplicate", content: `{"tools":[{"name":"a"},{"name":"a"}]}`, wantErr: true},
		{name: "negative limit", content: `{"tools":[{"name":"a","output_limit":-1}]}`, wantErr: true},
		{name: "bad permission", content: `{"tools":[{"name":"a","permission":{"execution":"sometimes"}}]}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "a.py"+SidecarSuffix)
			writeFile(t, path, tt.content)
			_, err := ReadSidecar(path)
			if tt.wantErr && err == nil {
				t.Fatal("expected an error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestRunnerCall(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	tests := []struct {
		name    string
		script  string
		wantErr error
		errText string
		check   func(t *testing.T, resp Response)
	}{
		{
			name:   "echo with diagnostics",
			script: echoScript,
			check: func(t *testing.T, resp Response) {
				var req Request
				if err := json.Unmarshal(resp.Data, &req); err != nil {
					t.Fatalf("data: %v", err)
				}
				if !resp.OK || req.Function != "main" || string(req.Arguments) != `{"text":"hi"}` {
					t.Errorf("resp = %+v, req = %+v", resp, req)
				}
			},
		},
		{
			name:   "multi-line response",
			script: "printf '{\\n  \"ok\": true,\\n  \"data\": 1\\n}\\n'\n",
			check: func(t *testing.T, resp Response) {
				if !resp.OK || string(resp.Data) != "1" {
					t.Errorf("resp = %+v", resp)
				}
			},
		},
		{
			name:    "non-zero exit carries stderr",
			script:  "echo 'bad thing' >&2\nexit 3\n",
			wantErr: ErrScriptProcess,
			errText: "code 3: bad thing",
		},
		{
			name:    "invalid output",
			script:  "echo nope\n",
			wantErr: ErrScriptProcess,
			errText: "invalid response",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "s.sh")
			writeFile(t, path, tt.script)
			resp, err := f.runner.Call(context.Background(), path, "main", json.RawMessage(`{"text":"hi"}`))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) || !strings.Contains(err.Error(), tt.errText) {
					t.Fatalf("error = %v, want %v containing %q", err, tt.wantErr, tt.errText)
				}
				return
			}
			if err != nil {
				t.Fatalf("Call: %v", err)
			}
			tt.check(t, resp)
		})
	}
}

func TestRunnerUnsupported(t *testing.T) {
	t.Parallel()

	r := NewRunner(RunnerConfig{Logger: quietLogger()})
	if _, err := r.Call(context.Background(), "x.rb", "f", nil); !errors.Is(err, ErrUnsupportedScript) {
		t.Fatalf("expected ErrUnsupportedScript, got %v", err)
	}
}

func TestRunnerStripsSecrets(t *testing.T) {
	requireShell(t)
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-should-not-leak")
	t.Setenv("TOOLGATE_VISIBLE", "yes")

	langs := map[string]Language{".sh": {Interpreter: []string{"sh"}}}
	r := NewRunner(RunnerConfig{Languages: langs, Env: map[string]string{"EXTRA": "e"}, Logger: quietLogger()})
	path := filepath.Join(t.TempDir(), "env.sh")
	writeFile(t, path, `printf '{"ok":true,"data":"%s|%s|%s"}\n' "$ANTHROPIC_API_KEY" "$TOOLGATE_VISIBLE" "$EXTRA"`+"\n")

	resp, err := r.Call(context.Background(), path, "f", nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if string(resp.Data) != `"|yes|e"` {
		t.Errorf("data = %s", resp.Data)
	}
}

func TestScriptToolsThroughRegistry(t *testing.T) {
	t.Parallel()

	f := newFixture(t, false)
	scripts := map[string]string{
		"echo.sh": echoScript,
		"soft.sh": `printf '{"ok":true,"data":"partial","is_error":true}'` + "\n",
		"fail.sh": `printf '{"ok":false,"error":"boom"}'` + "\n",
	}
	var modules []ParsedModule
	for name, body := range scripts {
		path := filepath.Join(f.dir, name)
		writeFile(t, path, body)
		base := strings.TrimSuffix(name, ".sh")
		modules = append(modules, ParsedModule{Path: path, Sidecar: Sidecar{
			Group: "scripts_" + base,
			Tools: []ToolSpec{{
				Name:        base,
				Description: "d",
				Function:    "main",
				OutputLimit: 100,
				Permission:  &tool.PermissionSpec{Permission: tool.Public},
			}},
		}})
	}

	reg := tool.NewRegistry(tool.WithLogger(quietLogger()))
	for _, m := range modules {
		if err := reg.RegisterGroup(m.Group(f.runner)); err != nil {
			t.Fatal(err)
		}
		if err := reg.SetGroupEnabled(m.GroupName(), true); err != nil {
			t.Fatal(err)
		}
	}

	res := reg.Execute(context.Background(), "echo", json.RawMessage(`{"text":"hi"}`), tool.ExecuteOptions{})
	if !res.OK() {
		t.Fatalf("echo: %s %s", res.Status, res.Error)
	}
	data, ok := res.Data.(map[string]any)
	if !ok || data["function"] != "main" {
		t.Errorf("echo data = %#v", res.Data)
	}

	res = reg.Execute(context.Background(), "soft", nil, tool.ExecuteOptions{})
	if !res.OK() || !res.IsError || res.Data != "partial" {
		t.Errorf("soft = %+v", res)
	}

	res = reg.Execute(context.Background(), "fail", nil, tool.ExecuteOptions{})
	if res.Status != tool.StatusError || !strings.Contains(res.Error, "boom") {
		t.Errorf("fail = %+v", res)
	}
}

func TestScriptToolHooks(t *testing.T) {
	t.Parallel()

	m := ParsedModule{Path: "/x/a.py", Sidecar: Sidecar{Tools: []ToolSpec{
		{Name: "limited", OutputLimit: 42, SkipCache: true, ReturnType: "string"},
		{Name: "plain"},
	}}}
	tools := m.Tools(nil)

	l, ok := tools[0].(tool.OutputLimiter)
	if !ok || l.DefaultOutputLimitChars() != 42 {
		t.Errorf("limited tool should implement OutputLimiter with 42")
	}
	if s, ok := tools[0].(tool.CacheSkipper); !ok || !s.SkipCacheResult() {
		t.Errorf("limited tool should skip the cache")
	}
	if _, ok := tools[1].(tool.OutputLimiter); ok {
		t.Errorf("plain tool should not implement OutputLimiter")
	}
	if string(tools[1].Schema()) != string(emptySchema) {
		t.Errorf("plain schema = %s", tools[1].Schema())
	}
	if g := m.Group(nil); g.Name != "a" || g.Rules != nil {
		t.Errorf("group = %+v", g)
	}
}

func TestWatcherReload(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)
	writeFile(t, filepath.Join(f.dir, "alpha.sh"), echoScript)
	writeFile(t, filepath.Join(f.dir, "beta.sh"), echoScript)

	reg := tool.NewRegistry(tool.WithLogger(quietLogger()))
	w := NewWatcher(f.loader, f.runner, reg, 0, quietLogger())

	if _, err := w.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if got := reg.Names(); len(got) != 2 || got[0] != "alpha_run" || got[1] != "beta_run" {
		t.Fatalf("Names = %v", got)
	}
	if err := reg.SetGroupEnabled("alpha", true); err != nil {
		t.Fatal(err)
	}

	if err := os.Remove(filepath.Join(f.dir, "beta.sh")); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if got := reg.Names(); len(got) != 1 || got[0] != "alpha_run" {
		t.Errorf("Names after removal = %v", got)
	}
	if !reg.IsGroupEnabled("alpha") {
		t.Error("reload should keep the group enabled")
	}
	if rules := reg.ToolRules(); !strings.Contains(rules, "Use alpha.") {
		t.Errorf("ToolRules = %q", rules)
	}
}

func TestWatcherRunPicksUpNewScripts(t *testing.T) {
	t.Parallel()

	f := newFixture(t, true)
	reg := tool.NewRegistry(tool.WithLogger(quietLogger()))
	w := NewWatcher(f.loader, f.runner, reg, 20*time.Millisecond, quietLogger())

	reloads := make(chan []ParsedModule, 16)
	w.OnReload = func(m []ParsedModule, _ error) { reloads <- m }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	select {
	case <-reloads:
	case <-time.After(5 * time.Second):
		t.Fatal("initial reload did not happen")
	}

	writeFile(t, filepath.Join(f.dir, "gamma.sh"), echoScript)

	deadline := time.After(5 * time.Second)
	for {
		if _, ok := reg.Lookup("gamma_run"); ok {
			break
		}
		select {
		case <-reloads:
		case <-deadline:
			t.Fatal("new script was not registered")
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run: %v", err)
	}
}
