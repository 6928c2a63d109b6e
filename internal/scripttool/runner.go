package scripttool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/flemzord/toolgate/internal/security"
)

// Language tells the loader and the runner how to handle one script
// extension.
type Language struct {
	// Interpreter is the command that runs a script. The script path is
	// appended as the last argument.
	Interpreter []string `yaml:"interpreter"`

	// Parser is the command that describes a script. It receives the
	// script path as the last argument and prints a Sidecar on stdout.
	Parser []string `yaml:"parser"`
}

// DefaultLanguages covers Python and PowerShell. Neither has a parser by
// default, so their sidecars must be provided or a parser configured.
func DefaultLanguages() map[string]Language {
	return map[string]Language{
		".py":  {Interpreter: []string{"python3"}},
		".ps1": {Interpreter: []string{"pwsh", "-NoProfile", "-NonInteractive", "-File"}},
	}
}

// DefaultTimeout bounds one script process.
const DefaultTimeout = 60 * time.Second

// maxStderr caps how much stderr is kept for error messages.
const maxStderr = 4096

// Request is written to a script's stdin.
type Request struct {
	Function  string          `json:"function"`
	Arguments json.RawMessage `json:"arguments"`
}

// Response is read from a script's stdout.
type Response struct {
	OK      bool            `json:"ok"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	IsError bool            `json:"is_error,omitempty"`
}

// Runner starts script processes.
type Runner struct {
	languages map[string]Language
	timeout   time.Duration
	env       []string
	logger    *slog.Logger
}

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	Languages map[string]Language
	Timeout   time.Duration

	// Env is added to the sanitized parent environment.
	Env map[string]string

	// Credentials, when set, are redacted from the inherited environment.
	Credentials *security.CredentialStore

	Logger *slog.Logger
}

// NewRunner creates a Runner. Secrets such as provider API keys are
// stripped from the environment the scripts inherit.
func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.Languages == nil {
		cfg.Languages = DefaultLanguages()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	env := security.SanitizedEnv(cfg.Credentials)
	for k, v := range cfg.Env {
		env = append(env, k+"="+v)
	}
	return &Runner{
		languages: cfg.Languages,
		timeout:   cfg.Timeout,
		env:       env,
		logger:    cfg.Logger,
	}
}

// Call runs function in script with args and decodes its response.
func (r *Runner) Call(ctx context.Context, script, function string, args json.RawMessage) (Response, error) {
	lang, ok := r.languages[filepath.Ext(script)]
	if !ok || len(lang.Interpreter) == 0 {
		return Response{}, fmt.Errorf("%w: %s", ErrUnsupportedScript, filepath.Base(script))
	}
	if len(bytes.TrimSpace(args)) == 0 {
		args = json.RawMessage(`{}`)
	}
	payload, err := json.Marshal(Request{Function: function, Arguments: args})
	if err != nil {
		return Response{}, fmt.Errorf("encode request: %w", err)
	}

	start := time.Now()
	argv := append(slices.Clone(lang.Interpreter), script)
	stdout, err := r.exec(ctx, argv, payload)
	r.logger.Debug("scripttool: call finished",
		"script", filepath.Base(script), "function", function, "elapsed", time.Since(start), "error", err)
	if err != nil {
		return Response{}, err
	}

	resp, err := decodeResponse(stdout)
	if err != nil {
		return Response{}, fmt.Errorf("%w: %s: invalid response: %w", ErrScriptProcess, filepath.Base(script), err)
	}
	return resp, nil
}

// decodeResponse reads the response from stdout. Scripts may print
// diagnostics first, in which case the last line is the response.
func decodeResponse(out []byte) (Response, error) {
	var resp Response
	out = bytes.TrimSpace(out)
	if err := json.Unmarshal(out, &resp); err == nil {
		return resp, nil
	}
	err := json.Unmarshal(lastLine(out), &resp)
	return resp, err
}

// exec runs argv with stdin and returns stdout. A non-zero exit becomes an
// error carrying stderr.
func (r *Runner) exec(ctx context.Context, argv []string, stdin []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Env = r.env
	cmd.Stdin = bytes.NewReader(stdin)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrScriptProcess, filepath.Base(argv[len(argv)-1]), ctx.Err())
		}
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > maxStderr {
			msg = msg[:maxStderr] + "...(truncated)"
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%w: %s exited with code %d: %s",
				ErrScriptProcess, filepath.Base(argv[len(argv)-1]), exitErr.ExitCode(), msg)
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrScriptProcess, filepath.Base(argv[len(argv)-1]), err)
	}
	return stdout.Bytes(), nil
}

func lastLine(out []byte) []byte {
	if i := bytes.LastIndexByte(out, '\n'); i >= 0 {
		return bytes.TrimSpace(out[i+1:])
	}
	return out
}
