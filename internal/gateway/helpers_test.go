package gateway

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/flemzord/toolgate/internal/provider"
	"github.com/flemzord/toolgate/internal/tool"
)

// fakeHealth is a fixed provider report.
type fakeHealth []provider.Status

func (f fakeHealth) Status() []provider.Status { return f }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRegistry(t *testing.T, opts ...tool.Option) *tool.Registry {
	t.Helper()
	return tool.NewRegistry(append([]tool.Option{tool.WithLogger(quietLogger())}, opts...)...)
}

func newTestGateway(t *testing.T, cfg Config, reg Registry, opts ...Option) *httptest.Server {
	t.Helper()
	g := New(cfg, reg, append([]Option{WithLogger(quietLogger())}, opts...)...)
	srv := httptest.NewServer(g.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, token, body string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, r)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}
