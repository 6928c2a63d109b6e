package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"go.opentelemetry.io/otel/trace/noop"
)

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	bad := 1.5
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "disabled", cfg: Config{}},
		{name: "disabled ignores endpoint", cfg: Config{SampleRatio: &bad}},
		{name: "enabled", cfg: Config{Enabled: true, Endpoint: "localhost:4318"}},
		{name: "no endpoint", cfg: Config{Enabled: true}, wantErr: true},
		{name: "bad ratio", cfg: Config{Enabled: true, Endpoint: "x:1", SampleRatio: &bad}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSetup_DisabledIsNoop(t *testing.T) {
	t.Parallel()

	tp, shutdown, err := Setup(context.Background(), Config{})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if _, ok := tp.(noop.TracerProvider); !ok {
		t.Errorf("provider = %T, want noop", tp)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestSetup_EnabledWithoutEndpoint(t *testing.T) {
	t.Parallel()

	if _, _, err := Setup(context.Background(), Config{Enabled: true}); !errors.Is(err, ErrNoEndpoint) {
		t.Fatalf("err = %v, want ErrNoEndpoint", err)
	}
}

// Installs the global provider, so not parallel.
func TestSetup_ExportsOnShutdown(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/v1/traces" {
			hits.Add(1)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tp, shutdown, err := Setup(context.Background(), Config{
		Enabled:  true,
		Endpoint: strings.TrimPrefix(srv.URL, "http://"),
		Insecure: true,
	})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	_, span := tp.Tracer("test").Start(context.Background(), "unit")
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if hits.Load() == 0 {
		t.Error("collector received no export")
	}
}
