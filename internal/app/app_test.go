package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"cms-go/internal/config"
	"cms-go/internal/kv"
	"cms-go/internal/sandbox"
	"cms-go/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig(t.TempDir())
	cfg.Store.Type = "memory"
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config, opts ...Option) *App {
	t.Helper()
	opts = append([]Option{WithClock(testutil.FixedClock()), WithLogOutput(io.Discard)}, opts...)
	a, err := New(context.Background(), cfg, "test", opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestNew_WiresMemoryStore(t *testing.T) {
	cfg := newTestConfig(t)
	a := newTestApp(t, cfg)

	if a.Backend() != "memory" {
		t.Errorf("Backend() = %q, want memory", a.Backend())
	}
	ps, ok := a.Store().(*kv.PolicyStore)
	if !ok {
		t.Fatalf("Store() = %T, want the policy wrapper", a.Store())
	}
	if _, ok := ps.Unwrap().(*kv.MemoryStore); !ok {
		t.Errorf("Unwrap() = %T, want *kv.MemoryStore", ps.Unwrap())
	}
	if _, err := os.Stat(cfg.Sandbox.Root); err != nil {
		t.Errorf("content root not created: %v", err)
	}
}

func TestNew_AutoSelectsMemoryOutsideProduction(t *testing.T) {
	cfg := config.NewConfig(t.TempDir())
	cfg.Store.RemoteReadURL = "http://127.0.0.1:1/cfg"
	cfg.Store.RemoteWriteURL = "http://127.0.0.1:1/cfg/items"
	cfg.Store.RemoteWriteToken = "t"

	a := newTestApp(t, cfg)
	if a.Backend() != "memory" {
		t.Errorf("Backend() = %q, want memory in development", a.Backend())
	}
}

func TestNew_Sealed(t *testing.T) {
	t.Run("locked without passphrase", func(t *testing.T) {
		cfg := newTestConfig(t)
		cfg.Encryption.Type = "test"
		_, err := New(context.Background(), cfg, "test", WithLogOutput(io.Discard))
		if !errors.Is(err, ErrLocked) {
			t.Fatalf("New() error = %v, want ErrLocked", err)
		}
	})

	t.Run("age keys missing", func(t *testing.T) {
		cfg := newTestConfig(t)
		cfg.Encryption.Type = "age"
		_, err := New(context.Background(), cfg, "test", WithLogOutput(io.Discard),
			WithPassphrase(func() (string, error) { return "pw", nil }))
		if err == nil || !strings.Contains(err.Error(), "keys init") {
			t.Fatalf("New() error = %v, want keys init hint", err)
		}
	})

	t.Run("round trip through the sealed store", func(t *testing.T) {
		cfg := newTestConfig(t)
		cfg.Encryption.Type = "test"
		a := newTestApp(t, cfg, WithPassphrase(func() (string, error) { return "pw", nil }))

		ctx := context.Background()
		if _, err := a.Visitors().Record(ctx); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
		stats, err := a.Visitors().Stats(ctx)
		if err != nil {
			t.Fatalf("Stats() error = %v", err)
		}
		if stats.Total != 1 {
			t.Errorf("Total = %d, want 1", stats.Total)
		}
	})
}

func TestApp_Router(t *testing.T) {
	a := newTestApp(t, newTestConfig(t))
	router := a.Router()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("/health status = %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/messages", strings.NewReader(`{"name":"ann","text":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "192.0.2.1:1"
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("POST /api/messages status = %d; body %s", w.Code, w.Body.String())
	}
	if w.Header().Get("X-RateLimit-Limit") != "60" {
		t.Errorf("X-RateLimit-Limit = %q, want 60", w.Header().Get("X-RateLimit-Limit"))
	}
}

func TestApp_CheckPath(t *testing.T) {
	cfg := newTestConfig(t)
	a := newTestApp(t, cfg)
	if err := os.MkdirAll(filepath.Join(cfg.Sandbox.Root, "lessons"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cfg.Sandbox.Root, "lessons", "a.mdx"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		rel, mode string
		wantErr   error
	}{
		{"lessons/a.mdx", "read", nil},
		{"lessons/b.mdx", "write", nil},
		{"new/dir/c.mdx", "create", nil},
		{"lessons", "dir", nil},
		{"../x.mdx", "read", sandbox.ErrInvalidPath},
		{"lessons/b.mdx", "read", sandbox.ErrInvalidPath},
	}
	for _, tt := range tests {
		_, err := a.CheckPath(tt.rel, tt.mode)
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("CheckPath(%q, %q) error = %v, want %v", tt.rel, tt.mode, err, tt.wantErr)
		}
	}

	if _, err := a.CheckPath("lessons/a.mdx", "delete"); err == nil {
		t.Error("CheckPath() with unknown mode returned no error")
	}
}

func TestApp_CloseLogsRun(t *testing.T) {
	cfg := newTestConfig(t)
	a, err := New(context.Background(), cfg, "serve", WithClock(testutil.FixedClock()), WithLogOutput(io.Discard))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	a.Fail()
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(cfg.LogDir, "cms.log"))
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	log := string(data)
	for _, want := range []string{"\trun started\t", "backend=memory", "\trun finished\t", "status=error", "20240115T103000Z"} {
		if !strings.Contains(log, want) {
			t.Errorf("log missing %q:\n%s", want, log)
		}
	}
}
