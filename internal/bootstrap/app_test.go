package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"applypilot-backend/internal/delivery"
	"applypilot-backend/internal/delivery/gmail"
	"applypilot-backend/internal/delivery/httpmail"
	"applypilot-backend/internal/llm"
	"applypilot-backend/internal/llm/openai"
	"applypilot-backend/internal/shared/config"
)

func devConfig(t *testing.T) config.Config {
	return config.Config{
		Env:              "dev",
		ObjectStoreType:  "local",
		LocalStoreDir:    t.TempDir(),
		LLMProvider:      "gemini",
		DeliveryProvider: "http",
	}
}

func TestBuildDevFallbacks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	app, err := Build(context.Background(), devConfig(t))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(func() { _ = app.Close() })

	if app.DB != nil {
		t.Fatalf("expected memory repositories without DATABASE_URL")
	}
	if _, ok := app.Runner.Generator.(llm.PlaceholderGenerator); !ok {
		t.Fatalf("expected placeholder generator, got %T", app.Runner.Generator)
	}
	if _, ok := app.Runner.Deliverer.(delivery.Unconfigured); !ok {
		t.Fatalf("expected unconfigured deliverer, got %T", app.Runner.Deliverer)
	}

	w := httptest.NewRecorder()
	app.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"database":"memory"`) {
		t.Fatalf("unexpected health %d %s", w.Code, w.Body.String())
	}
}

func TestBuildProductionRequiresSettings(t *testing.T) {
	cfg := devConfig(t)
	cfg.Env = "production"
	if _, err := Build(context.Background(), cfg); !errors.Is(err, config.ErrIncompleteGoogleConfig) {
		t.Fatalf("expected google config error, got %v", err)
	}
}

func TestBuildRunnerProviders(t *testing.T) {
	cfg := devConfig(t)
	cfg.LLMProvider = "openai"
	cfg.OpenAIAPIKey = "sk-test"
	cfg.DeliveryURL = "http://mail.local/send"

	runner, err := BuildRunner(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("build runner: %v", err)
	}
	if _, ok := runner.Generator.(*openai.Client); !ok {
		t.Fatalf("expected openai generator, got %T", runner.Generator)
	}
	if _, ok := runner.Deliverer.(*httpmail.Client); !ok {
		t.Fatalf("expected httpmail deliverer, got %T", runner.Deliverer)
	}

	cfg.DeliveryProvider = "gmail"
	runner, err = BuildRunner(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("build runner: %v", err)
	}
	if _, ok := runner.Deliverer.(*gmail.Client); !ok {
		t.Fatalf("expected gmail deliverer, got %T", runner.Deliverer)
	}
}

func TestBuildRunnerProductionNeedsKey(t *testing.T) {
	cfg := devConfig(t)
	cfg.Env = "production"
	cfg.DeliveryURL = "http://mail.local/send"
	if _, err := BuildRunner(context.Background(), cfg, nil); err == nil {
		t.Fatalf("expected error without gemini key in production")
	}
}
