package main

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/cmd"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/config"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/metrics"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/persistence/file"
)

func setupTestApp(t *testing.T) *fiber.App {
	t.Helper()

	bus, err := cmd.NewEventBus("gochannel", "", "automation-api-test", slog.Default())
	require.NoError(t, err)

	t.Cleanup(func() { _ = bus.Close() })

	engine := cmd.NewEngine(file.NewPersistence(t.TempDir()), bus, config.Default(), metrics.Noop{}, nil, clockwork.NewRealClock(), slog.Default())

	return NewAPI(engine, slog.Default()).App()
}

func get(t *testing.T, app *fiber.App, path string) (int, string) {
	t.Helper()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, string(body)
}

func TestAPI_RootEndpoint(t *testing.T) {
	status, body := get(t, setupTestApp(t), "/")

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Automation API", body)
}

func TestAPI_Liveness(t *testing.T) {
	status, _ := get(t, setupTestApp(t), "/livez")

	assert.Equal(t, http.StatusOK, status)
}

func TestAPI_MetricsEndpoint(t *testing.T) {
	status, body := get(t, setupTestApp(t), "/metrics")

	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "go_goroutines")
}

func TestAPI_WorkflowRoutesMounted(t *testing.T) {
	status, body := get(t, setupTestApp(t), "/workflows?org_id=org-1")

	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `"total_count":0`)
}
