//go:build integration

package web_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/dukex/flows/pkg/actions/wait"
	"github.com/dukex/flows/pkg/models"
	"github.com/dukex/flows/pkg/persistence/postgresql"
	"github.com/dukex/flows/pkg/registry"
	"github.com/dukex/flows/pkg/services"
	"github.com/dukex/flows/pkg/web"
	"github.com/dukex/flows/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

func TestIntegration_CartOrderRunsToCompletion(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("flows_api_test"),
		postgres.WithUsername("flows"),
		postgres.WithPassword("flows"),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Failed to terminate postgres container: %v", err)
		}
	})

	databaseURL, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	store, err := postgresql.NewPersistence(ctx, testLogger(), databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() { _ = store.Close(context.Background()) })

	reg, err := registry.NewDefaultRegistry(testLogger())
	require.NoError(t, err)

	handlers := web.NewAPIHandlers(
		services.NewWorkflow(testLogger(), store, reg),
		services.NewRun(testLogger(), store),
		validator.New(validator.WithRequiredStructEnabled()),
	)

	app := fiber.New()
	handlers.Register(app)

	status, body := doRequest(t, app, http.MethodPost, "/workflows", `{
		"workspace_id": "ws-1",
		"name": "Two waits",
		"triggers": [{"trigger": "NEW_CART_ORDER"}],
		"actions": [
			{"id": "w1", "action": "WAIT"},
			{"id": "w2", "action": "WAIT"}
		]
	}`)
	require.Equal(t, http.StatusCreated, status, string(body))

	status, body = doRequest(t, app, http.MethodPost, "/events/cart-orders", web.CartOrderRequest{
		WorkspaceID: "ws-1", CartFunnelID: "funnel-1", FanID: "fan-1", OrderID: "order-1",
	})
	require.Equal(t, http.StatusAccepted, status, string(body))

	var started web.StartedRunsResponse
	require.NoError(t, json.Unmarshal(body, &started))
	require.Len(t, started.Runs, 1)

	executor := workflow.NewExecutor(testLogger(), store, &workflow.Dispatcher{Wait: wait.NewAction()})
	poller := workflow.NewPoller(testLogger(), store.Runs(), executor,
		workflow.WithPollerClock(func() time.Time { return time.Now().UTC().Add(time.Second) }),
	)

	stats, err := poller.ProcessDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Processed)

	status, body = doRequest(t, app, http.MethodGet, "/runs/"+started.Runs[0].ID, nil)
	require.Equal(t, http.StatusOK, status)

	var run models.WorkflowRun
	require.NoError(t, json.Unmarshal(body, &run))
	assert.Equal(t, models.RunStatusComplete, run.Status)

	status, body = doRequest(t, app, http.MethodGet, "/runs/"+run.ID+"/actions", nil)
	require.Equal(t, http.StatusOK, status)

	var records []models.WorkflowRunAction
	require.NoError(t, json.Unmarshal(body, &records))
	require.Len(t, records, 2)
	assert.Equal(t, "w1", records[0].WorkflowActionID)
	assert.Equal(t, "w2", records[1].WorkflowActionID)
}
