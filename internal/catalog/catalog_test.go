package catalog

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/actiongate/internal/event"
	"github.com/opencode-ai/actiongate/internal/storage"
	"github.com/opencode-ai/actiongate/pkg/types"
)

func newTestService(t *testing.T) (*Service, *event.Bus) {
	t.Helper()
	bus := event.NewBus()
	t.Cleanup(func() { bus.Close() })
	return NewService(storage.New(t.TempDir()), bus), bus
}

func ptr[T any](v T) *T { return &v }

func webhookInput(name string) CreateInput {
	return CreateInput{
		ActionType: types.ActionTypeWebhook,
		Name:       name,
		Config:     types.WebhookConfig{URL: "https://ci.example.com/hooks/" + name},
	}
}

func TestCreateAndGet(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, webhookInput("deploy-staging"))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(created.ID, "act_"))
	assert.True(t, created.IsEnabled, "enabled by default")
	cfg, ok := created.Config.(types.WebhookConfig)
	require.True(t, ok)
	assert.Equal(t, "POST", cfg.Method, "method defaults to POST")

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Name, got.Name)
	assert.Equal(t, created.Config, got.Config)
}

func TestGetNotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Get(context.Background(), "act_missing")
	assert.ErrorIs(t, err, types.ErrActionNotFound)
}

func TestCreateRejectsMismatchedConfig(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Create(context.Background(), CreateInput{
		ActionType: types.ActionTypeScript,
		Name:       "wrong",
		Config:     types.WebhookConfig{URL: "https://example.com"},
	})
	assert.ErrorIs(t, err, types.ErrInvalidAction)

	actions, err := svc.List(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Empty(t, actions, "failed create must not persist")
}

func TestListFilters(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	proj := "proj_1"

	_, err := svc.Create(ctx, webhookInput("deploy-staging"))
	require.NoError(t, err)
	_, err = svc.Create(ctx, webhookInput("deploy-prod"))
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateInput{
		ActionType: types.ActionTypeScript,
		Name:       "backup-db",
		Config:     types.ScriptConfig{Command: "pg_dump app"},
		ProjectID:  &proj,
		IsEnabled:  ptr(false),
	})
	require.NoError(t, err)

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"all", Filter{}, []string{"deploy-staging", "deploy-prod", "backup-db"}},
		{"by type", Filter{ActionType: ptr(types.ActionTypeScript)}, []string{"backup-db"}},
		{"by project", Filter{ProjectID: &proj}, []string{"backup-db"}},
		{"enabled only", Filter{IsEnabled: ptr(true)}, []string{"deploy-staging", "deploy-prod"}},
		{"name glob", Filter{Name: "deploy-*"}, []string{"deploy-staging", "deploy-prod"}},
		{"glob no match", Filter{Name: "restart-*"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actions, err := svc.List(ctx, tt.filter)
			require.NoError(t, err)
			var names []string
			for _, a := range actions {
				names = append(names, a.Name)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestListInvalidGlob(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.List(context.Background(), Filter{Name: "deploy-["})
	assert.ErrorIs(t, err, types.ErrInvalidRequest)
}

func TestUpdate(t *testing.T) {
	svc, bus := newTestService(t)
	ctx := context.Background()

	updated := make(chan *types.Action, 1)
	bus.Subscribe(event.ActionUpdated, func(e event.Event) {
		updated <- e.Data.(event.ActionChangedData).Info
	})

	created, err := svc.Create(ctx, webhookInput("deploy-staging"))
	require.NoError(t, err)

	action, err := svc.Update(ctx, created.ID, UpdateInput{
		Description: ptr("Kick the staging pipeline"),
		IsEnabled:   ptr(false),
	})
	require.NoError(t, err)
	assert.False(t, action.IsEnabled)
	assert.Equal(t, "Kick the staging pipeline", action.Description)
	assert.Equal(t, created.Name, action.Name)

	select {
	case info := <-updated:
		assert.Equal(t, created.ID, info.ID)
	case <-time.After(time.Second):
		t.Fatal("expected action.updated event")
	}
}

func TestUpdateInvalidLeavesAction(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, webhookInput("deploy-staging"))
	require.NoError(t, err)

	_, err = svc.Update(ctx, created.ID, UpdateInput{Config: types.ScriptConfig{Command: "echo hi"}})
	assert.ErrorIs(t, err, types.ErrInvalidAction)

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ActionTypeWebhook, got.Config.ConfigType())
}

func TestUpdateNotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Update(context.Background(), "act_missing", UpdateInput{Name: ptr("x")})
	assert.ErrorIs(t, err, types.ErrActionNotFound)
}

func TestDeleteRunsHooks(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	var deleted []string
	svc.OnDelete(func(_ context.Context, id string) { deleted = append(deleted, id) })

	created, err := svc.Create(ctx, webhookInput("deploy-staging"))
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, created.ID))
	assert.Equal(t, []string{created.ID}, deleted)

	_, err = svc.Get(ctx, created.ID)
	assert.ErrorIs(t, err, types.ErrActionNotFound)

	err = svc.Delete(ctx, created.ID)
	assert.ErrorIs(t, err, types.ErrActionNotFound)
}

func TestImportIsAllOrNothing(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Import(ctx, []CreateInput{
		webhookInput("deploy-staging"),
		{ActionType: types.ActionTypeWorkflow, Name: "release", Config: types.WorkflowConfig{}},
	})
	assert.ErrorIs(t, err, types.ErrInvalidAction)

	actions, err := svc.List(ctx, Filter{})
	require.NoError(t, err)
	assert.Empty(t, actions)

	imported, err := svc.Import(ctx, []CreateInput{
		webhookInput("deploy-staging"),
		{ActionType: types.ActionTypeWorkflow, Name: "release", Config: types.WorkflowConfig{WorkflowID: "wf_release"}},
	})
	require.NoError(t, err)
	assert.Len(t, imported, 2)
}

func TestCreateInputJSON(t *testing.T) {
	var in CreateInput
	err := json.Unmarshal([]byte(`{
		"actionType": "script",
		"name": "run-tests",
		"config": {"command": "go test ./...", "timeout": 60},
		"isEnabled": false
	}`), &in)
	require.NoError(t, err)
	assert.Equal(t, types.ScriptConfig{Command: "go test ./...", Timeout: 60}, in.Config)
	require.NotNil(t, in.IsEnabled)
	assert.False(t, *in.IsEnabled)

	err = json.Unmarshal([]byte(`{"actionType":"ftp","name":"x","config":{}}`), &in)
	assert.ErrorIs(t, err, types.ErrInvalidAction)

	err = json.Unmarshal([]byte(`{"actionType":"webhook","name":"x","config":{"url":42}}`), &in)
	assert.ErrorIs(t, err, types.ErrInvalidAction)
}

func TestUpdateRawConfig(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	created, err := svc.Create(ctx, webhookInput("notify"))
	require.NoError(t, err)

	var input UpdateInput
	require.NoError(t, json.Unmarshal([]byte(`{"config":{"url":"https://hooks.example.com/v2","method":"put"}}`), &input))

	updated, err := svc.Update(ctx, created.ID, input)
	require.NoError(t, err)
	cfg := updated.Config.(types.WebhookConfig)
	assert.Equal(t, "https://hooks.example.com/v2", cfg.URL)
	assert.Equal(t, "PUT", cfg.Method)

	_, err = svc.Update(ctx, created.ID, UpdateInput{RawConfig: json.RawMessage(`{"url":"ftp://nope"}`)})
	assert.ErrorIs(t, err, types.ErrInvalidAction)

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://hooks.example.com/v2", got.Config.(types.WebhookConfig).URL, "failed update writes nothing")
}
