package salesforce_test

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunyxi/salesforce-flow-cli/internal/engine/batch"
	"github.com/sunyxi/salesforce-flow-cli/internal/salesforce"
)

func newFlowClient(t *testing.T, org *fakeOrg) *salesforce.FlowClient {
	t.Helper()
	_, tokens := newServer(t, org)
	tooling, err := salesforce.NewToolingClient(tokens)
	require.NoError(t, err)
	return salesforce.NewFlowClient(tooling)
}

func intPtr(v int) *int { return &v }

func TestQuoteSOQL(t *testing.T) {
	assert.Equal(t, `'My_Flow'`, salesforce.QuoteSOQL("My_Flow"))
	assert.Equal(t, `'O\'Brien'`, salesforce.QuoteSOQL("O'Brien"))
	assert.Equal(t, `'a\\b'`, salesforce.QuoteSOQL(`a\b`))
}

func TestFlowTypeFromName(t *testing.T) {
	tests := []struct {
		name        string
		processType string
		want        string
	}{
		{"Account_trg_Update", "", salesforce.FlowTypeRecordTriggered},
		{"Case_Trigger_Handler", "", salesforce.FlowTypeRecordTriggered},
		{"Nightly_sch_Cleanup", "", salesforce.FlowTypeScheduled},
		{"Weekly_Scheduled_Job", "", salesforce.FlowTypeScheduled},
		{"screen_Intake", "", salesforce.FlowTypeScreen},
		{"Lead_scr_Wizard", "", salesforce.FlowTypeScreen},
		{"Autolaunched_Sync", "", salesforce.FlowTypeAutolaunched},
		{"auto_Assign", "", salesforce.FlowTypeAutolaunched},
		{"Legacy_Process", "Workflow", salesforce.FlowTypeProcessBuilder},
		{"Plain_Flow", "Flow", salesforce.FlowTypeFlow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, salesforce.FlowTypeFromName(tt.name, tt.processType))
		})
	}
}

func TestGetFlowDefinition(t *testing.T) {
	org := &fakeOrg{definitions: []map[string]any{definition("300A", "My_Flow", 1, 2)}}
	c := newFlowClient(t, org)
	ctx := context.Background()

	def, err := c.GetFlowDefinition(ctx, "My_Flow")
	require.NoError(t, err)
	assert.Equal(t, "300A", def.ID)
	assert.Equal(t, 1, def.ActiveVersionNumber())
	assert.Equal(t, 2, def.LatestVersionNumber())

	_, err = c.GetFlowDefinition(ctx, "Missing_Flow")
	require.ErrorIs(t, err, salesforce.ErrFlowNotFound)
	assert.Contains(t, err.Error(), "Missing_Flow")
}

func TestFlowDefinition_NilVersions(t *testing.T) {
	var def salesforce.FlowDefinition
	assert.Equal(t, 0, def.ActiveVersionNumber())
	assert.Equal(t, 0, def.LatestVersionNumber())
}

func TestActivateFlow_Latest(t *testing.T) {
	org := &fakeOrg{
		definitions: []map[string]any{definition("300A", "My_Flow", 1, 2)},
		versions:    map[string]map[string]any{"My_Flow": version("300DEF", 2)},
	}
	c := newFlowClient(t, org)

	res, err := c.ActivateFlow(context.Background(), "My_Flow", nil)
	require.NoError(t, err)
	assert.Equal(t, "Flow 'My_Flow' activated successfully (version 2)", res.Message)
	assert.False(t, res.Unchanged)
	assert.Equal(t, 1, res.PreviousVersion)
	assert.Equal(t, 2, res.NewVersion)

	patches := org.Patches()
	require.Len(t, patches, 1)
	assert.Equal(t, "/services/data/v58.0/tooling/sobjects/FlowDefinition/300DEF", patches[0].Path)
	body := decodeBody(t, patches[0].Body)
	assert.Equal(t, map[string]any{"activeVersionNumber": float64(2)}, body["Metadata"])
}

func TestActivateFlow_SpecificVersion(t *testing.T) {
	org := &fakeOrg{
		definitions: []map[string]any{definition("300A", "My_Flow", 0, 3)},
		versions:    map[string]map[string]any{"My_Flow": version("300A", 3)},
	}
	c := newFlowClient(t, org)

	res, err := c.ActivateFlow(context.Background(), "My_Flow", intPtr(2))
	require.NoError(t, err)
	assert.Equal(t, 2, res.NewVersion)

	_, err = c.ActivateFlow(context.Background(), "My_Flow", intPtr(4))
	require.ErrorIs(t, err, salesforce.ErrInvalidVersion)

	_, err = c.ActivateFlow(context.Background(), "My_Flow", intPtr(0))
	require.ErrorIs(t, err, salesforce.ErrInvalidVersion)

	assert.Len(t, org.Patches(), 1)
}

func TestActivateFlow_AlreadyActive(t *testing.T) {
	org := &fakeOrg{
		definitions: []map[string]any{definition("300A", "My_Flow", 2, 2)},
		versions:    map[string]map[string]any{"My_Flow": version("300A", 2)},
	}
	c := newFlowClient(t, org)

	res, err := c.ActivateFlow(context.Background(), "My_Flow", nil)
	require.NoError(t, err)
	assert.True(t, res.Unchanged)
	assert.Equal(t, "Flow 'My_Flow' is already active (version 2)", res.Message)
	assert.Empty(t, org.Patches())
}

func TestActivateFlow_NoVersions(t *testing.T) {
	org := &fakeOrg{definitions: []map[string]any{definition("300A", "Empty_Flow", 0, 0)}}
	c := newFlowClient(t, org)

	_, err := c.ActivateFlow(context.Background(), "Empty_Flow", nil)
	require.ErrorIs(t, err, salesforce.ErrNoVersions)
	assert.Empty(t, org.Patches())
}

func TestActivateFlow_SystemContextRestriction(t *testing.T) {
	org := &fakeOrg{
		definitions: []map[string]any{definition("300A", "Account_trg_Update", 0, 1)},
		versions:    map[string]map[string]any{"Account_trg_Update": version("300A", 1)},
		patchStatus: http.StatusBadRequest,
		patchBody:   `[{"errorCode":"UNKNOWN_EXCEPTION","message":"cannot modify flow in system context"}]`,
	}
	c := newFlowClient(t, org)

	_, err := c.ActivateFlow(context.Background(), "Account_trg_Update", nil)
	require.ErrorIs(t, err, salesforce.ErrAPIRestriction)

	var restriction *salesforce.RestrictionError
	require.ErrorAs(t, err, &restriction)
	assert.Equal(t, "Account_trg_Update", restriction.Flow)
	assert.Equal(t,
		"Flow 'Account_trg_Update' cannot be activated via API (system context restriction). Please use Salesforce UI.",
		err.Error())
	assert.False(t, batch.ShouldRetry(err))
}

func TestDeactivateFlow_SystemContextRestriction(t *testing.T) {
	org := &fakeOrg{
		definitions: []map[string]any{definition("300A", "Account_trg_Update", 2, 2)},
		versions:    map[string]map[string]any{"Account_trg_Update": version("300A", 2)},
		patchStatus: http.StatusBadRequest,
		patchBody:   `[{"errorCode":"UNKNOWN_EXCEPTION","message":"cannot modify flow in system context"}]`,
	}
	c := newFlowClient(t, org)

	_, err := c.DeactivateFlow(context.Background(), "Account_trg_Update")
	require.ErrorIs(t, err, salesforce.ErrAPIRestriction)
	assert.Equal(t,
		"Flow 'Account_trg_Update' cannot be deactivated via API (system context restriction). Please use Salesforce UI.",
		err.Error())
}

func TestActivateFlow_TransientErrorPropagates(t *testing.T) {
	org := &fakeOrg{
		definitions: []map[string]any{definition("300A", "My_Flow", 0, 1)},
		versions:    map[string]map[string]any{"My_Flow": version("300A", 1)},
		patchStatus: http.StatusBadRequest,
		patchBody:   `[{"errorCode":"UNABLE_TO_LOCK_ROW","message":"record locked"}]`,
	}
	c := newFlowClient(t, org)

	_, err := c.ActivateFlow(context.Background(), "My_Flow", nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, salesforce.ErrAPIRestriction)
	assert.True(t, batch.ShouldRetry(err))
}

func TestDeactivateFlow(t *testing.T) {
	org := &fakeOrg{
		definitions: []map[string]any{
			definition("300A", "Active_Flow", 3, 3),
			definition("300B", "Inactive_Flow", 0, 2),
		},
		versions: map[string]map[string]any{"Active_Flow": version("300A", 3)},
	}
	c := newFlowClient(t, org)
	ctx := context.Background()

	res, err := c.DeactivateFlow(ctx, "Active_Flow")
	require.NoError(t, err)
	assert.Equal(t, "Flow 'Active_Flow' deactivated successfully", res.Message)
	assert.Equal(t, 3, res.PreviousVersion)

	res, err = c.DeactivateFlow(ctx, "Inactive_Flow")
	require.NoError(t, err)
	assert.True(t, res.Unchanged)
	assert.Equal(t, "Flow 'Inactive_Flow' is already inactive", res.Message)

	patches := org.Patches()
	require.Len(t, patches, 1)
	body := decodeBody(t, patches[0].Body)
	assert.Equal(t, map[string]any{"activeVersionNumber": float64(0)}, body["Metadata"])
}

func TestGetFlowStatus(t *testing.T) {
	org := &fakeOrg{
		definitions: []map[string]any{definition("300A", "My_Flow", 1, 3)},
		versions:    map[string]map[string]any{"My_Flow": version("300A", 3)},
	}
	c := newFlowClient(t, org)

	status, err := c.GetFlowStatus(context.Background(), "My_Flow")
	require.NoError(t, err)
	assert.True(t, status.IsActive)
	assert.Equal(t, 1, status.ActiveVersion)
	assert.Equal(t, 3, status.LatestVersion)
	assert.True(t, status.HasNewerVersion)
	assert.Equal(t, salesforce.FlowTypeFlow, status.FlowType.Type)
	assert.True(t, status.FlowType.CanActivateViaAPI)
}

func TestGetMultipleFlowStatuses(t *testing.T) {
	org := &fakeOrg{
		definitions: []map[string]any{
			definition("300A", "Alpha", 1, 1),
			definition("300B", "Beta_trg_Sync", 0, 2),
		},
	}
	c := newFlowClient(t, org)

	statuses, err := c.GetMultipleFlowStatuses(context.Background(), []string{"Beta_trg_Sync", "Missing", "Alpha"})
	require.NoError(t, err)
	require.Len(t, statuses, 3)

	assert.Equal(t, "Beta_trg_Sync", statuses[0].Name)
	assert.False(t, statuses[0].IsActive)
	assert.True(t, statuses[0].HasNewerVersion)
	assert.True(t, statuses[0].FlowType.IsSystemContext)
	assert.False(t, statuses[0].FlowType.CanActivateViaAPI)

	assert.Equal(t, "Missing", statuses[1].Name)
	assert.Equal(t, salesforce.FlowTypeNotFound, statuses[1].FlowType.Type)
	assert.Equal(t, "Flow not found", statuses[1].Error)

	assert.Equal(t, "Alpha", statuses[2].Name)
	assert.True(t, statuses[2].IsActive)
	assert.False(t, statuses[2].HasNewerVersion)

	var inQueries int
	for _, r := range org.Requests() {
		if r.Method == http.MethodGet && containsAll(r.Query, "FROM FlowDefinition", "IN (") {
			inQueries++
		}
	}
	assert.Equal(t, 1, inQueries)
}

func TestListFlowStatuses(t *testing.T) {
	org := &fakeOrg{
		definitions: []map[string]any{
			definition("300B", "Zeta", 0, 1),
			definition("300A", "Alpha", 2, 2),
		},
	}
	c := newFlowClient(t, org)

	statuses, err := c.ListFlowStatuses(context.Background())
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.Equal(t, "Alpha", statuses[0].Name)
	assert.Equal(t, "Zeta", statuses[1].Name)
}

func TestValidateFlowsExist(t *testing.T) {
	org := &fakeOrg{definitions: []map[string]any{definition("300A", "Alpha", 1, 1)}}
	c := newFlowClient(t, org)
	ctx := context.Background()

	found, err := c.ValidateFlowsExist(ctx, []string{"Alpha", "Missing"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"Alpha": true, "Missing": false}, found)

	ok, err := c.ValidateFlowExists(ctx, "Alpha")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.ValidateFlowExists(ctx, "Missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetFlowVersionID(t *testing.T) {
	org := &fakeOrg{}
	c := newFlowClient(t, org)

	id, err := c.GetFlowVersionID(context.Background(), "300A", 4)
	require.NoError(t, err)
	assert.Equal(t, "301VERSION", id)

	reqs := org.Requests()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].Query, "DefinitionId = '300A' AND VersionNumber = 4")
}

func TestFlowURLs(t *testing.T) {
	assert.Equal(t,
		"https://acme.my.salesforce.com/lightning/setup/Flows/page?address=%2F300A",
		salesforce.FlowSetupURL("https://acme.my.salesforce.com/", "300A"))
	assert.Equal(t,
		"https://acme.my.salesforce.com/builder_platform_interaction/flowBuilder.app?flowId=301B",
		salesforce.FlowEditURL("https://acme.my.salesforce.com", "301B"))
	assert.Equal(t,
		"https://acme.my.salesforce.com/lightning/setup/Flows/home",
		salesforce.FlowListURL("https://acme.my.salesforce.com"))
}

func containsAll(s string, parts ...string) bool {
	for _, p := range parts {
		if !strings.Contains(s, p) {
			return false
		}
	}
	return true
}
