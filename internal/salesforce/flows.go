package salesforce

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sunyxi/salesforce-flow-cli/internal/logging"
)

// Flow type labels.
const (
	FlowTypeRecordTriggered = "Record-Triggered Flow"
	FlowTypeScheduled       = "Scheduled Flow"
	FlowTypeScreen          = "Screen Flow"
	FlowTypeAutolaunched    = "Autolaunched Flow"
	FlowTypeProcessBuilder  = "Process Builder"
	FlowTypeFlow            = "Flow"
	FlowTypeNotFound        = "NotFound"
)

const (
	sobjectFlowDefinition = "FlowDefinition"
	systemModeNoSharing   = "SystemModeWithoutSharing"

	flowDefinitionFields = "Id, DeveloperName, Description, MasterLabel, ActiveVersion.VersionNumber, LatestVersion.VersionNumber"
)

// VersionRef is a nested version relationship.
type VersionRef struct {
	VersionNumber int `json:"VersionNumber"`
}

// FlowDefinition is a Tooling API FlowDefinition record.
type FlowDefinition struct {
	ID            string      `json:"Id"`
	DeveloperName string      `json:"DeveloperName"`
	Description   string      `json:"Description"`
	MasterLabel   string      `json:"MasterLabel"`
	ActiveVersion *VersionRef `json:"ActiveVersion"`
	LatestVersion *VersionRef `json:"LatestVersion"`
}

// ActiveVersionNumber returns the active version or 0 when the flow is inactive.
func (d FlowDefinition) ActiveVersionNumber() int {
	if d.ActiveVersion == nil {
		return 0
	}
	return d.ActiveVersion.VersionNumber
}

// LatestVersionNumber returns the latest version or 0.
func (d FlowDefinition) LatestVersionNumber() int {
	if d.LatestVersion == nil {
		return 0
	}
	return d.LatestVersion.VersionNumber
}

// VersionInfo describes the newest Flow version of a definition.
type VersionInfo struct {
	DefinitionID  string
	LatestVersion int
}

// FlowType classifies a flow and whether the API may change it.
type FlowType struct {
	Type              string `json:"type"`
	IsSystemContext   bool   `json:"is_system_context"`
	CanActivateViaAPI bool   `json:"can_activate_via_api"`
}

// FlowStatus is the activation state of one flow.
type FlowStatus struct {
	Name            string   `json:"name"`
	Label           string   `json:"label,omitempty"`
	Description     string   `json:"description,omitempty"`
	DefinitionID    string   `json:"definition_id,omitempty"`
	FlowType        FlowType `json:"flow_type"`
	IsActive        bool     `json:"is_active"`
	ActiveVersion   int      `json:"active_version"`
	LatestVersion   int      `json:"latest_version"`
	HasNewerVersion bool     `json:"has_newer_version"`
	Error           string   `json:"error,omitempty"`
}

// ActivationResult describes a successful activation or deactivation call.
type ActivationResult struct {
	Message         string
	Unchanged       bool
	PreviousVersion int
	NewVersion      int
}

// FlowClient manages FlowDefinition activation through the Tooling API.
type FlowClient struct {
	tooling *ToolingClient
}

// NewFlowClient creates a FlowClient.
func NewFlowClient(tooling *ToolingClient) *FlowClient {
	return &FlowClient{tooling: tooling}
}

// Tooling returns the underlying Tooling API client.
func (c *FlowClient) Tooling() *ToolingClient {
	return c.tooling
}

// QuoteSOQL renders s as a SOQL string literal.
func QuoteSOQL(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(s) + "'"
}

// GetFlowDefinition loads a definition by API name. It returns ErrFlowNotFound if none matches.
func (c *FlowClient) GetFlowDefinition(ctx context.Context, name string) (FlowDefinition, error) {
	soql := fmt.Sprintf("SELECT %s FROM FlowDefinition WHERE DeveloperName = %s", flowDefinitionFields, QuoteSOQL(name))
	res, err := c.tooling.Query(ctx, soql)
	if err != nil {
		return FlowDefinition{}, err
	}
	if len(res.Records) == 0 {
		return FlowDefinition{}, fmt.Errorf("%w: '%s'", ErrFlowNotFound, name)
	}
	var def FlowDefinition
	if err = json.Unmarshal(res.Records[0], &def); err != nil {
		return FlowDefinition{}, fmt.Errorf("decoding FlowDefinition: %w", err)
	}
	return def, nil
}

// GetFlowDefinitions loads the definitions matching names in one query. Missing names are omitted.
func (c *FlowClient) GetFlowDefinitions(ctx context.Context, names []string) ([]FlowDefinition, error) {
	if len(names) == 0 {
		return nil, nil
	}
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = QuoteSOQL(n)
	}
	soql := fmt.Sprintf("SELECT %s FROM FlowDefinition WHERE DeveloperName IN (%s)", flowDefinitionFields, strings.Join(quoted, ","))
	return c.queryDefinitions(ctx, soql)
}

// GetAllFlowDefinitions loads every definition in the org ordered by API name.
func (c *FlowClient) GetAllFlowDefinitions(ctx context.Context) ([]FlowDefinition, error) {
	soql := fmt.Sprintf("SELECT %s FROM FlowDefinition ORDER BY DeveloperName", flowDefinitionFields)
	return c.queryDefinitions(ctx, soql)
}

func (c *FlowClient) queryDefinitions(ctx context.Context, soql string) ([]FlowDefinition, error) {
	records, err := c.tooling.QueryAll(ctx, soql)
	if err != nil {
		return nil, err
	}
	defs := make([]FlowDefinition, 0, len(records))
	for _, raw := range records {
		var def FlowDefinition
		if err = json.Unmarshal(raw, &def); err != nil {
			return nil, fmt.Errorf("decoding FlowDefinition: %w", err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// GetFlowVersionInfo returns the newest Flow version for a definition name.
// A flow without versions yields a zero VersionInfo.
func (c *FlowClient) GetFlowVersionInfo(ctx context.Context, name string) (VersionInfo, error) {
	soql := fmt.Sprintf(
		"SELECT DefinitionId, VersionNumber FROM Flow WHERE Definition.DeveloperName = %s ORDER BY VersionNumber DESC LIMIT 1",
		QuoteSOQL(name))
	res, err := c.tooling.Query(ctx, soql)
	if err != nil {
		return VersionInfo{}, err
	}
	if len(res.Records) == 0 {
		return VersionInfo{}, nil
	}
	var rec struct {
		DefinitionID  string `json:"DefinitionId"`
		VersionNumber int    `json:"VersionNumber"`
	}
	if err = json.Unmarshal(res.Records[0], &rec); err != nil {
		return VersionInfo{}, fmt.Errorf("decoding Flow: %w", err)
	}
	return VersionInfo{DefinitionID: rec.DefinitionID, LatestVersion: rec.VersionNumber}, nil
}

// GetFlowVersionID returns the Flow record ID of one version of a definition.
// It returns ErrInvalidVersion if that version does not exist.
func (c *FlowClient) GetFlowVersionID(ctx context.Context, definitionID string, version int) (string, error) {
	soql := fmt.Sprintf("SELECT Id FROM Flow WHERE DefinitionId = %s AND VersionNumber = %d", QuoteSOQL(definitionID), version)
	res, err := c.tooling.Query(ctx, soql)
	if err != nil {
		return "", err
	}
	if len(res.Records) == 0 {
		return "", fmt.Errorf("%w: version %d of %s", ErrInvalidVersion, version, definitionID)
	}
	var rec struct {
		ID string `json:"Id"`
	}
	if err = json.Unmarshal(res.Records[0], &rec); err != nil {
		return "", fmt.Errorf("decoding Flow: %w", err)
	}
	return rec.ID, nil
}

// IdentifyFlowType classifies def from its newest version, falling back to name patterns
// when the version cannot be read.
func (c *FlowClient) IdentifyFlowType(ctx context.Context, def FlowDefinition) FlowType {
	soql := fmt.Sprintf(
		"SELECT ProcessType, RunInMode FROM Flow WHERE DefinitionId = %s ORDER BY VersionNumber DESC LIMIT 1",
		QuoteSOQL(def.ID))
	res, err := c.tooling.Query(ctx, soql)
	if err == nil && len(res.Records) > 0 {
		var rec struct {
			ProcessType string `json:"ProcessType"`
			RunInMode   string `json:"RunInMode"`
		}
		if err = json.Unmarshal(res.Records[0], &rec); err == nil {
			flowType := FlowTypeFromName(def.DeveloperName, rec.ProcessType)
			return newFlowType(flowType, rec.RunInMode == systemModeNoSharing)
		}
	}
	if err != nil {
		logging.FromContext(ctx).Debug().Ctx(ctx).
			Str("component", "salesforce").
			Str("flow", def.DeveloperName).
			Err(err).
			Msg("could not get detailed flow type info")
	}
	return newFlowType(FlowTypeFromName(def.DeveloperName, ""), false)
}

func newFlowType(flowType string, systemMode bool) FlowType {
	system := systemMode || flowType == FlowTypeRecordTriggered || flowType == FlowTypeProcessBuilder
	return FlowType{Type: flowType, IsSystemContext: system, CanActivateViaAPI: !system}
}

// FlowTypeFromName infers a flow type from naming conventions and, failing that, the process type.
func FlowTypeFromName(name, processType string) string {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "trg_") || strings.Contains(n, "trigger"):
		return FlowTypeRecordTriggered
	case strings.Contains(n, "sch_") || strings.Contains(n, "schedule"):
		return FlowTypeScheduled
	case strings.Contains(n, "screen_") || strings.Contains(n, "scr_"):
		return FlowTypeScreen
	case strings.Contains(n, "autolaunched") || strings.Contains(n, "auto_"):
		return FlowTypeAutolaunched
	case processType == "Workflow":
		return FlowTypeProcessBuilder
	default:
		return FlowTypeFlow
	}
}

// ActivateFlow activates version of the named flow, or its latest version when version is nil.
//
// Errors wrapping ErrFlowNotFound, ErrNoVersions, ErrInvalidVersion or
// ErrAPIRestriction are final. Other errors may be transient.
func (c *FlowClient) ActivateFlow(ctx context.Context, name string, version *int) (ActivationResult, error) {
	def, err := c.GetFlowDefinition(ctx, name)
	if err != nil {
		return ActivationResult{}, err
	}
	info, err := c.GetFlowVersionInfo(ctx, name)
	if err != nil {
		return ActivationResult{}, err
	}

	current := def.ActiveVersionNumber()
	if info.LatestVersion == 0 {
		return ActivationResult{}, fmt.Errorf("%w: '%s'", ErrNoVersions, name)
	}

	target := info.LatestVersion
	if version != nil {
		if *version < 1 || *version > info.LatestVersion {
			return ActivationResult{}, fmt.Errorf("%w: '%s' has versions 1..%d, requested %d",
				ErrInvalidVersion, name, info.LatestVersion, *version)
		}
		target = *version
	}

	if current == target {
		return ActivationResult{
			Message:         fmt.Sprintf("Flow '%s' is already active (version %d)", name, current),
			Unchanged:       true,
			PreviousVersion: current,
			NewVersion:      current,
		}, nil
	}

	if err = c.setActiveVersion(ctx, definitionID(info, def), target); err != nil {
		if IsSystemContextRestriction(err) {
			return ActivationResult{}, &RestrictionError{Flow: name, Action: "activated", Err: err}
		}
		return ActivationResult{}, err
	}

	return ActivationResult{
		Message:         fmt.Sprintf("Flow '%s' activated successfully (version %d)", name, target),
		PreviousVersion: current,
		NewVersion:      target,
	}, nil
}

// DeactivateFlow clears the active version of the named flow.
func (c *FlowClient) DeactivateFlow(ctx context.Context, name string) (ActivationResult, error) {
	def, err := c.GetFlowDefinition(ctx, name)
	if err != nil {
		return ActivationResult{}, err
	}

	current := def.ActiveVersionNumber()
	if current == 0 {
		return ActivationResult{
			Message:   fmt.Sprintf("Flow '%s' is already inactive", name),
			Unchanged: true,
		}, nil
	}

	info, err := c.GetFlowVersionInfo(ctx, name)
	if err != nil {
		return ActivationResult{}, err
	}

	if err = c.setActiveVersion(ctx, definitionID(info, def), 0); err != nil {
		if IsSystemContextRestriction(err) {
			return ActivationResult{}, &RestrictionError{Flow: name, Action: "deactivated", Err: err}
		}
		return ActivationResult{}, err
	}

	return ActivationResult{
		Message:         fmt.Sprintf("Flow '%s' deactivated successfully", name),
		PreviousVersion: current,
	}, nil
}

func (c *FlowClient) setActiveVersion(ctx context.Context, definitionID string, version int) error {
	body := map[string]any{
		"Metadata": map[string]any{"activeVersionNumber": version},
	}
	return c.tooling.UpdateRecord(ctx, sobjectFlowDefinition, definitionID, body)
}

func definitionID(info VersionInfo, def FlowDefinition) string {
	if info.DefinitionID != "" {
		return info.DefinitionID
	}
	return def.ID
}

// GetFlowStatus returns the activation state of one flow.
func (c *FlowClient) GetFlowStatus(ctx context.Context, name string) (FlowStatus, error) {
	def, err := c.GetFlowDefinition(ctx, name)
	if err != nil {
		return FlowStatus{}, err
	}
	info, err := c.GetFlowVersionInfo(ctx, name)
	if err != nil {
		return FlowStatus{}, err
	}

	status := statusFromDefinition(def, c.IdentifyFlowType(ctx, def))
	status.LatestVersion = info.LatestVersion
	status.HasNewerVersion = info.LatestVersion > status.ActiveVersion
	return status, nil
}

// GetMultipleFlowStatuses returns one status per name, in input order. Names
// that do not exist get a status with FlowType NotFound and Error set.
func (c *FlowClient) GetMultipleFlowStatuses(ctx context.Context, names []string) ([]FlowStatus, error) {
	defs, err := c.GetFlowDefinitions(ctx, names)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]FlowDefinition, len(defs))
	for _, d := range defs {
		byName[d.DeveloperName] = d
	}

	statuses := make([]FlowStatus, 0, len(names))
	for _, name := range names {
		def, ok := byName[name]
		if !ok {
			statuses = append(statuses, FlowStatus{
				Name:     name,
				FlowType: FlowType{Type: FlowTypeNotFound},
				Error:    "Flow not found",
			})
			continue
		}
		statuses = append(statuses, statusFromDefinition(def, c.IdentifyFlowType(ctx, def)))
	}
	return statuses, nil
}

// ListFlowStatuses returns the state of every flow in the org without per-flow type lookups.
func (c *FlowClient) ListFlowStatuses(ctx context.Context) ([]FlowStatus, error) {
	defs, err := c.GetAllFlowDefinitions(ctx)
	if err != nil {
		return nil, err
	}
	statuses := make([]FlowStatus, 0, len(defs))
	for _, d := range defs {
		statuses = append(statuses, statusFromDefinition(d, newFlowType(FlowTypeFromName(d.DeveloperName, ""), false)))
	}
	sort.SliceStable(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	return statuses, nil
}

func statusFromDefinition(def FlowDefinition, flowType FlowType) FlowStatus {
	active := def.ActiveVersionNumber()
	latest := def.LatestVersionNumber()
	return FlowStatus{
		Name:            def.DeveloperName,
		Label:           def.MasterLabel,
		Description:     def.Description,
		DefinitionID:    def.ID,
		FlowType:        flowType,
		IsActive:        active > 0,
		ActiveVersion:   active,
		LatestVersion:   latest,
		HasNewerVersion: latest > active,
	}
}

// ValidateFlowExists reports whether a flow with the given name exists.
func (c *FlowClient) ValidateFlowExists(ctx context.Context, name string) (bool, error) {
	_, err := c.GetFlowDefinition(ctx, name)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrFlowNotFound):
		return false, nil
	default:
		return false, err
	}
}

// ValidateFlowsExist reports existence for every name using a single query.
func (c *FlowClient) ValidateFlowsExist(ctx context.Context, names []string) (map[string]bool, error) {
	defs, err := c.GetFlowDefinitions(ctx, names)
	if err != nil {
		return nil, err
	}
	found := make(map[string]bool, len(names))
	for _, n := range names {
		found[n] = false
	}
	for _, d := range defs {
		found[d.DeveloperName] = true
	}
	return found, nil
}
