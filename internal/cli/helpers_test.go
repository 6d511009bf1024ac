package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sunyxi/salesforce-flow-cli/internal/config"
)

// orgFlow is one flow held by fakeOrg.
type orgFlow struct {
	id          string
	active      int
	latest      int
	processType string
	restricted  bool
}

// fakeOrg serves the OAuth token endpoint and the Tooling API from in-memory flows.
// PATCH requests change the active version so later queries see the new state.
type fakeOrg struct {
	mu      sync.Mutex
	flows   map[string]*orgFlow
	patches []string
	srv     *httptest.Server
}

//nolint:gochecknoglobals // Test fixture pattern.
var (
	quotedName  = regexp.MustCompile(`'([^']*)'`)
	sobjectPath = regexp.MustCompile(`/tooling/sobjects/FlowDefinition/([^/]+)$`)
)

func newFakeOrg(t *testing.T, flows map[string]*orgFlow) *fakeOrg {
	t.Helper()
	org := &fakeOrg{flows: flows}
	org.srv = httptest.NewServer(org)
	t.Cleanup(org.srv.Close)
	return org
}

func (o *fakeOrg) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	o.mu.Lock()
	defer o.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	if r.URL.Path == "/services/oauth2/token" {
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "tok", "instance_url": o.srv.URL})
		return
	}

	if r.Method == http.MethodPatch {
		o.patch(w, r)
		return
	}

	q := r.URL.Query().Get("q")
	switch {
	case strings.Contains(q, "FROM FlowDefinition"):
		writeQuery(w, o.definitions(q))
	case strings.Contains(q, "FROM Flow WHERE Definition.DeveloperName"):
		var records []map[string]any
		if f := o.flows[firstQuoted(q)]; f != nil && f.latest > 0 {
			records = append(records, map[string]any{"DefinitionId": f.id, "VersionNumber": f.latest})
		}
		writeQuery(w, records)
	case strings.Contains(q, "SELECT Id FROM Flow WHERE DefinitionId"):
		writeQuery(w, []map[string]any{{"Id": "301" + firstQuoted(q)}})
	case strings.Contains(q, "SELECT ProcessType"):
		var records []map[string]any
		if _, f := o.byID(firstQuoted(q)); f != nil {
			records = append(records, map[string]any{"ProcessType": f.processType, "RunInMode": "DefaultMode"})
		}
		writeQuery(w, records)
	default:
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `[{"errorCode":"MALFORMED_QUERY","message":"unexpected query"}]`)
	}
}

func (o *fakeOrg) patch(w http.ResponseWriter, r *http.Request) {
	m := sobjectPath.FindStringSubmatch(r.URL.Path)
	if m == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	name, f := o.byID(m[1])
	if f == nil {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `[{"errorCode":"NOT_FOUND","message":"not found"}]`)
		return
	}
	if f.restricted {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `[{"errorCode":"UNKNOWN_EXCEPTION","message":"cannot change a flow running in system context"}]`)
		return
	}

	var body struct {
		Metadata struct {
			ActiveVersionNumber int `json:"activeVersionNumber"`
		} `json:"Metadata"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.active = body.Metadata.ActiveVersionNumber
	o.patches = append(o.patches, name)
	w.WriteHeader(http.StatusNoContent)
}

func (o *fakeOrg) definitions(q string) []map[string]any {
	names := make([]string, 0, len(o.flows))
	if strings.Contains(q, "WHERE") {
		for _, m := range quotedName.FindAllStringSubmatch(q, -1) {
			if _, ok := o.flows[m[1]]; ok {
				names = append(names, m[1])
			}
		}
	} else {
		for n := range o.flows {
			names = append(names, n)
		}
	}
	sort.Strings(names)

	records := make([]map[string]any, 0, len(names))
	for _, n := range names {
		f := o.flows[n]
		rec := map[string]any{
			"Id":            f.id,
			"DeveloperName": n,
			"MasterLabel":   strings.ReplaceAll(n, "_", " "),
			"Description":   "Handles " + n,
		}
		if f.active > 0 {
			rec["ActiveVersion"] = map[string]any{"VersionNumber": f.active}
		}
		if f.latest > 0 {
			rec["LatestVersion"] = map[string]any{"VersionNumber": f.latest}
		}
		records = append(records, rec)
	}
	return records
}

func (o *fakeOrg) byID(id string) (string, *orgFlow) {
	for n, f := range o.flows {
		if f.id == id {
			return n, f
		}
	}
	return "", nil
}

func (o *fakeOrg) Patched() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.patches...)
}

func (o *fakeOrg) Active(name string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.flows[name].active
}

func firstQuoted(q string) string {
	if m := quotedName.FindStringSubmatch(q); m != nil {
		return m[1]
	}
	return ""
}

func writeQuery(w http.ResponseWriter, records []map[string]any) {
	if records == nil {
		records = []map[string]any{}
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"totalSize": len(records), "done": true, "records": records})
}

// defaultFlows is a small org with one flow in each interesting state.
func defaultFlows() map[string]*orgFlow {
	return map[string]*orgFlow{
		"Screen_Intake":    {id: "300A", active: 0, latest: 2, processType: "Flow"},
		"Account_Trigger":  {id: "300B", active: 3, latest: 3, processType: "AutoLaunchedFlow"},
		"Nightly_Schedule": {id: "300C", active: 1, latest: 4, processType: "AutoLaunchedFlow"},
		"Locked_Trigger":   {id: "300D", active: 1, latest: 2, processType: "AutoLaunchedFlow", restricted: true},
	}
}

// testEnv returns the environment for OAuth against org, plus extra overrides.
func testEnv(org *fakeOrg, extra map[string]string) func(string) (string, bool) {
	env := map[string]string{
		config.EnvAuthMethod:     config.AuthMethodOAuth,
		config.EnvClientID:       "client",
		config.EnvClientSecret:   "secret",
		config.EnvUsername:       "user@example.com",
		config.EnvPassword:       "pw",
		config.EnvSandbox:        "true",
		config.EnvRateLimitDelay: "0",
		config.EnvMaxRetries:     "0",
	}
	if org != nil {
		env[config.EnvLoginURL] = org.srv.URL
	}
	for k, v := range extra {
		env[k] = v
	}
	return func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
}

type cmdResult struct {
	stdout string
	stderr string
	err    error
}

// setupHome isolates the config directory and working directory of a test and returns the config directory.
func setupHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("SF_FLOW_HOME", home)
	t.Chdir(t.TempDir())
	config.ResetGlobalConfigForTest()
	t.Cleanup(config.ResetGlobalConfigForTest)
	return home
}

// runCLI executes the root command with args against env and captures output.
// Call setupHome first.
func runCLI(t *testing.T, env func(string) (string, bool), stdin string, args ...string) cmdResult {
	t.Helper()

	var stdout, stderr bytes.Buffer
	root := NewRootCmdWithEnv("test", env)
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)

	err := root.ExecuteContext(context.Background())
	return cmdResult{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

// requireExitCode asserts that err is an ExitError with code.
func requireExitCode(t *testing.T, err error, code int) {
	t.Helper()
	var exitErr *ExitError
	if assert.ErrorAs(t, err, &exitErr) {
		assert.Equal(t, code, exitErr.Code)
	}
}

// withTerminal makes confirmation prompts behave as on a terminal.
func withTerminal(t *testing.T, tty bool) {
	t.Helper()
	old := stdinIsTerminal
	stdinIsTerminal = func() bool { return tty }
	t.Cleanup(func() { stdinIsTerminal = old })
}
