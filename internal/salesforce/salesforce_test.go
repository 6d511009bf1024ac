package salesforce_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sunyxi/salesforce-flow-cli/internal/auth"
)

var _ auth.TokenSource = (*staticTokens)(nil)

// staticTokens is a TokenSource that always returns the same token.
type staticTokens struct {
	mu          sync.Mutex
	instance    string
	invalidated int
}

func (s *staticTokens) Token(context.Context) (auth.Token, error) {
	return auth.Token{AccessToken: "token", InstanceURL: s.instance}, nil
}

func (s *staticTokens) Invalidate() {
	s.mu.Lock()
	s.invalidated++
	s.mu.Unlock()
}

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Body   string
}

// fakeOrg serves Tooling API requests from canned flow data.
type fakeOrg struct {
	mu       sync.Mutex
	requests []recordedRequest

	// definitions are returned by FlowDefinition queries, filtered by DeveloperName.
	definitions []map[string]any

	// versions maps a DeveloperName to its newest Flow version record.
	versions map[string]map[string]any

	// patchStatus and patchBody override the PATCH response.
	patchStatus int
	patchBody   string
}

func (f *fakeOrg) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	q := r.URL.Query().Get("q")

	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{Method: r.Method, Path: r.URL.Path, Query: q, Body: string(body)})
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodPatch:
		if f.patchStatus != 0 {
			w.WriteHeader(f.patchStatus)
			_, _ = io.WriteString(w, f.patchBody)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case strings.Contains(q, "FROM FlowDefinition"):
		writeRecords(w, f.matchDefinitions(q))
	case strings.Contains(q, "FROM Flow WHERE Definition.DeveloperName"):
		var records []map[string]any
		for name, v := range f.versions {
			if strings.Contains(q, "'"+name+"'") {
				records = append(records, v)
			}
		}
		writeRecords(w, records)
	case strings.Contains(q, "SELECT Id FROM Flow WHERE DefinitionId"):
		writeRecords(w, []map[string]any{{"Id": "301VERSION"}})
	case strings.Contains(q, "SELECT ProcessType"):
		writeRecords(w, []map[string]any{{"ProcessType": "AutoLaunchedFlow", "RunInMode": "DefaultMode"}})
	default:
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `[{"errorCode":"MALFORMED_QUERY","message":"unexpected query"}]`)
	}
}

func (f *fakeOrg) matchDefinitions(q string) []map[string]any {
	if !strings.Contains(q, "WHERE") {
		return f.definitions
	}
	var out []map[string]any
	for _, d := range f.definitions {
		if strings.Contains(q, "'"+d["DeveloperName"].(string)+"'") {
			out = append(out, d)
		}
	}
	return out
}

func (f *fakeOrg) Requests() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func (f *fakeOrg) Patches() []recordedRequest {
	var out []recordedRequest
	for _, r := range f.Requests() {
		if r.Method == http.MethodPatch {
			out = append(out, r)
		}
	}
	return out
}

func writeRecords(w http.ResponseWriter, records []map[string]any) {
	if records == nil {
		records = []map[string]any{}
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"totalSize": len(records),
		"done":      true,
		"records":   records,
	})
}

func definition(id, name string, active, latest int) map[string]any {
	d := map[string]any{
		"Id":            id,
		"DeveloperName": name,
		"MasterLabel":   strings.ReplaceAll(name, "_", " "),
		"Description":   "",
	}
	if active > 0 {
		d["ActiveVersion"] = map[string]any{"VersionNumber": active}
	}
	if latest > 0 {
		d["LatestVersion"] = map[string]any{"VersionNumber": latest}
	}
	return d
}

func version(definitionID string, number int) map[string]any {
	return map[string]any{"DefinitionId": definitionID, "VersionNumber": number}
}

func newServer(t *testing.T, h http.Handler) (*httptest.Server, *staticTokens) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv, &staticTokens{instance: srv.URL}
}

func decodeBody(t *testing.T, body string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &m))
	return m
}
