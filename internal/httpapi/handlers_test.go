package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"guildry.org/internal/auth"
	"guildry.org/internal/event"
	"guildry.org/internal/registry"
)

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T
}

func newTestAPI(t *testing.T, moderator string) *apiClient {
	t.Helper()

	t.Setenv("GUILDRY_AUTH_SECRET", "test-secret")
	auth.ResetSecretForTests()

	reg := registry.NewService(registry.NewMemory())
	if moderator != "" {
		if err := reg.EnsureModerator(context.Background(), moderator); err != nil {
			t.Fatalf("ensure moderator: %v", err)
		}
	}
	api := New(reg, event.New(), ReadyProbe{}, "test")

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		t:       t,
	}
}

func (c *apiClient) do(method, path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) post(path string, body any, headers map[string]string) *http.Response {
	return c.do(http.MethodPost, path, body, headers)
}

func (c *apiClient) get(path string, params url.Values, headers map[string]string) *http.Response {
	c.t.Helper()
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		c.t.Fatalf("parse url: %v", err)
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}
	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("get request: %v", err)
	}
	return resp
}

func (c *apiClient) obtainToken(account string) map[string]string {
	c.t.Helper()
	resp := c.post("/v1/auth/token", map[string]any{"account": account}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("unexpected token status: %d", resp.StatusCode)
	}
	var payload tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.t.Fatalf("decode token response: %v", err)
	}
	if payload.Token == "" {
		c.t.Fatalf("empty token issued")
	}
	return map[string]string{"Authorization": "Bearer " + payload.Token}
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestAPIEntityInviteFlow(t *testing.T) {
	api := newTestAPI(t, "mod.test")
	founder := api.obtainToken("alice.test")
	invitee := api.obtainToken("bob.test")

	// Founder registers the entity.
	resp := api.post("/v1/entities", map[string]any{
		"id":         "guild.test",
		"name":       "Guild",
		"kind":       "dao",
		"start_date": 1700000000,
	}, founder)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add entity status: %d", resp.StatusCode)
	}
	resp.Body.Close()
	if loc := resp.Header.Get("Location"); loc != "/v1/entities/guild.test" {
		t.Fatalf("location header: %q", loc)
	}

	// Registering again conflicts.
	resp = api.post("/v1/entities", map[string]any{
		"id":         "guild.test",
		"name":       "Guild",
		"kind":       "dao",
		"start_date": 1700000000,
	}, founder)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate add status: %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Founder invites bob with admin rights.
	resp = api.post("/v1/entities/guild.test/invites", map[string]any{
		"contributor_id":    "bob.test",
		"description":       "core development",
		"contribution_type": "development",
		"start_date":        1700000100,
		"permissions":       []string{"admin"},
	}, founder)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("invite status: %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Bob accepts.
	resp = api.post("/v1/entities/guild.test/invites/accept", nil, invitee)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("accept status: %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Bob's row carries the granted permissions.
	resp = api.get("/v1/entities/guild.test/contributions/bob.test", nil, invitee)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("contribution status: %d", resp.StatusCode)
	}
	row := decode[registry.Contribution](t, resp)
	if !row.Permissions.Contains(registry.PermissionAdmin) {
		t.Fatalf("expected admin permission, got %v", row.Permissions)
	}
	if row.Current.Description != "core development" {
		t.Fatalf("unexpected description: %q", row.Current.Description)
	}

	// The founder shows up in the founders view.
	resp = api.get("/v1/entities/guild.test/founders", nil, founder)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("founders status: %d", resp.StatusCode)
	}
	founders := decode[map[string][]string](t, resp)
	if len(founders["items"]) != 1 || founders["items"][0] != "alice.test" {
		t.Fatalf("unexpected founders: %v", founders["items"])
	}
}

func TestAPIRequestApproveFlow(t *testing.T) {
	api := newTestAPI(t, "mod.test")
	founder := api.obtainToken("alice.test")
	applicant := api.obtainToken("carol.test")

	resp := api.post("/v1/entities", map[string]any{
		"id":   "guild.test",
		"name": "Guild",
		"kind": "project",
	}, founder)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add entity status: %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = api.post("/v1/entities/guild.test/requests", map[string]any{
		"description":       "design work",
		"contribution_type": "design",
	}, applicant)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("request status: %d", resp.StatusCode)
	}
	resp.Body.Close()

	// The applicant cannot approve their own request.
	resp = api.post("/v1/entities/guild.test/requests/approve", map[string]any{
		"contributor_id": "carol.test",
	}, applicant)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("self approve status: %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = api.post("/v1/entities/guild.test/requests/approve", map[string]any{
		"contributor_id": "carol.test",
	}, founder)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("approve status: %d", resp.StatusCode)
	}
	resp.Body.Close()

	// The request queue is empty again.
	resp = api.get("/v1/entities/guild.test/requests", nil, founder)
	queue := decode[map[string]map[string]registry.ContributionRequest](t, resp)
	if len(queue["items"]) != 0 {
		t.Fatalf("expected empty queue, got %v", queue["items"])
	}

	// Approving a missing request 404s.
	resp = api.post("/v1/entities/guild.test/requests/approve", map[string]any{
		"contributor_id": "carol.test",
	}, founder)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing request status: %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAPIEnforcesAuth(t *testing.T) {
	api := newTestAPI(t, "")

	resp := api.post("/v1/entities", map[string]any{
		"id":   "guild.test",
		"name": "Guild",
		"kind": "dao",
	}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	var errBody map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&errBody); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if errBody["error"] == "" {
		t.Fatalf("expected error message")
	}
}

func TestAPIUnknownEntity(t *testing.T) {
	api := newTestAPI(t, "")
	headers := api.obtainToken("alice.test")

	resp := api.get("/v1/entities/ghost.test", nil, headers)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestTokenEndpointValidation(t *testing.T) {
	api := newTestAPI(t, "")

	resp := api.post("/v1/auth/token", map[string]any{"account": ""}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestModeratorEndpoint(t *testing.T) {
	api := newTestAPI(t, "mod.test")
	mod := api.obtainToken("mod.test")
	other := api.obtainToken("alice.test")

	resp := api.get("/v1/moderator", url.Values{"account": []string{"mod.test"}}, mod)
	status := decode[map[string]any](t, resp)
	if status["moderator"] != true {
		t.Fatalf("expected moderator true, got %v", status["moderator"])
	}

	// Only the moderator can hand the role over.
	resp = api.post("/v1/moderator", map[string]any{"account_id": "alice.test"}, other)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = api.post("/v1/moderator", map[string]any{"account_id": "alice.test"}, mod)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("handover status: %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = api.get("/v1/moderator", url.Values{"account": []string{"alice.test"}}, mod)
	status = decode[map[string]any](t, resp)
	if status["moderator"] != true {
		t.Fatalf("expected alice to be moderator, got %v", status["moderator"])
	}
}
