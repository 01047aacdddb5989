package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"time"
)

// Smoke test against a running guildry-api: issue tokens, register an
// entity, run an invite round trip and verify the resulting ledger row.
func main() {
	base := os.Getenv("GUILDRY_API_URL")
	if base == "" {
		base = "http://localhost:8080"
	}

	client := &http.Client{Timeout: 5 * time.Second}
	suffix := rand.New(rand.NewSource(time.Now().UnixNano())).Int63n(1_000_000)
	founder := fmt.Sprintf("founder-%d.smoke", suffix)
	invitee := fmt.Sprintf("invitee-%d.smoke", suffix)
	entity := fmt.Sprintf("entity-%d.smoke", suffix)

	founderToken := obtainToken(client, base, founder)
	inviteeToken := obtainToken(client, base, invitee)

	call(client, base, founderToken, http.MethodPost, "/v1/entities", map[string]any{
		"id":         entity,
		"name":       "Smoke Guild",
		"kind":       "project",
		"start_date": time.Now().Unix(),
	}, http.StatusCreated)

	call(client, base, founderToken, http.MethodPost, "/v1/entities/"+entity+"/invites", map[string]any{
		"contributor_id":    invitee,
		"description":       "smoke contribution",
		"contribution_type": "development",
		"start_date":        time.Now().Unix(),
	}, http.StatusCreated)

	call(client, base, inviteeToken, http.MethodPost, "/v1/entities/"+entity+"/invites/accept", nil, http.StatusOK)

	row := call(client, base, inviteeToken, http.MethodGet, "/v1/entities/"+entity+"/contributions/"+invitee, nil, http.StatusOK)
	current, _ := row["current"].(map[string]any)
	if current == nil || current["description"] != "smoke contribution" {
		log.Fatalf("unexpected contribution row: %v", row)
	}

	founders := call(client, base, founderToken, http.MethodGet, "/v1/entities/"+entity+"/founders", nil, http.StatusOK)
	items, _ := founders["items"].([]any)
	if len(items) != 1 || items[0] != founder {
		log.Fatalf("unexpected founders: %v", founders)
	}

	fmt.Printf("✅ registry smoke test passed: entity=%s\n", entity)
}

func obtainToken(client *http.Client, base, account string) string {
	resp := call(client, base, "", http.MethodPost, "/v1/auth/token", map[string]any{
		"account": account,
	}, http.StatusOK)
	token, _ := resp["token"].(string)
	if token == "" {
		log.Fatalf("empty token for %s", account)
	}
	return token
}

func call(client *http.Client, base, token, method, path string, body any, wantStatus int) map[string]any {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			log.Fatalf("marshal %s: %v", path, err)
		}
	}
	req, err := http.NewRequest(method, base+path, bytes.NewReader(payload))
	if err != nil {
		log.Fatalf("request %s: %v", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("call %s: %v", path, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	if resp.StatusCode != wantStatus {
		log.Fatalf("%s %s: status %d, body %v", method, path, resp.StatusCode, out)
	}
	return out
}
