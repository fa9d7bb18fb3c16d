package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Putra1906/MBC-CaptureTheFlag/internal/auth"
	"github.com/Putra1906/MBC-CaptureTheFlag/internal/config"
	"github.com/Putra1906/MBC-CaptureTheFlag/internal/game"
	"github.com/Putra1906/MBC-CaptureTheFlag/internal/live"
	"github.com/Putra1906/MBC-CaptureTheFlag/internal/models"
	"github.com/Putra1906/MBC-CaptureTheFlag/internal/storage"
)

type testEnv struct {
	server *httptest.Server
	repo   *storage.MemoryRepository
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithSessions(t, auth.NewMemoryStore(time.Minute))
}

func newTestEnvWithSessions(t *testing.T, sessions auth.SessionStore) *testEnv {
	t.Helper()

	repo := storage.NewMemoryRepository()
	ctx := context.Background()

	for _, u := range []struct {
		username, name, password string
		role                     models.Role
	}{
		{"alice", "Alice", "alicepass", models.RoleUser},
		{"admin", "Administrator", "adminpass", models.RoleAdmin},
	} {
		hash, err := auth.HashPassword(u.password)
		if err != nil {
			t.Fatalf("HashPassword failed: %v", err)
		}
		err = repo.CreateUser(ctx, &models.User{
			Username:     u.username,
			Name:         u.name,
			Role:         u.role,
			PasswordHash: hash,
		})
		if err != nil {
			t.Fatalf("CreateUser failed: %v", err)
		}
	}

	challenges := []*models.Challenge{
		{ID: 1, Title: "Warmup", Points: 10, Flag: "MBC{one}", Difficulty: "easy", Hint: "read the page", HintPenalty: 5},
		{ID: 2, Title: "Crypto", Points: 50, Flag: "MBC{two}", Difficulty: "medium"},
	}
	for _, c := range challenges {
		if err := repo.CreateChallenge(ctx, c); err != nil {
			t.Fatalf("CreateChallenge failed: %v", err)
		}
	}

	authService := auth.NewService(repo, sessions)
	gameService := game.NewService(repo)
	broadcaster := live.NewBroadcaster(gameService, time.Second)

	authCfg := config.AuthConfig{
		SessionTTL:    time.Minute,
		CookieName:    "ctf_session",
		LoginBurst:    100,
		LoginInterval: time.Millisecond,
	}

	server := NewServer(authCfg, repo, authService, gameService, broadcaster)
	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)

	return &testEnv{server: ts, repo: repo}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (e *testEnv) do(t *testing.T, method, path, cookie string, body interface{}) (*http.Response, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: "ctf_session", Value: cookie})
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, env
}

// login returns the raw session token from the Set-Cookie header
func (e *testEnv) login(t *testing.T, username, password string) string {
	t.Helper()

	raw, _ := json.Marshal(map[string]string{"username": username, "password": password})
	resp, err := http.Post(e.server.URL+"/login", "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("login request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login returned %d", resp.StatusCode)
	}
	for _, c := range resp.Cookies() {
		if c.Name == "ctf_session" && c.Value != "" {
			return c.Value
		}
	}
	t.Fatal("no session cookie in login response")
	return ""
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, "POST", "/login", "", map[string]string{
		"username": "alice",
		"password": "alicepass",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !body.Success {
		t.Fatalf("expected success, got error %+v", body.Error)
	}

	var data struct {
		Username string `json:"username"`
		Name     string `json:"name"`
		Role     string `json:"role"`
	}
	if err := json.Unmarshal(body.Data, &data); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if data.Username != "alice" || data.Role != "user" {
		t.Errorf("unexpected login payload: %+v", data)
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, "POST", "/login", "", map[string]string{
		"username": "alice",
		"password": "nope",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", resp.StatusCode)
	}
	if body.Error == nil || body.Error.Code != "invalid_credentials" {
		t.Errorf("expected invalid_credentials, got %+v", body.Error)
	}
}

func TestSessionRequired(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/flags", "/leaderboard"} {
		resp, body := env.do(t, "GET", path, "", nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", path, resp.StatusCode)
		}
		if body.Error == nil || body.Error.Code != "auth_required" {
			t.Errorf("%s: expected auth_required, got %+v", path, body.Error)
		}
	}

	// Garbage token is rejected the same way
	resp, _ := env.do(t, "GET", "/flags", "bogus-token", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for stale token, got %d", resp.StatusCode)
	}
}

func TestListChallenges(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "alice", "alicepass")

	resp, body := env.do(t, "GET", "/flags", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var data struct {
		Name       string `json:"name"`
		Score      int    `json:"score"`
		Challenges []struct {
			ID          int    `json:"id"`
			Title       string `json:"title"`
			Points      int    `json:"points"`
			Solved      bool   `json:"solved"`
			HintOffered bool   `json:"hint_offered"`
		} `json:"challenges"`
	}
	if err := json.Unmarshal(body.Data, &data); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}

	if data.Name != "Alice" || data.Score != 0 {
		t.Errorf("unexpected header fields: %+v", data)
	}
	if len(data.Challenges) != 2 {
		t.Fatalf("expected 2 challenges, got %d", len(data.Challenges))
	}
	if data.Challenges[0].ID != 1 || !data.Challenges[0].HintOffered {
		t.Errorf("unexpected first challenge: %+v", data.Challenges[0])
	}
	if data.Challenges[1].HintOffered {
		t.Error("challenge 2 has no hint configured")
	}

	// Flags never appear in the participant payload
	if bytes.Contains(body.Data, []byte("MBC{")) {
		t.Error("challenge listing leaked a flag")
	}
}

func TestSubmitFlagFlow(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "alice", "alicepass")

	// Wrong flag first
	resp, body := env.do(t, "POST", "/flags/1/submit", token, map[string]string{"flag": "MBC{nope}"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var result struct {
		Status string `json:"status"`
		Score  int    `json:"score"`
		Points int    `json:"points"`
	}
	if err := json.Unmarshal(body.Data, &result); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if result.Status != "incorrect" || result.Score != 0 {
		t.Errorf("unexpected result: %+v", result)
	}

	// Correct flag awards points
	_, body = env.do(t, "POST", "/flags/1/submit", token, map[string]string{"flag": "MBC{one}"})
	if err := json.Unmarshal(body.Data, &result); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if result.Status != "correct" || result.Points != 10 || result.Score != 10 {
		t.Errorf("unexpected result: %+v", result)
	}

	// Resubmission is idempotent
	_, body = env.do(t, "POST", "/flags/1/submit", token, map[string]string{"flag": "MBC{one}"})
	if err := json.Unmarshal(body.Data, &result); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if result.Status != "already_solved" || result.Score != 10 {
		t.Errorf("unexpected result: %+v", result)
	}

	// Unknown challenge
	resp, body = env.do(t, "POST", "/flags/99/submit", token, map[string]string{"flag": "x"})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
	if body.Error == nil || body.Error.Code != "not_found" {
		t.Errorf("expected not_found, got %+v", body.Error)
	}
}

func TestHintFlow(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "alice", "alicepass")

	// Broke users cannot afford the hint
	_, body := env.do(t, "POST", "/api/get_hint/1", token, nil)
	var result struct {
		Status   string `json:"status"`
		Hint     string `json:"hint"`
		NewScore int    `json:"new_score"`
	}
	if err := json.Unmarshal(body.Data, &result); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if result.Status != "insufficient_score" || result.Hint != "" {
		t.Errorf("unexpected result: %+v", result)
	}

	// Earn points, then buy
	env.do(t, "POST", "/flags/2/submit", token, map[string]string{"flag": "MBC{two}"})

	_, body = env.do(t, "POST", "/api/get_hint/1", token, nil)
	if err := json.Unmarshal(body.Data, &result); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if result.Status != "purchased" || result.Hint != "read the page" || result.NewScore != 45 {
		t.Errorf("unexpected result: %+v", result)
	}

	// No hint configured on challenge 2
	resp, body := env.do(t, "POST", "/api/get_hint/2", token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
	if body.Error == nil || body.Error.Code != "not_found" {
		t.Errorf("expected not_found, got %+v", body.Error)
	}
}

func TestUpdateTime(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "alice", "alicepass")

	_, body := env.do(t, "POST", "/api/update_time", token, map[string]interface{}{
		"question_number": 1,
		"time_spent":      30.5,
	})
	var result struct {
		Status       string  `json:"status"`
		TotalSeconds float64 `json:"total_seconds"`
	}
	if err := json.Unmarshal(body.Data, &result); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if result.Status != "ok" || result.TotalSeconds != 30.5 {
		t.Errorf("unexpected result: %+v", result)
	}

	// Non-numeric and non-positive payloads are rejected
	for _, payload := range []map[string]interface{}{
		{"question_number": 1, "time_spent": "abc"},
		{"question_number": 1, "time_spent": -5},
		{"question_number": 1, "time_spent": 0},
	} {
		resp, _ := env.do(t, "POST", "/api/update_time", token, payload)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("payload %v: expected 400, got %d", payload, resp.StatusCode)
		}
	}
}

func TestLeaderboard(t *testing.T) {
	env := newTestEnv(t)
	alice := env.login(t, "alice", "alicepass")
	admin := env.login(t, "admin", "adminpass")

	env.do(t, "POST", "/flags/2/submit", alice, map[string]string{"flag": "MBC{two}"})

	_, body := env.do(t, "GET", "/leaderboard", admin, nil)
	var data struct {
		Standings []struct {
			Rank     int    `json:"rank"`
			Username string `json:"username"`
			Score    int    `json:"score"`
		} `json:"standings"`
		Rank  int `json:"rank"`
		Total int `json:"total"`
	}
	if err := json.Unmarshal(body.Data, &data); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}

	if data.Total != 2 {
		t.Fatalf("expected 2 standings, got %d", data.Total)
	}
	if data.Standings[0].Username != "alice" || data.Standings[0].Score != 50 {
		t.Errorf("unexpected first standing: %+v", data.Standings[0])
	}
	if data.Rank != 2 {
		t.Errorf("expected admin at rank 2, got %d", data.Rank)
	}
}

func TestAdminGuard(t *testing.T) {
	env := newTestEnv(t)
	alice := env.login(t, "alice", "alicepass")

	for _, path := range []string{"/admin/stats", "/admin/users/"} {
		resp, body := env.do(t, "GET", path, alice, nil)
		if resp.StatusCode != http.StatusForbidden {
			t.Errorf("%s: expected 403, got %d", path, resp.StatusCode)
		}
		if body.Error == nil || body.Error.Code != "forbidden" {
			t.Errorf("%s: expected forbidden, got %+v", path, body.Error)
		}
	}
}

func TestAdminUserCRUD(t *testing.T) {
	env := newTestEnv(t)
	admin := env.login(t, "admin", "adminpass")

	// Create
	resp, _ := env.do(t, "POST", "/admin/users/", admin, map[string]string{
		"username": "bob",
		"name":     "Bob",
		"password": "bobpass",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	// Duplicate username conflicts
	resp, _ = env.do(t, "POST", "/admin/users/", admin, map[string]string{
		"username": "bob",
		"name":     "Bob Again",
		"password": "x",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409, got %d", resp.StatusCode)
	}

	// The new account can log in
	env.login(t, "bob", "bobpass")

	// Update the password
	resp, _ = env.do(t, "PUT", "/admin/users/bob", admin, map[string]string{"password": "newpass"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	env.login(t, "bob", "newpass")

	// Delete
	resp, _ = env.do(t, "DELETE", "/admin/users/bob", admin, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	resp, _ = env.do(t, "DELETE", "/admin/users/bob", admin, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for missing user, got %d", resp.StatusCode)
	}
}

func TestAdminChallengeCRUD(t *testing.T) {
	env := newTestEnv(t)
	admin := env.login(t, "admin", "adminpass")

	resp, body := env.do(t, "POST", "/admin/challenges/", admin, map[string]interface{}{
		"id":     3,
		"title":  "New One",
		"points": 75,
		"flag":   "MBC{new}",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	// Admin listing includes the flag
	_, body = env.do(t, "GET", "/admin/challenges/", admin, nil)
	if !bytes.Contains(body.Data, []byte("MBC{new}")) {
		t.Error("admin listing should include flags")
	}

	// Validation rejects nonsense
	resp, _ = env.do(t, "POST", "/admin/challenges/", admin, map[string]interface{}{
		"id":     4,
		"title":  "Bad",
		"points": 0,
		"flag":   "f",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for zero points, got %d", resp.StatusCode)
	}

	resp, _ = env.do(t, "PUT", "/admin/challenges/3", admin, map[string]interface{}{
		"title":  "Renamed",
		"points": 80,
		"flag":   "MBC{new}",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	resp, _ = env.do(t, "DELETE", "/admin/challenges/3", admin, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestAdminReset(t *testing.T) {
	env := newTestEnv(t)
	alice := env.login(t, "alice", "alicepass")
	admin := env.login(t, "admin", "adminpass")

	env.do(t, "POST", "/flags/1/submit", alice, map[string]string{"flag": "MBC{one}"})

	resp, _ := env.do(t, "POST", "/admin/reset", admin, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	// Every session is invalidated, including the admin's own
	resp, _ = env.do(t, "GET", "/flags", alice, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected alice's session gone, got %d", resp.StatusCode)
	}
	resp, _ = env.do(t, "GET", "/admin/stats", admin, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected admin's session gone, got %d", resp.StatusCode)
	}

	// Progress is back at zero
	p, err := env.repo.GetProgress(context.Background(), "alice")
	if err != nil {
		t.Fatalf("GetProgress failed: %v", err)
	}
	if p.Score != 0 || len(p.Answers) != 0 {
		t.Errorf("expected progress cleared, got %+v", p)
	}
}

// failingSessionSweep simulates a session backend whose bulk delete fails
type failingSessionSweep struct {
	auth.SessionStore
}

func (f *failingSessionSweep) DeleteAll(ctx context.Context) error {
	return errors.New("session backend unavailable")
}

func TestAdminResetSessionSweepFailure(t *testing.T) {
	env := newTestEnvWithSessions(t, &failingSessionSweep{auth.NewMemoryStore(time.Minute)})
	alice := env.login(t, "alice", "alicepass")
	admin := env.login(t, "admin", "adminpass")

	env.do(t, "POST", "/flags/1/submit", alice, map[string]string{"flag": "MBC{one}"})

	resp, body := env.do(t, "POST", "/admin/reset", admin, nil)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected 500 when session sweep fails, got %d", resp.StatusCode)
	}
	if body.Error == nil || body.Error.Code != "internal_error" {
		t.Errorf("expected internal_error, got %+v", body.Error)
	}

	// Progress was wiped before the sweep failed; that must be reported,
	// not hidden behind a success message
	p, err := env.repo.GetProgress(context.Background(), "alice")
	if err != nil {
		t.Fatalf("GetProgress failed: %v", err)
	}
	if p.Score != 0 {
		t.Errorf("expected progress cleared, got score %d", p.Score)
	}

	// Sessions survived, so the existing logins still work
	if resp, _ := env.do(t, "GET", "/flags", alice, nil); resp.StatusCode != http.StatusOK {
		t.Errorf("expected alice's session intact, got %d", resp.StatusCode)
	}
}

func TestAdminStatsAndResponses(t *testing.T) {
	env := newTestEnv(t)
	alice := env.login(t, "alice", "alicepass")
	admin := env.login(t, "admin", "adminpass")

	env.do(t, "POST", "/flags/1/submit", alice, map[string]string{"flag": "MBC{one}"})

	_, body := env.do(t, "GET", "/admin/stats", admin, nil)
	var stats struct {
		Stats []struct {
			ChallengeID int `json:"challenge_id"`
			Solves      int `json:"solves"`
		} `json:"stats"`
	}
	if err := json.Unmarshal(body.Data, &stats); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if len(stats.Stats) != 2 || stats.Stats[0].Solves != 1 {
		t.Errorf("unexpected stats: %+v", stats.Stats)
	}

	_, body = env.do(t, "GET", "/admin/responses/alice", admin, nil)
	var log struct {
		Entries []struct {
			ChallengeID int    `json:"challenge_id"`
			Value       string `json:"value"`
		} `json:"entries"`
	}
	if err := json.Unmarshal(body.Data, &log); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if len(log.Entries) != 1 || log.Entries[0].Value != "MBC{one}" {
		t.Errorf("unexpected log: %+v", log.Entries)
	}

	resp, _ := env.do(t, "GET", "/admin/responses/ghost", admin, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for unknown user, got %d", resp.StatusCode)
	}
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "alice", "alicepass")

	resp, _ := env.do(t, "POST", "/logout", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	resp, _ = env.do(t, "GET", "/flags", token, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 after logout, got %d", resp.StatusCode)
	}
}
