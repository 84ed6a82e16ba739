package auth_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/waabox/hubcli/internal/auth"
	"github.com/waabox/hubcli/internal/config"
)

// flowConfig returns an AuthConfig with both OAuth endpoints pointed at the
// given test server.
func flowConfig(serverURL string, maxAttempts int) config.AuthConfig {
	cfg := config.Defaults().Auth
	cfg.DeviceCodeURL = serverURL + "/login/device/code"
	cfg.TokenURL = serverURL + "/login/oauth/access_token"
	cfg.MaxAttempts = maxAttempts
	return cfg
}

func TestDeviceFlow_RequestCode_ReturnsUserCode(t *testing.T) {
	var gotBody map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/login/device/code" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decoding request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"device_code":      "dev_abc",
			"user_code":        "ABCD-1234",
			"verification_uri": "https://github.com/login/device",
			"expires_in":       900,
			"interval":         5,
		})
	}))
	defer server.Close()

	flow := auth.NewDeviceFlow(flowConfig(server.URL, 60), nil)
	code, err := flow.RequestCode(context.Background(), "repo,gist")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if code.UserCode != "ABCD-1234" {
		t.Errorf("user code: want 'ABCD-1234', got '%s'", code.UserCode)
	}
	if code.DeviceCode != "dev_abc" {
		t.Errorf("device code: want 'dev_abc', got '%s'", code.DeviceCode)
	}
	if code.Interval != 5 {
		t.Errorf("interval: want 5, got %d", code.Interval)
	}
	if gotBody["scope"] != "repo,gist" {
		t.Errorf("scope: want 'repo,gist', got '%s'", gotBody["scope"])
	}
}

func TestDeviceFlow_RequestCode_DefaultsScopes(t *testing.T) {
	var gotScope string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		gotScope = body["scope"]
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"device_code": "d", "user_code": "u", "verification_uri": "v", "expires_in": 900, "interval": 5})
	}))
	defer server.Close()

	cfg := flowConfig(server.URL, 60)
	flow := auth.NewDeviceFlow(cfg, nil)
	if _, err := flow.RequestCode(context.Background(), ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotScope != cfg.Scopes {
		t.Errorf("scope: want configured default '%s', got '%s'", cfg.Scopes, gotScope)
	}
}

func TestDeviceFlow_RequestCode_ErrorOnNonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	flow := auth.NewDeviceFlow(flowConfig(server.URL, 60), nil)
	_, err := flow.RequestCode(context.Background(), "")
	if !errors.Is(err, auth.ErrDeviceCodeRequest) {
		t.Fatalf("expected ErrDeviceCodeRequest, got %v", err)
	}
}

func TestDeviceFlow_PollToken_ReturnsTokenOnThirdAttempt(t *testing.T) {
	callCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		w.Header().Set("Content-Type", "application/json")
		if callCount < 3 {
			json.NewEncoder(w).Encode(map[string]string{"error": "authorization_pending"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{
			"access_token": "gho_real_token",
			"token_type":   "bearer",
			"scope":        "repo",
		})
	}))
	defer server.Close()

	flow := auth.NewDeviceFlow(flowConfig(server.URL, 60), nil)
	// interval=0 disables the sleep delay in tests
	resp, err := flow.PollToken(context.Background(), "dev_abc", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.AccessToken != "gho_real_token" {
		t.Errorf("token: want 'gho_real_token', got '%s'", resp.AccessToken)
	}
	if resp.Scope != "repo" {
		t.Errorf("scope: want 'repo', got '%s'", resp.Scope)
	}
	if resp.CreatedAt == 0 {
		t.Error("expected CreatedAt to be stamped")
	}
	if callCount != 3 {
		t.Errorf("expected exactly 3 poll requests, got %d", callCount)
	}
}

func TestDeviceFlow_PollToken_AccessDeniedStopsAfterOneRequest(t *testing.T) {
	callCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"error": "access_denied"})
	}))
	defer server.Close()

	flow := auth.NewDeviceFlow(flowConfig(server.URL, 60), nil)
	_, err := flow.PollToken(context.Background(), "dev_abc", 0)
	if !errors.Is(err, auth.ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("expected exactly 1 poll request, got %d", callCount)
	}
}

func TestDeviceFlow_PollToken_ExpiredTokenStopsAfterOneRequest(t *testing.T) {
	callCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"error": "expired_token"})
	}))
	defer server.Close()

	flow := auth.NewDeviceFlow(flowConfig(server.URL, 60), nil)
	_, err := flow.PollToken(context.Background(), "dev_abc", 0)
	if !errors.Is(err, auth.ErrCodeExpired) {
		t.Fatalf("expected ErrCodeExpired, got %v", err)
	}
	if errors.Is(err, auth.ErrAccessDenied) {
		t.Error("expired and denied must be distinguishable")
	}
	if callCount != 1 {
		t.Errorf("expected exactly 1 poll request, got %d", callCount)
	}
}

func TestDeviceFlow_PollToken_SlowDownStillCompletes(t *testing.T) {
	callCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		w.Header().Set("Content-Type", "application/json")
		if callCount == 1 {
			json.NewEncoder(w).Encode(map[string]string{"error": "slow_down"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"access_token": "gho_after_slowdown"})
	}))
	defer server.Close()

	flow := auth.NewDeviceFlow(flowConfig(server.URL, 60), nil)
	// Starting at interval 0, the slow_down bumps it to 1s for the second
	// attempt, so this test sleeps about a second.
	resp, err := flow.PollToken(context.Background(), "dev_abc", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.AccessToken != "gho_after_slowdown" {
		t.Errorf("token: want 'gho_after_slowdown', got '%s'", resp.AccessToken)
	}
	if callCount != 2 {
		t.Errorf("expected 2 poll requests, got %d", callCount)
	}
}

func TestDeviceFlow_PollToken_TimesOutAfterAttemptBudget(t *testing.T) {
	callCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"error": "authorization_pending"})
	}))
	defer server.Close()

	flow := auth.NewDeviceFlow(flowConfig(server.URL, 4), nil)
	_, err := flow.PollToken(context.Background(), "dev_abc", 0)
	if !errors.Is(err, auth.ErrPollTimeout) {
		t.Fatalf("expected ErrPollTimeout, got %v", err)
	}
	if callCount != 4 {
		t.Errorf("expected 4 poll requests, got %d", callCount)
	}
}

func TestDeviceFlow_PollToken_RetriesTransientNetworkError(t *testing.T) {
	callCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		if callCount == 1 {
			// Kill the connection mid-response to simulate a network blip.
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Fatal("response writer does not support hijacking")
			}
			conn, _, err := hj.Hijack()
			if err != nil {
				t.Fatalf("hijacking connection: %v", err)
			}
			conn.Close()
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"access_token": "gho_after_blip"})
	}))
	defer server.Close()

	flow := auth.NewDeviceFlow(flowConfig(server.URL, 5), nil)
	resp, err := flow.PollToken(context.Background(), "dev_abc", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.AccessToken != "gho_after_blip" {
		t.Errorf("token: want 'gho_after_blip', got '%s'", resp.AccessToken)
	}
	if callCount != 2 {
		t.Errorf("expected 2 poll requests, got %d", callCount)
	}
}

func TestDeviceFlow_PollToken_MalformedResponseIsTerminal(t *testing.T) {
	callCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		w.Write([]byte("this is not json"))
	}))
	defer server.Close()

	flow := auth.NewDeviceFlow(flowConfig(server.URL, 10), nil)
	_, err := flow.PollToken(context.Background(), "dev_abc", 0)
	if err == nil {
		t.Fatal("expected error for malformed response, got nil")
	}
	if callCount != 1 {
		t.Errorf("expected exactly 1 poll request, got %d", callCount)
	}
}

func TestDeviceFlow_PollToken_UnknownErrorCodeIsTerminal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"error":             "incorrect_device_code",
			"error_description": "The device code is not valid.",
		})
	}))
	defer server.Close()

	flow := auth.NewDeviceFlow(flowConfig(server.URL, 10), nil)
	_, err := flow.PollToken(context.Background(), "dev_abc", 0)
	if err == nil {
		t.Fatal("expected error for unknown error code, got nil")
	}
}

func TestDeviceFlow_PollToken_CancelledContext(t *testing.T) {
	callCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"error": "authorization_pending"})
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately

	flow := auth.NewDeviceFlow(flowConfig(server.URL, 60), nil)
	_, err := flow.PollToken(ctx, "dev_abc", 0)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if callCount != 0 {
		t.Errorf("expected no poll requests after cancellation, got %d", callCount)
	}
}
