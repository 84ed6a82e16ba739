package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/waabox/hubcli/internal/config"
)

// maxPollInterval caps the interval growth from slow_down responses.
const maxPollInterval = 10

// errMalformedResponse marks a token endpoint response that could not be
// decoded. Unlike a transport error it is terminal: the server is answering,
// just not with the protocol we speak.
var errMalformedResponse = errors.New("malformed token response")

// DeviceFlow implements the client side of the OAuth 2.0 Device
// Authorization Grant (RFC 8628) against a code forge.
type DeviceFlow struct {
	cfg    config.AuthConfig
	client *http.Client
	logger *zap.Logger
}

// NewDeviceFlow creates a DeviceFlow. The endpoint URLs come from cfg, so
// tests can point both endpoints at an httptest server. A nil logger
// disables logging.
func NewDeviceFlow(cfg config.AuthConfig, logger *zap.Logger) *DeviceFlow {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeviceFlow{
		cfg:    cfg,
		client: &http.Client{Timeout: 15 * time.Second},
		logger: logger,
	}
}

// RequestCode requests a device code and user code from the forge.
// The returned DeviceCodeResponse.UserCode must be shown to the user along
// with VerificationURI. ctx cancels the request.
// Pass empty scopes to request the configured default scope set.
func (f *DeviceFlow) RequestCode(ctx context.Context, scopes string) (DeviceCodeResponse, error) {
	if scopes == "" {
		scopes = f.cfg.Scopes
	}
	body, err := json.Marshal(map[string]string{
		"client_id": f.cfg.ClientID,
		"scope":     scopes,
	})
	if err != nil {
		return DeviceCodeResponse{}, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.cfg.DeviceCodeURL, bytes.NewReader(body))
	if err != nil {
		return DeviceCodeResponse{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return DeviceCodeResponse{}, fmt.Errorf("%w: %v", ErrDeviceCodeRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return DeviceCodeResponse{}, fmt.Errorf("%w: HTTP %d", ErrDeviceCodeRequest, resp.StatusCode)
	}

	var raw struct {
		DeviceCode      string `json:"device_code"`
		UserCode        string `json:"user_code"`
		VerificationURI string `json:"verification_uri"`
		ExpiresIn       int    `json:"expires_in"`
		Interval        int    `json:"interval"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return DeviceCodeResponse{}, fmt.Errorf("%w: decoding response: %v", ErrDeviceCodeRequest, err)
	}
	f.logger.Debug("device code issued",
		zap.String("verification_uri", raw.VerificationURI),
		zap.Int("expires_in", raw.ExpiresIn),
		zap.Int("interval", raw.Interval))
	return DeviceCodeResponse{
		DeviceCode:      raw.DeviceCode,
		UserCode:        raw.UserCode,
		VerificationURI: raw.VerificationURI,
		ExpiresIn:       raw.ExpiresIn,
		Interval:        raw.Interval,
	}, nil
}

// PollToken polls the token endpoint until authorization completes, fails
// terminally, or the configured attempt budget runs out.
//
// interval is the server-suggested polling interval in seconds; pass 0 to
// skip the sleep delay (useful in tests). The loop sleeps before every
// attempt, including the first, so it never polls faster than the server
// asked. A slow_down response grows the interval by one second per
// occurrence, capped at maxPollInterval. Transient transport errors are
// retried within the same attempt budget.
//
// ctx cancels the loop between attempts and aborts the in-flight request.
func (f *DeviceFlow) PollToken(ctx context.Context, deviceCode string, interval int) (TokenResponse, error) {
	maxAttempts := f.cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := sleepInterval(ctx, interval); err != nil {
			return TokenResponse{}, err
		}

		raw, err := f.pollOnce(ctx, deviceCode)
		if err != nil {
			if ctx.Err() != nil {
				return TokenResponse{}, ctx.Err()
			}
			if errors.Is(err, errMalformedResponse) {
				return TokenResponse{}, err
			}
			// Transport blip; keep polling within the budget.
			f.logger.Warn("token poll attempt failed",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", maxAttempts),
				zap.Error(err))
			continue
		}

		switch raw.Error {
		case "":
			if raw.AccessToken == "" {
				return TokenResponse{}, ErrNoAccessToken
			}
			return TokenResponse{
				AccessToken: raw.AccessToken,
				TokenType:   raw.TokenType,
				Scope:       raw.Scope,
				ExpiresIn:   raw.ExpiresIn,
				CreatedAt:   time.Now().Unix(),
			}, nil
		case "authorization_pending":
			// User has not finished in the browser yet.
		case "slow_down":
			interval = bumpInterval(interval)
			f.logger.Debug("server requested slower polling", zap.Int("interval", interval))
		case "expired_token":
			return TokenResponse{}, ErrCodeExpired
		case "access_denied":
			return TokenResponse{}, ErrAccessDenied
		default:
			desc := raw.ErrorDescription
			if desc == "" {
				desc = raw.Error
			}
			if len(desc) > 100 {
				desc = desc[:100]
			}
			return TokenResponse{}, fmt.Errorf("unexpected error from server: %s", desc)
		}
	}

	return TokenResponse{}, ErrPollTimeout
}

// pollResult is the raw token endpoint response shape. A successful grant
// and a polling error arrive with the same HTTP status, distinguished by
// which fields are set.
type pollResult struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	Scope            string `json:"scope"`
	ExpiresIn        int    `json:"expires_in"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (f *DeviceFlow) pollOnce(ctx context.Context, deviceCode string) (pollResult, error) {
	body, err := json.Marshal(map[string]string{
		"client_id":   f.cfg.ClientID,
		"device_code": deviceCode,
		"grant_type":  "urn:ietf:params:oauth:grant-type:device_code",
	})
	if err != nil {
		return pollResult{}, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.cfg.TokenURL, bytes.NewReader(body))
	if err != nil {
		return pollResult{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return pollResult{}, fmt.Errorf("polling token: %w", err)
	}
	defer resp.Body.Close()

	var raw pollResult
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return pollResult{}, fmt.Errorf("%w: %v", errMalformedResponse, err)
	}
	return raw, nil
}

// bumpInterval grows the polling interval by one second in response to a
// slow_down, up to maxPollInterval.
func bumpInterval(interval int) int {
	if interval < maxPollInterval {
		return interval + 1
	}
	return maxPollInterval
}

// sleepInterval blocks for interval seconds or until ctx is cancelled.
// interval <= 0 only checks for cancellation.
func sleepInterval(ctx context.Context, interval int) error {
	if interval <= 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			return nil
		}
	}
	select {
	case <-time.After(time.Duration(interval) * time.Second):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
