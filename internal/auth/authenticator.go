package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/waabox/hubcli/internal/browser"
	"github.com/waabox/hubcli/internal/config"
)

// UserInfo is the identity of the authenticated user, fetched once after
// login and cached for display.
type UserInfo struct {
	Login     string `json:"login"`
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

// LoginOptions customizes a Login call. The zero value requests the
// configured default scopes with no SSO organization and no account label.
type LoginOptions struct {
	Scopes string // comma-separated; empty means the configured defaults
	SSOOrg string // organization to configure SSO for after login
	Name   string // optional human label for the stored account
}

// Authenticator drives the full device flow login: request a device code,
// show instructions, poll for the token, persist it, optionally configure
// organization SSO, and fetch the user identity. Its dependencies are
// injected at construction so each can be replaced in tests.
type Authenticator struct {
	cfg    config.AuthConfig
	flow   *DeviceFlow
	store  *TokenStore
	sso    *SSOCoordinator
	client *http.Client
	logger *zap.Logger

	// out receives user-facing instructions (user code, verification URL).
	// Defaults to stderr so stdout stays clean for piping.
	out     io.Writer
	openURL func(string) error

	mu       sync.Mutex
	userInfo *UserInfo
}

// NewAuthenticator creates an Authenticator. A nil logger disables logging.
func NewAuthenticator(cfg config.AuthConfig, store *TokenStore, sso *SSOCoordinator, logger *zap.Logger) *Authenticator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Authenticator{
		cfg:     cfg,
		flow:    NewDeviceFlow(cfg, logger),
		store:   store,
		sso:     sso,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
		out:     os.Stderr,
		openURL: browser.Open,
	}
}

// SetOutput redirects user-facing instructions, which default to stderr.
func (a *Authenticator) SetOutput(w io.Writer) {
	a.out = w
}

// Token returns the bearer secret in effect, or empty when none is. An
// externally supplied credential (GITHUB_TOKEN) wins over the store; the
// store is consulted on every call so expiry and deletions take effect
// without restarting. Every outbound API call goes through this accessor.
func (a *Authenticator) Token() string {
	if a.cfg.Token != "" {
		return a.cfg.Token
	}
	if token, ok := a.store.ActiveToken(); ok {
		return token
	}
	return ""
}

// IsAuthenticated reports whether an active, unexpired credential exists.
func (a *Authenticator) IsAuthenticated() bool {
	return a.Token() != ""
}

// UserInfo returns the cached identity from the last successful
// FetchUserInfo, or nil.
func (a *Authenticator) UserInfo() *UserInfo {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.userInfo
}

// Login runs the interactive device flow to completion. It is idempotent:
// when a valid active credential already exists it returns immediately
// rather than overwriting a live session. Cancelling ctx stops polling
// promptly and persists nothing.
//
// SSO configuration and identity fetch failures are logged warnings, not
// login failures — by that point the credential is already stored and
// valid.
func (a *Authenticator) Login(ctx context.Context, opts LoginOptions) error {
	if a.IsAuthenticated() {
		a.logger.Info("already authenticated, skipping login")
		fmt.Fprintln(a.out, "Already authenticated.")
		return nil
	}

	code, err := a.flow.RequestCode(ctx, opts.Scopes)
	if err != nil {
		return fmt.Errorf("requesting device code: %w", err)
	}

	a.showInstructions(code)

	pollCtx := ctx
	if code.ExpiresIn > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, time.Duration(code.ExpiresIn)*time.Second)
		defer cancel()
	}
	// The server may omit the interval; never poll with zero delay.
	interval := code.Interval
	if interval <= 0 {
		interval = a.cfg.PollInterval
	}
	resp, err := a.flow.PollToken(pollCtx, code.DeviceCode, interval)
	if err != nil {
		return err
	}

	id, err := a.store.Save(resp, opts.Name)
	if err != nil {
		return fmt.Errorf("storing credential: %w", err)
	}
	a.logger.Info("authenticated", zap.String("token_id", id))

	if opts.SSOOrg != "" {
		if ssoErr := a.sso.Configure(ctx, resp.AccessToken, opts.SSOOrg); ssoErr != nil {
			a.logger.Warn("SSO configuration incomplete",
				zap.String("org", opts.SSOOrg), zap.Error(ssoErr))
			fmt.Fprintf(a.out, "Warning: %v\n", ssoErr)
		}
	}

	if info, infoErr := a.FetchUserInfo(ctx); infoErr != nil {
		a.logger.Warn("could not fetch user identity", zap.Error(infoErr))
	} else {
		fmt.Fprintf(a.out, "Logged in as %s\n", info.Login)
	}
	return nil
}

func (a *Authenticator) showInstructions(code DeviceCodeResponse) {
	fmt.Fprintf(a.out, "First, copy your one-time code: %s\n", code.UserCode)
	fmt.Fprintf(a.out, "Then authorize this device at:  %s\n", code.VerificationURI)
	if err := a.openURL(code.VerificationURI); err != nil {
		// The URL is already printed; losing auto-open costs nothing.
		a.logger.Debug("could not open browser", zap.Error(err))
	} else {
		fmt.Fprintln(a.out, "We've opened the verification page in your browser.")
	}
	fmt.Fprintln(a.out, "Waiting for authorization...")
}

// Logout deletes the active credential and clears cached identity. It
// returns false when there is no active credential to remove. A bearer
// supplied via GITHUB_TOKEN is not managed by the store and cannot be
// logged out, only unset in the environment.
func (a *Authenticator) Logout() bool {
	id := a.store.ActiveID()
	if id == "" {
		if a.cfg.Token != "" {
			a.logger.Warn("credential comes from GITHUB_TOKEN, unset it to log out")
		}
		return false
	}

	if !a.store.Delete(id) {
		a.logger.Warn("active credential was already gone", zap.String("token_id", id))
	}

	a.mu.Lock()
	a.userInfo = nil
	a.mu.Unlock()
	return true
}

// FetchUserInfo fetches the identity of the authenticated user and caches
// it. A 401 reports ErrNotAuthenticated: the credential is evidently no
// longer honored server-side even if it is still stored.
func (a *Authenticator) FetchUserInfo(ctx context.Context) (*UserInfo, error) {
	token := a.Token()
	if token == "" {
		return nil, ErrNotAuthenticated
	}

	url := a.cfg.APIBaseURL + "/user"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching user identity: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var info UserInfo
		if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
			return nil, fmt.Errorf("decoding user identity: %w", err)
		}
		a.mu.Lock()
		a.userInfo = &info
		a.mu.Unlock()
		return &info, nil
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrNotAuthenticated
	default:
		return nil, fmt.Errorf("user identity request failed: %s", resp.Status)
	}
}
