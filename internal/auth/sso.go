package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/waabox/hubcli/internal/browser"
)

// ssoHeader is the response header carrying an organization SSO
// authorization challenge.
const ssoHeader = "X-GitHub-SSO"

// maxPendingSSO bounds the pending-challenge map. Entries are normally
// removed by a successful Verify, but a user who never completes the
// browser step would otherwise grow the map for the life of the process,
// so the oldest entry is evicted once the cap is reached.
const maxPendingSSO = 32

// PendingAuthorization tracks one token waiting for organization SSO approval.
type PendingAuthorization struct {
	AuthorizationURL string
	RequestedAt      time.Time
}

// SSOCoordinator detects and resolves organization single-sign-on
// challenges layered on top of an otherwise valid token.
type SSOCoordinator struct {
	apiBaseURL string
	client     *http.Client
	logger     *zap.Logger
	openURL    func(string) error

	mu      sync.Mutex
	pending map[string]PendingAuthorization
}

// NewSSOCoordinator creates an SSOCoordinator issuing verification requests
// against the given API base URL. A nil logger disables logging.
func NewSSOCoordinator(apiBaseURL string, logger *zap.Logger) *SSOCoordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SSOCoordinator{
		apiBaseURL: strings.TrimSuffix(apiBaseURL, "/"),
		client:     &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
		openURL:    browser.Open,
		pending:    make(map[string]PendingAuthorization),
	}
}

// HandleChallenge inspects response headers for an SSO challenge. When one
// is present it opens the embedded authorization URL in the browser and
// records the token as pending approval; otherwise it is a no-op.
func (c *SSOCoordinator) HandleChallenge(headers http.Header, token string) {
	authURL := parseSSOChallenge(headers.Get(ssoHeader))
	if authURL == "" {
		return
	}

	c.logger.Info("organization requires SSO authorization",
		zap.String("token", Mask(token)), zap.String("url", authURL))
	if err := c.openURL(authURL); err != nil {
		c.logger.Warn("could not open browser for SSO authorization", zap.Error(err))
	}
	c.addPending(token, authURL)
}

// Verify checks whether SSO authorization for the organization has been
// granted to the token, by reading the organization resource. It returns
// true only on HTTP 200 without a fresh SSO challenge; every other outcome
// is "not yet", since callers poll this interactively.
func (c *SSOCoordinator) Verify(ctx context.Context, token, org string) bool {
	url := fmt.Sprintf("%s/orgs/%s", c.apiBaseURL, org)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.Header.Get(ssoHeader) != "" {
		// Still waiting for the user to authorize in the browser.
		c.HandleChallenge(resp.Header, token)
		return false
	}
	if resp.StatusCode != http.StatusOK {
		return false
	}

	c.mu.Lock()
	delete(c.pending, token)
	c.mu.Unlock()
	return true
}

// Configure makes the token usable with an SSO-enforcing organization.
// When authorization is already granted it returns nil immediately;
// otherwise it records the token as pending and reports the outstanding
// browser step as an error so the caller can surface a warning.
func (c *SSOCoordinator) Configure(ctx context.Context, token, org string) error {
	if c.Verify(ctx, token, org) {
		c.logger.Info("SSO authorization confirmed", zap.String("org", org))
		return nil
	}
	if _, ok := c.Pending(token); !ok {
		// The verify response carried no challenge URL; fall back to the
		// organization's SSO page.
		c.addPending(token, fmt.Sprintf("https://github.com/orgs/%s/sso", org))
		if p, ok := c.Pending(token); ok {
			if err := c.openURL(p.AuthorizationURL); err != nil {
				c.logger.Warn("could not open browser for SSO authorization", zap.Error(err))
			}
		}
	}
	return fmt.Errorf("SSO authorization for organization %s is pending browser approval", org)
}

// Pending returns the pending challenge for the token, if any.
func (c *SSOCoordinator) Pending(token string) (PendingAuthorization, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[token]
	return p, ok
}

func (c *SSOCoordinator) addPending(token, authURL string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.pending[token]; !exists && len(c.pending) >= maxPendingSSO {
		var oldestToken string
		var oldestAt time.Time
		for t, p := range c.pending {
			if oldestToken == "" || p.RequestedAt.Before(oldestAt) {
				oldestToken = t
				oldestAt = p.RequestedAt
			}
		}
		delete(c.pending, oldestToken)
	}
	c.pending[token] = PendingAuthorization{
		AuthorizationURL: authURL,
		RequestedAt:      time.Now(),
	}
}

// parseSSOChallenge extracts the authorization URL from an SSO challenge
// header value of the form "required; url=https://…". Returns empty when
// the value carries no URL.
func parseSSOChallenge(value string) string {
	_, after, found := strings.Cut(value, "url=")
	if !found {
		return ""
	}
	url, _, _ := strings.Cut(after, ";")
	return strings.TrimSpace(url)
}
