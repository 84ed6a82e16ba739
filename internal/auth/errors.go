package auth

import "errors"

// Sentinel errors for the distinguishable outcomes of the device flow and
// token store. Callers check them with errors.Is; all other failures are
// wrapped transport or protocol errors.
var (
	// ErrDeviceCodeRequest is returned when the initial device code request
	// fails, either at the transport level or with a non-success response.
	ErrDeviceCodeRequest = errors.New("device code request failed")

	// ErrAccessDenied is returned when the user declines the authorization
	// request in the browser.
	ErrAccessDenied = errors.New("authorization denied by user")

	// ErrCodeExpired is returned when the device code expires before the
	// user completes authorization. The flow must be restarted from scratch.
	ErrCodeExpired = errors.New("device code expired")

	// ErrPollTimeout is returned when the polling budget is exhausted
	// without reaching a terminal state.
	ErrPollTimeout = errors.New("authorization timed out")

	// ErrNoAccessToken is returned when a token response does not contain
	// an access token.
	ErrNoAccessToken = errors.New("no access token in response")

	// ErrNotAuthenticated is returned by operations that require an active
	// credential when none is stored or the stored one has expired.
	ErrNotAuthenticated = errors.New("not authenticated")
)
