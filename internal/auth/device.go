package auth

// DeviceCodeResponse holds the initial response from a device authorization
// request. It contains the code to show the user and the parameters needed
// for polling. It is never persisted; the device code is only useful while
// the flow is in progress.
type DeviceCodeResponse struct {
	DeviceCode      string
	UserCode        string
	VerificationURI string
	ExpiresIn       int // seconds until the device code expires
	Interval        int // minimum polling interval in seconds
}

// TokenResponse holds the fields returned by the token endpoint after a
// successful authorization.
type TokenResponse struct {
	AccessToken string
	TokenType   string
	Scope       string // comma-separated granted scopes
	ExpiresIn   int    // seconds; 0 means the token does not expire
	CreatedAt   int64  // unix seconds, stamped by the client on receipt
}
