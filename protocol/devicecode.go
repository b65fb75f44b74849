package protocol

// Wire types of the OAuth 2.0 device-authorization grant (RFC 8628), as
// returned by the identity provider's device-authorization and token
// endpoints.

const (
	// Grant type sent on every token poll.
	DeviceCodeGrantType = "urn:ietf:params:oauth:grant-type:device_code"

	// Closed set of provider error codes the polling loop classifies.
	ErrorAuthorizationPending = "authorization_pending"
	ErrorSlowDown             = "slow_down"
	ErrorExpiredToken         = "expired_token"
	ErrorAccessDenied         = "access_denied"
)

type DeviceCodeResponse struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURI string `json:"verification_uri"`
	ExpiresIn       int    `json:"expires_in"`
	Interval        int    `json:"interval"`
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

type TokenError struct {
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

// UserProfile is the provider's answer to a profile lookup with a valid
// access token. It supplies the display name and stable id the launch
// template needs.
type UserProfile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
