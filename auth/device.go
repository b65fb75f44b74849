package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/jugelauncher/launcher/protocol"
)

const defaultPollInterval = 5 * time.Second

// State of the device-code client. Valid transitions are
// idle → starting → polling → idle; Cancel is valid from starting or
// polling and returns to idle.
type State int32

const (
	StateIdle State = iota
	StateStarting
	StatePolling
)

// Endpoints of the identity provider.
type Endpoints struct {
	DeviceAuthorization string `yaml:"device_authorization"`
	Token               string `yaml:"token"`
	Profile             string `yaml:"profile"`
}

// Session is one device-code authorization attempt. It lives only for the
// duration of the polling loop and is never persisted; DeviceCode is the
// polling secret, UserCode is what the user types into the browser.
type Session struct {
	DeviceCode      string
	UserCode        string
	VerificationURI string
	ExpiresIn       int
	Interval        time.Duration

	issued time.Time
}

// Deadline is the hard ceiling on the whole polling loop, expires_in
// seconds after issuance.
func (s *Session) Deadline() time.Time {
	return s.issued.Add(time.Duration(s.ExpiresIn) * time.Second)
}

// Client runs the device-authorization grant against one provider.
type Client struct {
	HTTP      *protocol.Client
	ClientID  string
	Scope     string
	Endpoints Endpoints
	Log       *logrus.Logger

	mu      sync.Mutex
	state   State
	cancel  context.CancelFunc
	attempt uint64
}

func (c *Client) logger() *logrus.Logger {
	if c.Log == nil {
		c.Log = logrus.StandardLogger()
	}
	return c.Log
}

// State returns the client's current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Cancel abandons the current attempt, from starting or polling, and
// returns the client to idle. The in-flight poll request is abandoned
// cooperatively; it is not an error.
func (c *Client) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateStarting || c.state == StatePolling {
		if c.cancel != nil {
			c.cancel()
			c.cancel = nil
		}
		c.state = StateIdle
	}
}

// enter advances the state machine and returns the attempt the caller now
// owns. A transition out of idle begins a new attempt; the handover from
// starting to polling releases the starting stage's context.
func (c *Client) enter(from, to State, cancel context.CancelFunc) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != from {
		return 0, fmt.Errorf("%w: login already in progress", ErrProtocol)
	}
	if c.cancel != nil {
		c.cancel()
	}
	if from == StateIdle {
		c.attempt++
	}
	c.state = to
	c.cancel = cancel
	return c.attempt, nil
}

// reset returns the client to idle, unless a newer attempt owns it by now.
// A cancelled poll goroutine tears down after Cancel has already returned,
// and must not clobber an attempt started in the meantime.
func (c *Client) reset(attempt uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attempt != attempt {
		return
	}
	c.state = StateIdle
	c.cancel = nil
}

// Start requests a device code from the provider. Failure here is terminal
// for this attempt; the caller decides whether to try again.
func (c *Client) Start(ctx context.Context) (*Session, error) {
	ctx, cancel := context.WithCancel(ctx)
	attempt, err := c.enter(StateIdle, StateStarting, cancel)
	if err != nil {
		cancel()
		return nil, err
	}
	values := url.Values{}
	values.Set("client_id", c.ClientID)
	values.Set("scope", c.Scope)
	resp := &protocol.DeviceCodeResponse{}
	if err := c.HTTP.PostForm(ctx, c.Endpoints.DeviceAuthorization, values, resp); err != nil {
		c.reset(attempt)
		cancel()
		return nil, fmt.Errorf("%w: device authorization request: %v", ErrProtocol, err)
	}
	interval := time.Duration(resp.Interval) * time.Second
	if interval <= 0 {
		interval = defaultPollInterval
	}
	c.logger().WithFields(logrus.Fields{
		"user_code":        resp.UserCode,
		"verification_uri": resp.VerificationURI,
	}).Info("device code issued")
	return &Session{
		DeviceCode:      resp.DeviceCode,
		UserCode:        resp.UserCode,
		VerificationURI: resp.VerificationURI,
		ExpiresIn:       resp.ExpiresIn,
		Interval:        interval,
		issued:          time.Now(),
	}, nil
}

// Poll drives the token endpoint until the user completes sign-in, the
// session expires, or the attempt fails. Every token-endpoint answer maps
// to exactly one of: continue, success, Expired, Denied, ProtocolError.
// At most one poll request is in flight at a time; ticks that fire while a
// request is outstanding are skipped, not queued.
func (c *Client) Poll(ctx context.Context, session *Session) (*Account, error) {
	ctx, cancel := context.WithDeadline(ctx, session.Deadline())
	defer cancel()
	attempt, err := c.enter(StateStarting, StatePolling, cancel)
	if err != nil {
		return nil, err
	}
	defer c.reset(attempt)

	interval := session.Interval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, ErrExpired
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
		token, providerErr, err := c.exchange(ctx, session.DeviceCode)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					return nil, ErrExpired
				}
				return nil, ctx.Err()
			}
			// Transport failure. The next tick retries; the session
			// deadline bounds how long that can go on.
			c.logger().Warnf("token poll failed, retrying: %v", err)
		case providerErr != nil:
			switch providerErr.Code {
			case protocol.ErrorAuthorizationPending:
				// Not an error, the user simply has not finished yet.
			case protocol.ErrorSlowDown:
				interval += defaultPollInterval
				ticker.Reset(interval)
			case protocol.ErrorExpiredToken:
				return nil, ErrExpired
			case protocol.ErrorAccessDenied:
				return nil, ErrDenied
			default:
				return nil, fmt.Errorf("%w: %v", ErrProtocol, providerErr.Code)
			}
		default:
			return c.buildAccount(ctx, token)
		}
	}
}

// exchange issues one token request. It returns a token on success, a
// decoded provider error for 4xx answers with a recognizable payload, or a
// plain error for anything else.
func (c *Client) exchange(ctx context.Context, deviceCode string) (*protocol.TokenResponse, *protocol.TokenError, error) {
	values := url.Values{}
	values.Set("grant_type", protocol.DeviceCodeGrantType)
	values.Set("client_id", c.ClientID)
	values.Set("device_code", deviceCode)
	token := &protocol.TokenResponse{}
	err := c.HTTP.PostForm(ctx, c.Endpoints.Token, values, token)
	if err == nil {
		return token, nil, nil
	}
	var statusErr *protocol.StatusError
	if errors.As(err, &statusErr) {
		providerErr := &protocol.TokenError{}
		if jsonErr := json.Unmarshal(statusErr.Body, providerErr); jsonErr == nil && providerErr.Code != "" {
			return nil, providerErr, nil
		}
		return nil, nil, fmt.Errorf("%w: %v", ErrProtocol, statusErr)
	}
	return nil, nil, err
}

func (c *Client) buildAccount(ctx context.Context, token *protocol.TokenResponse) (*Account, error) {
	profile, err := c.fetchProfile(ctx, token.AccessToken)
	if err != nil {
		return nil, err
	}
	return &Account{
		Name: profile.Name,
		UUID: profile.ID,
		Type: AccountProvider,
		Token: &oauth2.Token{
			AccessToken:  token.AccessToken,
			TokenType:    token.TokenType,
			RefreshToken: token.RefreshToken,
			Expiry:       time.Now().Add(time.Duration(token.ExpiresIn) * time.Second),
		},
	}, nil
}

func (c *Client) fetchProfile(ctx context.Context, accessToken string) (*protocol.UserProfile, error) {
	profileClient := &protocol.Client{
		Client:     c.HTTP.HTTPClient(),
		AuthHeader: "Bearer " + accessToken,
		Trace:      c.HTTP.Trace,
		Log:        c.HTTP.Log,
	}
	profile := &protocol.UserProfile{}
	if err := profileClient.GetJSON(ctx, c.Endpoints.Profile, profile); err != nil {
		return nil, fmt.Errorf("%w: profile fetch: %v", ErrProtocol, err)
	}
	if profile.Name == "" || profile.ID == "" {
		return nil, fmt.Errorf("%w: profile response missing name or id", ErrProtocol)
	}
	return profile, nil
}

// Refresh exchanges the account's refresh token for a fresh token bundle
// and returns the renewed account. The input account is not modified.
func (c *Client) Refresh(ctx context.Context, account *Account) (*Account, error) {
	if account.Type != AccountProvider || account.Token == nil || account.Token.RefreshToken == "" {
		return nil, fmt.Errorf("%w: account has no refresh token", ErrProtocol)
	}
	values := url.Values{}
	values.Set("grant_type", "refresh_token")
	values.Set("client_id", c.ClientID)
	values.Set("refresh_token", account.Token.RefreshToken)
	if c.Scope != "" {
		values.Set("scope", c.Scope)
	}
	token := &protocol.TokenResponse{}
	if err := c.HTTP.PostForm(ctx, c.Endpoints.Token, values, token); err != nil {
		return nil, fmt.Errorf("%w: token refresh: %v", ErrProtocol, err)
	}
	refreshToken := token.RefreshToken
	if refreshToken == "" {
		refreshToken = account.Token.RefreshToken
	}
	renewed := *account
	renewed.Token = &oauth2.Token{
		AccessToken:  token.AccessToken,
		TokenType:    token.TokenType,
		RefreshToken: refreshToken,
		Expiry:       time.Now().Add(time.Duration(token.ExpiresIn) * time.Second),
	}
	return &renewed, nil
}

// VerificationMessage renders the instruction shown to the user while the
// launcher polls in the background.
func (s *Session) VerificationMessage() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Open %v and enter the code %v", s.VerificationURI, s.UserCode)
	return b.String()
}
