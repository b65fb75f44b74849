// Package auth signs a user in against the identity provider using the
// OAuth 2.0 device-authorization grant, or mints offline accounts that
// never touch the network.
package auth

import (
	"errors"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

var (
	// ErrExpired: the device-code session ran out before the user finished
	// signing in.
	ErrExpired = errors.New("authorization expired")
	// ErrDenied: the user rejected the sign-in.
	ErrDenied = errors.New("authorization denied")
	// ErrProtocol: the provider answered something outside the device-flow
	// contract. Every unmapped provider error lands here, never in a
	// silent retry.
	ErrProtocol = errors.New("authorization protocol error")
)

type AccountType string

const (
	AccountOffline  AccountType = "offline"
	AccountProvider AccountType = "provider"
)

// Account is the terminal artifact of authentication. The auth client
// retains no reference after returning one.
type Account struct {
	Name  string        `json:"name"`
	UUID  string        `json:"uuid"`
	Type  AccountType   `json:"type"`
	Token *oauth2.Token `json:"token,omitempty"`
}

// AccessToken returns the token the launch template substitutes, or "0" for
// offline accounts, matching what the game expects in offline mode.
func (a *Account) AccessToken() string {
	if a.Token == nil || a.Token.AccessToken == "" {
		return "0"
	}
	return a.Token.AccessToken
}

// Offline builds a provider-less account. The uuid is derived from the
// player name the same way the game derives offline-mode ids, so repeated
// offline logins for one name agree.
func Offline(name string) *Account {
	return &Account{
		Name: name,
		UUID: uuid.NewMD5(uuid.Nil, []byte("OfflinePlayer:"+name)).String(),
		Type: AccountOffline,
	}
}
