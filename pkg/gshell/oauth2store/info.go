// Package oauth2store persists OAuth2 client secrets and tokens keyed by
// domain, user and API.
package oauth2store

import (
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// CurrentVersion is written into every saved Info.
const CurrentVersion = 1

// Info is the root of the persisted object graph.
type Info struct {
	Version       int                `json:"version"`
	DefaultDomain string             `json:"defaultDomain,omitempty"`
	ClientSecrets *ClientSecrets     `json:"clientSecrets,omitempty"`
	Domains       map[string]*Domain `json:"domains"`
}

// Domain holds the users authenticated within one Workspace domain.
type Domain struct {
	Name          string                 `json:"name"`
	DefaultUser   string                 `json:"defaultUser,omitempty"`
	ClientSecrets *ClientSecrets         `json:"clientSecrets,omitempty"`
	Users         map[string]*DomainUser `json:"users"`
}

// DomainUser holds one token per API for a user.
type DomainUser struct {
	Email  string                `json:"email"`
	Tokens map[string]*TokenInfo `json:"tokens"`
}

// TokenInfo is a stored OAuth2 token together with the scopes it was granted for.
type TokenInfo struct {
	API          string    `json:"api"`
	Scopes       []string  `json:"scopes"`
	AccessToken  string    `json:"accessToken"`
	TokenType    string    `json:"tokenType,omitempty"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
	Updated      time.Time `json:"updated"`
}

// ClientSecrets identifies the OAuth client used to obtain tokens.
// Raw keeps the original credentials JSON; service accounts need it verbatim.
type ClientSecrets struct {
	Type         string   `json:"type,omitempty"`
	ClientID     string   `json:"clientId,omitempty"`
	ClientSecret string   `json:"clientSecret,omitempty"`
	AuthURI      string   `json:"authUri,omitempty"`
	TokenURI     string   `json:"tokenUri,omitempty"`
	RedirectURIs []string `json:"redirectUris,omitempty"`
	Raw          []byte   `json:"raw,omitempty"`
}

// IsServiceAccount reports whether the secrets describe a service account key.
func (c *ClientSecrets) IsServiceAccount() bool {
	return c != nil && c.Type == "service_account"
}

// NewInfo returns an empty graph.
func NewInfo() *Info {
	return &Info{
		Version: CurrentVersion,
		Domains: make(map[string]*Domain),
	}
}

// normalize fills nil maps so a freshly decoded graph can be mutated safely.
func (i *Info) normalize() {
	if i.Version == 0 {
		i.Version = CurrentVersion
	}
	if i.Domains == nil {
		i.Domains = make(map[string]*Domain)
	}
	for name, d := range i.Domains {
		if d.Name == "" {
			d.Name = name
		}
		if d.Users == nil {
			d.Users = make(map[string]*DomainUser)
		}
		for email, u := range d.Users {
			if u.Email == "" {
				u.Email = email
			}
			if u.Tokens == nil {
				u.Tokens = make(map[string]*TokenInfo)
			}
		}
	}
}

// NewTokenInfo converts an oauth2 token into its stored form.
func NewTokenInfo(api string, scopes []string, tok *oauth2.Token) *TokenInfo {
	return &TokenInfo{
		API:          api,
		Scopes:       append([]string(nil), scopes...),
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
		Updated:      time.Now().UTC(),
	}
}

// OAuth2Token converts back into an oauth2 token.
func (t *TokenInfo) OAuth2Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
		Expiry:       t.Expiry,
	}
}

// Expired reports whether the access token is past its expiry.
func (t *TokenInfo) Expired() bool {
	return !t.Expiry.IsZero() && t.Expiry.Before(time.Now())
}

// DomainOf returns the lower-cased domain part of an email address.
func DomainOf(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return ""
	}
	return strings.ToLower(email[at+1:])
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// MaskToken hides all but the first and last four characters of a secret.
func MaskToken(token string) string {
	if len(token) <= 8 {
		return strings.Repeat("*", len(token))
	}
	return token[:4] + strings.Repeat("*", len(token)-8) + token[len(token)-4:]
}
