package oauth2store

import (
	"encoding/json"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"
)

// ParseClientSecrets reads a credentials JSON file as downloaded from the
// Google API console: an "installed" or "web" OAuth client, or a service
// account key.
func ParseClientSecrets(b []byte) (*ClientSecrets, error) {
	var raw struct {
		Type      string           `json:"type"`
		ClientID  string           `json:"client_id"`
		TokenURI  string           `json:"token_uri"`
		Installed *clientSecretsV1 `json:"installed"`
		Web       *clientSecretsV1 `json:"web"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, errors.Wrap(err, "parsing credentials")
	}

	if raw.Type == "service_account" {
		return &ClientSecrets{
			Type:     raw.Type,
			ClientID: raw.ClientID,
			TokenURI: raw.TokenURI,
			Raw:      append([]byte(nil), b...),
		}, nil
	}

	v := raw.Installed
	typ := "installed"
	if v == nil {
		v = raw.Web
		typ = "web"
	}
	if v == nil {
		return nil, errors.New("credentials contain neither an installed, web nor service account client")
	}
	if v.ClientID == "" {
		return nil, errors.New("credentials are missing client_id")
	}
	return &ClientSecrets{
		Type:         typ,
		ClientID:     v.ClientID,
		ClientSecret: v.ClientSecret,
		AuthURI:      v.AuthURI,
		TokenURI:     v.TokenURI,
		RedirectURIs: v.RedirectURIs,
		Raw:          append([]byte(nil), b...),
	}, nil
}

type clientSecretsV1 struct {
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	RedirectURIs []string `json:"redirect_uris"`
	AuthURI      string   `json:"auth_uri"`
	TokenURI     string   `json:"token_uri"`
}

// Config returns the OAuth2 config for an installed or web client.
func (c *ClientSecrets) Config(scopes ...string) (*oauth2.Config, error) {
	if c == nil {
		return nil, ErrNoClientSecrets
	}
	if c.IsServiceAccount() {
		return nil, errors.New("service account credentials have no interactive OAuth2 config")
	}
	if len(c.Raw) > 0 {
		cfg, err := google.ConfigFromJSON(c.Raw, scopes...)
		if err != nil {
			return nil, errors.Wrap(err, "creating config from credentials")
		}
		return cfg, nil
	}
	endpoint := google.Endpoint
	if c.AuthURI != "" {
		endpoint.AuthURL = c.AuthURI
	}
	if c.TokenURI != "" {
		endpoint.TokenURL = c.TokenURI
	}
	cfg := &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Endpoint:     endpoint,
		Scopes:       scopes,
	}
	if len(c.RedirectURIs) > 0 {
		cfg.RedirectURL = c.RedirectURIs[0]
	}
	return cfg, nil
}

// JWTConfig returns a domain-wide delegation config impersonating subject.
func (c *ClientSecrets) JWTConfig(subject string, scopes ...string) (*jwt.Config, error) {
	if !c.IsServiceAccount() {
		return nil, errors.New("credentials are not a service account key")
	}
	if subject == "" {
		return nil, errors.New("service account authentication requires a user to impersonate")
	}
	cfg, err := google.JWTConfigFromJSON(c.Raw, scopes...)
	if err != nil {
		return nil, errors.Wrap(err, "parsing service account credentials")
	}
	cfg.Subject = subject
	return cfg, nil
}
