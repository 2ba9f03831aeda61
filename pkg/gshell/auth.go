package gshell

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/wesnick/gshell/pkg/gshell/oauth2store"
)

const credentialsHelp = `
To set up authentication:

For OAuth (interactive users):
1. Go to https://console.developers.google.com
2. Create a new project (or select existing)
3. Enable the Gmail, Drive and Admin SDK APIs
4. Create OAuth 2.0 Client ID (Desktop app)
5. Download the credentials JSON file
6. Run 'gshell configure --credentials <file>'
7. Run 'gshell auth login --user <email>'

For Service Accounts (domain-wide delegation):
1. Create a Service Account with domain-wide delegation
2. Authorize its client ID for the scopes below in the Admin console
3. Run 'gshell configure --credentials <key.json> --domain <domain>'
4. Use --user to choose which user to impersonate
`

// ImportCredentials reads a credentials JSON file and stores it as the client
// secrets for domain (or globally when domain is empty).
func ImportCredentials(store *oauth2store.Consumer, path, domain string) (*oauth2store.ClientSecrets, error) {
	/* #nosec */
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "credentials not found at %s\n%s", path, credentialsHelp)
	}
	secrets, err := oauth2store.ParseClientSecrets(b)
	if err != nil {
		return nil, err
	}
	if err := store.SetClientSecrets(domain, secrets); err != nil {
		return nil, err
	}
	return secrets, nil
}

// CodePrompter shows authURL to the user and returns the pasted auth code.
type CodePrompter func(authURL string) (string, error)

// Login runs the OAuth consent flow for user covering apis and stores one
// token per API.
func Login(ctx context.Context, store *oauth2store.Consumer, user string, apis []string, port int, prompt CodePrompter) error {
	if user == "" {
		return errors.New("--user is required for login")
	}
	if len(apis) == 0 {
		apis = AllAPIs()
	}
	secrets, err := store.ClientSecrets(oauth2store.DomainOf(user))
	if err != nil {
		return errors.Wrap(err, "run 'gshell configure --credentials <file>' first")
	}
	if secrets.IsServiceAccount() {
		return errors.New("service account credentials do not need a login; use --user to impersonate")
	}

	scopes, err := ScopesFor(apis)
	if err != nil {
		return err
	}
	cfg, err := secrets.Config(scopes...)
	if err != nil {
		return err
	}
	if port == 0 {
		port = 8080
	}
	cfg.RedirectURL = fmt.Sprintf("http://localhost:%d", port)

	authURL := cfg.AuthCodeURL(generateOauthState(), oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("login_hint", user),
		oauth2.SetAuthURLParam("prompt", "consent"))
	code, err := prompt(authURL)
	if err != nil {
		return errors.Wrap(err, "reading auth code")
	}

	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return errors.Wrap(err, "unable to retrieve token from web")
	}
	return StoreLoginToken(store, user, apis, tok)
}

// StoreLoginToken saves tok under each of apis with that API's scopes.
func StoreLoginToken(store *oauth2store.Consumer, user string, apis []string, tok *oauth2.Token) error {
	for _, api := range apis {
		scopes, err := Scopes(api)
		if err != nil {
			return err
		}
		if err := store.SetToken(user, api, scopes, tok); err != nil {
			return err
		}
		log.Debugf("Stored %s token for %s", api, user)
	}
	return nil
}

func generateOauthState() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		// We can't really afford errors in secure random number generation.
		panic(err)
	}
	return base64.URLEncoding.EncodeToString(b)
}
