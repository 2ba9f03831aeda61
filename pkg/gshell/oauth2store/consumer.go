package oauth2store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

var (
	// ErrDomainNotFound is returned when a domain has no entry in the store.
	ErrDomainNotFound = errors.New("domain not found")
	// ErrUserNotFound is returned when a user has no entry in the store.
	ErrUserNotFound = errors.New("user not found")
	// ErrTokenNotFound is returned when a user has no token for an API.
	ErrTokenNotFound = errors.New("token not found")
	// ErrNoDefaultUser is returned when no user was given and none is configured.
	ErrNoDefaultUser = errors.New("no user given and no default user configured")
	// ErrNoClientSecrets is returned when no client secrets are configured.
	ErrNoClientSecrets = errors.New("no client secrets configured")
)

// Consumer mediates all reads and writes of the token graph. Every mutation
// is saved through the DataStore before returning.
type Consumer struct {
	m     sync.Mutex
	store DataStore
	info  *Info
}

// Open loads the graph from store.
func Open(store DataStore) (*Consumer, error) {
	info, err := store.Load()
	if err != nil {
		return nil, err
	}
	return &Consumer{store: store, info: info}, nil
}

// Path returns the location of the backing store.
func (c *Consumer) Path() string {
	return c.store.Path()
}

func (c *Consumer) save() error {
	c.info.Version = CurrentVersion
	return errors.Wrap(c.store.Save(c.info), "saving token store")
}

// user looks up email. A missing domain yields an error matching both
// ErrUserNotFound and ErrDomainNotFound.
func (c *Consumer) user(email string) (*DomainUser, error) {
	email = normalizeEmail(email)
	domain := DomainOf(email)
	d, ok := c.info.Domains[domain]
	if !ok {
		return nil, fmt.Errorf("%q: %w (%w %q)", email, ErrUserNotFound, ErrDomainNotFound, domain)
	}
	u, ok := d.Users[email]
	if !ok {
		return nil, errors.Wrapf(ErrUserNotFound, "%q", email)
	}
	return u, nil
}

// SetToken stores tok for email and api, creating the domain and user as
// needed. The first domain stored becomes the default domain and the first
// user of a domain becomes its default user.
func (c *Consumer) SetToken(email, api string, scopes []string, tok *oauth2.Token) error {
	if tok == nil {
		return errors.New("nil token")
	}
	email = normalizeEmail(email)
	domain := DomainOf(email)
	if domain == "" {
		return errors.Errorf("invalid email %q", email)
	}
	if api == "" {
		return errors.New("api name is required")
	}

	c.m.Lock()
	defer c.m.Unlock()

	d, ok := c.info.Domains[domain]
	if !ok {
		d = &Domain{Name: domain, Users: make(map[string]*DomainUser)}
		c.info.Domains[domain] = d
	}
	u, ok := d.Users[email]
	if !ok {
		u = &DomainUser{Email: email, Tokens: make(map[string]*TokenInfo)}
		d.Users[email] = u
	}
	u.Tokens[api] = NewTokenInfo(api, scopes, tok)

	if d.DefaultUser == "" {
		d.DefaultUser = email
	}
	if c.info.DefaultDomain == "" {
		c.info.DefaultDomain = domain
	}
	return c.save()
}

// Token returns the stored token for email and api.
func (c *Consumer) Token(email, api string) (*TokenInfo, error) {
	c.m.Lock()
	defer c.m.Unlock()
	u, err := c.user(email)
	if err != nil {
		return nil, err
	}
	t, ok := u.Tokens[api]
	if !ok {
		return nil, errors.Wrapf(ErrTokenNotFound, "%s for %s", api, email)
	}
	cp := *t
	cp.Scopes = append([]string(nil), t.Scopes...)
	return &cp, nil
}

// TokenExists reports whether a token is stored for email and api.
func (c *Consumer) TokenExists(email, api string) bool {
	_, err := c.Token(email, api)
	return err == nil
}

// RemoveToken deletes the token for a single api. The user entry stays even
// when it no longer holds any tokens.
func (c *Consumer) RemoveToken(email, api string) error {
	c.m.Lock()
	defer c.m.Unlock()
	u, err := c.user(email)
	if err != nil {
		return err
	}
	if _, ok := u.Tokens[api]; !ok {
		return errors.Wrapf(ErrTokenNotFound, "%s for %s", api, email)
	}
	delete(u.Tokens, api)
	return c.save()
}

// RemoveUser deletes a user and all their tokens. When the user was the
// domain default, the first remaining user (sorted) becomes the default.
func (c *Consumer) RemoveUser(email string) error {
	email = normalizeEmail(email)
	c.m.Lock()
	defer c.m.Unlock()
	if _, err := c.user(email); err != nil {
		return err
	}
	d := c.info.Domains[DomainOf(email)]
	delete(d.Users, email)
	if d.DefaultUser == email {
		d.DefaultUser = firstKey(d.Users)
	}
	return c.save()
}

// RemoveDomain deletes a domain with its users. When it was the default
// domain, the first remaining domain (sorted) becomes the default.
func (c *Consumer) RemoveDomain(domain string) error {
	domain = normalizeEmail(domain)
	c.m.Lock()
	defer c.m.Unlock()
	if _, ok := c.info.Domains[domain]; !ok {
		return errors.Wrapf(ErrDomainNotFound, "%q", domain)
	}
	delete(c.info.Domains, domain)
	if c.info.DefaultDomain == domain {
		c.info.DefaultDomain = firstKey(c.info.Domains)
	}
	return c.save()
}

// SetDefaultDomain marks an existing domain as the default.
func (c *Consumer) SetDefaultDomain(domain string) error {
	domain = normalizeEmail(domain)
	c.m.Lock()
	defer c.m.Unlock()
	if _, ok := c.info.Domains[domain]; !ok {
		return errors.Wrapf(ErrDomainNotFound, "%q", domain)
	}
	c.info.DefaultDomain = domain
	return c.save()
}

// SetDefaultUser marks an existing user as the default for their domain.
func (c *Consumer) SetDefaultUser(email string) error {
	email = normalizeEmail(email)
	c.m.Lock()
	defer c.m.Unlock()
	if _, err := c.user(email); err != nil {
		return err
	}
	c.info.Domains[DomainOf(email)].DefaultUser = email
	return c.save()
}

// DefaultDomain returns the default domain, or "" when none is set.
func (c *Consumer) DefaultDomain() string {
	c.m.Lock()
	defer c.m.Unlock()
	return c.info.DefaultDomain
}

// DefaultUser returns the default user of domain.
func (c *Consumer) DefaultUser(domain string) (string, error) {
	c.m.Lock()
	defer c.m.Unlock()
	d, ok := c.info.Domains[normalizeEmail(domain)]
	if !ok {
		return "", errors.Wrapf(ErrDomainNotFound, "%q", domain)
	}
	if d.DefaultUser == "" {
		return "", ErrNoDefaultUser
	}
	return d.DefaultUser, nil
}

// ResolveUser returns email when set, otherwise the default user of the
// default domain.
func (c *Consumer) ResolveUser(email string) (string, error) {
	if email != "" {
		return normalizeEmail(email), nil
	}
	domain := c.DefaultDomain()
	if domain == "" {
		return "", ErrNoDefaultUser
	}
	return c.DefaultUser(domain)
}

// Domains lists stored domains in sorted order.
func (c *Consumer) Domains() []string {
	c.m.Lock()
	defer c.m.Unlock()
	return sortedKeys(c.info.Domains)
}

// Users lists the users stored for domain in sorted order.
func (c *Consumer) Users(domain string) ([]string, error) {
	c.m.Lock()
	defer c.m.Unlock()
	d, ok := c.info.Domains[normalizeEmail(domain)]
	if !ok {
		return nil, errors.Wrapf(ErrDomainNotFound, "%q", domain)
	}
	return sortedKeys(d.Users), nil
}

// APIs lists the APIs email holds tokens for in sorted order.
func (c *Consumer) APIs(email string) ([]string, error) {
	c.m.Lock()
	defer c.m.Unlock()
	u, err := c.user(email)
	if err != nil {
		return nil, err
	}
	return sortedKeys(u.Tokens), nil
}

// SetClientSecrets stores secrets for domain, or globally when domain is empty.
// A domain entry is created when it does not exist yet.
func (c *Consumer) SetClientSecrets(domain string, secrets *ClientSecrets) error {
	if secrets == nil {
		return errors.New("nil client secrets")
	}
	domain = normalizeEmail(domain)
	c.m.Lock()
	defer c.m.Unlock()
	if domain == "" {
		c.info.ClientSecrets = secrets
		return c.save()
	}
	d, ok := c.info.Domains[domain]
	if !ok {
		d = &Domain{Name: domain, Users: make(map[string]*DomainUser)}
		c.info.Domains[domain] = d
		if c.info.DefaultDomain == "" {
			c.info.DefaultDomain = domain
		}
	}
	d.ClientSecrets = secrets
	return c.save()
}

// ClientSecrets returns the secrets for domain, falling back to the global ones.
func (c *Consumer) ClientSecrets(domain string) (*ClientSecrets, error) {
	c.m.Lock()
	defer c.m.Unlock()
	if d, ok := c.info.Domains[normalizeEmail(domain)]; ok && d.ClientSecrets != nil {
		return d.ClientSecrets, nil
	}
	if c.info.ClientSecrets != nil {
		return c.info.ClientSecrets, nil
	}
	return nil, ErrNoClientSecrets
}

// TokenSource returns a token source for email and api that writes refreshed
// tokens back to the store.
func (c *Consumer) TokenSource(ctx context.Context, cfg *oauth2.Config, email, api string) (oauth2.TokenSource, error) {
	ti, err := c.Token(email, api)
	if err != nil {
		return nil, err
	}
	tok := ti.OAuth2Token()
	return &persistingTokenSource{
		base:   cfg.TokenSource(ctx, tok),
		c:      c,
		email:  email,
		api:    api,
		scopes: ti.Scopes,
		last:   tok.AccessToken,
	}, nil
}

type persistingTokenSource struct {
	m      sync.Mutex
	base   oauth2.TokenSource
	c      *Consumer
	email  string
	api    string
	scopes []string
	last   string
}

func (p *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := p.base.Token()
	if err != nil {
		return nil, err
	}
	p.m.Lock()
	defer p.m.Unlock()
	if tok.AccessToken != p.last {
		if err := p.c.SetToken(p.email, p.api, p.scopes, tok); err != nil {
			// The fresh token is still usable for this run.
			log.Warnf("Persisting refreshed %s token for %s: %v", p.api, p.email, err)
		} else {
			log.Debugf("Persisted refreshed %s token for %s", p.api, p.email)
		}
		p.last = tok.AccessToken
	}
	return tok, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func firstKey[V any](m map[string]V) string {
	keys := sortedKeys(m)
	if len(keys) == 0 {
		return ""
	}
	return keys[0]
}
