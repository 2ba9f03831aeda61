package gshell

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	admin "google.golang.org/api/admin/directory/v1"
	reports "google.golang.org/api/admin/reports/v1"
	drive "google.golang.org/api/drive/v3"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/wesnick/gshell/pkg/gshell/oauth2store"
)

const (
	// Me addresses the authenticated (or impersonated) user in Gmail calls.
	Me = "me"

	tokenInfoURL = "https://oauth2.googleapis.com/tokeninfo"
)

var (
	// Version is the app version as reported in RPCs.
	Version = "unspecified"

	shouldLogRPC bool
)

// SetLogRPC toggles logging of every RPC.
func SetLogRPC(v bool) {
	shouldLogRPC = v
}

// Options controls how New builds a Connection.
type Options struct {
	ConfigDir string
	// User is the acting user. Empty means the default user of the default domain.
	User    string
	Verbose bool
}

// Connection pairs the Google API services with the acting user and helpers
// shared by all commands.
type Connection struct {
	m          sync.RWMutex
	user       string
	customer   string
	clients    map[string]*http.Client
	gmail      *gmail.Service
	drive      *drive.Service
	directory  *admin.Service
	reports    *reports.Service
	limiter    *RateLimiter
	store      *oauth2store.Consumer
	paths      *ConfigPaths
	labelCache map[string]*gmail.Label
}

func userAgent() string {
	return "gshell " + Version
}

// NewFake creates a connection where every API uses client, used for testing.
func NewFake(client *http.Client) (*Connection, error) {
	conn := &Connection{
		user:     Me,
		customer: MyCustomer,
		clients: map[string]*http.Client{
			APIGmail:     client,
			APIDrive:     client,
			APIDirectory: client,
			APIReports:   client,
		},
		limiter: NewRateLimiter(RateLimit{RequestsPerSecond: 1000, Burst: 1000}),
	}
	return conn, conn.setupClients(context.Background())
}

// OpenStore opens the token store configured for paths.
func OpenStore(paths *ConfigPaths) (*oauth2store.Consumer, Settings, error) {
	settings, err := ReadSettings(paths.Settings)
	if err != nil {
		return nil, Settings{}, err
	}
	ds, err := oauth2store.NewDataStore(paths.Dir, settings.StoreFormat)
	if err != nil {
		return nil, Settings{}, err
	}
	store, err := oauth2store.Open(ds)
	if err != nil {
		return nil, Settings{}, errors.Wrap(err, "opening token store")
	}
	return store, settings, nil
}

// New creates an authenticated Connection from the token store.
func New(ctx context.Context, opts Options) (*Connection, error) {
	paths, err := GetConfigPaths(opts.ConfigDir)
	if err != nil {
		return nil, err
	}

	if opts.Verbose {
		log.Infof("Config paths resolved:")
		log.Infof("  Directory: %s", paths.Dir)
		log.Infof("  Settings: %s", paths.Settings)
	}

	store, settings, err := OpenStore(paths)
	if err != nil {
		return nil, err
	}
	if opts.Verbose {
		log.Infof("Token store: %s (%s)", store.Path(), settings.StoreFormat)
	}

	user, err := store.ResolveUser(opts.User)
	if err != nil {
		return nil, errors.Wrap(err, "resolving user (pass --user or run 'gshell auth login')")
	}
	domain := oauth2store.DomainOf(user)

	secrets, err := store.ClientSecrets(domain)
	if err != nil {
		return nil, errors.Wrap(err, "run 'gshell configure --credentials <file>' first")
	}

	conn := &Connection{
		user:     user,
		customer: settings.Customer,
		clients:  make(map[string]*http.Client),
		limiter:  NewRateLimiter(settings.RateLimit),
		store:    store,
		paths:    paths,
	}

	if opts.Verbose {
		if secrets.IsServiceAccount() {
			log.Infof("Authentication type: Service Account (impersonating %s)", user)
		} else {
			log.Infof("Authentication type: OAuth2 (%s)", user)
		}
	}

	for _, api := range settings.APIs {
		scopes, err := Scopes(api)
		if err != nil {
			return nil, err
		}
		if secrets.IsServiceAccount() {
			cfg, err := secrets.JWTConfig(user, scopes...)
			if err != nil {
				return nil, err
			}
			conn.clients[api] = cfg.Client(ctx)
			continue
		}
		if !store.TokenExists(user, api) {
			log.Debugf("No %s token for %s, skipping", api, user)
			continue
		}
		cfg, err := secrets.Config(scopes...)
		if err != nil {
			return nil, err
		}
		ts, err := store.TokenSource(ctx, cfg, user, api)
		if err != nil {
			return nil, err
		}
		conn.clients[api] = oauth2.NewClient(ctx, ts)
	}

	if err := conn.setupClients(ctx); err != nil {
		return nil, err
	}
	if opts.Verbose {
		log.Infof("Connection ready for %s (%d APIs)", user, len(conn.clients))
	}
	return conn, nil
}

func (c *Connection) setupClients(ctx context.Context) error {
	if hc, ok := c.clients[APIGmail]; ok {
		var err error
		c.gmail, err = gmail.NewService(ctx, option.WithHTTPClient(hc))
		if err != nil {
			return errors.Wrap(err, "creating Gmail client")
		}
		c.gmail.UserAgent = userAgent()
	}
	if hc, ok := c.clients[APIDrive]; ok {
		var err error
		c.drive, err = drive.NewService(ctx, option.WithHTTPClient(hc))
		if err != nil {
			return errors.Wrap(err, "creating Drive client")
		}
		c.drive.UserAgent = userAgent()
	}
	if hc, ok := c.clients[APIDirectory]; ok {
		var err error
		c.directory, err = admin.NewService(ctx, option.WithHTTPClient(hc))
		if err != nil {
			return errors.Wrap(err, "creating Directory client")
		}
		c.directory.UserAgent = userAgent()
	}
	if hc, ok := c.clients[APIReports]; ok {
		var err error
		c.reports, err = reports.NewService(ctx, option.WithHTTPClient(hc))
		if err != nil {
			return errors.Wrap(err, "creating Reports client")
		}
		c.reports.UserAgent = userAgent()
	}
	return nil
}

func wrapLogRPC(fn string, cb func() error, af string, args ...interface{}) error {
	st := time.Now()
	err := cb()
	logRPC(st, err, fmt.Sprintf("%s(%s)", fn, af), args...)
	return err
}

func logRPC(st time.Time, err error, s string, args ...interface{}) {
	if shouldLogRPC {
		log.Infof("RPC> %s => %v %v", fmt.Sprintf(s, args...), err, time.Since(st))
	}
}

// LogRPC runs cb and logs it as an RPC named fn when RPC logging is enabled.
func LogRPC(fn string, cb func() error) error {
	return wrapLogRPC(fn, cb, "")
}

// User returns the acting user's email ("me" for fake connections).
func (c *Connection) User() string {
	return c.user
}

// Domain returns the acting user's domain.
func (c *Connection) Domain() string {
	return oauth2store.DomainOf(c.user)
}

// Customer returns the customer ID used for directory and reports calls.
func (c *Connection) Customer() string {
	return c.customer
}

// GmailService returns the Gmail API service, or nil when not authorized.
func (c *Connection) GmailService() *gmail.Service {
	return c.gmail
}

// DriveService returns the Drive API service, or nil when not authorized.
func (c *Connection) DriveService() *drive.Service {
	return c.drive
}

// DirectoryService returns the Admin SDK Directory service, or nil when not authorized.
func (c *Connection) DirectoryService() *admin.Service {
	return c.directory
}

// ReportsService returns the Admin SDK Reports service, or nil when not authorized.
func (c *Connection) ReportsService() *reports.Service {
	return c.reports
}

// Wait blocks until the rate limiter admits another request.
func (c *Connection) Wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// Backoff pauses all rate limited requests, typically after a 429.
func (c *Connection) Backoff(d time.Duration) {
	if c.limiter != nil {
		c.limiter.Backoff(d)
	}
}

// GetProfile returns the Gmail profile for the current user.
func (c *Connection) GetProfile(ctx context.Context) (*gmail.Profile, error) {
	if c.gmail == nil {
		return nil, errors.New("gmail service not initialized")
	}
	var ret *gmail.Profile
	err := wrapLogRPC("gmail.Users.GetProfile", func() (err error) {
		ret, err = c.gmail.Users.GetProfile(Me).Context(ctx).Do()
		return
	}, "email=%q", Me)
	return ret, err
}

// LoadLabels fetches all Gmail labels into the label cache.
func (c *Connection) LoadLabels(ctx context.Context) error {
	if c.gmail == nil {
		return errors.New("gmail service not initialized")
	}
	c.m.RLock()
	loaded := c.labelCache != nil
	c.m.RUnlock()
	if loaded {
		return nil
	}

	st := time.Now()
	var resp *gmail.ListLabelsResponse
	err := wrapLogRPC("gmail.Users.Labels.List", func() (err error) {
		resp, err = c.gmail.Users.Labels.List(Me).Context(ctx).Do()
		return
	}, "email=%q", Me)
	if err != nil {
		return errors.Wrap(err, "listing labels")
	}

	c.m.Lock()
	defer c.m.Unlock()
	c.labelCache = make(map[string]*gmail.Label, len(resp.Labels))
	for _, l := range resp.Labels {
		c.labelCache[l.Id] = l
	}
	log.Debugf("Loaded %d labels in %v", len(c.labelCache), time.Since(st))
	return nil
}

// Labels returns the cached labels, system labels first, then by name.
func (c *Connection) Labels(ctx context.Context) ([]*gmail.Label, error) {
	if err := c.LoadLabels(ctx); err != nil {
		return nil, err
	}
	c.m.RLock()
	defer c.m.RUnlock()
	ret := make([]*gmail.Label, 0, len(c.labelCache))
	for _, l := range c.labelCache {
		ret = append(ret, l)
	}
	sort.Slice(ret, func(i, j int) bool {
		if ret[i].Type != ret[j].Type {
			return ret[i].Type == "system"
		}
		return ret[i].Name < ret[j].Name
	})
	return ret, nil
}

// ResolveLabel maps a label name (case-insensitive) or ID to its ID.
func (c *Connection) ResolveLabel(ctx context.Context, nameOrID string) (string, error) {
	labels, err := c.Labels(ctx)
	if err != nil {
		return "", err
	}
	for _, l := range labels {
		if l.Id == nameOrID || strings.EqualFold(l.Name, nameOrID) {
			return l.Id, nil
		}
	}
	return "", errors.Errorf("label not found: %s", nameOrID)
}

// ForgetLabels drops the label cache after labels were created or deleted.
func (c *Connection) ForgetLabels() {
	c.m.Lock()
	defer c.m.Unlock()
	c.labelCache = nil
}

// TokenInfo contains information about the OAuth token.
type TokenInfo struct {
	Email         string   `json:"email"`
	EmailVerified bool     `json:"email_verified"`
	ExpiresIn     int64    `json:"expires_in"`
	Scope         string   `json:"scope"`
	Scopes        []string `json:"scopes"`
	UserID        string   `json:"user_id"`
	Audience      string   `json:"aud"`
	IssuedTo      string   `json:"issued_to"`
	AppName       string   `json:"app_name"`
}

// UnmarshalJSON allows TokenInfo to accept either numeric or quoted numeric expires_in values.
func (t *TokenInfo) UnmarshalJSON(data []byte) error {
	type tokenInfoAlias TokenInfo
	var aux struct {
		tokenInfoAlias
		ExpiresIn json.RawMessage `json:"expires_in"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	expiresIn, err := parseFlexibleInt64(aux.ExpiresIn)
	if err != nil {
		return errors.Wrap(err, "parsing expires_in")
	}

	*t = TokenInfo(aux.tokenInfoAlias)
	t.ExpiresIn = expiresIn
	return nil
}

func parseFlexibleInt64(data json.RawMessage) (int64, error) {
	if len(data) == 0 {
		return 0, nil
	}

	var numeric int64
	if err := json.Unmarshal(data, &numeric); err == nil {
		return numeric, nil
	}

	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		if str == "" {
			return 0, nil
		}
		return strconv.ParseInt(str, 10, 64)
	}

	return 0, errors.Errorf("expires_in must be number or quoted number, got %s", string(data))
}

// GetTokenInfo asks the tokeninfo endpoint about the token used for api.
func (c *Connection) GetTokenInfo(ctx context.Context, api string) (*TokenInfo, error) {
	client, ok := c.clients[api]
	if !ok || client == nil {
		return nil, errors.Errorf("not authorized for %s", api)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", tokenInfoURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "creating tokeninfo request")
	}

	var resp *http.Response
	err = wrapLogRPC("oauth2.tokeninfo", func() (err error) {
		resp, err = client.Do(req)
		return
	}, "api=%q", api)
	if err != nil {
		return nil, errors.Wrap(err, "fetching token info")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, errors.Errorf("tokeninfo request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var tokenInfo TokenInfo
	if err := json.NewDecoder(resp.Body).Decode(&tokenInfo); err != nil {
		return nil, errors.Wrap(err, "decoding token info response")
	}

	if tokenInfo.Scope != "" {
		tokenInfo.Scopes = strings.Split(tokenInfo.Scope, " ")
	}
	return &tokenInfo, nil
}

// Store returns the token store backing the connection, nil for fakes.
func (c *Connection) Store() *oauth2store.Consumer {
	return c.store
}
