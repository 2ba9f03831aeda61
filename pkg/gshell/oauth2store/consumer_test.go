package oauth2store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func testToken(access string) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  access,
		TokenType:    "Bearer",
		RefreshToken: "refresh-" + access,
		Expiry:       time.Now().Add(time.Hour).Truncate(time.Second),
	}
}

func openTestConsumer(t *testing.T, format string) (*Consumer, DataStore) {
	t.Helper()
	store, err := NewDataStore(t.TempDir(), format)
	require.NoError(t, err)
	c, err := Open(store)
	require.NoError(t, err)
	return c, store
}

func TestSetTokenCreatesDefaults(t *testing.T) {
	c, _ := openTestConsumer(t, FormatJSON)

	require.NoError(t, c.SetToken("Admin@Example.com", "gmail", []string{"scope.a"}, testToken("one")))
	require.NoError(t, c.SetToken("bob@example.com", "gmail", []string{"scope.a"}, testToken("two")))
	require.NoError(t, c.SetToken("carol@other.org", "drive", []string{"scope.b"}, testToken("three")))

	assert.Equal(t, "example.com", c.DefaultDomain())
	user, err := c.DefaultUser("example.com")
	require.NoError(t, err)
	assert.Equal(t, "admin@example.com", user)

	user, err = c.DefaultUser("other.org")
	require.NoError(t, err)
	assert.Equal(t, "carol@other.org", user)

	assert.Equal(t, []string{"example.com", "other.org"}, c.Domains())
	users, err := c.Users("example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"admin@example.com", "bob@example.com"}, users)
}

func TestTokenLookupIsCaseInsensitive(t *testing.T) {
	c, _ := openTestConsumer(t, FormatJSON)
	require.NoError(t, c.SetToken("admin@example.com", "drive", []string{"s"}, testToken("abc")))

	ti, err := c.Token("ADMIN@example.COM", "drive")
	require.NoError(t, err)
	assert.Equal(t, "abc", ti.AccessToken)
	assert.Equal(t, "drive", ti.API)
	assert.True(t, c.TokenExists("admin@example.com", "drive"))
	assert.False(t, c.TokenExists("admin@example.com", "gmail"))

	_, err = c.Token("admin@example.com", "gmail")
	assert.True(t, errors.Is(err, ErrTokenNotFound))
	_, err = c.Token("nobody@example.com", "gmail")
	assert.True(t, errors.Is(err, ErrUserNotFound))
	_, err = c.Token("nobody@nowhere.net", "gmail")
	assert.True(t, errors.Is(err, ErrDomainNotFound))
	assert.True(t, errors.Is(err, ErrUserNotFound))

	ti, err = c.Token("  Admin@Example.com ", "drive")
	require.NoError(t, err)
	assert.Equal(t, "abc", ti.AccessToken)
	assert.True(t, c.TokenExists(" admin@example.com ", "drive"))
}

func TestSetTokenReplacesExisting(t *testing.T) {
	c, _ := openTestConsumer(t, FormatJSON)
	require.NoError(t, c.SetToken("a@example.com", "gmail", []string{"s1"}, testToken("first")))
	require.NoError(t, c.SetToken("a@example.com", "gmail", []string{"s2"}, testToken("second")))

	ti, err := c.Token("a@example.com", "gmail")
	require.NoError(t, err)
	assert.Equal(t, "second", ti.AccessToken)
	assert.Equal(t, []string{"s2"}, ti.Scopes)

	apis, err := c.APIs("a@example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"gmail"}, apis)
}

func TestSetTokenRejectsBadInput(t *testing.T) {
	c, _ := openTestConsumer(t, FormatJSON)
	assert.Error(t, c.SetToken("not-an-email", "gmail", nil, testToken("x")))
	assert.Error(t, c.SetToken("a@example.com", "", nil, testToken("x")))
	assert.Error(t, c.SetToken("a@example.com", "gmail", nil, nil))
}

func TestRemoveUserPromotesNextDefault(t *testing.T) {
	c, _ := openTestConsumer(t, FormatJSON)
	require.NoError(t, c.SetToken("zed@example.com", "gmail", nil, testToken("1")))
	require.NoError(t, c.SetToken("amy@example.com", "gmail", nil, testToken("2")))
	require.NoError(t, c.SetToken("bob@example.com", "gmail", nil, testToken("3")))

	require.NoError(t, c.RemoveUser("zed@example.com"))
	user, err := c.DefaultUser("example.com")
	require.NoError(t, err)
	assert.Equal(t, "amy@example.com", user)

	require.NoError(t, c.RemoveUser("amy@example.com"))
	require.NoError(t, c.RemoveUser("bob@example.com"))
	_, err = c.DefaultUser("example.com")
	assert.True(t, errors.Is(err, ErrNoDefaultUser))

	assert.True(t, errors.Is(c.RemoveUser("bob@example.com"), ErrUserNotFound))
	assert.True(t, errors.Is(c.RemoveUser("bob@unknown.org"), ErrUserNotFound))
}

func TestRemoveDomainPromotesNextDefault(t *testing.T) {
	c, _ := openTestConsumer(t, FormatJSON)
	require.NoError(t, c.SetToken("a@b.com", "gmail", nil, testToken("1")))
	require.NoError(t, c.SetToken("a@a.com", "gmail", nil, testToken("2")))

	assert.Equal(t, "b.com", c.DefaultDomain())
	require.NoError(t, c.RemoveDomain("b.com"))
	assert.Equal(t, "a.com", c.DefaultDomain())
	require.NoError(t, c.RemoveDomain("a.com"))
	assert.Equal(t, "", c.DefaultDomain())

	assert.True(t, errors.Is(c.RemoveDomain("a.com"), ErrDomainNotFound))
}

func TestRemoveToken(t *testing.T) {
	c, _ := openTestConsumer(t, FormatJSON)
	require.NoError(t, c.SetToken("a@example.com", "gmail", nil, testToken("1")))
	require.NoError(t, c.SetToken("a@example.com", "drive", nil, testToken("2")))

	require.NoError(t, c.RemoveToken("a@example.com", "gmail"))
	apis, err := c.APIs("a@example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"drive"}, apis)
	assert.True(t, errors.Is(c.RemoveToken("a@example.com", "gmail"), ErrTokenNotFound))
}

func TestSetDefaults(t *testing.T) {
	c, _ := openTestConsumer(t, FormatJSON)
	require.NoError(t, c.SetToken("a@one.com", "gmail", nil, testToken("1")))
	require.NoError(t, c.SetToken("b@two.com", "gmail", nil, testToken("2")))
	require.NoError(t, c.SetToken("c@two.com", "gmail", nil, testToken("3")))

	require.NoError(t, c.SetDefaultDomain("two.com"))
	require.NoError(t, c.SetDefaultUser("c@two.com"))

	user, err := c.ResolveUser("")
	require.NoError(t, err)
	assert.Equal(t, "c@two.com", user)

	user, err = c.ResolveUser("A@One.com")
	require.NoError(t, err)
	assert.Equal(t, "a@one.com", user)

	assert.True(t, errors.Is(c.SetDefaultDomain("three.com"), ErrDomainNotFound))
	assert.True(t, errors.Is(c.SetDefaultUser("x@two.com"), ErrUserNotFound))
}

func TestResolveUserWithEmptyStore(t *testing.T) {
	c, _ := openTestConsumer(t, FormatJSON)
	_, err := c.ResolveUser("")
	assert.True(t, errors.Is(err, ErrNoDefaultUser))
}

func TestClientSecretsFallback(t *testing.T) {
	c, _ := openTestConsumer(t, FormatJSON)

	_, err := c.ClientSecrets("example.com")
	assert.True(t, errors.Is(err, ErrNoClientSecrets))

	require.NoError(t, c.SetClientSecrets("", &ClientSecrets{Type: "installed", ClientID: "global"}))
	require.NoError(t, c.SetClientSecrets("example.com", &ClientSecrets{Type: "installed", ClientID: "scoped"}))

	s, err := c.ClientSecrets("example.com")
	require.NoError(t, err)
	assert.Equal(t, "scoped", s.ClientID)

	s, err = c.ClientSecrets("other.com")
	require.NoError(t, err)
	assert.Equal(t, "global", s.ClientID)

	assert.Equal(t, "example.com", c.DefaultDomain())
}

func TestPersistenceAcrossFormats(t *testing.T) {
	for _, format := range []string{FormatJSON, FormatBinary} {
		t.Run(format, func(t *testing.T) {
			c, store := openTestConsumer(t, format)
			require.NoError(t, c.SetClientSecrets("", &ClientSecrets{Type: "installed", ClientID: "id", Raw: []byte(`{}`)}))
			require.NoError(t, c.SetToken("a@example.com", "gmail", []string{"s1", "s2"}, testToken("tok")))

			reopened, err := Open(store)
			require.NoError(t, err)

			ti, err := reopened.Token("a@example.com", "gmail")
			require.NoError(t, err)
			assert.Equal(t, "tok", ti.AccessToken)
			assert.Equal(t, "refresh-tok", ti.RefreshToken)
			assert.Equal(t, []string{"s1", "s2"}, ti.Scopes)
			assert.Equal(t, "example.com", reopened.DefaultDomain())

			secrets, err := reopened.ClientSecrets("example.com")
			require.NoError(t, err)
			assert.Equal(t, "id", secrets.ClientID)
		})
	}
}

func TestNewDataStoreRejectsUnknownFormat(t *testing.T) {
	_, err := NewDataStore(t.TempDir(), "xml")
	assert.Error(t, err)
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	store := NewJSONDataStore(filepath.Join(t.TempDir(), "missing", "tokens.json"))
	info, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, info.Domains)
	assert.Equal(t, CurrentVersion, info.Version)
}

type staticSource struct {
	tok *oauth2.Token
}

func (s staticSource) Token() (*oauth2.Token, error) { return s.tok, nil }

func TestPersistingTokenSourceWritesRefreshedToken(t *testing.T) {
	c, store := openTestConsumer(t, FormatJSON)
	require.NoError(t, c.SetToken("a@example.com", "drive", []string{"s"}, testToken("old")))

	ts := &persistingTokenSource{
		base:   staticSource{tok: testToken("new")},
		c:      c,
		email:  "a@example.com",
		api:    "drive",
		scopes: []string{"s"},
		last:   "old",
	}
	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "new", tok.AccessToken)

	reopened, err := Open(store)
	require.NoError(t, err)
	ti, err := reopened.Token("a@example.com", "drive")
	require.NoError(t, err)
	assert.Equal(t, "new", ti.AccessToken)
}

func TestTokenSourceRequiresStoredToken(t *testing.T) {
	c, _ := openTestConsumer(t, FormatJSON)
	_, err := c.TokenSource(context.Background(), &oauth2.Config{}, "a@example.com", "drive")
	assert.Error(t, err)
}

func TestMaskToken(t *testing.T) {
	assert.Equal(t, "****", MaskToken("abcd"))
	assert.Equal(t, "abcd****wxyz", MaskToken("abcd1234wxyz"))
}

func TestDomainOf(t *testing.T) {
	assert.Equal(t, "example.com", DomainOf("User@Example.COM"))
	assert.Equal(t, "", DomainOf("nobody"))
}
