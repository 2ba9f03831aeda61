package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/wesnick/gshell/pkg/gshell"
	"github.com/wesnick/gshell/pkg/gshell/oauth2store"
)

// promptAuthCode shows the consent URL and reads the pasted code. The code is
// not echoed when stdin is a terminal.
func promptAuthCode(authURL string) (string, error) {
	fmt.Fprintf(os.Stderr, "\nGo to the following link in your browser:\n\n%s\n\n", authURL)
	fmt.Fprintf(os.Stderr, "After authorizing, paste the code here: ")

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// runAuthLogin runs the OAuth consent flow and stores the tokens
func runAuthLogin(ctx context.Context, store *oauth2store.Consumer, user string, apis []string, port int, prompt gshell.CodePrompter, out *outputWriter) error {
	if len(apis) == 0 {
		apis = gshell.AllAPIs()
	}
	out.writeVerbose("Requesting consent for %s as %s", strings.Join(apis, ", "), user)

	if err := gshell.Login(ctx, store, user, apis, port, prompt); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	if out.structured() {
		return out.writeData(map[string]interface{}{"user": strings.ToLower(user), "apis": apis})
	}
	out.writeMessage(fmt.Sprintf("Authorized %s for %s", strings.ToLower(user), strings.Join(apis, ", ")))
	return nil
}

// authEntryOutput is one stored token in auth list output
type authEntryOutput struct {
	Domain        string   `json:"domain"`
	DefaultDomain bool     `json:"defaultDomain"`
	User          string   `json:"user"`
	DefaultUser   bool     `json:"defaultUser"`
	API           string   `json:"api,omitempty"`
	Expiry        string   `json:"expiry,omitempty"`
	Expired       bool     `json:"expired"`
	Scopes        []string `json:"scopes,omitempty"`
}

// runAuthList lists every stored domain, user and API token
func runAuthList(store *oauth2store.Consumer, out *outputWriter) error {
	var entries []authEntryOutput
	defDomain := store.DefaultDomain()

	for _, domain := range store.Domains() {
		users, err := store.Users(domain)
		if err != nil {
			return err
		}
		defUser, _ := store.DefaultUser(domain)
		for _, user := range users {
			apis, err := store.APIs(user)
			if err != nil {
				return err
			}
			base := authEntryOutput{
				Domain:        domain,
				DefaultDomain: domain == defDomain,
				User:          user,
				DefaultUser:   user == defUser,
			}
			if len(apis) == 0 {
				entries = append(entries, base)
				continue
			}
			for _, api := range apis {
				ti, err := store.Token(user, api)
				if err != nil {
					return err
				}
				e := base
				e.API = api
				e.Scopes = ti.Scopes
				e.Expired = ti.Expired()
				if !ti.Expiry.IsZero() {
					e.Expiry = ti.Expiry.Format(time.RFC3339)
				}
				entries = append(entries, e)
			}
		}
	}

	if out.structured() {
		if entries == nil {
			entries = []authEntryOutput{}
		}
		return out.writeData(entries)
	}

	if len(entries) == 0 {
		out.writeMessage("No stored credentials. Run 'gshell auth login --user <email>'.")
		return nil
	}

	headers := []string{"DOMAIN", "USER", "API", "EXPIRY"}
	rows := make([][]string, len(entries))
	for i, e := range entries {
		domain, user := e.Domain, e.User
		if e.DefaultDomain {
			domain += " *"
		}
		if e.DefaultUser {
			user += " *"
		}
		expiry := formatRFC3339(e.Expiry)
		if e.Expired {
			expiry += " (expired)"
		}
		rows[i] = []string{domain, user, e.API, expiry}
	}
	return out.writeTable(headers, rows)
}

// runAuthRemove removes a token, a user, or a whole domain
func runAuthRemove(store *oauth2store.Consumer, user, domain, api string, out *outputWriter) error {
	var what string
	switch {
	case user != "" && api != "":
		if err := store.RemoveToken(user, api); err != nil {
			return fmt.Errorf("failed to remove token: %w", err)
		}
		what = fmt.Sprintf("%s token for %s", api, user)
	case user != "":
		if err := store.RemoveUser(user); err != nil {
			return fmt.Errorf("failed to remove user: %w", err)
		}
		what = user
	case domain != "":
		if api != "" {
			return fmt.Errorf("--api can only be combined with --user")
		}
		if err := store.RemoveDomain(domain); err != nil {
			return fmt.Errorf("failed to remove domain: %w", err)
		}
		what = domain
	default:
		return fmt.Errorf("either --user or --domain is required")
	}

	if out.structured() {
		return out.writeData(map[string]string{"removed": what})
	}
	out.writeMessage(fmt.Sprintf("Removed %s", what))
	return nil
}

// runAuthDefault sets the default domain and/or user
func runAuthDefault(store *oauth2store.Consumer, domain, user string, out *outputWriter) error {
	if domain == "" && user == "" {
		if out.structured() {
			defUser, _ := store.ResolveUser("")
			return out.writeData(map[string]string{"domain": store.DefaultDomain(), "user": defUser})
		}
		defUser, err := store.ResolveUser("")
		if err != nil {
			return err
		}
		out.writeMessage(fmt.Sprintf("Default domain: %s", store.DefaultDomain()))
		out.writeMessage(fmt.Sprintf("Default user:   %s", defUser))
		return nil
	}

	if domain != "" {
		if err := store.SetDefaultDomain(domain); err != nil {
			return fmt.Errorf("failed to set default domain: %w", err)
		}
	}
	if user != "" {
		if err := store.SetDefaultUser(user); err != nil {
			return fmt.Errorf("failed to set default user: %w", err)
		}
		// A default user implies their domain is the one to use.
		if domain == "" {
			if err := store.SetDefaultDomain(oauth2store.DomainOf(user)); err != nil {
				return fmt.Errorf("failed to set default domain: %w", err)
			}
		}
	}

	defUser, _ := store.ResolveUser("")
	if out.structured() {
		return out.writeData(map[string]string{"domain": store.DefaultDomain(), "user": defUser})
	}
	out.writeMessage(fmt.Sprintf("Default is now %s (%s)", defUser, store.DefaultDomain()))
	return nil
}

// tokenInfoOutput is JSON output for token info
type tokenInfoOutput struct {
	API           string   `json:"api"`
	Email         string   `json:"email"`
	EmailVerified bool     `json:"email_verified"`
	ExpiresIn     int64    `json:"expires_in"`
	Scopes        []string `json:"scopes"`
	UserID        string   `json:"user_id"`
	Audience      string   `json:"aud"`
	IssuedTo      string   `json:"issued_to"`
	AppName       string   `json:"app_name,omitempty"`
	StoredExpiry  string   `json:"stored_expiry,omitempty"`
	RefreshToken  string   `json:"refresh_token,omitempty"`
}

// runAuthTokenInfo retrieves and displays information about the token used for api
func runAuthTokenInfo(ctx context.Context, conn *gshell.Connection, api string, out *outputWriter) error {
	if api == "" {
		api = gshell.APIGmail
	}
	out.writeVerbose("Fetching %s token information...", api)
	tokenInfo, err := conn.GetTokenInfo(ctx, api)
	if err != nil {
		return fmt.Errorf("failed to get token info: %w", err)
	}

	output := tokenInfoOutput{
		API:           api,
		Email:         tokenInfo.Email,
		EmailVerified: tokenInfo.EmailVerified,
		ExpiresIn:     tokenInfo.ExpiresIn,
		Scopes:        tokenInfo.Scopes,
		UserID:        tokenInfo.UserID,
		Audience:      tokenInfo.Audience,
		IssuedTo:      tokenInfo.IssuedTo,
		AppName:       tokenInfo.AppName,
	}
	if store := conn.Store(); store != nil {
		if ti, err := store.Token(conn.User(), api); err == nil {
			output.StoredExpiry = ti.Expiry.Format(time.RFC3339)
			output.RefreshToken = oauth2store.MaskToken(ti.RefreshToken)
		}
	}

	if out.structured() {
		return out.writeData(output)
	}

	out.writeMessage(fmt.Sprintf("=== OAuth Token Information (%s) ===", api))
	out.writeMessage("")
	if err := out.writeFields([][2]string{
		{"Email", output.Email},
		{"Email Verified", yesNo(output.EmailVerified)},
		{"User ID", output.UserID},
		{"Expires In", fmt.Sprintf("%d seconds", output.ExpiresIn)},
		{"Audience", output.Audience},
		{"Issued To", output.IssuedTo},
		{"App Name", output.AppName},
		{"Stored Expiry", output.StoredExpiry},
		{"Refresh Token", output.RefreshToken},
	}); err != nil {
		return err
	}
	out.writeMessage("")
	out.writeMessage("Granted Scopes:")
	for i, scope := range output.Scopes {
		out.writeMessage(fmt.Sprintf("  %d. %s", i+1, scope))
	}
	return nil
}
