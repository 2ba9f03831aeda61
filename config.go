package main

import (
	"context"
	"fmt"

	"github.com/wesnick/gshell/pkg/gshell"
	"github.com/wesnick/gshell/pkg/gshell/oauth2store"
)

// getConnection creates an authenticated connection for the acting user
func getConnection(ctx context.Context, configDir, user string, verbose bool) (*gshell.Connection, error) {
	conn, err := gshell.New(ctx, gshell.Options{
		ConfigDir: configDir,
		User:      user,
		Verbose:   verbose,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create connection: %w", err)
	}
	return conn, nil
}

// openStore opens the token store in the config directory
func openStore(configDir string) (*oauth2store.Consumer, error) {
	paths, err := gshell.GetConfigPaths(configDir)
	if err != nil {
		return nil, err
	}
	store, _, err := gshell.OpenStore(paths)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// configureOutput is JSON output for configure
type configureOutput struct {
	Store    string `json:"store"`
	Domain   string `json:"domain,omitempty"`
	Type     string `json:"type"`
	ClientID string `json:"clientId"`
	Settings string `json:"settings,omitempty"`
}

// runConfigure imports client secrets into the token store and creates a
// default settings file at settingsPath when there is none.
func runConfigure(store *oauth2store.Consumer, settingsPath, credentials, domain string, out *outputWriter) error {
	if credentials == "" {
		return fmt.Errorf("--credentials is required")
	}
	out.writeVerbose("Importing %s into %s", credentials, store.Path())

	secrets, err := gshell.ImportCredentials(store, credentials, domain)
	if err != nil {
		return fmt.Errorf("configuration failed: %w", err)
	}

	created, err := gshell.WriteDefaultSettings(settingsPath)
	if err != nil {
		return fmt.Errorf("configuration failed: %w", err)
	}
	result := configureOutput{
		Store:    store.Path(),
		Domain:   domain,
		Type:     secrets.Type,
		ClientID: secrets.ClientID,
	}
	if created {
		result.Settings = settingsPath
	}

	if out.structured() {
		return out.writeData(result)
	}

	scope := "all domains"
	if domain != "" {
		scope = domain
	}
	out.writeMessage(fmt.Sprintf("Stored %s client %s for %s in %s", secrets.Type, secrets.ClientID, scope, store.Path()))
	if created {
		out.writeMessage(fmt.Sprintf("Wrote default settings to %s", settingsPath))
	}
	if secrets.IsServiceAccount() {
		out.writeMessage("Use --user to choose which user to impersonate.")
	} else {
		out.writeMessage("Next: gshell auth login --user <email>")
	}
	return nil
}
