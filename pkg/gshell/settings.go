package gshell

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/go-jsonnet"
	"github.com/pkg/errors"

	"github.com/wesnick/gshell/pkg/gshell/oauth2store"
)

const (
	// DefaultConfigDir is the default location for gshell configuration
	DefaultConfigDir = "~/.config/gshell"

	// SettingsVersion is the only settings.jsonnet version understood.
	SettingsVersion = "v1alpha1"

	credentialsFile = "credentials.json"
	settingsFile    = "settings.jsonnet"
)

// ConfigPaths holds paths to all config files
type ConfigPaths struct {
	Dir         string
	Credentials string
	Settings    string
}

// GetConfigPaths returns the config paths, expanding ~ if needed
func GetConfigPaths(configDir string) (*ConfigPaths, error) {
	if configDir == "" {
		configDir = DefaultConfigDir
	}

	if len(configDir) > 0 && configDir[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, errors.Wrap(err, "cannot determine home directory")
		}
		configDir = filepath.Join(home, configDir[1:])
	}

	return &ConfigPaths{
		Dir:         configDir,
		Credentials: filepath.Join(configDir, credentialsFile),
		Settings:    filepath.Join(configDir, settingsFile),
	}, nil
}

// RateLimit configures the token bucket used by batch operations.
type RateLimit struct {
	RequestsPerSecond float64 `json:"requestsPerSecond"`
	Burst             int     `json:"burst"`
}

// Settings is the evaluated settings.jsonnet.
type Settings struct {
	Version     string    `json:"version"`
	StoreFormat string    `json:"storeFormat"`
	Customer    string    `json:"customer"`
	APIs        []string  `json:"apis"`
	RateLimit   RateLimit `json:"rateLimit"`
}

// DefaultSettings is used when no settings file exists.
func DefaultSettings() Settings {
	return Settings{
		Version:     SettingsVersion,
		StoreFormat: oauth2store.FormatJSON,
		Customer:    MyCustomer,
		APIs:        AllAPIs(),
		RateLimit:   RateLimit{RequestsPerSecond: 5, Burst: 10},
	}
}

const settingsTemplate = `// gshell settings
{
  version: '%s',
  // json or binary
  storeFormat: '%s',
  customer: '%s',
  apis: [%s],
  rateLimit: {
    requestsPerSecond: %g,
    burst: %d,
  },
}
`

// FormatSettings renders s as a settings.jsonnet document.
func FormatSettings(s Settings) []byte {
	apis := make([]string, len(s.APIs))
	for i, api := range s.APIs {
		apis[i] = "'" + api + "'"
	}
	return []byte(fmt.Sprintf(settingsTemplate, s.Version, s.StoreFormat, s.Customer,
		strings.Join(apis, ", "), s.RateLimit.RequestsPerSecond, s.RateLimit.Burst))
}

// WriteDefaultSettings writes DefaultSettings to p unless a file is already
// there. It reports whether p was created.
func WriteDefaultSettings(p string) (bool, error) {
	if err := os.MkdirAll(filepath.Dir(p), 0700); err != nil {
		return false, errors.Wrap(err, "creating config directory")
	}
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, errors.Wrap(err, "creating settings file")
	}
	_, err = f.Write(FormatSettings(DefaultSettings()))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return false, errors.Wrap(err, "writing settings file")
	}
	return true, nil
}

// ReadSettings evaluates the jsonnet settings file at p. A missing file
// yields DefaultSettings.
func ReadSettings(p string) (Settings, error) {
	/* #nosec */
	b, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSettings(), nil
		}
		return Settings{}, errors.Wrap(err, "reading settings file")
	}
	return ParseSettings(p, b)
}

// ParseSettings evaluates a jsonnet settings buffer. The path is used to
// resolve imports.
func ParseSettings(p string, buf []byte) (Settings, error) {
	vm := jsonnet.MakeVM()
	vm.Importer(&jsonnet.FileImporter{
		JPaths: []string{path.Dir(p)},
	})
	js, err := vm.EvaluateAnonymousSnippet(p, string(buf))
	if err != nil {
		return Settings{}, errors.Wrap(err, "evaluating settings")
	}

	var s Settings
	dec := json.NewDecoder(bytes.NewReader([]byte(js)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return Settings{}, errors.Wrap(err, "decoding settings")
	}
	if s.Version != SettingsVersion {
		return Settings{}, errors.Errorf("unsupported settings version %q (expected %q)", s.Version, SettingsVersion)
	}

	def := DefaultSettings()
	if s.StoreFormat == "" {
		s.StoreFormat = def.StoreFormat
	}
	if s.Customer == "" {
		s.Customer = def.Customer
	}
	if len(s.APIs) == 0 {
		s.APIs = def.APIs
	}
	for _, api := range s.APIs {
		if _, ok := apiScopes[api]; !ok {
			return Settings{}, errors.Errorf("unknown api %q in settings", api)
		}
	}
	if s.RateLimit.RequestsPerSecond <= 0 {
		s.RateLimit.RequestsPerSecond = def.RateLimit.RequestsPerSecond
	}
	if s.RateLimit.Burst <= 0 {
		s.RateLimit.Burst = def.RateLimit.Burst
	}
	return s, nil
}
