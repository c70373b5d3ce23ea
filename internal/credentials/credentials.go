// Package credentials defines the boundary to the credential-storage
// collaborator. The engine only ever sees a username/password pair for a
// provider context; where they live (encrypted store, config, env) is the
// collaborator's concern.
package credentials

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Credentials is one portal login.
type Credentials struct {
	Username string
	Password string
}

// ErrNotFound is returned when no credentials exist for a provider context.
var ErrNotFound = eris.New("credentials: not found")

// Source resolves credentials for a provider context.
type Source interface {
	// Credentials returns the login for the given provider context, or
	// ErrNotFound.
	Credentials(providerContext string) (Credentials, error)
}

// Static is a fixed-map Source, used by the CLI for config-supplied logins
// and by tests.
type Static struct {
	// Default is returned for provider contexts with no dedicated entry.
	Default Credentials
	// ByProvider maps a provider context (SPN id) to its login.
	ByProvider map[string]Credentials
}

// Credentials implements Source. Provider context lookup is
// case-insensitive; config loading lowercases map keys.
func (s Static) Credentials(providerContext string) (Credentials, error) {
	if c, ok := s.ByProvider[providerContext]; ok {
		return c, nil
	}
	if c, ok := s.ByProvider[strings.ToLower(providerContext)]; ok {
		return c, nil
	}
	if s.Default.Username != "" {
		return s.Default, nil
	}
	return Credentials{}, ErrNotFound
}
