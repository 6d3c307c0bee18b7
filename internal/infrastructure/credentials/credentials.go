// Package credentials stores remote bearer tokens in the OS keychain and
// resolves them at sync time, falling back to an environment variable.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"

	domainerrors "github.com/jbctechsolutions/wikisync/internal/domain/errors"
	"github.com/jbctechsolutions/wikisync/internal/infrastructure/logging"
)

// Service is the keychain service name tokens are filed under.
const Service = "dev.jbctech.wikisync"

// Store reads and writes tokens in the OS keychain. Accounts are remote
// endpoints, so one machine can hold tokens for several wikis.
type Store struct {
	service string
	logger  *logging.Logger
}

// NewStore creates a keychain-backed token store.
func NewStore(logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{service: Service, logger: logger}
}

// Account normalizes a remote endpoint into a keychain account name.
func Account(endpoint string) string {
	return strings.TrimRight(strings.ToLower(strings.TrimSpace(endpoint)), "/")
}

// Set stores token for endpoint.
func (s *Store) Set(endpoint, token string) error {
	if token == "" {
		return domainerrors.NewError(domainerrors.CodeValidation, "token is empty", nil)
	}
	if err := keyring.Set(s.service, Account(endpoint), token); err != nil {
		return fmt.Errorf("store token in keychain: %w", err)
	}
	s.logger.Debug("token stored in keychain", "account", Account(endpoint))
	return nil
}

// Get returns the stored token for endpoint. A missing entry is not an
// error: the empty string is returned.
func (s *Store) Get(endpoint string) (string, error) {
	token, err := keyring.Get(s.service, Account(endpoint))
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read token from keychain: %w", err)
	}
	return token, nil
}

// Delete removes the token for endpoint. Deleting a missing entry succeeds.
func (s *Store) Delete(endpoint string) error {
	err := keyring.Delete(s.service, Account(endpoint))
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("delete token from keychain: %w", err)
	}
	return nil
}

// Source resolves the bearer token for one remote.
type Source struct {
	store    *Store // nil skips the keychain
	endpoint string
	envVar   string
	logger   *logging.Logger
}

// NewSource builds a token source for endpoint. store may be nil when the
// keychain is disabled; envVar may be empty when there is no fallback.
func NewSource(store *Store, endpoint, envVar string, logger *logging.Logger) *Source {
	if logger == nil {
		logger = logging.Default()
	}
	return &Source{store: store, endpoint: endpoint, envVar: envVar, logger: logger}
}

// Token returns the keychain token if one is stored, else the environment
// variable. An unreachable keychain degrades to the environment. No token
// at all is reported as unauthenticated.
func (s *Source) Token(ctx context.Context) (string, error) {
	if s.store != nil {
		token, err := s.store.Get(s.endpoint)
		if err != nil {
			s.logger.DebugContext(ctx, "keychain unavailable, trying environment", "error", err)
		} else if token != "" {
			return token, nil
		}
	}
	if s.envVar != "" {
		if token := os.Getenv(s.envVar); token != "" {
			return token, nil
		}
	}
	return "", domainerrors.WithContext(
		domainerrors.NewError(domainerrors.CodeUnauthenticated, "no credentials for remote", domainerrors.ErrUnauthenticated),
		"endpoint", s.endpoint)
}

// Optional wraps Token so a missing credential yields an empty token
// instead of an error. Servers without auth accept anonymous requests.
func (s *Source) Optional(ctx context.Context) (string, error) {
	token, err := s.Token(ctx)
	if domainerrors.CodeOf(err) == domainerrors.CodeUnauthenticated {
		return "", nil
	}
	return token, err
}
