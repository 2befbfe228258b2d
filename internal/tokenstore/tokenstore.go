// Package tokenstore holds provider credentials for a company. Static
// bearer tokens come from AWS Secrets Manager under a configured prefix;
// OAuth client-credential tokens are cached per (company, provider) and
// refreshed under an exclusive lock so a burst of concurrent requests at
// expiry triggers exactly one call to the token endpoint.
package tokenstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/rs/zerolog/log"
)

// SecretsAPI is the slice of the Secrets Manager client the store needs.
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// RefreshFunc fetches a fresh OAuth token and reports its lifetime.
type RefreshFunc func(ctx context.Context) (token string, expiresIn time.Duration, err error)

type cachedToken struct {
	mu      sync.Mutex
	token   string
	expires time.Time
	refresh RefreshFunc
}

// Store resolves provider tokens for one company.
type Store struct {
	company string
	prefix  string
	secrets SecretsAPI

	mu     sync.Mutex
	cached map[string]*cachedToken

	// now is swapped in tests.
	now func() time.Time
}

// New creates a store reading static secrets under prefix.
func New(company, prefix string, secrets SecretsAPI) *Store {
	return &Store{
		company: company,
		prefix:  prefix,
		secrets: secrets,
		cached:  make(map[string]*cachedToken),
		now:     time.Now,
	}
}

// StaticToken fetches a static bearer token from Secrets Manager.
func (s *Store) StaticToken(ctx context.Context, name string) (string, error) {
	secretID := fmt.Sprintf("%s/%s/%s", s.prefix, s.company, name)
	out, err := s.secrets.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		return "", fmt.Errorf("fetching secret %s: %w", secretID, err)
	}
	if out.SecretString == nil {
		return "", fmt.Errorf("secret %s has no string value", secretID)
	}
	return *out.SecretString, nil
}

// RegisterOAuth installs a refresh function for a provider's OAuth token.
func (s *Store) RegisterOAuth(providerName string, refresh RefreshFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached[providerName] = &cachedToken{refresh: refresh}
}

// OAuthToken returns a valid token for the provider, refreshing it if
// expired. Callers racing on an expired token block on the same lock and
// reuse the single refreshed value.
func (s *Store) OAuthToken(ctx context.Context, providerName string) (string, error) {
	s.mu.Lock()
	ct, ok := s.cached[providerName]
	s.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("no oauth refresh registered for provider %s", providerName)
	}

	ct.mu.Lock()
	defer ct.mu.Unlock()

	// Refresh a minute early so in-flight requests don't expire mid-call.
	if ct.token != "" && s.now().Add(time.Minute).Before(ct.expires) {
		return ct.token, nil
	}

	token, expiresIn, err := ct.refresh(ctx)
	if err != nil {
		return "", fmt.Errorf("refreshing %s token: %w", providerName, err)
	}
	ct.token = token
	ct.expires = s.now().Add(expiresIn)

	log.Debug().Str("provider", providerName).Str("company", s.company).
		Time("expires", ct.expires).Msg("refreshed oauth token")
	return token, nil
}
