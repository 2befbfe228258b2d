package reconcile

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/oauth2/google"
	admin "google.golang.org/api/admin/directory/v1"
	"google.golang.org/api/option"

	"github.com/canopy-platform/directory-services/internal/appconfig"
	"github.com/canopy-platform/directory-services/internal/provider"
	"github.com/canopy-platform/directory-services/internal/provider/github"
	"github.com/canopy-platform/directory-services/internal/provider/googleworkspace"
	"github.com/canopy-platform/directory-services/internal/provider/okta"
	"github.com/canopy-platform/directory-services/internal/provider/ramp"
	"github.com/canopy-platform/directory-services/internal/provider/zoom"
	"github.com/canopy-platform/directory-services/internal/tokenstore"
)

// BuildProviders assembles the adapter for every enabled provider. A vendor
// whose client cannot be constructed at all (Google Workspace credentials
// missing) fails the build; per-request credential failures surface later as
// ConfigError and skip just that provider's pass.
func BuildProviders(ctx context.Context, cfg *appconfig.Config, tokens *tokenstore.Store) ([]provider.Provider, error) {
	var providers []provider.Provider

	if pc := cfg.Providers.GitHub; pc.Enabled {
		providers = append(providers, github.New(pc.Org, pc.BaseURL, staticToken(tokens, github.Name, pc.TokenSecret)))
	}

	if pc := cfg.Providers.GoogleWorkspace; pc.Enabled {
		svc, err := newDirectoryService(ctx, pc)
		if err != nil {
			return nil, fmt.Errorf("building google workspace client: %w", err)
		}
		providers = append(providers, googleworkspace.New(pc.Domain, svc))
	}

	if pc := cfg.Providers.Okta; pc.Enabled {
		providers = append(providers, okta.New(pc.BaseURL, staticToken(tokens, okta.Name, pc.TokenSecret)))
	}

	if pc := cfg.Providers.Ramp; pc.Enabled {
		providers = append(providers, ramp.New(pc.BaseURL, staticToken(tokens, ramp.Name, pc.TokenSecret)))
	}

	if pc := cfg.Providers.Zoom; pc.Enabled {
		providers = append(providers, zoom.New(pc.BaseURL, staticToken(tokens, zoom.Name, pc.TokenSecret)))
	}

	return providers, nil
}

func staticToken(tokens *tokenstore.Store, providerName, secretName string) func(ctx context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		token, err := tokens.StaticToken(ctx, secretName)
		if err != nil {
			return "", &provider.ConfigError{Provider: providerName, Err: err}
		}
		return token, nil
	}
}

// newDirectoryService builds an Admin SDK client using domain-wide
// delegation: the service account key authorizes the call, the configured
// admin user is impersonated.
func newDirectoryService(ctx context.Context, pc appconfig.GoogleWorkspaceConfig) (*admin.Service, error) {
	data, err := os.ReadFile(pc.CredentialsJSONPath)
	if err != nil {
		return nil, fmt.Errorf("reading credentials file: %w", err)
	}

	jwtConfig, err := google.JWTConfigFromJSON(data,
		admin.AdminDirectoryUserScope,
		admin.AdminDirectoryGroupScope,
		admin.AdminDirectoryGroupMemberScope,
	)
	if err != nil {
		return nil, fmt.Errorf("parsing service account key: %w", err)
	}
	jwtConfig.Subject = pc.ImpersonateUser

	svc, err := admin.NewService(ctx, option.WithHTTPClient(jwtConfig.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("creating directory service: %w", err)
	}
	return svc, nil
}
