package email

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"

	configpkg "github.com/drblury/opsflow/internal/runtime/config"
)

// ErrCredentialsMissing is returned when any Gmail secret is unset. Callers
// treat it as inert mode, not as a failure.
var ErrCredentialsMissing = errors.New("opsflow: gmail credentials missing")

// NewTokenSource builds a refreshing OAuth2 token source pinned to the
// read-only Gmail scope.
func NewTokenSource(ctx context.Context, cfg configpkg.GmailConfig) (oauth2.TokenSource, error) {
	if !cfg.Enabled() {
		return nil, missingCredentials(cfg)
	}

	conf := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{gmail.GmailReadonlyScope},
	}
	return conf.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken}), nil
}

func missingCredentials(cfg configpkg.GmailConfig) error {
	return &credentialsError{missing: cfg.Missing()}
}

type credentialsError struct {
	missing []string
}

func (e *credentialsError) Error() string {
	return ErrCredentialsMissing.Error() + ": " + strings.Join(e.missing, ", ")
}

func (e *credentialsError) Unwrap() error { return ErrCredentialsMissing }
