package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/haasonsaas/mira/internal/storage"
	"github.com/haasonsaas/mira/pkg/models"
)

// ProviderGoogle names Google credentials in the credential store.
const ProviderGoogle = "google"

// ErrNoToken is returned when the user has not granted access yet.
var ErrNoToken = errors.New("auth: no stored token")

// ErrTokenExpired is returned when the stored access token has expired and
// there is no refresh token to renew it.
var ErrTokenExpired = errors.New("auth: stored token expired")

// OAuth parameter limits to prevent abuse
const (
	maxStateLength = 4096
	maxCodeLength  = 4096
)

// GoogleConfig configures the Google OAuth client.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string

	// Endpoint overrides google.Endpoint, for tests.
	Endpoint oauth2.Endpoint
}

// Google runs the Google grant flow and hands out token sources that
// persist refreshed tokens.
type Google struct {
	config     oauth2.Config
	signer     *StateSigner
	store      storage.CredentialStore
	httpClient *http.Client
	logger     *slog.Logger
}

// GoogleOption configures Google.
type GoogleOption func(*Google)

// WithHTTPClient sets the client used for token exchange and refresh.
func WithHTTPClient(c *http.Client) GoogleOption {
	return func(g *Google) { g.httpClient = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) GoogleOption {
	return func(g *Google) { g.logger = l }
}

// NewGoogle builds the Google OAuth flow.
func NewGoogle(cfg GoogleConfig, signer *StateSigner, store storage.CredentialStore, opts ...GoogleOption) *Google {
	endpoint := cfg.Endpoint
	if endpoint.AuthURL == "" && endpoint.TokenURL == "" {
		endpoint = google.Endpoint
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"https://www.googleapis.com/auth/calendar.readonly"}
	}
	g := &Google{
		config: oauth2.Config{
			ClientID:     strings.TrimSpace(cfg.ClientID),
			ClientSecret: strings.TrimSpace(cfg.ClientSecret),
			RedirectURL:  strings.TrimSpace(cfg.RedirectURL),
			Scopes:       scopes,
			Endpoint:     endpoint,
		},
		signer: signer,
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Google) clientContext(ctx context.Context) context.Context {
	if g.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)
}

// AuthURL returns the consent URL for userID. Offline access is requested so
// a refresh token is issued.
func (g *Google) AuthURL(userID string) (string, error) {
	state, err := g.signer.Sign(userID, ProviderGoogle)
	if err != nil {
		return "", err
	}
	return g.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent")), nil
}

// Complete finishes a grant: it verifies state, exchanges code and stores
// the token. It returns the user the grant belongs to.
func (g *Google) Complete(ctx context.Context, state, code string) (string, error) {
	if len(state) > maxStateLength {
		return "", errors.New("auth: state too long")
	}
	if len(code) > maxCodeLength {
		return "", errors.New("auth: authorization code too long")
	}
	if strings.TrimSpace(code) == "" {
		return "", errors.New("auth: authorization code required")
	}

	userID, provider, err := g.signer.Verify(state)
	if err != nil {
		return "", err
	}
	if provider != ProviderGoogle {
		return "", ErrInvalidState
	}

	token, err := g.config.Exchange(g.clientContext(ctx), code)
	if err != nil {
		return "", fmt.Errorf("auth: exchange code: %w", err)
	}
	if err := g.store.PutCredential(ctx, credentialFromToken(userID, token)); err != nil {
		return "", fmt.Errorf("auth: store token: %w", err)
	}
	g.logger.InfoContext(ctx, "oauth grant completed", "user_id", userID, "provider", ProviderGoogle)
	return userID, nil
}

// TokenSource returns a token source for userID. Tokens it refreshes are
// written back to the credential store. ErrNoToken means no grant exists and
// ErrTokenExpired means the grant can no longer be renewed.
func (g *Google) TokenSource(ctx context.Context, userID string) (oauth2.TokenSource, error) {
	cred, err := g.store.GetCredential(ctx, userID, ProviderGoogle)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, fmt.Errorf("auth: load token: %w", err)
	}
	token := tokenFromCredential(cred)
	if token.RefreshToken == "" && !token.Valid() {
		return nil, ErrTokenExpired
	}
	return &persistingSource{
		base:   g.config.TokenSource(g.clientContext(ctx), token),
		store:  g.store,
		userID: userID,
		last:   token.AccessToken,
		logger: g.logger,
	}, nil
}

type persistingSource struct {
	mu     sync.Mutex
	base   oauth2.TokenSource
	store  storage.CredentialStore
	userID string
	last   string
	logger *slog.Logger
}

func (s *persistingSource) Token() (*oauth2.Token, error) {
	token, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if token.AccessToken != s.last {
		if err := s.store.PutCredential(context.Background(), credentialFromToken(s.userID, token)); err != nil {
			s.logger.Warn("persist refreshed token", "user_id", s.userID, "error", err)
		} else {
			s.last = token.AccessToken
		}
	}
	return token, nil
}

func credentialFromToken(userID string, token *oauth2.Token) *models.Credential {
	return &models.Credential{
		UserID:       userID,
		Provider:     ProviderGoogle,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		Expiry:       token.Expiry,
		UpdatedAt:    time.Now().UTC(),
	}
}

func tokenFromCredential(cred *models.Credential) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		TokenType:    cred.TokenType,
		Expiry:       cred.Expiry,
	}
}
