package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/oauth2"
)

// AssistantScope grants access to the Embedded Assistant API.
const AssistantScope = "https://www.googleapis.com/auth/assistant-sdk-prototype"

var (
	ErrNoLoginInProgress = errors.New("no login in progress")
	ErrNotAuthenticated  = errors.New("not authenticated")
	ErrStateMismatch     = errors.New("login response does not belong to the login in progress")
)

// State tracks whether the user is logged in and owns the OAuth2 tokens
// backing that login. Logging in is asynchronous: RequestLogin hands a
// consent URL to the opener and CompleteLogin finishes the exchange with
// the code the user brings back.
type State struct {
	authenticated atomic.Bool

	config     *oauth2.Config
	store      *TokenStore
	httpClient *http.Client
	openURL    func(string) error
	onChange   func(bool)

	mu       sync.Mutex
	token    *oauth2.Token
	verifier string
	state    string
	loginURL string
}

type Option func(*State)

// WithTokenStore persists tokens so logins survive restarts.
func WithTokenStore(store *TokenStore) Option {
	return func(s *State) {
		s.store = store
	}
}

// WithURLOpener sets how the consent URL is shown to the user, for example
// by launching a browser.
func WithURLOpener(open func(url string) error) Option {
	return func(s *State) {
		s.openURL = open
	}
}

// WithChangeCallback is called whenever the authenticated flag changes.
func WithChangeCallback(onChange func(authenticated bool)) Option {
	return func(s *State) {
		s.onChange = onChange
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(s *State) {
		s.httpClient = client
	}
}

func NewState(config *oauth2.Config, opts ...Option) *State {
	s := &State{
		config: config,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		openURL: func(url string) error {
			logger.Info("open the login url to authenticate", "url", url)
			return nil
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load restores a previously saved token. A missing token is not an error,
// the state just stays unauthenticated.
func (s *State) Load() error {
	if s.store == nil {
		return nil
	}

	token, err := s.store.Load()
	if err != nil {
		return err
	}
	if token == nil || (token.RefreshToken == "" && !token.Valid()) {
		return nil
	}

	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	s.setAuthenticated(true)
	return nil
}

func (s *State) IsAuthenticated() bool {
	return s.authenticated.Load()
}

// RequestLogin starts a new login without blocking. Completion is observed
// through IsAuthenticated or the change callback.
func (s *State) RequestLogin() {
	verifier := oauth2.GenerateVerifier()
	state := uuid.NewString()
	loginURL := s.config.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.S256ChallengeOption(verifier),
	)

	s.mu.Lock()
	s.verifier = verifier
	s.state = state
	s.loginURL = loginURL
	open := s.openURL
	s.mu.Unlock()

	go func() {
		if err := open(loginURL); err != nil {
			logger.Warn("failed to open login url", "error", err)
		}
	}()
}

// LoginURL returns the consent URL of the login in progress, if any.
func (s *State) LoginURL() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loginURL, s.loginURL != ""
}

// CompleteLogin exchanges the authorization code returned by the consent
// page for tokens. response is either the bare code shown by out-of-band
// consent pages or the full redirect URL, whose state must match the login
// in progress.
func (s *State) CompleteLogin(ctx context.Context, response string) error {
	ctx, span := tracer.Start(ctx, "complete login")
	defer span.End()

	s.mu.Lock()
	verifier, expectedState := s.verifier, s.state
	s.mu.Unlock()
	if verifier == "" {
		return ErrNoLoginInProgress
	}

	code := response
	if redirect, err := url.Parse(response); err == nil && redirect.Query().Has("code") {
		if redirect.Query().Get("state") != expectedState {
			span.SetStatus(codes.Error, "state mismatch")
			return ErrStateMismatch
		}
		code = redirect.Query().Get("code")
	}

	token, err := s.config.Exchange(s.clientContext(ctx), code, oauth2.VerifierOption(verifier))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "token exchange failed")
		return fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	s.mu.Lock()
	s.token = token
	s.verifier = ""
	s.state = ""
	s.loginURL = ""
	s.mu.Unlock()

	s.persist(token)
	s.setAuthenticated(true)
	return nil
}

// Invalidate drops the current tokens. The user has to log in again.
func (s *State) Invalidate() {
	s.mu.Lock()
	s.token = nil
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.Clear(); err != nil {
			logger.Warn("failed to clear saved token", "error", err)
		}
	}
	s.setAuthenticated(false)
}

// TokenSource returns tokens for the transports, refreshing them as needed
// and saving every refreshed token.
func (s *State) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &persistingTokenSource{state: s, ctx: s.clientContext(ctx)}
}

func (s *State) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}

func (s *State) persist(token *oauth2.Token) {
	if s.store == nil {
		return
	}
	if err := s.store.Save(token); err != nil {
		logger.Warn("failed to save token", "error", err)
	}
}

func (s *State) setAuthenticated(authenticated bool) {
	if s.authenticated.Swap(authenticated) != authenticated && s.onChange != nil {
		s.onChange(authenticated)
	}
}

type persistingTokenSource struct {
	state *State
	ctx   context.Context
}

func (p *persistingTokenSource) Token() (*oauth2.Token, error) {
	p.state.mu.Lock()
	current := p.state.token
	p.state.mu.Unlock()

	if current == nil {
		return nil, ErrNotAuthenticated
	}
	if current.Valid() {
		return current, nil
	}

	refreshed, err := p.state.config.TokenSource(p.ctx, current).Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}

	p.state.mu.Lock()
	if p.state.token == current {
		p.state.token = refreshed
	}
	p.state.mu.Unlock()

	if refreshed.AccessToken != current.AccessToken {
		p.state.persist(refreshed)
	}
	return refreshed, nil
}
