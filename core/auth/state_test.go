package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type tokenServer struct {
	*httptest.Server

	mu    sync.Mutex
	forms []url.Values
}

func newTokenServer(t *testing.T, accessToken string) *tokenServer {
	t.Helper()

	server := &tokenServer{}
	server.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		server.mu.Lock()
		server.forms = append(server.forms, r.PostForm)
		server.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"` + accessToken + `","token_type":"Bearer","refresh_token":"refresh","expires_in":3600}`))
	}))
	t.Cleanup(server.Close)
	return server
}

func (s *tokenServer) lastForm() url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.forms) == 0 {
		return nil
	}
	return s.forms[len(s.forms)-1]
}

func testConfig(tokenURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost/callback",
		Scopes:       []string{AssistantScope},
		Endpoint: oauth2.Endpoint{
			AuthURL:   "https://accounts.example.com/auth",
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func TestLoadWithoutSavedToken(t *testing.T) {
	state := NewState(testConfig("http://unused"),
		WithTokenStore(NewTokenStore(filepath.Join(t.TempDir(), "tokens.json"))))

	require.NoError(t, state.Load())
	assert.False(t, state.IsAuthenticated())
}

func TestLoadRestoresSavedLogin(t *testing.T) {
	store := NewTokenStore(filepath.Join(t.TempDir(), "nested", "tokens.json"))
	require.NoError(t, store.Save(&oauth2.Token{AccessToken: "saved", RefreshToken: "refresh"}))

	var changes []bool
	state := NewState(testConfig("http://unused"),
		WithTokenStore(store),
		WithChangeCallback(func(authenticated bool) { changes = append(changes, authenticated) }))

	require.NoError(t, state.Load())
	assert.True(t, state.IsAuthenticated())
	assert.Equal(t, []bool{true}, changes)
}

func TestRequestLoginOpensConsentURL(t *testing.T) {
	opened := make(chan string, 1)
	state := NewState(testConfig("http://unused"),
		WithURLOpener(func(url string) error {
			opened <- url
			return nil
		}))

	state.RequestLogin()

	select {
	case consent := <-opened:
		parsed, err := url.Parse(consent)
		require.NoError(t, err)
		assert.Equal(t, "client-id", parsed.Query().Get("client_id"))
		assert.Equal(t, "offline", parsed.Query().Get("access_type"))
		assert.Equal(t, "S256", parsed.Query().Get("code_challenge_method"))
		assert.NotEmpty(t, parsed.Query().Get("state"))

		loginURL, ok := state.LoginURL()
		assert.True(t, ok)
		assert.Equal(t, consent, loginURL)
	case <-time.After(time.Second):
		t.Fatal("login url was never opened")
	}
	assert.False(t, state.IsAuthenticated())
}

func TestCompleteLoginRequiresLoginInProgress(t *testing.T) {
	state := NewState(testConfig("http://unused"))
	require.ErrorIs(t, state.CompleteLogin(context.Background(), "code"), ErrNoLoginInProgress)
}

func TestCompleteLoginSavesTokens(t *testing.T) {
	server := newTokenServer(t, "fresh")
	store := NewTokenStore(filepath.Join(t.TempDir(), "tokens.json"))
	state := NewState(testConfig(server.URL),
		WithTokenStore(store),
		WithURLOpener(func(string) error { return nil }))

	state.RequestLogin()
	require.NoError(t, state.CompleteLogin(context.Background(), "the-code"))

	assert.True(t, state.IsAuthenticated())
	assert.Equal(t, "the-code", server.lastForm().Get("code"))
	assert.NotEmpty(t, server.lastForm().Get("code_verifier"))

	saved, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, "fresh", saved.AccessToken)

	_, ok := state.LoginURL()
	assert.False(t, ok)
}

func TestLoginStateIsIndependentOfVerifier(t *testing.T) {
	server := newTokenServer(t, "fresh")
	opened := make(chan string, 1)
	state := NewState(testConfig(server.URL),
		WithURLOpener(func(url string) error {
			opened <- url
			return nil
		}))

	state.RequestLogin()
	consent, err := url.Parse(<-opened)
	require.NoError(t, err)
	loginState := consent.Query().Get("state")

	require.NoError(t, state.CompleteLogin(context.Background(),
		"http://localhost/callback?code=the-code&state="+url.QueryEscape(loginState)))

	verifier := server.lastForm().Get("code_verifier")
	require.NotEmpty(t, verifier)
	assert.NotContains(t, verifier, loginState)
	assert.NotContains(t, consent.String(), verifier[:16])
	assert.Equal(t, "the-code", server.lastForm().Get("code"))
	assert.True(t, state.IsAuthenticated())
}

func TestCompleteLoginRejectsForeignState(t *testing.T) {
	server := newTokenServer(t, "fresh")
	state := NewState(testConfig(server.URL), WithURLOpener(func(string) error { return nil }))

	state.RequestLogin()
	err := state.CompleteLogin(context.Background(), "http://localhost/callback?code=stolen&state=someone-else")

	require.ErrorIs(t, err, ErrStateMismatch)
	assert.False(t, state.IsAuthenticated())
	assert.Nil(t, server.lastForm())
}

func TestInvalidateForgetsTokens(t *testing.T) {
	store := NewTokenStore(filepath.Join(t.TempDir(), "tokens.json"))
	require.NoError(t, store.Save(&oauth2.Token{AccessToken: "saved", RefreshToken: "refresh"}))

	state := NewState(testConfig("http://unused"), WithTokenStore(store))
	require.NoError(t, state.Load())
	require.True(t, state.IsAuthenticated())

	state.Invalidate()

	assert.False(t, state.IsAuthenticated())
	saved, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, saved)

	_, err = state.TokenSource(context.Background()).Token()
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestTokenSourceRefreshesExpiredTokens(t *testing.T) {
	server := newTokenServer(t, "refreshed")
	store := NewTokenStore(filepath.Join(t.TempDir(), "tokens.json"))
	require.NoError(t, store.Save(&oauth2.Token{
		AccessToken:  "stale",
		RefreshToken: "refresh",
		Expiry:       time.Now().Add(-time.Hour),
	}))

	state := NewState(testConfig(server.URL), WithTokenStore(store))
	require.NoError(t, state.Load())

	token, err := state.TokenSource(context.Background()).Token()
	require.NoError(t, err)
	assert.Equal(t, "refreshed", token.AccessToken)
	assert.Equal(t, "refresh_token", server.lastForm().Get("grant_type"))

	saved, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "refreshed", saved.AccessToken)
}
