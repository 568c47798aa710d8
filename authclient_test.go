package twitch_widget

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func signedIDToken(t *testing.T, sub, username string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":                sub,
		"preferred_username": username,
		"exp":                testNow.Add(time.Hour).Unix(),
	})
	s, err := tok.SignedString([]byte("test-key"))
	require.NoError(t, err)
	return s
}

func newTestAuthClient(t *testing.T, tokenUri, validateUri string) *AuthClient {
	t.Helper()
	conf := NewAuthConfig()
	conf.TokenUri = tokenUri
	conf.ValidateUri = validateUri
	conf.ClientId = "client-1"
	conf.ClientSecret = "client-secret-1"
	conf.RedirectUri = "http://localhost:49999/v1/callback"
	conf.WelcomeFileName = "does-not-exist.html"
	conf.SetPkce()

	a := NewAuthClient(conf)
	a.Now = func() time.Time { return testNow }
	return a
}

func callback(t *testing.T, a *AuthClient, query url.Values) (*httptest.ResponseRecorder, authResult) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/v1/callback?"+query.Encode(), nil)
	rec := httptest.NewRecorder()
	a.loopBackHandler(rec, req)

	select {
	case res := <-a.results:
		return rec, res
	default:
		t.Fatal("handler did not report a result")
		return nil, authResult{}
	}
}

func TestLoopBackHandler_ExchangesCodeUsingIDToken(t *testing.T) {
	idToken := signedIDToken(t, "12345", "Streamer")
	ep := &tokenEndpoint{status: http.StatusOK, body: `{
		"access_token": "first-access",
		"refresh_token": "first-refresh",
		"expires_in": 14000,
		"scope": ["channel:read:subscriptions", "openid"],
		"id_token": "` + idToken + `",
		"token_type": "bearer"
	}`}
	srv := ep.serve(t)

	a := newTestAuthClient(t, srv.URL, "http://127.0.0.1:0/unused")
	rec, res := callback(t, a, url.Values{"code": {"auth-code"}, "state": {a.Aconfig.State}})

	require.NoError(t, res.err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, a.WelcomeHtml, rec.Body.String())

	assert.Equal(t, "authorization_code", ep.form["grant_type"])
	assert.Equal(t, "auth-code", ep.form["code"])
	assert.Equal(t, "client-secret-1", ep.form["client_secret"])

	assert.Equal(t, &TokenRecord{
		AccessToken:  "first-access",
		RefreshToken: "first-refresh",
		ClientID:     "client-1",
		ClientSecret: "client-secret-1",
		Login:        "streamer",
		UserID:       "12345",
		ExpiresAt:    testNow.Add(14000 * time.Second),
		Scopes:       []string{"channel:read:subscriptions", "openid"},
	}, res.record)
}

func TestLoopBackHandler_FallsBackToValidateEndpoint(t *testing.T) {
	ep := &tokenEndpoint{status: http.StatusOK, body: `{"access_token": "first-access", "refresh_token": "r", "expires_in": 3600}`}
	srv := ep.serve(t)

	var authHeader string
	validate := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"client_id": "client-1", "login": "streamer", "user_id": "777", "scopes": ["channel:read:subscriptions"], "expires_in": 3600}`))
	}))
	t.Cleanup(validate.Close)

	a := newTestAuthClient(t, srv.URL, validate.URL)
	_, res := callback(t, a, url.Values{"code": {"auth-code"}, "state": {a.Aconfig.State}})

	require.NoError(t, res.err)
	assert.Equal(t, "OAuth first-access", authHeader)
	assert.Equal(t, "streamer", res.record.Login)
	assert.Equal(t, "777", res.record.UserID)
	assert.Equal(t, []string{"channel:read:subscriptions"}, res.record.Scopes)
}

func TestLoopBackHandler_RejectsBadCallbacks(t *testing.T) {
	tests := []struct {
		name    string
		query   func(state string) url.Values
		status  int
		wantErr error
	}{
		{
			name:    "state mismatch",
			query:   func(string) url.Values { return url.Values{"code": {"c"}, "state": {"forged"}} },
			status:  http.StatusBadRequest,
			wantErr: ErrStateMismatch,
		},
		{
			name:    "missing code",
			query:   func(state string) url.Values { return url.Values{"state": {state}} },
			status:  http.StatusBadRequest,
			wantErr: ErrCodeNotFound,
		},
		{
			name:   "user denied",
			query:  func(state string) url.Values { return url.Values{"error": {"access_denied"}, "state": {state}} },
			status: http.StatusForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ep := &tokenEndpoint{status: http.StatusOK, body: `{"access_token": "x"}`}
			srv := ep.serve(t)

			a := newTestAuthClient(t, srv.URL, "")
			rec, res := callback(t, a, tt.query(a.Aconfig.State))

			require.Error(t, res.err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, res.err, tt.wantErr)
			}
			assert.Equal(t, tt.status, rec.Code)
			assert.Nil(t, res.record)
			assert.Nil(t, ep.form, "token endpoint must not be called")
		})
	}
}

func TestLoopBackHandler_TokenEndpointFailure(t *testing.T) {
	ep := &tokenEndpoint{status: http.StatusBadRequest, body: `{"error": "invalid_grant"}`}
	srv := ep.serve(t)

	a := newTestAuthClient(t, srv.URL, "")
	rec, res := callback(t, a, url.Values{"code": {"c"}, "state": {a.Aconfig.State}})

	require.ErrorIs(t, res.err, ErrAccessTokenNotFound)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestAuthorizationURL(t *testing.T) {
	t.Run("pkce without client secret", func(t *testing.T) {
		a := newTestAuthClient(t, "", "")
		a.Aconfig.ClientSecret = ""
		a.Aconfig.SetPkce()
		require.True(t, a.Aconfig.UsePkce)

		raw, err := a.authorizationURL()
		require.NoError(t, err)
		u, err := url.Parse(raw)
		require.NoError(t, err)

		q := u.Query()
		assert.Equal(t, "code", q.Get("response_type"))
		assert.Equal(t, "client-1", q.Get("client_id"))
		assert.Equal(t, a.Aconfig.State, q.Get("state"))
		assert.Equal(t, "openid channel:read:subscriptions", q.Get("scope"))
		assert.Equal(t, "S256", q.Get("code_challenge_method"))
		assert.Equal(t, a.codeVerifier.CodeChallengeS256(), q.Get("code_challenge"))
	})

	t.Run("client secret without pkce", func(t *testing.T) {
		a := newTestAuthClient(t, "", "")
		require.False(t, a.Aconfig.UsePkce)

		raw, err := a.authorizationURL()
		require.NoError(t, err)
		u, err := url.Parse(raw)
		require.NoError(t, err)

		assert.Empty(t, u.Query().Get("code_challenge"))
		assert.NotEmpty(t, u.Query().Get("state"))
	})
}

func TestGrantedScopes(t *testing.T) {
	requested := []string{"openid"}

	tok := (&oauth2.Token{}).WithExtra(map[string]interface{}{"scope": []interface{}{"a", "b"}})
	assert.Equal(t, []string{"a", "b"}, grantedScopes(tok, requested))

	tok = (&oauth2.Token{}).WithExtra(map[string]interface{}{"scope": "a b"})
	assert.Equal(t, []string{"a", "b"}, grantedScopes(tok, requested))

	assert.Equal(t, requested, grantedScopes(&oauth2.Token{}, requested))
}

func TestAuthorizeUser_ContextCancelled(t *testing.T) {
	a := newTestAuthClient(t, "", "")
	a.Aconfig.RedirectUri = "http://localhost/v1/callback"
	var opened string
	a.OpenBrowser = func(u string) error {
		opened = u
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := a.AuthorizeUser(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, opened, "client_id=client-1")
	assert.NotZero(t, a.Aconfig.Port)
}

func TestStartLoopbackService_ClientWithoutConstructor(t *testing.T) {
	port, err := getFreeLocalPort()
	require.NoError(t, err)

	a := &AuthClient{
		Aconfig: &AuthConfig{
			State:       "state-1",
			RedirectUri: fmt.Sprintf("http://localhost:%d/v1/callback", port),
		},
	}
	a.OpenBrowser = func(string) error {
		q := url.Values{"state": {"state-1"}, "error": {"access_denied"}}
		res, err := http.Get(a.Aconfig.RedirectUri + "?" + q.Encode())
		if err != nil {
			return err
		}
		return res.Body.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = a.StartLoopbackService(ctx, "https://id.example/authorize")
	require.Error(t, err)
	assert.NotErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "access_denied")
}
