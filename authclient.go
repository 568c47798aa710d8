package twitch_widget

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	cv "github.com/nirasan/go-oauth-pkce-code-verifier"
	"github.com/skratchdot/open-golang/open"
	"golang.org/x/oauth2"
)

var (
	ErrNoFreePort          = errors.New("no free port")
	ErrCodeNotFound        = errors.New("could not find 'code' URL parameter")
	ErrStateMismatch       = errors.New("'state' URL parameter does not match")
	ErrAccessTokenNotFound = errors.New("could not retrieve access token")
)

const defaultWelcomeHtml = `<!DOCTYPE html>
<html><body><p>twitch-tmux-widget is authorized. You can close this window.</p></body></html>`

type authResult struct {
	record *TokenRecord
	err    error
}

// AuthClient runs the interactive authorization code flow that produces the
// first TokenRecord.
type AuthClient struct {
	codeChallenge  string
	codeVerifier   *cv.CodeVerifier
	WelcomeHtml    string
	loopBackServer *http.Server
	results        chan authResult
	Aconfig        *AuthConfig
	HTTPClient     *http.Client
	Now            func() time.Time
	OpenBrowser    func(url string) error
}

func NewAuthClient(authConfig *AuthConfig) *AuthClient {
	html, err := os.ReadFile(authConfig.WelcomeFileName)
	if err != nil {
		Log.Debugf("welcome html file %s not readable, using default: %v", authConfig.WelcomeFileName, err)
		html = []byte(defaultWelcomeHtml)
	}
	return &AuthClient{
		WelcomeHtml: string(html),
		Aconfig:     authConfig,
		HTTPClient:  &http.Client{Timeout: 30 * time.Second},
		Now:         time.Now,
		OpenBrowser: open.Start,
		results:     make(chan authResult, 1),
	}
}

func (a *AuthClient) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     a.Aconfig.ClientId,
		ClientSecret: a.Aconfig.ClientSecret.Reveal(),
		Endpoint: oauth2.Endpoint{
			AuthURL:   a.Aconfig.AuthzUri,
			TokenURL:  a.Aconfig.TokenUri,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		RedirectURL: a.Aconfig.RedirectUri,
		Scopes:      a.Aconfig.Scopes,
	}
}

// AuthorizeUser implements the authorization code flow, with PKCE when no
// client secret is configured, and returns the resulting record.
func (a *AuthClient) AuthorizeUser(ctx context.Context) (*TokenRecord, error) {
	a.Aconfig.SetPkce()

	err := a.Aconfig.SetRedirectUri()
	if err != nil {
		return nil, err
	}

	authorizationURL, err := a.authorizationURL()
	if err != nil {
		return nil, err
	}

	record, err := a.StartLoopbackService(ctx, authorizationURL)
	if err != nil {
		Log.Errorf("Start loopback service err: %v", err)
		return nil, err
	}
	return record, nil
}

func (a *AuthClient) authorizationURL() (string, error) {
	var opts []oauth2.AuthCodeOption
	if a.Aconfig.UsePkce {
		var err error
		a.codeVerifier, err = cv.CreateCodeVerifier()
		if err != nil {
			return "", fmt.Errorf("create code verifier: %w", err)
		}
		if a.Aconfig.CodeChallengeMethod == "plain" {
			a.codeChallenge = a.codeVerifier.CodeChallengePlain()
		} else {
			a.codeChallenge = a.codeVerifier.CodeChallengeS256()
		}
		opts = append(opts,
			oauth2.SetAuthURLParam("code_challenge", a.codeChallenge),
			oauth2.SetAuthURLParam("code_challenge_method", a.Aconfig.CodeChallengeMethod))
	}
	return a.oauthConfig().AuthCodeURL(a.Aconfig.State, opts...), nil
}

// getAccessToken trades the authorization code retrieved from the first OAuth2 leg for a token record
func (a *AuthClient) getAccessToken(ctx context.Context, authorizationCode string) (*TokenRecord, error) {
	var opts []oauth2.AuthCodeOption
	if a.Aconfig.UsePkce && a.codeVerifier != nil {
		opts = append(opts, oauth2.SetAuthURLParam("code_verifier", a.codeVerifier.String()))
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.HTTPClient)
	tok, err := a.oauthConfig().Exchange(ctx, authorizationCode, opts...)
	if err != nil {
		Log.Errorf("token exchange failed: %s", err)
		return nil, fmt.Errorf("%w: %w", ErrAccessTokenNotFound, err)
	}

	record := &TokenRecord{
		AccessToken:  Secret(tok.AccessToken),
		RefreshToken: Secret(tok.RefreshToken),
		ClientID:     a.Aconfig.ClientId,
		ClientSecret: a.Aconfig.ClientSecret,
		Scopes:       grantedScopes(tok, a.Aconfig.Scopes),
	}
	if secs, ok := expiresIn(tok); ok {
		record.ExpiresAt = a.Now().Add(time.Duration(secs) * time.Second).UTC()
	} else if !tok.Expiry.IsZero() {
		record.ExpiresAt = tok.Expiry.UTC()
	}

	if err := a.resolveIdentity(ctx, tok, record); err != nil {
		return nil, err
	}
	return record, nil
}

func grantedScopes(tok *oauth2.Token, requested []string) []string {
	switch v := tok.Extra("scope").(type) {
	case []interface{}:
		scopes := make([]string, 0, len(v))
		for _, s := range v {
			if str, ok := s.(string); ok {
				scopes = append(scopes, str)
			}
		}
		return scopes
	case string:
		if v != "" {
			return strings.Fields(v)
		}
	}
	return requested
}

// resolveIdentity fills Login and UserID, from the OIDC id_token when the
// server issued one, otherwise from the validate endpoint.
func (a *AuthClient) resolveIdentity(ctx context.Context, tok *oauth2.Token, record *TokenRecord) error {
	if idToken, ok := tok.Extra("id_token").(string); ok && idToken != "" {
		claims := jwt.MapClaims{}
		if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
			Log.Warnf("unreadable id_token, falling back to validate endpoint: %v", err)
		} else {
			record.UserID, _ = claims["sub"].(string)
			login, _ := claims["preferred_username"].(string)
			record.Login = strings.ToLower(login)
			if record.UserID != "" && record.Login != "" {
				return nil
			}
		}
	}
	return a.validateToken(ctx, record)
}

type validateResponse struct {
	ClientID  string   `json:"client_id"`
	Login     string   `json:"login"`
	UserID    string   `json:"user_id"`
	Scopes    []string `json:"scopes"`
	ExpiresIn int64    `json:"expires_in"`
}

func (a *AuthClient) validateToken(ctx context.Context, record *TokenRecord) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.Aconfig.ValidateUri, nil)
	if err != nil {
		return fmt.Errorf("create validate request: %w", err)
	}
	req.Header.Set("Authorization", "OAuth "+record.AccessToken.Reveal())

	res, err := a.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("validate token: %w", err)
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("read validate response: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: validate returned status %d: %s", ErrUnauthorized, res.StatusCode, string(body))
	}

	var v validateResponse
	if err := json.Unmarshal(body, &v); err != nil {
		return fmt.Errorf("parse validate response: %w", err)
	}
	record.Login = v.Login
	record.UserID = v.UserID
	if len(v.Scopes) > 0 {
		record.Scopes = v.Scopes
	}
	return nil
}
