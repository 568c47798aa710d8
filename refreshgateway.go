package twitch_widget

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/oauth2"
)

var (
	ErrCannotRefresh = errors.New("token needs refresh but has no refresh token")
	ErrRefreshDenied = errors.New("authorization server rejected the refresh token")
	ErrNetwork       = errors.New("could not reach the authorization server")
)

// RefreshGateway trades a record's refresh token for a new access token.
type RefreshGateway interface {
	Refresh(ctx context.Context, record *TokenRecord) (*TokenRecord, error)
}

// OAuth2RefreshGateway performs the standard refresh_token grant.
type OAuth2RefreshGateway struct {
	TokenUri   string
	HTTPClient *http.Client
	Now        func() time.Time
}

func NewOAuth2RefreshGateway(tokenUri string) *OAuth2RefreshGateway {
	return &OAuth2RefreshGateway{
		TokenUri:   tokenUri,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Now:        time.Now,
	}
}

func (g *OAuth2RefreshGateway) Refresh(ctx context.Context, record *TokenRecord) (*TokenRecord, error) {
	if !record.CanRefresh() {
		return nil, ErrCannotRefresh
	}

	conf := &oauth2.Config{
		ClientID:     record.ClientID,
		ClientSecret: record.ClientSecret.Reveal(),
		Endpoint: oauth2.Endpoint{
			TokenURL:  g.TokenUri,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	if g.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, g.HTTPClient)
	}

	// A token with only a refresh token is never valid, so the source
	// always goes to the token endpoint.
	tok, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: record.RefreshToken.Reveal()}).Token()
	if err != nil {
		var rErr *oauth2.RetrieveError
		if errors.As(err, &rErr) && isDenial(rErr) {
			Log.Warnf("refresh rejected: %s", rErr.ErrorCode)
			return nil, fmt.Errorf("%w: %w", ErrRefreshDenied, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}

	secs, ok := expiresIn(tok)
	if !ok {
		return nil, fmt.Errorf("%w: token response has no expires_in", ErrNetwork)
	}

	refreshed := &TokenRecord{
		AccessToken:  Secret(tok.AccessToken),
		RefreshToken: record.RefreshToken,
		ClientID:     record.ClientID,
		ClientSecret: record.ClientSecret,
		Login:        record.Login,
		UserID:       record.UserID,
		Scopes:       record.Scopes,
	}
	if tok.RefreshToken != "" {
		refreshed.RefreshToken = Secret(tok.RefreshToken)
	}
	refreshed.ExpiresAt = g.now().Add(time.Duration(secs) * time.Second).UTC()
	Log.WithField("login", record.Login).Infof("access token refreshed, expires at %s", refreshed.ExpiresAt.Format(time.RFC3339))
	return refreshed, nil
}

func (g *OAuth2RefreshGateway) now() time.Time {
	if g.Now == nil {
		return time.Now()
	}
	return g.Now()
}

// expiresIn reads the server-reported lifetime in seconds from the raw token
// response.
func expiresIn(tok *oauth2.Token) (int64, bool) {
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		return int64(v), v > 0
	case string:
		secs, err := strconv.ParseInt(v, 10, 64)
		return secs, err == nil && secs > 0
	}
	return 0, false
}

// isDenial reports whether the token endpoint refused the grant itself. Server
// errors and rate limiting are transient and only a 4xx answer means the
// refresh token or client credentials are no longer accepted.
func isDenial(rErr *oauth2.RetrieveError) bool {
	if rErr.Response == nil {
		return rErr.ErrorCode != ""
	}
	code := rErr.Response.StatusCode
	return code >= 400 && code < 500 && code != http.StatusTooManyRequests
}
