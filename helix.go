package twitch_widget

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var ErrUnauthorized = errors.New("helix rejected the access token")

// StreamInfo is the part of a Helix stream object the widget shows.
type StreamInfo struct {
	Live        bool
	ViewerCount int
	StartedAt   time.Time
}

// HelixClient is a minimal client for the Twitch Helix API.
type HelixClient struct {
	BaseUri    string
	ClientId   string
	HTTPClient *http.Client
}

func NewHelixClient(baseUri, clientId string) *HelixClient {
	return &HelixClient{
		BaseUri:    strings.TrimRight(baseUri, "/"),
		ClientId:   clientId,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type helixStreams struct {
	Data []struct {
		ViewerCount int       `json:"viewer_count"`
		StartedAt   time.Time `json:"started_at"`
	} `json:"data"`
}

type helixUsers struct {
	Data []struct {
		ID    string `json:"id"`
		Login string `json:"login"`
	} `json:"data"`
}

type helixSubscriptions struct {
	Data  []json.RawMessage `json:"data"`
	Total int               `json:"total"`
}

func (c *HelixClient) GetStreamInfo(ctx context.Context, token *TokenRecord, login string) (StreamInfo, error) {
	var streams helixStreams
	if err := c.get(ctx, token, "/streams", url.Values{"user_login": {login}}, &streams); err != nil {
		return StreamInfo{}, err
	}
	if len(streams.Data) == 0 {
		return StreamInfo{}, nil
	}
	return StreamInfo{
		Live:        true,
		ViewerCount: streams.Data[0].ViewerCount,
		StartedAt:   streams.Data[0].StartedAt,
	}, nil
}

// GetSubscriberCount counts the subscribers of login's channel. The token must
// belong to that broadcaster.
func (c *HelixClient) GetSubscriberCount(ctx context.Context, token *TokenRecord, login string) (int, error) {
	broadcasterID, err := c.broadcasterID(ctx, token, login)
	if err != nil {
		return 0, err
	}

	var subs helixSubscriptions
	params := url.Values{"broadcaster_id": {broadcasterID}, "first": {"100"}}
	if err := c.get(ctx, token, "/subscriptions", params, &subs); err != nil {
		return 0, err
	}
	if subs.Total > 0 {
		return subs.Total, nil
	}
	return len(subs.Data), nil
}

func (c *HelixClient) broadcasterID(ctx context.Context, token *TokenRecord, login string) (string, error) {
	if token.UserID != "" && strings.EqualFold(token.Login, login) {
		return token.UserID, nil
	}

	var users helixUsers
	if err := c.get(ctx, token, "/users", url.Values{"login": {login}}, &users); err != nil {
		return "", err
	}
	if len(users.Data) == 0 {
		return "", fmt.Errorf("no twitch user named %q", login)
	}
	return users.Data[0].ID, nil
}

func (c *HelixClient) get(ctx context.Context, token *TokenRecord, path string, params url.Values, out interface{}) error {
	endpoint := c.BaseUri + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request %s: %w", path, err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken.Reveal())
	req.Header.Set("Client-Id", c.ClientId)
	req.Header.Set("Accept", "application/json")

	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("helix %s: %w", path, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("read helix %s response: %w", path, err)
	}
	switch {
	case res.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrUnauthorized, string(body))
	case res.StatusCode != http.StatusOK:
		return fmt.Errorf("helix %s returned status %d: %s", path, res.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse helix %s response: %w", path, err)
	}
	Log.Debugf("helix %s ok", path)
	return nil
}
