package twitch_widget

import "time"

// TokenRecord is the persisted user credential. A zero ExpiresAt means the
// expiry is unknown; an empty RefreshToken means none was issued.
type TokenRecord struct {
	AccessToken  Secret
	RefreshToken Secret
	ClientID     string
	ClientSecret Secret
	Login        string
	UserID       string
	ExpiresAt    time.Time
	Scopes       []string
}

func (r *TokenRecord) CanRefresh() bool {
	return r.RefreshToken.IsSet()
}

// storedToken is the on-disk layout. Field names are kept stable so token
// files written by earlier releases still load.
type storedToken struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken *string    `json:"refresh_token"`
	ClientID     string     `json:"client_id"`
	ClientSecret *string    `json:"client_secret"`
	Login        string     `json:"login"`
	UserID       string     `json:"user_id"`
	ExpiresAt    *time.Time `json:"expires_at"`
	Scopes       *[]string  `json:"scopes,omitempty"`
}

func optional(s Secret) *string {
	if !s.IsSet() {
		return nil
	}
	v := s.Reveal()
	return &v
}

func newStoredToken(r *TokenRecord) *storedToken {
	st := &storedToken{
		AccessToken:  r.AccessToken.Reveal(),
		RefreshToken: optional(r.RefreshToken),
		ClientID:     r.ClientID,
		ClientSecret: optional(r.ClientSecret),
		Login:        r.Login,
		UserID:       r.UserID,
	}
	if r.Scopes != nil {
		scopes := r.Scopes
		st.Scopes = &scopes
	}
	if !r.ExpiresAt.IsZero() {
		at := r.ExpiresAt.UTC()
		st.ExpiresAt = &at
	}
	return st
}

func (st *storedToken) record() *TokenRecord {
	r := &TokenRecord{
		AccessToken: Secret(st.AccessToken),
		ClientID:    st.ClientID,
		Login:       st.Login,
		UserID:      st.UserID,
	}
	if st.Scopes != nil {
		r.Scopes = *st.Scopes
	}
	if st.RefreshToken != nil {
		r.RefreshToken = Secret(*st.RefreshToken)
	}
	if st.ClientSecret != nil {
		r.ClientSecret = Secret(*st.ClientSecret)
	}
	if st.ExpiresAt != nil {
		r.ExpiresAt = st.ExpiresAt.UTC()
	}
	return r
}
