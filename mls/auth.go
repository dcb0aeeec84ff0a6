package mls

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"mls_syncd/config"
)

// Credential is an upstream access token plus its absolute expiry.
// Held in memory only, never persisted.
type Credential struct {
	Token   string
	Expires time.Time
}

// CredentialBroker caches the upstream credential and re-authenticates
// transparently when the cached one expires within the refresh margin.
type CredentialBroker struct {
	cfg    config.MLSConfig
	client *http.Client
	nowFn  func() time.Time

	mu   sync.Mutex
	cred *Credential
}

func NewCredentialBroker(cfg config.MLSConfig, client *http.Client) *CredentialBroker {
	return &CredentialBroker{
		cfg:    cfg,
		client: client,
		nowFn:  time.Now,
	}
}

// SetNowFunc overrides the clock, for tests.
func (b *CredentialBroker) SetNowFunc(fn func() time.Time) {
	b.nowFn = fn
}

// ValidCredential returns a credential guaranteed to outlive the refresh
// margin, re-authenticating if needed. One outbound call per refresh.
func (b *CredentialBroker) ValidCredential(ctx context.Context) (*Credential, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cred != nil && b.nowFn().Add(b.cfg.RefreshMargin).Before(b.cred.Expires) {
		return b.cred, nil
	}

	cred, err := b.authenticate(ctx)
	if err != nil {
		return nil, err
	}
	b.cred = cred
	return cred, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	Expires     string `json:".expires"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (b *CredentialBroker) authenticate(ctx context.Context) (*Credential, error) {
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("client_id", b.cfg.ClientID)
	form.Set("client_secret", b.cfg.ClientSecret)
	form.Set("username", b.cfg.Username)
	form.Set("password", b.cfg.Password)

	req, err := http.NewRequestWithContext(ctx, "POST", b.cfg.AuthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &AuthError{Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, &AuthError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &AuthError{Status: resp.StatusCode, Msg: string(body)}
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return nil, &AuthError{Msg: "malformed token payload", Err: err}
	}
	if tok.AccessToken == "" {
		return nil, &AuthError{Msg: "token payload missing access_token"}
	}

	expires, err := parseExpiry(&tok, b.nowFn())
	if err != nil {
		return nil, &AuthError{Msg: "token payload missing expiry", Err: err}
	}

	log.Printf("Authenticated with MLS, token valid until %s", expires.Format(time.RFC3339))

	return &Credential{Token: tok.AccessToken, Expires: expires}, nil
}

// parseExpiry handles both the .NET-style absolute ".expires" field the
// identity API sends and the standard expires_in seconds fallback.
func parseExpiry(tok *tokenResponse, now time.Time) (time.Time, error) {
	if tok.Expires != "" {
		for _, layout := range []string{time.RFC1123, time.RFC1123Z, time.RFC3339} {
			if t, err := time.Parse(layout, tok.Expires); err == nil {
				return t, nil
			}
		}
	}
	if tok.ExpiresIn > 0 {
		return now.Add(time.Duration(tok.ExpiresIn) * time.Second), nil
	}
	return time.Time{}, &AuthError{Msg: "unparseable expiry: " + tok.Expires}
}
