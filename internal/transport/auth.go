package transport

import (
	"context"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/agentstation/recordsync/pkg/constants"
	"github.com/agentstation/recordsync/pkg/errors"
	"github.com/agentstation/recordsync/pkg/logging"
)

// Authenticator applies authentication to HTTP requests.
type Authenticator interface {
	// Apply sets credentials on req, obtaining them first if needed.
	Apply(ctx context.Context, req *http.Request) error
	// Invalidate discards cached credentials after the server rejected them.
	Invalidate()
}

// NoAuth implements no authentication.
type NoAuth struct{}

// Apply implements the Authenticator interface for NoAuth.
func (NoAuth) Apply(context.Context, *http.Request) error { return nil }

// Invalidate implements the Authenticator interface for NoAuth.
func (NoAuth) Invalidate() {}

// TokenAuth sends a fixed OAuth2 access token.
type TokenAuth struct {
	Token string
}

// Apply implements the Authenticator interface for TokenAuth.
func (a TokenAuth) Apply(_ context.Context, req *http.Request) error {
	req.Header.Set("Authorization", "OAuth2 "+a.Token)
	return nil
}

// Invalidate implements the Authenticator interface for TokenAuth.
func (TokenAuth) Invalidate() {}

// AppCredentials identify an app for the app-token grant.
type AppCredentials struct {
	ClientID     string
	ClientSecret string
	AppID        string
	AppToken     string
}

// Validate checks that every credential is present.
func (c AppCredentials) Validate() error {
	var missing []string
	for name, v := range map[string]string{
		"client_id":     c.ClientID,
		"client_secret": c.ClientSecret,
		"app_id":        c.AppID,
		"app_token":     c.AppToken,
	} {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return errors.NewConfigError("remote", "missing credentials: "+strings.Join(missing, ", "), nil)
	}
	return nil
}

// AppAuth authenticates with the OAuth2 app-token grant and caches the access
// token until shortly before it expires.
type AppAuth struct {
	creds    AppCredentials
	tokenURL string
	http     *http.Client
	now      func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// NewAppAuth creates an AppAuth that obtains tokens from tokenURL.
func NewAppAuth(creds AppCredentials, tokenURL string, httpClient *http.Client) *AppAuth {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: constants.DefaultHTTPTimeout}
	}
	return &AppAuth{creds: creds, tokenURL: tokenURL, http: httpClient, now: time.Now}
}

// Apply implements the Authenticator interface for AppAuth.
func (a *AppAuth) Apply(ctx context.Context, req *http.Request) error {
	token, err := a.Token(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "OAuth2 "+token)
	return nil
}

// Invalidate implements the Authenticator interface for AppAuth.
func (a *AppAuth) Invalidate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.token = ""
	a.expires = time.Time{}
}

// Token returns a valid access token, fetching a new one when the cached token
// is missing or about to expire.
func (a *AppAuth) Token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.token != "" && a.now().Before(a.expires.Add(-constants.TokenExpiryMargin)) {
		return a.token, nil
	}
	tok, err := a.fetch(ctx)
	if err != nil {
		return "", err
	}
	a.token = tok.AccessToken
	a.expires = a.now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return a.token, nil
}

// Authenticate obtains the first token, retrying transient failures up to
// constants.AuthRetries times. Rejected credentials are not retried.
func (a *AppAuth) Authenticate(ctx context.Context) error {
	if err := a.creds.Validate(); err != nil {
		return err
	}
	backoff := retry.WithMaxRetries(constants.AuthRetries-1, retry.NewExponential(constants.RetryBackoff))
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		a.Invalidate()
		_, err := a.Token(ctx)
		if err == nil {
			return nil
		}
		logging.FromContext(ctx).Warn().Err(err).Int("attempt", attempt).Msg("Authentication attempt failed")
		if errors.IsAuthentication(err) {
			return err
		}
		return retry.RetryableError(err)
	})
	if err != nil {
		return errors.NewAuthenticationError("app", "could not obtain an access token", err)
	}
	return nil
}

func (a *AppAuth) fetch(ctx context.Context) (*tokenResponse, error) {
	form := url.Values{
		"grant_type":    {"app"},
		"app_id":        {a.creds.AppID},
		"app_token":     {a.creds.AppToken},
		"client_id":     {a.creds.ClientID},
		"client_secret": {a.creds.ClientSecret},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.WrapResource("create", "request", "POST "+a.tokenURL, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, errors.WrapAPI("authenticate", a.tokenURL, err)
	}

	var tok tokenResponse
	if err := decodeResponse(resp, "authenticate", a.tokenURL, &tok); err != nil {
		var apiErr *errors.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 && apiErr.StatusCode != http.StatusTooManyRequests {
			return nil, errors.NewAuthenticationError("app", apiErr.Message, err)
		}
		return nil, err
	}
	if tok.AccessToken == "" {
		return nil, &errors.APIError{Operation: "authenticate", Endpoint: a.tokenURL, StatusCode: resp.StatusCode, Message: "response has no access_token"}
	}
	return &tok, nil
}
