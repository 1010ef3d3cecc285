package reddit

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

const tokenURL = "https://www.reddit.com/api/v1/access_token"

// Credentials identify a Reddit script application and the bot account it acts as.
type Credentials struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	UserAgent    string
}

// passwordTokenSource obtains tokens with the resource-owner password grant,
// which is how Reddit script apps authenticate.
type passwordTokenSource struct {
	ctx      context.Context
	conf     *oauth2.Config
	username string
	password string
}

func (s *passwordTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.conf.PasswordCredentialsToken(s.ctx, s.username, s.password)
	if err != nil {
		return nil, fmt.Errorf("reddit password grant: %w", err)
	}
	return tok, nil
}

// userAgentTransport sets the User-Agent Reddit requires on every request.
type userAgentTransport struct {
	userAgent string
	base      http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(req)
}

// newAuthTransport builds the oauth2 transport stack:
//  1. userAgentTransport (shared by token and API requests)
//  2. oauth2.Transport with a cached, auto-refreshing password-grant token
func newAuthTransport(ctx context.Context, creds Credentials) http.RoundTripper {
	base := &userAgentTransport{userAgent: creds.UserAgent, base: http.DefaultTransport}

	tokenCtx := context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Transport: base})
	conf := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}

	source := oauth2.ReuseTokenSource(nil, &passwordTokenSource{
		ctx:      tokenCtx,
		conf:     conf,
		username: creds.Username,
		password: creds.Password,
	})

	return &oauth2.Transport{Source: source, Base: base}
}
