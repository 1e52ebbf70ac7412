package session

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/mikey/mailbox-triage/internal/ports"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// ErrInteractionRequired is returned when a new consent is needed but no
// terminal is available to complete it
var ErrInteractionRequired = errors.New("no valid token and interactive authorization is disabled")

// GoogleProvider obtains an authorized token source for Google APIs.
// Stored tokens are refreshed when expired; when no usable token exists the
// installed-app consent flow is run on the attached terminal.
type GoogleProvider struct {
	oauthConfig *oauth2.Config
	store       ports.TokenStore
	account     string
	in          io.Reader
	out         io.Writer
	logger      *zap.Logger
}

// NewGoogleProvider creates a provider for an OAuth client configuration
func NewGoogleProvider(
	oauthConfig *oauth2.Config,
	store ports.TokenStore,
	account string,
	logger *zap.Logger,
) *GoogleProvider {
	return &GoogleProvider{
		oauthConfig: oauthConfig,
		store:       store,
		account:     account,
		in:          os.Stdin,
		out:         os.Stderr,
		logger:      logger,
	}
}

// NewGoogleProviderFromFile loads the OAuth client from a downloaded
// credentials.json
func NewGoogleProviderFromFile(
	credentialsFile string,
	scopes []string,
	store ports.TokenStore,
	account string,
	logger *zap.Logger,
) (*GoogleProvider, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read OAuth credentials: %w", err)
	}

	oauthConfig, err := google.ConfigFromJSON(data, scopes...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse OAuth credentials: %w", err)
	}

	return NewGoogleProvider(oauthConfig, store, account, logger), nil
}

// WithPrompt sets where the consent flow reads the authorization code and
// writes instructions. A nil reader disables the consent flow.
func (p *GoogleProvider) WithPrompt(in io.Reader, out io.Writer) *GoogleProvider {
	p.in = in
	p.out = out
	return p
}

// TokenSource returns a token source that is valid now and persists every
// refreshed token. ctx must outlive the returned source.
func (p *GoogleProvider) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	token, err := p.store.Load(ctx, p.account)
	switch {
	case errors.Is(err, ports.ErrTokenNotFound):
		token = nil
	case err != nil:
		return nil, fmt.Errorf("failed to load stored token: %w", err)
	}

	if token != nil {
		fresh, err := p.oauthConfig.TokenSource(ctx, token).Token()
		if err != nil {
			p.logger.Error("Failed to refresh token", zap.Error(err))
			token = nil
		} else {
			token = fresh
		}
	}

	if token == nil {
		token, err = p.authorize(ctx)
		if err != nil {
			return nil, err
		}
	}

	if err := p.store.Save(ctx, p.account, token); err != nil {
		return nil, fmt.Errorf("failed to persist token: %w", err)
	}

	return &persistingSource{
		base:    oauth2.ReuseTokenSource(token, p.oauthConfig.TokenSource(ctx, token)),
		store:   p.store,
		account: p.account,
		last:    token.AccessToken,
		logger:  p.logger,
	}, nil
}

// authorize runs the installed-app consent flow
func (p *GoogleProvider) authorize(ctx context.Context) (*oauth2.Token, error) {
	if p.in == nil {
		return nil, ErrInteractionRequired
	}

	state, err := randomState()
	if err != nil {
		return nil, err
	}

	authURL := p.oauthConfig.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	fmt.Fprintf(p.out, "Open the following URL in a browser and authorize access:\n\n%s\n\n", authURL)
	fmt.Fprint(p.out, "Paste the authorization code or the full redirect URL: ")

	line, err := bufio.NewReader(p.in).ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || strings.TrimSpace(line) == "") {
		return nil, fmt.Errorf("failed to read authorization code: %w", err)
	}

	code, err := parseAuthorizationCode(line, state)
	if err != nil {
		return nil, err
	}

	token, err := p.oauthConfig.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	p.logger.Info("Obtained new OAuth token", zap.String("account", p.account))
	return token, nil
}

// parseAuthorizationCode accepts either a bare code or the redirect URL
// the browser landed on
func parseAuthorizationCode(input, state string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", errors.New("empty authorization code")
	}

	if !strings.Contains(input, "://") {
		return input, nil
	}

	u, err := url.Parse(input)
	if err != nil {
		return "", fmt.Errorf("invalid redirect URL: %w", err)
	}
	query := u.Query()
	if got := query.Get("state"); got != "" && got != state {
		return "", errors.New("authorization state mismatch")
	}
	code := query.Get("code")
	if code == "" {
		return "", errors.New("redirect URL has no code parameter")
	}
	return code, nil
}

func randomState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// persistingSource saves each newly refreshed token
type persistingSource struct {
	base    oauth2.TokenSource
	store   ports.TokenStore
	account string
	logger  *zap.Logger

	mu   sync.Mutex
	last string
}

func (s *persistingSource) Token() (*oauth2.Token, error) {
	token, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if token.AccessToken != s.last {
		if err := s.store.Save(context.Background(), s.account, token); err != nil {
			s.logger.Error("Failed to persist refreshed token", zap.Error(err))
		} else {
			s.last = token.AccessToken
			s.logger.Debug("Persisted refreshed token", zap.String("account", s.account))
		}
	}

	return token, nil
}
