// Package oauth wraps the Google authorization code flow.
package oauth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"musinotes/config"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// UserInfoURL is Google's profile endpoint for the "profile email" scopes.
const UserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// ErrNoEmail is returned when Google does not share an email address.
var ErrNoEmail = errors.New("google profile has no email")

// Profile is the subset of the Google profile used to sign a user in.
type Profile struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
}

// Provider runs the authorization code exchange and profile lookup.
type Provider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*Profile, error)
}

// GoogleProvider is the production Provider.
type GoogleProvider struct {
	config      *oauth2.Config
	userInfoURL string
}

// NewGoogleProvider builds a provider from the Google client settings.
func NewGoogleProvider(cfg config.GoogleConfig) *GoogleProvider {
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"profile", "email"},
			Endpoint:     google.Endpoint,
		},
		userInfoURL: UserInfoURL,
	}
}

func (p *GoogleProvider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state)
}

// Exchange trades code for a token and fetches the profile with it.
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*Profile, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.config.Client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch google profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("google profile request failed with status %d: %s", resp.StatusCode, body)
	}

	var profile Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("failed to decode google profile: %w", err)
	}
	if profile.ID == "" {
		return nil, errors.New("google profile has no id")
	}
	if profile.Email == "" {
		return nil, ErrNoEmail
	}
	profile.Email = strings.ToLower(profile.Email)
	return &profile, nil
}

// NewState returns a random CSRF state value.
func NewState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate oauth state: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

var usernameStrip = regexp.MustCompile(`[^a-z0-9_]`)

const (
	minUsername = 3
	// maxBaseUsername leaves room for a collision suffix within the 50-char column.
	maxBaseUsername = 40
)

// BaseUsername derives a username candidate from the display name, or the email
// local part when there is none. Names too short to be a valid username get a
// generated one. Collisions are resolved by the caller.
func BaseUsername(p *Profile) string {
	source := p.Name
	if strings.TrimSpace(source) == "" {
		source, _, _ = strings.Cut(p.Email, "@")
	}
	base := usernameStrip.ReplaceAllString(strings.ToLower(source), "")
	if len(base) < minUsername {
		base = "user_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	}
	if len(base) > maxBaseUsername {
		base = base[:maxBaseUsername]
	}
	return base
}
