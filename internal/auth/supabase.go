package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	gotrue "github.com/supabase-community/auth-go"
	"github.com/supabase-community/auth-go/types"
)

// SupabaseProvider delegates account operations to a hosted GoTrue instance.
type SupabaseProvider struct {
	client gotrue.Client
}

// NewSupabaseProvider constructs a SupabaseProvider for the project at baseURL.
func NewSupabaseProvider(baseURL, anonKey string) (*SupabaseProvider, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	anonKey = strings.TrimSpace(anonKey)
	if baseURL == "" || anonKey == "" {
		return nil, errors.New("SUPABASE_URL and SUPABASE_ANON_KEY are required")
	}
	client := gotrue.New("", anonKey).
		WithCustomAuthURL(baseURL + "/auth/v1").
		WithClient(http.Client{Timeout: 10 * time.Second})
	return &SupabaseProvider{client: client}, nil
}

func (p *SupabaseProvider) Name() string { return "supabase" }

// The SDK calls carry no context, so a cancelled request only stops waiting on the result.
func (p *SupabaseProvider) SignUp(ctx context.Context, email, password, fullName string) (Session, error) {
	email, err := validateCredentials(email, password)
	if err != nil {
		return Session{}, err
	}
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	resp, err := p.client.Signup(types.SignupRequest{
		Email:    email,
		Password: password,
		Data:     map[string]interface{}{"full_name": strings.TrimSpace(fullName)},
	})
	if err != nil {
		status, gerr := parseUpstream(err)
		msg := strings.ToLower(gerr.text())
		switch {
		case strings.Contains(msg, "already registered") || gerr.ErrorCode == "user_already_exists":
			return Session{}, ErrEmailTaken
		case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
			return Session{}, fmt.Errorf("%w: %s", ErrInvalidInput, gerr.text())
		default:
			return Session{}, upstreamError(status, gerr, err)
		}
	}

	user := resp.User
	if resp.Session.AccessToken != "" {
		user = resp.Session.User
	}
	return toSession(resp.Session, user), nil
}

func (p *SupabaseProvider) Login(ctx context.Context, email, password string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	resp, err := p.client.SignInWithEmailPassword(strings.ToLower(strings.TrimSpace(email)), password)
	if err != nil {
		status, gerr := parseUpstream(err)
		if status == http.StatusBadRequest || status == http.StatusUnauthorized {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, upstreamError(status, gerr, err)
	}
	return toSession(resp.Session, resp.Session.User), nil
}

func (p *SupabaseProvider) Logout(ctx context.Context, accessToken string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.client.WithToken(accessToken).Logout(); err != nil {
		status, gerr := parseUpstream(err)
		if status == http.StatusUnauthorized || status == http.StatusForbidden {
			return ErrUnauthorized
		}
		return upstreamError(status, gerr, err)
	}
	return nil
}

func (p *SupabaseProvider) User(ctx context.Context, accessToken string) (Profile, error) {
	if err := ctx.Err(); err != nil {
		return Profile{}, err
	}
	resp, err := p.client.WithToken(accessToken).GetUser()
	if err != nil {
		status, gerr := parseUpstream(err)
		if status == http.StatusUnauthorized || status == http.StatusForbidden {
			return Profile{}, ErrUnauthorized
		}
		return Profile{}, upstreamError(status, gerr, err)
	}
	return toProfile(resp.User), nil
}

type gotrueError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

func (e gotrueError) text() string {
	for _, s := range []string{e.Msg, e.Message, e.ErrorDescription, e.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}

// The SDK reports non-2xx answers as "response status code N: <body>".
var upstreamStatus = regexp.MustCompile(`response status code (\d{3})(?::\s*(.*))?`)

// parseUpstream extracts the HTTP status and decoded error body from an SDK error.
// Transport failures yield status 0.
func parseUpstream(err error) (int, gotrueError) {
	m := upstreamStatus.FindStringSubmatch(err.Error())
	if m == nil {
		return 0, gotrueError{}
	}
	status, _ := strconv.Atoi(m[1])
	var gerr gotrueError
	_ = json.Unmarshal([]byte(m[2]), &gerr)
	return status, gerr
}

func upstreamError(status int, gerr gotrueError, err error) error {
	if status == 0 {
		return fmt.Errorf("supabase: %w", err)
	}
	return &UpstreamError{StatusCode: status, Message: gerr.text()}
}

func toSession(s types.Session, user types.User) Session {
	out := Session{AccessToken: s.AccessToken, User: toProfile(user)}
	switch {
	case s.ExpiresAt > 0:
		out.ExpiresAt = time.Unix(s.ExpiresAt, 0).UTC()
	case s.ExpiresIn > 0:
		out.ExpiresAt = time.Now().UTC().Add(time.Duration(s.ExpiresIn) * time.Second)
	}
	return out
}

func toProfile(u types.User) Profile {
	meta := func(key string) string {
		v, _ := u.UserMetadata[key].(string)
		return v
	}
	return Profile{
		ID:         u.ID.String(),
		Email:      u.Email,
		FullName:   meta("full_name"),
		PictureURL: meta("avatar_url"),
		Provider:   "supabase",
	}
}
