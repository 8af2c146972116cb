package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"

	"applypilot-backend/internal/session"
	sharedauth "applypilot-backend/internal/shared/auth"
	"applypilot-backend/internal/shared/server/middleware"
	"applypilot-backend/internal/shared/server/respond"
	"applypilot-backend/internal/shared/telemetry"
	"applypilot-backend/internal/users"
)

const defaultUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// Options configures the Google sign-in flow.
type Options struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	UIRedirect   string
	// GmailSend requests permission to send mail as the user.
	GmailSend bool
	// Endpoint and UserInfoURL default to Google's.
	Endpoint    oauth2.Endpoint
	UserInfoURL string
}

// GoogleService handles sign-in, session open and sign-out.
type GoogleService struct {
	oauthConfig *oauth2.Config
	uiRedirect  string
	userInfoURL string
	stateTTL    time.Duration
	stateStore  *stateStore

	Sessions *session.Store
	Users    *users.Service
	// OnClose runs after sign-out with the removed session.
	OnClose func(context.Context, session.Session)
}

// NewGoogleService builds a GoogleService.
func NewGoogleService(opts Options, sessions *session.Store, usersSvc *users.Service) *GoogleService {
	scopes := []string{
		"https://www.googleapis.com/auth/userinfo.email",
		"https://www.googleapis.com/auth/userinfo.profile",
	}
	if opts.GmailSend {
		scopes = append(scopes, gmailapi.GmailSendScope)
	}
	endpoint := opts.Endpoint
	if endpoint.TokenURL == "" {
		endpoint = google.Endpoint
	}
	userInfoURL := opts.UserInfoURL
	if userInfoURL == "" {
		userInfoURL = defaultUserInfoURL
	}
	return &GoogleService{
		oauthConfig: &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			RedirectURL:  opts.RedirectURL,
			Scopes:       scopes,
			Endpoint:     endpoint,
		},
		uiRedirect:  opts.UIRedirect,
		userInfoURL: userInfoURL,
		stateTTL:    5 * time.Minute,
		stateStore:  newStateStore(),
		Sessions:    sessions,
		Users:       usersSvc,
	}
}

// OAuthConfig is shared with the Gmail deliverer so it can refresh tokens.
func (s *GoogleService) OAuthConfig() *oauth2.Config {
	return s.oauthConfig
}

// RegisterRoutes attaches auth routes.
func (s *GoogleService) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/auth/google/start", s.start)
	rg.GET("/auth/google/callback", s.callback)
	rg.POST("/auth/signout", s.signOut)
}

func (s *GoogleService) start(c *gin.Context) {
	if s.oauthConfig.ClientID == "" || s.oauthConfig.ClientSecret == "" || s.oauthConfig.RedirectURL == "" {
		respond.Error(c, http.StatusInternalServerError, "auth_not_configured", "Google auth not configured", nil)
		return
	}

	state := uuid.NewString()
	s.stateStore.put(state, time.Now().Add(s.stateTTL))

	url := s.oauthConfig.AuthCodeURL(state, oauth2.AccessTypeOffline)
	c.Redirect(http.StatusFound, url)
}

func (s *GoogleService) callback(c *gin.Context) {
	state := c.Query("state")
	code := c.Query("code")
	if state == "" || code == "" {
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "missing state or code", nil)
		return
	}
	if !s.stateStore.consume(state) {
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "invalid or expired state", nil)
		return
	}

	ctx := c.Request.Context()
	token, err := s.oauthConfig.Exchange(ctx, code)
	if err != nil {
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "failed to exchange code", nil)
		return
	}

	info, err := s.fetchUserInfo(ctx, token)
	if err != nil {
		respond.Error(c, http.StatusBadGateway, "auth_failed", "failed to fetch user profile", nil)
		return
	}
	if info.Sub == "" {
		respond.Error(c, http.StatusBadGateway, "auth_failed", "invalid user profile", nil)
		return
	}

	uid := "google:" + info.Sub
	if _, err := s.Sessions.Open(session.Identity{UID: uid, Name: info.Name, Email: info.Email, Token: token}); err != nil {
		respond.Error(c, http.StatusInternalServerError, respond.CodeInternal, "failed to open session", nil)
		return
	}
	s.sync(ctx, uid, info)
	s.notify(uid, session.KindSuccess, "Welcome to ApplyPilot!", "Successfully signed in with Google")

	jwt, err := sharedauth.IssueJWT(sharedauth.Claims{Sub: uid, Email: info.Email, Name: info.Name})
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, respond.CodeInternal, "failed to issue token", nil)
		return
	}
	redirectURL, err := appendToken(s.uiRedirect, jwt)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, respond.CodeInternal, "failed to redirect", nil)
		return
	}
	telemetry.Info("auth.signed_in", map[string]any{"user_id": uid})
	c.Redirect(http.StatusFound, redirectURL)
}

// sync records the sign-in. Failure only costs the user a warning toast.
func (s *GoogleService) sync(ctx context.Context, uid string, info googleUserInfo) {
	err := s.Users.UpsertFromAuth(ctx, users.User{
		ID:         uid,
		Email:      info.Email,
		Name:       info.Name,
		PictureURL: info.Picture,
	})
	if err == nil {
		return
	}
	telemetry.Warn("session.sync_failed", map[string]any{"user_id": uid, "error": err.Error()})
	s.notify(uid, session.KindWarning, "Profile sync failed", "You are signed in, but your profile could not be saved")
}

func (s *GoogleService) signOut(c *gin.Context) {
	uid := middleware.UserIDFromContext(c)
	closed, err := s.Sessions.Close(uid)
	switch {
	case err == nil:
		if s.OnClose != nil {
			s.OnClose(context.WithoutCancel(c.Request.Context()), closed)
		}
	case errors.Is(err, session.ErrNotFound):
		// Already gone; sign-out is idempotent.
	default:
		respond.Error(c, http.StatusInternalServerError, respond.CodeInternal, "failed to sign out", nil)
		return
	}
	telemetry.Info("auth.signed_out", map[string]any{"user_id": uid})
	respond.JSON(c, http.StatusOK, gin.H{
		"notification": session.Notification{
			Kind:        session.KindSuccess,
			Title:       "Signed out successfully",
			Description: "See you next time!",
			CreatedAt:   time.Now().UTC(),
		},
	})
}

func (s *GoogleService) notify(uid string, kind session.Kind, title, desc string) {
	if err := s.Sessions.Notify(uid, session.Notification{Kind: kind, Title: title, Description: desc}); err != nil {
		telemetry.Error("session.notify_failed", map[string]any{"user_id": uid, "error": err.Error()})
	}
}

type googleUserInfo struct {
	Sub     string `json:"sub"`
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

func (s *GoogleService) fetchUserInfo(ctx context.Context, token *oauth2.Token) (googleUserInfo, error) {
	client := s.oauthConfig.Client(ctx, token)
	resp, err := client.Get(s.userInfoURL)
	if err != nil {
		return googleUserInfo{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return googleUserInfo{}, fmt.Errorf("userinfo status %d", resp.StatusCode)
	}

	var info googleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return googleUserInfo{}, err
	}

	// Some responses use "id" instead of "sub".
	if info.Sub == "" {
		info.Sub = info.ID
	}
	return info, nil
}

type stateStore struct {
	items map[string]time.Time
	mu    sync.Mutex
}

func newStateStore() *stateStore {
	return &stateStore{items: make(map[string]time.Time)}
}

func (s *stateStore) put(state string, exp time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for k, v := range s.items {
		if now.After(v) {
			delete(s.items, k)
		}
	}
	s.items[state] = exp
}

func (s *stateStore) consume(state string) bool {
	s.mu.Lock()
	exp, ok := s.items[state]
	if ok {
		delete(s.items, state)
	}
	s.mu.Unlock()
	return ok && !time.Now().After(exp)
}

func appendToken(rawURL, token string) (string, error) {
	if rawURL == "" {
		return "", errors.New("redirect url required")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
