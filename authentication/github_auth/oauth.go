package github_auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/go-github/github"
	"github.com/gorilla/sessions"
	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog"
	"github.com/tommell/broadsheet/authentication"
	"golang.org/x/oauth2"
)

const sessionKey = "broadsheet-session"

// Handler authenticates users against Github through OAuth, storing the
// resulting identity in a cookie session.
type Handler struct {
	sessionStore *sessions.CookieStore
	clientID     string
	clientSecret string
	logger       zerolog.Logger
	oauthConfig  *oauth2.Config
}

func New(serverSecret string, clientID string, clientSecret string, logger zerolog.Logger) *Handler {
	sessionStore := sessions.NewCookieStore([]byte(serverSecret))
	oauthConfig := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://github.com/login/oauth/authorize",
			TokenURL: "https://github.com/login/oauth/access_token",
		},
		RedirectURL: "",
		Scopes:      []string{"user:email"},
	}
	return &Handler{
		sessionStore: sessionStore,
		clientID:     clientID,
		clientSecret: clientSecret,
		logger:       logger,
		oauthConfig:  oauthConfig,
	}
}

// loadUserData fetches the authenticated Github user and stores it in the
// session. It returns what was stored.
func (h *Handler) loadUserData(token *oauth2.Token, req *http.Request, res http.ResponseWriter) (*authentication.User, error) {
	session, err := h.sessionStore.Get(req, sessionKey)
	if err != nil {
		return nil, err
	}

	client := github.NewClient(h.oauthConfig.Client(context.Background(), token))

	user, _, err := client.Users.Get(context.Background(), "")
	if err != nil {
		return nil, err
	}
	if user.Login == nil {
		return nil, fmt.Errorf("github user has no login")
	}

	userSession := &authentication.User{
		Login: *user.Login,
	}
	if user.Email != nil {
		userSession.Email = *user.Email
	}
	if user.AvatarURL != nil {
		userSession.AvatarURL = *user.AvatarURL
	}

	if e := h.logger.Debug(); e.Enabled() {
		var userMap map[string]interface{}
		mapstructure.Decode(user, &userMap)
		e.Fields(userMap).Msg("github user data")
	}

	b, err := json.Marshal(userSession)
	if err != nil {
		return nil, err
	}

	session.Values["user"] = b
	if err := session.Save(req, res); err != nil {
		return nil, err
	}

	return userSession, nil
}

func (h *Handler) CurrentUser(req *http.Request) (*authentication.User, error) {
	session, err := h.sessionStore.Get(req, sessionKey)
	if err != nil {
		return nil, err
	}

	b, ok := session.Values["user"].([]byte)
	if !ok {
		return nil, nil
	}

	var userSession authentication.User
	if err := json.Unmarshal(b, &userSession); err != nil {
		return nil, err
	}

	return &userSession, nil
}

// SignIn writes an already resolved identity into the session. The OAuth
// callback path goes through loadUserData instead.
func (h *Handler) SignIn(res http.ResponseWriter, req *http.Request, user *authentication.User) error {
	session, err := h.sessionStore.Get(req, sessionKey)
	if err != nil {
		return err
	}

	b, err := json.Marshal(user)
	if err != nil {
		return err
	}

	session.Values["user"] = b

	return session.Save(req, res)
}

func (h *Handler) Start(res http.ResponseWriter, req *http.Request) {
	b := make([]byte, 16)
	rand.Read(b)

	state := base64.URLEncoding.EncodeToString(b)

	session, _ := h.sessionStore.Get(req, sessionKey)
	session.Values["state"] = state
	session.Save(req, res)

	url := h.oauthConfig.AuthCodeURL(state)
	http.Redirect(res, req, url, http.StatusFound)
}

func (h *Handler) Callback(res http.ResponseWriter, req *http.Request, beforeWriteCallback func(*authentication.User) error) {
	session, err := h.sessionStore.Get(req, sessionKey)
	if err != nil {
		http.Error(res, "Session aborted", http.StatusInternalServerError)
		return
	}

	if req.URL.Query().Get("state") != session.Values["state"] {
		http.Error(res, "no state match; possible csrf OR cookies not enabled", http.StatusInternalServerError)
		return
	}

	token, err := h.oauthConfig.Exchange(context.Background(), req.URL.Query().Get("code"))
	if err != nil {
		http.Error(res, "there was an issue getting your token", http.StatusInternalServerError)
		return
	}

	if !token.Valid() {
		http.Error(res, "retrieved invalid token", http.StatusBadRequest)
		return
	}

	user, err := h.loadUserData(token, req, res)
	if err != nil {
		h.logger.Error().Err(err).Msg("couldn't load user data from Github")
		http.Error(res, "couldn't load user data from Github", http.StatusInternalServerError)
		return
	}

	if beforeWriteCallback != nil {
		if err := beforeWriteCallback(user); err != nil {
			h.logger.Error().Err(err).Msg("oauth callback failed")
			http.Error(res, "failed to execute oauth callback", http.StatusInternalServerError)
			return
		}
	}

	http.Redirect(res, req, "/", http.StatusFound)
}

func (h *Handler) Destroy(res http.ResponseWriter, req *http.Request) {
	session, err := h.sessionStore.Get(req, sessionKey)
	if err != nil {
		http.Error(res, "aborted", http.StatusInternalServerError)
		return
	}

	// kill the session
	session.Options.MaxAge = -1
	session.Values["user"] = nil
	session.Save(req, res)

	http.Redirect(res, req, "/", http.StatusFound)
}
