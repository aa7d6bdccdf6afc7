// Package fake_auth provides an AuthService for tests: every trip through
// /oauth/start signs in a fresh fake user, no provider involved.
package fake_auth

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/sessions"
	"github.com/rs/zerolog"
	"github.com/tommell/broadsheet/authentication"
)

const sessionKey = "fake_auth_key"

type Handler struct {
	sessionStore *sessions.CookieStore
	logger       zerolog.Logger
	serverURL    string
	counter      int // used to return a different user for each auth
}

func New(sessionStore *sessions.CookieStore, logger zerolog.Logger) *Handler {
	return &Handler{
		sessionStore: sessionStore,
		logger:       logger,
	}
}

func (h *Handler) SetServerURL(url string) {
	h.serverURL = url
}

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

func (h *Handler) Start(res http.ResponseWriter, req *http.Request) {
	session, err := h.sessionStore.Get(req, sessionKey)
	if err != nil {
		http.Error(res, "cannot load session", http.StatusInternalServerError)
		return
	}

	session.Values["state"] = "state"
	if err := session.Save(req, res); err != nil {
		http.Error(res, "cannot save cookies", http.StatusInternalServerError)
		return
	}

	http.Redirect(res, req, h.serverURL+"/oauth/authorize", http.StatusFound)
}

func (h *Handler) Callback(res http.ResponseWriter, req *http.Request, beforeWriteCallback func(*authentication.User) error) {
	user := &authentication.User{
		Login: "fakeLogin" + strconv.Itoa(h.counter),
		Email: "fake" + strconv.Itoa(h.counter) + "@example.com",
	}
	h.counter++

	if err := h.SignIn(res, req, user); err != nil {
		http.Error(res, "couldn't sign in fake user", http.StatusInternalServerError)
		return
	}

	if beforeWriteCallback != nil {
		if err := beforeWriteCallback(user); err != nil {
			http.Error(res, "failed to execute oauth callback", http.StatusInternalServerError)
			return
		}
	}

	http.Redirect(res, req, "/", http.StatusFound)
}

func (h *Handler) Destroy(res http.ResponseWriter, req *http.Request) {
	session, err := h.sessionStore.Get(req, sessionKey)
	if err != nil {
		h.logger.Warn().Err(err).Msg("cannot load session to destroy")
	}

	session.Options.MaxAge = -1
	session.Values["user"] = nil
	session.Save(req, res)

	http.Redirect(res, req, "/", http.StatusFound)
}
