package password_auth

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/sessions"
	"github.com/rs/zerolog"
	"github.com/tommell/broadsheet/authentication"
	"golang.org/x/crypto/bcrypt"
)

const sessionKey = "broadsheet-session"

// Handler implements session management for accounts backed by a local
// password. Credential verification itself happens at the HTTP layer,
// which knows the user store; this package only owns hashing and the
// session cookie.
type Handler struct {
	sessionStore *sessions.CookieStore
	logger       zerolog.Logger
}

func New(sessionStore *sessions.CookieStore, logger zerolog.Logger) *Handler {
	return &Handler{
		sessionStore: sessionStore,
		logger:       logger,
	}
}

// HashPassword derives the stored form of a password.
func HashPassword(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}

	return string(hash), nil
}

// CheckPassword reports whether plain matches a stored hash.
func CheckPassword(hash string, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// SignIn writes the user into the session cookie.
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
