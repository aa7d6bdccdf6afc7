package authentication

import (
	"net/http"
)

// An OAuthHandler is responsible of providing the callbacks to interact
// with an OAuth provider. Services backed by local credentials don't
// implement it.
type OAuthHandler interface {
	Start(res http.ResponseWriter, req *http.Request)
	Callback(res http.ResponseWriter, req *http.Request, beforeWriteCallback func(*User) error)
}

// An AuthService owns the browser session: which user it belongs to, how
// it is established and how it is destroyed.
type AuthService interface {
	// CurrentUser returns (nil, nil) when there is no session.
	CurrentUser(req *http.Request) (*User, error)
	SignIn(res http.ResponseWriter, req *http.Request, user *User) error
	Destroy(res http.ResponseWriter, req *http.Request)
}

// A User is a convenient structure to hold the session-side identity of an
// account, whatever the login path was.
type User struct {
	Login     string
	Email     string
	AvatarURL string
}
