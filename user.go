package broadsheet

import (
	"database/sql"
	"time"
)

// A User account. PasswordHash is empty for accounts created through the
// OAuth login path. Karma starts at one and is only ever mutated by votes
// on the user's stories and comments. Users are never deleted.
type User struct {
	ID           int64          `db:"id"`
	Username     string         `db:"username"`
	PasswordHash sql.NullString `db:"password_hash"`
	Email        string         `db:"email"`
	About        sql.NullString `db:"about"`
	Karma        int            `db:"karma"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    sql.NullTime   `db:"updated_at"`
}

func NewUser(username string) *User {
	return &User{
		Username:  username,
		Karma:     1,
		CreatedAt: NowFunc(),
	}
}

// A UserUpdate carries the fields of a profile update. Nil fields are left
// untouched in the database, they are not nulled out.
type UserUpdate struct {
	Email *string
	About *string
}

// IsEmpty reports whether applying the update would change nothing.
func (u UserUpdate) IsEmpty() bool {
	return u.Email == nil && u.About == nil
}
