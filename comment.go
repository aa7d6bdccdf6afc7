package broadsheet

import (
	"database/sql"
	"time"
)

// A Comment belongs to a story and optionally to a parent comment, forming
// a forest per story. A comment is created pointing only at an already
// existing parent, so no cycle can appear.
type Comment struct {
	ID              int64         `db:"id"`
	ParentCommentID sql.NullInt64 `db:"parent_comment_id"`
	StoryID         int64         `db:"story_id"`
	AuthorID        int64         `db:"author_id"`
	Author          string        `db:"author"`
	Body            string        `db:"body"`
	Karma           int           `db:"karma"`
	Deleted         bool          `db:"deleted"`
	CreatedAt       time.Time     `db:"created_at"`
	UpdatedAt       sql.NullTime  `db:"updated_at"`
}

func NewComment(storyID int64, parentCommentID sql.NullInt64, body string, authorID int64) *Comment {
	return &Comment{
		ParentCommentID: parentCommentID,
		StoryID:         storyID,
		Body:            body,
		Karma:           1,
		AuthorID:        authorID,
		CreatedAt:       NowFunc(),
	}
}

// A CommentAccessor exposes what the presenter tree needs to know about a
// comment, so tests can feed it lightweight fakes.
type CommentAccessor interface {
	GetID() int64
	GetParentCommentID() sql.NullInt64
	GetStoryID() int64
	GetAuthor() string
	GetAuthorID() int64
	GetBody() string
	GetKarma() int
	IsDeleted() bool
	GetCreatedAt() time.Time
}

func (c *Comment) GetID() int64                      { return c.ID }
func (c *Comment) GetParentCommentID() sql.NullInt64 { return c.ParentCommentID }
func (c *Comment) GetStoryID() int64                 { return c.StoryID }
func (c *Comment) GetAuthor() string                 { return c.Author }
func (c *Comment) GetAuthorID() int64                { return c.AuthorID }
func (c *Comment) GetBody() string                   { return c.Body }
func (c *Comment) GetKarma() int                     { return c.Karma }
func (c *Comment) IsDeleted() bool                   { return c.Deleted }
func (c *Comment) GetCreatedAt() time.Time           { return c.CreatedAt }
