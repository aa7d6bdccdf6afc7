package broadsheet

import (
	"database/sql"
	"fmt"
	"html/template"
	"time"
)

// A storyPresenter carries everything the templates need to render one
// story row or story page.
type storyPresenter struct {
	ID            int64
	Pos           int
	Title         string
	URL           string
	BaseURL       string
	Body          template.HTML
	Karma         int
	Author        string
	CommentsCount int64
	CreatedAt     time.Time
	Upvoted       bool
	Downvoted     bool
}

func newStoryPresenter(story *Story) *storyPresenter {
	return &storyPresenter{
		ID:            story.ID,
		Title:         story.Title,
		URL:           story.URL,
		BaseURL:       story.BaseURL,
		Karma:         story.Karma,
		Author:        story.Author,
		CommentsCount: story.CommentsCount,
		CreatedAt:     story.CreatedAt,
	}
}

func newStoryPresenterWithPos(story *Story, pos int) *storyPresenter {
	p := newStoryPresenter(story)
	p.Pos = pos
	return p
}

// newStoryPresenterWithBody renders the story body markdown, for the story
// page where text posts show their content.
func newStoryPresenterWithBody(story *Story) *storyPresenter {
	p := newStoryPresenter(story)
	p.Body = renderBody(story.Body)
	return p
}

// setVote flags the presenter with the viewer's recorded vote, if any.
func (p *storyPresenter) setVote(vote *Vote) {
	if vote == nil {
		return
	}
	p.Upvoted = vote.Up
	p.Downvoted = !vote.Up
}

// CommentsPath returns the path to the story's comment page.
func (p *storyPresenter) CommentsPath() string {
	return fmt.Sprintf("/stories/%d/comments", p.ID)
}

// A CommentPresenter is a comment decorated for rendering, with its
// children attached.
type CommentPresenter struct {
	ID        int64
	StoryID   int64
	Author    string
	AuthorID  int64
	Body      template.HTML
	Karma     int
	Deleted   bool
	CreatedAt time.Time
	CanEdit   bool
	Upvoted   bool
	Downvoted bool
	Children  []*CommentPresenter
}

const deletedCommentBody = "[deleted]"

func newCommentPresenter(c CommentAccessor) *CommentPresenter {
	p := &CommentPresenter{
		ID:        c.GetID(),
		StoryID:   c.GetStoryID(),
		Author:    c.GetAuthor(),
		AuthorID:  c.GetAuthorID(),
		Body:      renderBody(c.GetBody()),
		Karma:     c.GetKarma(),
		Deleted:   c.IsDeleted(),
		CreatedAt: c.GetCreatedAt(),
		Children:  []*CommentPresenter{},
	}

	// deleted comments keep their place in the thread but lose their
	// author and body
	if p.Deleted {
		p.Author = ""
		p.Body = deletedCommentBody
	}

	return p
}

func (p *CommentPresenter) Path() string {
	return fmt.Sprintf("/stories/%d/comments/%d", p.StoryID, p.ID)
}

// CommentPresenters is a forest of comment presenters, one tree per
// top-level comment, children in input order.
type CommentPresenters []*CommentPresenter

// NewCommentPresentersTree builds the comment forest of a story out of a
// flat comment list. A child appearing before its parent in the input is
// attached properly, the index keeps placeholder nodes until the parent
// shows up.
func NewCommentPresentersTree(comments []CommentAccessor) CommentPresenters {
	index := map[int64]*CommentPresenter{}
	roots := CommentPresenters{}

	for _, c := range comments {
		node, ok := index[c.GetID()]
		if !ok {
			node = newCommentPresenter(c)
			index[c.GetID()] = node
		} else {
			// placeholder created by one of its children, fill it in
			children := node.Children
			*node = *newCommentPresenter(c)
			node.Children = children
		}

		parentID := c.GetParentCommentID()
		if !parentID.Valid {
			roots = append(roots, node)
			continue
		}

		parent, ok := index[parentID.Int64]
		if !ok {
			parent = &CommentPresenter{Children: []*CommentPresenter{}}
			index[parentID.Int64] = parent
		}
		parent.Children = append(parent.Children, node)
	}

	return roots
}

// SetCanEdits flags the comments the given user may still edit, ie. their
// own comments younger than the edit window.
func (ps CommentPresenters) SetCanEdits(username string, window time.Duration, now time.Time) {
	for _, p := range ps {
		if p.Author == username && !p.Deleted && p.CreatedAt.Add(window).After(now) {
			p.CanEdit = true
		}
		CommentPresenters(p.Children).SetCanEdits(username, window, now)
	}
}

// SetVotes flags each comment in the forest with the viewer's votes.
func (ps CommentPresenters) SetVotes(mapping map[int64]*Vote) {
	for _, p := range ps {
		if v, ok := mapping[p.ID]; ok {
			p.Upvoted = v.Up
			p.Downvoted = !v.Up
		}
		CommentPresenters(p.Children).SetVotes(mapping)
	}
}

// IDs returns the ids of every comment in the forest, for vote mapping.
func (ps CommentPresenters) IDs() []int64 {
	var ids []int64
	for _, p := range ps {
		ids = append(ids, p.ID)
		ids = append(ids, CommentPresenters(p.Children).IDs()...)
	}
	return ids
}

// nullInt64 is a small helper for optional parent ids.
func nullInt64(v int64, valid bool) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: valid}
}
