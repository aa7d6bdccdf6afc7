package broadsheet

import (
	"net/url"
	"strings"
	"time"
)

// A Story is a submission, either a link or a text post. Exactly one of URL
// and Body is set, which is enforced at the HTTP boundary rather than here.
type Story struct {
	ID            int64     `db:"id"`
	Title         string    `db:"title"`
	URL           string    `db:"url"`
	BaseURL       string    `db:"base_url"`
	Body          string    `db:"body"`
	Karma         int       `db:"karma"`
	Author        string    `db:"author"`
	AuthorID      int64     `db:"author_id"`
	CommentsCount int64     `db:"comments_count"`
	CreatedAt     time.Time `db:"created_at"`
}

func NewStory(title string, body string, authorID int64, rawURL string) *Story {
	return &Story{
		Title:     title,
		Body:      body,
		Karma:     1,
		AuthorID:  authorID,
		URL:       rawURL,
		BaseURL:   baseURL(rawURL),
		CreatedAt: NowFunc(),
	}
}

func (s *Story) GetKarma() int { return s.Karma }

func (s *Story) Age() time.Time { return s.CreatedAt }

// baseURL extracts the host shown next to the story title, eg.
// "example.com" for "https://www.example.com/some/article". It is computed
// once at submission time and stored alongside the story.
func baseURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	return strings.TrimPrefix(u.Hostname(), "www.")
}
