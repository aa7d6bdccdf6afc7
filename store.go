package broadsheet

import "errors"

var (
	// ErrNotFound is returned when a story, comment, user or vote cannot
	// be found.
	ErrNotFound = errors.New("record not found")
	// ErrVoteConflict is returned when inserting a vote hits the ledger's
	// uniqueness constraint, meaning the user already voted on the target.
	ErrVoteConflict = errors.New("vote already recorded")
	// ErrVoteFailed is returned when a karma update touched zero rows,
	// meaning the target vanished underneath the vote.
	ErrVoteFailed = errors.New("vote could not be applied")
	// ErrUsernameTaken is returned when registering an already existing
	// username.
	ErrUsernameTaken = errors.New("username already taken")
)

// A StoryFilter restricts story listings. The zero value matches every
// story. TitlePrefix is matched case-insensitively against the beginning
// of the title; it carries the configured "Show:"/"Ask:" prefixes.
type StoryFilter struct {
	TitlePrefix string
	AuthorID    int64
}

type Store interface {
	Connect() error
	Close() error

	FindUser(id int64) (*User, error)
	// FindUserByUsername returns (nil, nil) when no such user exists.
	FindUserByUsername(username string) (*User, error)
	InsertUser(user *User) error
	UpdateUser(id int64, update UserUpdate) error
	// CreateOrUpdateUser upserts an account from an OAuth login and
	// returns its id.
	CreateOrUpdateUser(username string, email string) (int64, error)

	FindStory(id int64) (*Story, error)
	InsertStory(story *Story) error
	// ListStories lists stories by descending creation time. It reports
	// the total count of stories matching the filter; when that count is
	// zero the returned slice is nil.
	ListStories(filter StoryFilter, page int, perPage int) ([]*Story, int, error)
	// ListStoriesRanked is ListStories ordered by the ranked sort key,
	// where each karma point shifts the creation time forward by the
	// configured increment.
	ListStoriesRanked(filter StoryFilter, page int, perPage int) ([]*Story, int, error)

	FindComment(id int64) (*Comment, error)
	InsertComment(comment *Comment) error
	UpdateComment(comment *Comment) error
	// DeleteComment soft deletes: the record stays, its karma and ledger
	// entries stay, only the deleted flag flips.
	DeleteComment(id int64) error
	ListComments(storyID int64) ([]*Comment, error)

	FindVote(userID int64, targetID int64, targetType TargetType) (*Vote, error)
	// VotesInRange returns all of userID's votes on targets of the given
	// type whose id falls within [minID, maxID].
	VotesInRange(userID int64, minID int64, maxID int64, targetType TargetType) ([]*Vote, error)
	// ApplyVote records a vote in one transaction: target karma, author
	// karma, ledger entry. It returns ErrVoteFailed if the target's karma
	// update touches no row and ErrVoteConflict if the ledger already
	// holds an entry.
	ApplyVote(vote *Vote, authorID int64) error
	// ReverseVote undoes a vote in one transaction: target karma, author
	// karma, ledger deletion.
	ReverseVote(vote *Vote, authorID int64) error
}
