package broadsheet

import (
	"time"
)

// A TargetType discriminates what kind of record a vote points at.
type TargetType string

const (
	TargetStory   TargetType = "story"
	TargetComment TargetType = "comment"
)

// A Vote is a single ledger entry recording that a user voted on a story or
// a comment. There is at most one entry per (user, target, target type); an
// unvote deletes the entry rather than updating it.
type Vote struct {
	UserID     int64      `db:"user_id"`
	TargetID   int64      `db:"target_id"`
	TargetType TargetType `db:"target_type"`
	Up         bool       `db:"up"`
	CreatedAt  time.Time  `db:"created_at"`
}

func NewVote(userID int64, targetID int64, targetType TargetType, up bool) *Vote {
	return &Vote{
		UserID:     userID,
		TargetID:   targetID,
		TargetType: targetType,
		Up:         up,
		CreatedAt:  NowFunc(),
	}
}

// Delta returns the karma adjustment this vote applies to its target and to
// the target's author.
func (v *Vote) Delta() int {
	if v.Up {
		return 1
	}
	return -1
}
