package broadsheet

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// ErrNoVote is returned when unvoting a target the user never voted on.
var ErrNoVote = errors.New("no vote to remove")

// A WarningReason tags a soft rejection. Warnings are expected user
// behavior, not faults: the caller renders them inline instead of an error
// page.
type WarningReason int

const (
	WarnOwnContent WarningReason = iota + 1
	WarnAlreadyVoted
	WarnInsufficientKarma
)

// A VoteResult is the outcome of a vote or unvote request that made it
// past validation: either accepted, or rejected with a warning. Hard
// failures (missing target, storage errors) travel as errors instead.
type VoteResult struct {
	Accepted bool
	Warning  WarningReason
	Message  string
}

func accepted(message string) VoteResult {
	return VoteResult{Accepted: true, Message: message}
}

func rejected(reason WarningReason, message string) VoteResult {
	return VoteResult{Warning: reason, Message: message}
}

// A VoteService validates vote and unvote requests against the ledger and
// the target's ownership, then drives the karma and ledger writes through
// the store.
type VoteService struct {
	store               Store
	minKarmaForDownvote int
	logger              zerolog.Logger
}

func NewVoteService(store Store, minKarmaForDownvote int, logger zerolog.Logger) *VoteService {
	return &VoteService{
		store:               store,
		minKarmaForDownvote: minKarmaForDownvote,
		logger:              logger,
	}
}

func (vs *VoteService) VoteStory(voterID int64, voterKarma int, storyID int64, up bool) (VoteResult, error) {
	return vs.vote(voterID, voterKarma, storyID, up, TargetStory)
}

func (vs *VoteService) VoteComment(voterID int64, voterKarma int, commentID int64, up bool) (VoteResult, error) {
	return vs.vote(voterID, voterKarma, commentID, up, TargetComment)
}

func (vs *VoteService) UnvoteStory(voterID int64, storyID int64) (VoteResult, error) {
	return vs.unvote(voterID, storyID, TargetStory)
}

func (vs *VoteService) UnvoteComment(voterID int64, commentID int64) (VoteResult, error) {
	return vs.unvote(voterID, commentID, TargetComment)
}

func (vs *VoteService) vote(voterID int64, voterKarma int, targetID int64, up bool, targetType TargetType) (VoteResult, error) {
	authorID, err := vs.targetAuthor(targetID, targetType)
	if err != nil {
		return VoteResult{}, err
	}

	existing, err := vs.store.FindVote(voterID, targetID, targetType)
	if err != nil {
		return VoteResult{}, err
	}

	// ownership first, then duplicate, then threshold; the order is part
	// of the contract
	if authorID == voterID {
		return rejected(WarnOwnContent, "you cannot vote on your own content"), nil
	}
	if existing != nil {
		return rejected(WarnAlreadyVoted, "you already voted on this"), nil
	}
	if !up && voterKarma < vs.minKarmaForDownvote {
		return rejected(WarnInsufficientKarma,
			fmt.Sprintf("downvoting requires at least %d karma", vs.minKarmaForDownvote)), nil
	}

	vote := NewVote(voterID, targetID, targetType, up)
	err = vs.store.ApplyVote(vote, authorID)
	if errors.Is(err, ErrVoteConflict) {
		// two votes raced past the pre-check, the ledger constraint
		// caught the second one
		vs.logger.Debug().Int64("voter", voterID).Int64("target", targetID).Msg("duplicate vote caught by ledger constraint")
		return rejected(WarnAlreadyVoted, "you already voted on this"), nil
	}
	if err != nil {
		return VoteResult{}, err
	}

	return accepted("vote recorded"), nil
}

func (vs *VoteService) unvote(voterID int64, targetID int64, targetType TargetType) (VoteResult, error) {
	// unlike vote, the ledger is consulted before the target: an unvote
	// is only meaningful given proof of a prior vote
	existing, err := vs.store.FindVote(voterID, targetID, targetType)
	if err != nil {
		return VoteResult{}, err
	}
	if existing == nil {
		return VoteResult{}, ErrNoVote
	}

	authorID, err := vs.targetAuthor(targetID, targetType)
	if err != nil {
		return VoteResult{}, err
	}

	if authorID == voterID {
		return rejected(WarnOwnContent, "you cannot vote on your own content"), nil
	}

	if err := vs.store.ReverseVote(existing, authorID); err != nil {
		return VoteResult{}, err
	}

	return accepted("vote removed"), nil
}

func (vs *VoteService) targetAuthor(targetID int64, targetType TargetType) (int64, error) {
	switch targetType {
	case TargetComment:
		comment, err := vs.store.FindComment(targetID)
		if err != nil {
			return 0, err
		}
		return comment.AuthorID, nil
	default:
		story, err := vs.store.FindStory(targetID)
		if err != nil {
			return 0, err
		}
		return story.AuthorID, nil
	}
}

// VoteMapping resolves which of the given targets the user voted on, using
// a single range query bounded by the smallest and largest id of the page
// rather than one lookup per row.
func (vs *VoteService) VoteMapping(userID int64, targetIDs []int64, targetType TargetType) (map[int64]*Vote, error) {
	mapping := map[int64]*Vote{}
	if len(targetIDs) == 0 {
		return mapping, nil
	}

	minID, maxID := targetIDs[0], targetIDs[0]
	for _, id := range targetIDs[1:] {
		if id < minID {
			minID = id
		}
		if id > maxID {
			maxID = id
		}
	}

	votes, err := vs.store.VotesInRange(userID, minID, maxID, targetType)
	if err != nil {
		return nil, err
	}

	for _, v := range votes {
		mapping[v.TargetID] = v
	}

	return mapping, nil
}
