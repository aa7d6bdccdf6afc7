package pgstore

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/tommell/broadsheet"
)

// A PGStore is responsible of interacting with the storage layer using a
// Postgresql database.
type PGStore struct {
	dbString      string
	db            *sqlx.DB
	rankIncrement time.Duration
}

// New returns a PGStore configured for a given address string, using the
// "user=postgres dbname=broadsheet ..." format. rankIncrement is how much
// freshness a karma point is worth in ranked listings.
func New(addr string, rankIncrement time.Duration) *PGStore {
	return &PGStore{
		dbString:      addr,
		rankIncrement: rankIncrement,
	}
}

// Connect establish a connection with the database using the address given
// at initialization.
func (s *PGStore) Connect() error {
	db, err := sqlx.Connect("postgres", s.dbString)
	if err != nil {
		return err
	}

	s.db = db

	return nil
}

// Close releases the underlying connection pool. It is a no-op when the
// store never connected.
func (s *PGStore) Close() error {
	if s.db == nil {
		return nil
	}

	return s.db.Close()
}

// DB returns the existing connection, making it suitable to perform
// requests not already supported by the store interface. If called while
// not connected, it will return nil.
func (s *PGStore) DB() *sqlx.DB {
	return s.db
}

func (s *PGStore) FindUser(id int64) (*broadsheet.User, error) {
	user := broadsheet.User{}
	err := s.db.Get(&user, "SELECT * FROM users WHERE id=$1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, broadsheet.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &user, nil
}

func (s *PGStore) FindUserByUsername(username string) (*broadsheet.User, error) {
	user := broadsheet.User{}
	err := s.db.Get(&user, "SELECT * FROM users WHERE username=$1", username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &user, nil
}

func (s *PGStore) InsertUser(user *broadsheet.User) error {
	var id int64
	err := s.db.Get(&id,
		"INSERT INTO users (username, password_hash, email, about, karma, created_at) VALUES ($1, $2, $3, $4, $5, $6) RETURNING id",
		user.Username, user.PasswordHash, user.Email, user.About, user.Karma, user.CreatedAt,
	)
	if isUniqueViolation(err) {
		return broadsheet.ErrUsernameTaken
	}
	if err != nil {
		return err
	}

	user.ID = id

	return nil
}

// UpdateUser applies a partial profile update. Fields absent from the
// update are left untouched, not nulled out.
func (s *PGStore) UpdateUser(id int64, update broadsheet.UserUpdate) error {
	if update.IsEmpty() {
		return nil
	}

	sets := []string{}
	args := []interface{}{}

	if update.Email != nil {
		args = append(args, *update.Email)
		sets = append(sets, fmt.Sprintf("email = $%d", len(args)))
	}
	if update.About != nil {
		args = append(args, *update.About)
		sets = append(sets, fmt.Sprintf("about = $%d", len(args)))
	}

	args = append(args, broadsheet.NowFunc())
	sets = append(sets, fmt.Sprintf("updated_at = $%d", len(args)))

	args = append(args, id)
	query := fmt.Sprintf("UPDATE users SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))

	res, err := s.db.Exec(query, args...)
	if err != nil {
		return err
	}

	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return broadsheet.ErrNotFound
	}

	return nil
}

func (s *PGStore) CreateOrUpdateUser(username string, email string) (int64, error) {
	var id int64
	now := broadsheet.NowFunc()
	err := s.db.Get(&id,
		"INSERT INTO users (username, email, karma, created_at) VALUES ($1, $2, 1, $3) ON CONFLICT (username) DO UPDATE SET updated_at = $3 RETURNING id",
		username, email, now)
	if err != nil {
		return 0, err
	}

	return id, nil
}

func (s *PGStore) FindStory(id int64) (*broadsheet.Story, error) {
	story := broadsheet.Story{}
	err := s.db.Get(&story, `
		SELECT stories.*, users.username AS author,
		       (SELECT COUNT(*) FROM comments WHERE comments.story_id = stories.id) AS comments_count
		FROM stories JOIN users ON stories.author_id = users.id
		WHERE stories.id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, broadsheet.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &story, nil
}

func (s *PGStore) InsertStory(story *broadsheet.Story) error {
	var id int64
	err := s.db.Get(&id,
		"INSERT INTO stories (title, url, base_url, body, karma, author_id, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id",
		story.Title, story.URL, story.BaseURL, story.Body, story.Karma, story.AuthorID, story.CreatedAt,
	)
	if err != nil {
		return err
	}

	story.ID = id

	return nil
}

func (s *PGStore) ListStories(filter broadsheet.StoryFilter, page int, perPage int) ([]*broadsheet.Story, int, error) {
	return s.listStories(filter, page, perPage, false)
}

func (s *PGStore) ListStoriesRanked(filter broadsheet.StoryFilter, page int, perPage int) ([]*broadsheet.Story, int, error) {
	return s.listStories(filter, page, perPage, true)
}

// https://www.citusdata.com/blog/2016/03/30/five-ways-to-paginate/
func (s *PGStore) listStories(filter broadsheet.StoryFilter, page int, perPage int, ranked bool) ([]*broadsheet.Story, int, error) {
	where, args := storyFilterClauses(filter)

	var total int
	err := s.db.Get(&total, "SELECT COUNT(*) FROM stories "+where, args...)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		// callers distinguish "nothing matches at all" from "past the
		// last page" through the total count, so no empty slice here
		return nil, 0, nil
	}

	orderBy := "stories.created_at DESC"
	if ranked {
		// each karma point shifts the story forward by the configured
		// increment, keeping the order key a plain timestamp
		args = append(args, s.rankIncrement.Milliseconds())
		orderBy = fmt.Sprintf("stories.created_at + stories.karma * INTERVAL '1 millisecond' * $%d DESC", len(args))
	}

	args = append(args, perPage, page*perPage)
	query := fmt.Sprintf(`
		SELECT stories.*, users.username AS author,
		       (SELECT COUNT(*) FROM comments WHERE comments.story_id = stories.id) AS comments_count
		FROM stories JOIN users ON stories.author_id = users.id
		%s ORDER BY %s LIMIT $%d OFFSET $%d`,
		where, orderBy, len(args)-1, len(args))

	var stories []*broadsheet.Story
	err = s.db.Select(&stories, query, args...)
	if err != nil {
		return nil, 0, err
	}
	if len(stories) == 0 {
		stories = nil
	}

	return stories, total, nil
}

// storyFilterClauses turns a filter into WHERE clauses and their
// arguments, shared by the chronological and ranked listings.
func storyFilterClauses(filter broadsheet.StoryFilter) (string, []interface{}) {
	conds := []string{}
	args := []interface{}{}

	if filter.TitlePrefix != "" {
		args = append(args, likeEscape(filter.TitlePrefix)+"%")
		conds = append(conds, fmt.Sprintf("stories.title ILIKE $%d", len(args)))
	}
	if filter.AuthorID != 0 {
		args = append(args, filter.AuthorID)
		conds = append(conds, fmt.Sprintf("stories.author_id = $%d", len(args)))
	}

	if len(conds) == 0 {
		return "", args
	}

	return "WHERE " + strings.Join(conds, " AND "), args
}

// likeEscape neutralizes LIKE wildcards in a configured prefix.
func likeEscape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	return strings.ReplaceAll(s, "_", `\_`)
}

func (s *PGStore) FindComment(id int64) (*broadsheet.Comment, error) {
	comment := broadsheet.Comment{}
	err := s.db.Get(&comment,
		"SELECT comments.*, users.username AS author FROM comments JOIN users ON comments.author_id = users.id WHERE comments.id=$1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, broadsheet.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &comment, nil
}

func (s *PGStore) InsertComment(comment *broadsheet.Comment) error {
	var id int64
	err := s.db.Get(&id,
		"INSERT INTO comments (story_id, parent_comment_id, author_id, body, karma, created_at) VALUES ($1, $2, $3, $4, $5, $6) RETURNING id",
		comment.StoryID, comment.ParentCommentID, comment.AuthorID, comment.Body, comment.Karma, comment.CreatedAt,
	)
	if err != nil {
		return err
	}

	comment.ID = id

	return nil
}

func (s *PGStore) UpdateComment(comment *broadsheet.Comment) error {
	res, err := s.db.Exec("UPDATE comments SET body = $1, updated_at = $2 WHERE id = $3",
		comment.Body, broadsheet.NowFunc(), comment.ID)
	if err != nil {
		return err
	}

	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return broadsheet.ErrNotFound
	}

	return nil
}

func (s *PGStore) DeleteComment(id int64) error {
	res, err := s.db.Exec("UPDATE comments SET deleted = TRUE, updated_at = $1 WHERE id = $2",
		broadsheet.NowFunc(), id)
	if err != nil {
		return err
	}

	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return broadsheet.ErrNotFound
	}

	return nil
}

func (s *PGStore) ListComments(storyID int64) ([]*broadsheet.Comment, error) {
	comments := []*broadsheet.Comment{}
	err := s.db.Select(&comments,
		"SELECT comments.*, users.username AS author FROM comments JOIN users ON comments.author_id = users.id WHERE story_id=$1 ORDER BY comments.created_at DESC", storyID)
	if err != nil {
		return nil, err
	}

	return comments, nil
}

func (s *PGStore) FindVote(userID int64, targetID int64, targetType broadsheet.TargetType) (*broadsheet.Vote, error) {
	vote := broadsheet.Vote{}
	err := s.db.Get(&vote,
		"SELECT * FROM votes WHERE user_id=$1 AND target_id=$2 AND target_type=$3",
		userID, targetID, targetType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &vote, nil
}

func (s *PGStore) VotesInRange(userID int64, minID int64, maxID int64, targetType broadsheet.TargetType) ([]*broadsheet.Vote, error) {
	votes := []*broadsheet.Vote{}
	err := s.db.Select(&votes,
		"SELECT * FROM votes WHERE user_id=$1 AND target_type=$2 AND target_id BETWEEN $3 AND $4",
		userID, targetType, minID, maxID)
	if err != nil {
		return nil, err
	}

	return votes, nil
}

// ApplyVote performs the three vote writes in one transaction: target
// karma, author karma, ledger entry. The target karma update runs first
// and touching zero rows aborts everything.
func (s *PGStore) ApplyVote(vote *broadsheet.Vote, authorID int64) error {
	return s.inTx(func(tx *sqlx.Tx) error {
		if err := adjustTargetKarma(tx, vote.TargetID, vote.TargetType, vote.Delta()); err != nil {
			return err
		}

		if err := adjustUserKarma(tx, authorID, vote.Delta()); err != nil {
			return err
		}

		_, err := tx.Exec(
			"INSERT INTO votes (user_id, target_id, target_type, up, created_at) VALUES ($1, $2, $3, $4, $5)",
			vote.UserID, vote.TargetID, vote.TargetType, vote.Up, vote.CreatedAt)
		if isUniqueViolation(err) {
			// the ledger's primary key is the backstop for two
			// concurrent votes racing past the pre-check
			return broadsheet.ErrVoteConflict
		}

		return err
	})
}

// ReverseVote undoes a previously applied vote in one transaction.
func (s *PGStore) ReverseVote(vote *broadsheet.Vote, authorID int64) error {
	restore := -vote.Delta()

	return s.inTx(func(tx *sqlx.Tx) error {
		if err := adjustTargetKarma(tx, vote.TargetID, vote.TargetType, restore); err != nil {
			return err
		}

		if err := adjustUserKarma(tx, authorID, restore); err != nil {
			return err
		}

		_, err := tx.Exec(
			"DELETE FROM votes WHERE user_id=$1 AND target_id=$2 AND target_type=$3",
			vote.UserID, vote.TargetID, vote.TargetType)

		return err
	})
}

func (s *PGStore) inTx(f func(tx *sqlx.Tx) error) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return err
	}

	if err := f(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

// adjustTargetKarma is a single conditional update, not a read-modify-
// write, so concurrent votes cannot lose increments.
func adjustTargetKarma(tx *sqlx.Tx, targetID int64, targetType broadsheet.TargetType, delta int) error {
	table := "stories"
	if targetType == broadsheet.TargetComment {
		table = "comments"
	}

	res, err := tx.Exec(fmt.Sprintf("UPDATE %s SET karma = karma + $1 WHERE id = $2", table), delta, targetID)
	if err != nil {
		return err
	}

	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return broadsheet.ErrVoteFailed
	}

	return nil
}

func adjustUserKarma(tx *sqlx.Tx, userID int64, delta int) error {
	res, err := tx.Exec("UPDATE users SET karma = karma + $1 WHERE id = $2", delta, userID)
	if err != nil {
		return err
	}

	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return broadsheet.ErrVoteFailed
	}

	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Name() == "unique_violation"
	}

	return false
}
