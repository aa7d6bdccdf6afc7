package broadsheet

import (
	"database/sql"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/tommell/broadsheet/authentication"
	"github.com/tommell/broadsheet/authentication/password_auth"
)

// HandleOAuthStart handles requests starting the OAuth authentication process.
func (s *Server) HandleOAuthStart(oauth authentication.OAuthHandler) httprouter.Handle {
	return func(res http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		oauth.Start(res, req)
	}
}

// HandleOAuthCallback handles requests of the OAuth provider redirecting the user
// back here after successfully authenticating them on its side.
func (s *Server) HandleOAuthCallback(oauth authentication.OAuthHandler) httprouter.Handle {
	return func(res http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		oauth.Callback(res, req, func(u *authentication.User) error {
			_, err := s.store.CreateOrUpdateUser(u.Login, u.Email)
			return err
		})
	}
}

// HandleOAuthDestroy handles requests destroying the current session.
func (s *Server) HandleOAuthDestroy() httprouter.Handle {
	return func(res http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		s.authService.Destroy(res, req)
	}
}

// parsePage reads the page query param, defaulting to zero.
func parsePage(req *http.Request) int {
	var page int
	rawPage, ok := req.URL.Query()["page"]
	if ok && len(rawPage) > 0 {
		page, _ = strconv.Atoi(rawPage[0])
	}
	if page < 0 {
		page = 0
	}
	return page
}

// listingFilter maps the show and ask query flags onto title prefix filters.
func (s *Server) listingFilter(req *http.Request) StoryFilter {
	q := req.URL.Query()
	if q.Has("show") {
		return StoryFilter{TitlePrefix: s.config.ShowPrefix}
	}
	if q.Has("ask") {
		return StoryFilter{TitlePrefix: s.config.AskPrefix}
	}
	return StoryFilter{}
}

// sessionUser resolves the current session into its user record. It returns
// (nil, nil) when unauthenticated, and wipes the session when it points at a
// user that no longer exists.
func (s *Server) sessionUser(res http.ResponseWriter, req *http.Request) (*User, error) {
	session := ctxSession(req.Context())
	if session == nil {
		return nil, nil
	}

	userRecord, err := s.store.FindUserByUsername(session.Login)
	if err != nil {
		return nil, err
	}
	if userRecord == nil {
		// there is a session but no user in the database, wiping the session
		s.authService.Destroy(res, req)
		return nil, nil
	}
	return userRecord, nil
}

// HandleIndex handles requests for the root path, listing stories by rank. If
// the client is authenticated, their recorded votes show on each row.
func (s *Server) HandleIndex() httprouter.Handle {
	tmpl := s.listingTemplate()

	return func(res http.ResponseWriter, req *http.Request, params httprouter.Params) {
		s.handleListing(res, req, tmpl, s.store.ListStoriesRanked)
	}
}

// HandleNewest handles requests for the newest page, listing stories by
// submission time.
func (s *Server) HandleNewest() httprouter.Handle {
	tmpl := s.listingTemplate()

	return func(res http.ResponseWriter, req *http.Request, params httprouter.Params) {
		s.handleListing(res, req, tmpl, s.store.ListStories)
	}
}

func (s *Server) listingTemplate() *template.Template {
	tmpl, err := template.New("index.html").Funcs(helpers).ParseFiles("assets/templates/index.html",
		"assets/templates/_header.html",
		"assets/templates/_footer.html",
		"assets/templates/_story.html")
	if err != nil {
		s.Logger.Fatal().Err(err).Msg("Failed to load templates")
	}
	return tmpl
}

type listFunc func(filter StoryFilter, page int, perPage int) ([]*Story, int, error)

func (s *Server) handleListing(res http.ResponseWriter, req *http.Request, tmpl *template.Template, list listFunc) {
	res.Header().Set("Content-Type", "text/html")

	session := ctxSession(req.Context())
	page := parsePage(req)
	filter := s.listingFilter(req)

	stories, total, err := list(filter, page, s.config.StoriesPerPage)
	if err != nil {
		s.Logger.Error().Err(err).Msg("Failed to list stories")
		http.Error(res, "Failed to list stories", http.StatusInternalServerError)
		return
	}

	storyPresenters := []*storyPresenter{}
	ids := make([]int64, 0, len(stories))
	for i, st := range stories {
		pos := 1 + i + (page * s.config.StoriesPerPage)
		storyPresenters = append(storyPresenters, newStoryPresenterWithPos(st, pos))
		ids = append(ids, st.ID)
	}

	userRecord, err := s.sessionUser(res, req)
	if err != nil {
		s.Logger.Error().Err(err).Msg("Failed to fetch user from db")
		http.Error(res, "Failed to fetch user from database", http.StatusInternalServerError)
		return
	}

	if userRecord != nil {
		mapping, err := s.votes.VoteMapping(userRecord.ID, ids, TargetStory)
		if err != nil {
			s.Logger.Error().Err(err).Msg("Failed to map votes")
			http.Error(res, "Failed to map votes", http.StatusInternalServerError)
			return
		}
		for _, pr := range storyPresenters {
			pr.setVote(mapping[pr.ID])
		}
	}

	nextPage := page + 1
	if (page+1)*s.config.StoriesPerPage >= total {
		nextPage = -1
	}

	vars := map[string]interface{}{
		"Stories":  storyPresenters,
		"Session":  session,
		"NextPage": nextPage,
		"PrevPage": page - 1,
		"CurrPage": page,
		"BasePath": req.URL.Path,
		"Notice":   req.URL.Query().Get("notice"),
	}

	err = tmpl.Execute(res, vars)
	if err != nil {
		s.Logger.Error().Err(err).Msg("Failed to render template")
		http.Error(res, "Failed to render template", http.StatusInternalServerError)
		return
	}
}

// HandleSubmit handles requests to get the form for submitting a Story. It
// redirects to the root path if not authenticated.
func (s *Server) HandleSubmit() httprouter.Handle {
	tmpl, err := template.New("submit.html").Funcs(helpers).ParseFiles(
		"assets/templates/submit.html",
		"assets/templates/_header.html",
		"assets/templates/_footer.html")
	if err != nil {
		s.Logger.Fatal().Err(err).Msg("Failed to parse template")
	}

	return func(res http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		res.Header().Set("Content-Type", "text/html")

		session := ctxSession(req.Context())

		// redirect if unauthenticated
		if session == nil {
			http.Redirect(res, req, "/", http.StatusFound)
			return
		}

		vars := map[string]interface{}{
			"Session": session,
		}

		err = tmpl.Execute(res, vars)
		if err != nil {
			s.Logger.Error().Err(err).Msg("Failed to render template")
			http.Error(res, "Failed to render template", http.StatusInternalServerError)
			return
		}
	}
}

// HandleShow handles requests to access a particular Story, showing its
// comment tree and allowing the user to comment if authenticated.
func (s *Server) HandleShow() httprouter.Handle {
	tmpl, err := template.New("show.html").Funcs(helpers).ParseFiles(
		"assets/templates/show.html",
		"assets/templates/_story_comments.html",
		"assets/templates/_comment.html",
		"assets/templates/_comment_form.html",
		"assets/templates/_header.html",
		"assets/templates/_footer.html")
	if err != nil {
		s.Logger.Fatal().Err(err).Msg("Failed to load template")
	}

	return func(res http.ResponseWriter, req *http.Request, params httprouter.Params) {
		res.Header().Set("Content-Type", "text/html")

		session := ctxSession(req.Context())

		storyID, err := strconv.ParseInt(params.ByName("story_id"), 10, 64)
		if err != nil {
			s.respondError(res, req, BadRequest(err), "invalid story id")
			return
		}

		story, err := s.store.FindStory(storyID)
		if err != nil {
			s.respondError(res, req, Maybe404(err), "failed to find story")
			return
		}

		comments, err := s.store.ListComments(story.ID)
		if err != nil {
			s.Logger.Error().Err(err).Msg("Failed to list comments")
			http.Error(res, "Failed to list comments", http.StatusInternalServerError)
			return
		}

		cc := make([]CommentAccessor, len(comments))
		for i, c := range comments {
			cc[i] = c
		}
		commentsTree := NewCommentPresentersTree(cc)

		storyPr := newStoryPresenterWithBody(story)

		userRecord, err := s.sessionUser(res, req)
		if err != nil {
			s.Logger.Error().Err(err).Msg("Failed to fetch user from db")
			http.Error(res, "Failed to fetch user from database", http.StatusInternalServerError)
			return
		}

		if userRecord != nil {
			editWindow := time.Duration(s.config.EditWindowInMinutes) * time.Minute
			commentsTree.SetCanEdits(userRecord.Username, editWindow, NowFunc())

			mapping, err := s.votes.VoteMapping(userRecord.ID, commentsTree.IDs(), TargetComment)
			if err != nil {
				s.Logger.Error().Err(err).Msg("Failed to map votes")
				http.Error(res, "Failed to map votes", http.StatusInternalServerError)
				return
			}
			commentsTree.SetVotes(mapping)

			storyMapping, err := s.votes.VoteMapping(userRecord.ID, []int64{story.ID}, TargetStory)
			if err != nil {
				s.Logger.Error().Err(err).Msg("Failed to map votes")
				http.Error(res, "Failed to map votes", http.StatusInternalServerError)
				return
			}
			storyPr.setVote(storyMapping[story.ID])
		}

		err = tmpl.Execute(res, map[string]interface{}{
			"Story":    storyPr,
			"Comments": commentsTree,
			"Session":  session,
			"Notice":   req.URL.Query().Get("notice"),
		})
		if err != nil {
			s.Logger.Error().Err(err).Msg("Failed to render template")
			http.Error(res, "Failed to render template", http.StatusInternalServerError)
			return
		}
	}
}

// HandleSubmitAction handles requests for when a user submits a Story form.
// In case someone bypasses the client-side form validations with invalid form
// data, it returns a HTTP error.
func (s *Server) HandleSubmitAction() httprouter.Handle {
	return func(res http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		res.Header().Set("Content-Type", "text/html")

		err := req.ParseForm()
		if err != nil {
			s.Logger.Warn().Err(err).Msg("Failed to parse form")
			http.Error(res, "Failed to parse form", http.StatusBadRequest)
			return
		}

		title := strings.TrimSpace(req.FormValue("title"))
		body := strings.TrimSpace(req.FormValue("body"))
		url_ := strings.TrimSpace(req.FormValue("url"))
		if url_ != "" {
			u, err := url.Parse(url_)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
				http.Error(res, "", http.StatusBadRequest)
				return
			}
		}

		if title == "" || len(title) > 64 {
			http.Error(res, "", http.StatusBadRequest)
			return
		}

		// a story carries a link or a text body, not both, not neither
		if (url_ == "") == (body == "") {
			http.Error(res, "", http.StatusBadRequest)
			return
		}

		userRecord := ctxUser(req.Context())
		story := NewStory(title, body, userRecord.ID, url_)

		err = s.store.InsertStory(story)
		if err != nil {
			s.Logger.Error().Err(err).Msg("Failed to insert story")
			http.Error(res, "Cannot insert story", http.StatusInternalServerError)
			return
		}

		story.Author = userRecord.Username

		for _, h := range s.storyHooks {
			err := h(story)
			if err != nil {
				s.Logger.Warn().Err(err).Msg("story hook failed")
			}
		}

		http.Redirect(res, req, fmt.Sprintf("/stories/%d/comments", story.ID), http.StatusFound)
	}
}

// HandleSubmitCommentAction handles requests for when a user submits a
// Comment form on a given Story.
func (s *Server) HandleSubmitCommentAction() httprouter.Handle {
	return func(res http.ResponseWriter, req *http.Request, params httprouter.Params) {
		res.Header().Set("Content-Type", "text/html")

		storyID, err := strconv.ParseInt(params.ByName("story_id"), 10, 64)
		if err != nil {
			s.respondError(res, req, BadRequest(err), "invalid story id")
			return
		}

		story, err := s.store.FindStory(storyID)
		if err != nil {
			s.respondError(res, req, Maybe404(err), "failed to find story")
			return
		}

		err = req.ParseForm()
		if err != nil {
			s.Logger.Warn().Err(err).Msg("Failed to parse form")
			http.Error(res, "Failed to parse form", http.StatusBadRequest)
			return
		}

		userRecord := ctxUser(req.Context())

		body := strings.TrimSpace(req.FormValue("body"))
		if body == "" {
			http.Error(res, "", http.StatusBadRequest)
			return
		}

		parentID := nullInt64(0, false)
		if rawParentID := req.FormValue("parent-id"); rawParentID != "" {
			id, err := strconv.ParseInt(rawParentID, 10, 64)
			if err != nil {
				s.respondError(res, req, BadRequest(err), "invalid parent comment id")
				return
			}
			parent, err := s.store.FindComment(id)
			if err != nil {
				s.respondError(res, req, Maybe404(err), "failed to find parent comment")
				return
			}
			if parent.StoryID != story.ID {
				s.respondError(res, req, BadRequest(errors.New("parent comment belongs to another story")), "invalid parent comment")
				return
			}
			parentID = nullInt64(parent.ID, true)
		}

		comment := NewComment(story.ID, parentID, body, userRecord.ID)

		err = s.store.InsertComment(comment)
		if err != nil {
			s.Logger.Error().Err(err).Msg("Failed to insert comment")
			http.Error(res, "Failed to insert comment", http.StatusInternalServerError)
			return
		}

		comment.Author = userRecord.Username
		for _, h := range s.commentHooks {
			err := h(story, comment)
			if err != nil {
				s.Logger.Warn().Err(err).Msg("comment hook failed")
			}
		}

		http.Redirect(res, req, fmt.Sprintf("/stories/%d/comments", story.ID), http.StatusFound)
	}
}

// HandleVoteStoryAction handles requests to vote on a given Story, up or down
// depending on the dir form value.
func (s *Server) HandleVoteStoryAction() httprouter.Handle {
	return func(res http.ResponseWriter, req *http.Request, params httprouter.Params) {
		redir, err := normalizeRedir(req.URL.Query()["redir"])
		if err != nil {
			s.Logger.Debug().Err(err).Msg("suspect redir param")
			http.Error(res, "Suspect redirection", http.StatusBadRequest)
			return
		}

		storyID, err := strconv.ParseInt(params.ByName("story_id"), 10, 64)
		if err != nil {
			s.respondError(res, req, BadRequest(err), "invalid story id")
			return
		}

		userRecord := ctxUser(req.Context())
		result, err := s.votes.VoteStory(userRecord.ID, userRecord.Karma, storyID, voteDir(req))
		if err != nil {
			s.respondError(res, req, Maybe404(err), "failed to vote")
			return
		}

		s.redirectWithOutcome(res, req, redir, result)
	}
}

// HandleUnvoteStoryAction handles requests to withdraw a vote on a Story.
func (s *Server) HandleUnvoteStoryAction() httprouter.Handle {
	return func(res http.ResponseWriter, req *http.Request, params httprouter.Params) {
		redir, err := normalizeRedir(req.URL.Query()["redir"])
		if err != nil {
			s.Logger.Debug().Err(err).Msg("suspect redir param")
			http.Error(res, "Suspect redirection", http.StatusBadRequest)
			return
		}

		storyID, err := strconv.ParseInt(params.ByName("story_id"), 10, 64)
		if err != nil {
			s.respondError(res, req, BadRequest(err), "invalid story id")
			return
		}

		userRecord := ctxUser(req.Context())
		result, err := s.votes.UnvoteStory(userRecord.ID, storyID)
		if err != nil {
			s.respondError(res, req, Maybe404(err), "failed to unvote")
			return
		}

		s.redirectWithOutcome(res, req, redir, result)
	}
}

// HandleVoteCommentAction handles requests to vote on a Comment. It redirects
// back to the Story on which the Comment was posted.
func (s *Server) HandleVoteCommentAction() httprouter.Handle {
	return func(res http.ResponseWriter, req *http.Request, params httprouter.Params) {
		redir, err := normalizeRedir(req.URL.Query()["redir"])
		if err != nil {
			s.Logger.Debug().Err(err).Msg("suspect redir param")
			http.Error(res, "Suspect redirection", http.StatusBadRequest)
			return
		}

		commentID, ok := s.commentParams(res, req, params)
		if !ok {
			return
		}

		userRecord := ctxUser(req.Context())
		result, err := s.votes.VoteComment(userRecord.ID, userRecord.Karma, commentID, voteDir(req))
		if err != nil {
			s.respondError(res, req, Maybe404(err), "failed to vote")
			return
		}

		s.redirectWithOutcome(res, req, redir, result)
	}
}

// HandleUnvoteCommentAction handles requests to withdraw a vote on a Comment.
func (s *Server) HandleUnvoteCommentAction() httprouter.Handle {
	return func(res http.ResponseWriter, req *http.Request, params httprouter.Params) {
		redir, err := normalizeRedir(req.URL.Query()["redir"])
		if err != nil {
			s.Logger.Debug().Err(err).Msg("suspect redir param")
			http.Error(res, "Suspect redirection", http.StatusBadRequest)
			return
		}

		commentID, ok := s.commentParams(res, req, params)
		if !ok {
			return
		}

		userRecord := ctxUser(req.Context())
		result, err := s.votes.UnvoteComment(userRecord.ID, commentID)
		if err != nil {
			s.respondError(res, req, Maybe404(err), "failed to unvote")
			return
		}

		s.redirectWithOutcome(res, req, redir, result)
	}
}

// commentParams resolves the story and comment route params, checking the
// comment actually belongs to the story. It writes the response itself on
// failure.
func (s *Server) commentParams(res http.ResponseWriter, req *http.Request, params httprouter.Params) (int64, bool) {
	storyID, err := strconv.ParseInt(params.ByName("story_id"), 10, 64)
	if err != nil {
		s.respondError(res, req, BadRequest(err), "invalid story id")
		return 0, false
	}

	commentID, err := strconv.ParseInt(params.ByName("id"), 10, 64)
	if err != nil {
		s.respondError(res, req, BadRequest(err), "invalid comment id")
		return 0, false
	}

	comment, err := s.store.FindComment(commentID)
	if err != nil {
		s.respondError(res, req, Maybe404(err), "failed to find comment")
		return 0, false
	}

	if comment.StoryID != storyID {
		s.respondError(res, req, Maybe404(ErrNotFound), "comment not found on this story")
		return 0, false
	}

	return commentID, true
}

// voteDir reads the vote direction from the dir form value, defaulting to up.
func voteDir(req *http.Request) bool {
	return req.FormValue("dir") != "down"
}

// redirectWithOutcome sends the client back where they came from, carrying
// the warning message as a notice when the vote was rejected.
func (s *Server) redirectWithOutcome(res http.ResponseWriter, req *http.Request, redir string, result VoteResult) {
	if !result.Accepted {
		redir = addNotice(redir, result.Message)
	}
	http.Redirect(res, req, redir, http.StatusFound)
}

func (s *Server) HandleCommentEdit() httprouter.Handle {
	tmpl, err := template.New("edit.html").Funcs(helpers).ParseFiles(
		"assets/templates/edit.html",
		"assets/templates/_header.html",
		"assets/templates/_footer.html")
	if err != nil {
		s.Logger.Fatal().Err(err).Msg("Failed to parse template")
	}

	return func(res http.ResponseWriter, req *http.Request, params httprouter.Params) {
		res.Header().Set("Content-Type", "text/html")
		session := ctxSession(req.Context())
		userRecord := ctxUser(req.Context())

		commentID, ok := s.commentParams(res, req, params)
		if !ok {
			return
		}

		comment, err := s.store.FindComment(commentID)
		if err != nil {
			s.respondError(res, req, Maybe404(err), "failed to find comment")
			return
		}

		story, err := s.store.FindStory(comment.StoryID)
		if err != nil {
			s.respondError(res, req, Maybe404(err), "failed to find story")
			return
		}

		// Cannot edit comments that aren't yours.
		if comment.AuthorID != userRecord.ID {
			s.respondError(res, req, Forbidden(req.URL.Path), "forbidden")
			return
		}

		// If the comment is older than the edit window, let's redirect.
		editWindow := time.Duration(s.config.EditWindowInMinutes) * time.Minute
		if comment.CreatedAt.Add(editWindow).Before(NowFunc()) {
			http.Redirect(res, req, fmt.Sprintf("/stories/%d/comments", story.ID), http.StatusFound)
			return
		}

		vars := map[string]interface{}{
			"Session": session,
			"Comment": comment,
			"Story":   newStoryPresenter(story),
		}

		err = tmpl.Execute(res, vars)
		if err != nil {
			s.Logger.Error().Err(err).Msg("Failed to render template")
			http.Error(res, "Failed to render template", http.StatusInternalServerError)
			return
		}
	}
}

func (s *Server) HandleCommentUpdateAction() httprouter.Handle {
	return func(res http.ResponseWriter, req *http.Request, params httprouter.Params) {
		userRecord := ctxUser(req.Context())

		commentID, ok := s.commentParams(res, req, params)
		if !ok {
			return
		}

		comment, err := s.store.FindComment(commentID)
		if err != nil {
			s.respondError(res, req, Maybe404(err), "failed to find comment")
			return
		}

		// Cannot edit comments that aren't yours.
		if comment.AuthorID != userRecord.ID {
			s.respondError(res, req, Forbidden(req.URL.Path), "forbidden")
			return
		}

		editWindow := time.Duration(s.config.EditWindowInMinutes) * time.Minute
		if comment.CreatedAt.Add(editWindow).Before(NowFunc()) {
			s.respondError(res, req, Forbidden(req.URL.Path), "edit window closed")
			return
		}

		err = req.ParseForm()
		if err != nil {
			http.Error(res, "Bad Request", http.StatusBadRequest)
			return
		}

		body := strings.TrimSpace(req.Form.Get("body"))
		if body == "" {
			http.Error(res, "", http.StatusBadRequest)
			return
		}

		comment.Body = body
		err = s.store.UpdateComment(comment)
		if err != nil {
			s.Logger.Error().Err(err).Msg("can't update comment in db")
			http.Error(res, "Server Error", http.StatusInternalServerError)
			return
		}

		http.Redirect(res, req, fmt.Sprintf("/stories/%d/comments", comment.StoryID), http.StatusFound)
	}
}

// HandleCommentDeleteAction handles requests to delete a comment. Deletion is
// soft: the comment keeps its spot in the thread, its karma and the votes it
// received, but its author and body no longer show.
func (s *Server) HandleCommentDeleteAction() httprouter.Handle {
	return func(res http.ResponseWriter, req *http.Request, params httprouter.Params) {
		userRecord := ctxUser(req.Context())

		commentID, ok := s.commentParams(res, req, params)
		if !ok {
			return
		}

		comment, err := s.store.FindComment(commentID)
		if err != nil {
			s.respondError(res, req, Maybe404(err), "failed to find comment")
			return
		}

		// Cannot delete comments that aren't yours.
		if comment.AuthorID != userRecord.ID {
			s.respondError(res, req, Forbidden(req.URL.Path), "forbidden")
			return
		}

		err = s.store.DeleteComment(comment.ID)
		if err != nil {
			s.Logger.Error().Err(err).Msg("can't delete comment in db")
			http.Error(res, "Server Error", http.StatusInternalServerError)
			return
		}

		http.Redirect(res, req, fmt.Sprintf("/stories/%d/comments", comment.StoryID), http.StatusFound)
	}
}

// HandleLogin handles requests for the login form.
func (s *Server) HandleLogin() httprouter.Handle {
	tmpl := s.authTemplate("login.html")

	return func(res http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		res.Header().Set("Content-Type", "text/html")

		if session := ctxSession(req.Context()); session != nil {
			http.Redirect(res, req, "/", http.StatusFound)
			return
		}

		s.renderAuthForm(res, tmpl, "")
	}
}

// HandleLoginAction handles login form submissions, verifying the password
// against the stored hash.
func (s *Server) HandleLoginAction() httprouter.Handle {
	tmpl := s.authTemplate("login.html")

	return func(res http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		res.Header().Set("Content-Type", "text/html")

		err := req.ParseForm()
		if err != nil {
			http.Error(res, "Failed to parse form", http.StatusBadRequest)
			return
		}

		username := strings.TrimSpace(req.FormValue("username"))
		password := req.FormValue("password")

		userRecord, err := s.store.FindUserByUsername(username)
		if err != nil {
			s.Logger.Error().Err(err).Msg("Failed to fetch user from db")
			http.Error(res, "Failed to fetch user from database", http.StatusInternalServerError)
			return
		}

		// same answer whether the username or the password is wrong
		if userRecord == nil || !userRecord.PasswordHash.Valid ||
			!password_auth.CheckPassword(userRecord.PasswordHash.String, password) {
			s.renderAuthForm(res, tmpl, "invalid username or password")
			return
		}

		err = s.authService.SignIn(res, req, &authentication.User{
			Login: userRecord.Username,
			Email: userRecord.Email,
		})
		if err != nil {
			s.Logger.Error().Err(err).Msg("Failed to sign in")
			http.Error(res, "Failed to sign in", http.StatusInternalServerError)
			return
		}

		http.Redirect(res, req, "/", http.StatusFound)
	}
}

// HandleRegister handles requests for the registration form.
func (s *Server) HandleRegister() httprouter.Handle {
	tmpl := s.authTemplate("register.html")

	return func(res http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		res.Header().Set("Content-Type", "text/html")

		if session := ctxSession(req.Context()); session != nil {
			http.Redirect(res, req, "/", http.StatusFound)
			return
		}

		s.renderAuthForm(res, tmpl, "")
	}
}

// HandleRegisterAction handles registration form submissions, creating the
// account and signing the user in.
func (s *Server) HandleRegisterAction() httprouter.Handle {
	tmpl := s.authTemplate("register.html")

	return func(res http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		res.Header().Set("Content-Type", "text/html")

		err := req.ParseForm()
		if err != nil {
			http.Error(res, "Failed to parse form", http.StatusBadRequest)
			return
		}

		username := strings.TrimSpace(req.FormValue("username"))
		email := strings.TrimSpace(req.FormValue("email"))
		password := req.FormValue("password")

		if username == "" || len(username) > 32 || strings.ContainsAny(username, " /") {
			s.renderAuthForm(res, tmpl, "invalid username")
			return
		}
		if len(password) < 8 {
			s.renderAuthForm(res, tmpl, "password must be at least 8 characters")
			return
		}

		hash, err := password_auth.HashPassword(password)
		if err != nil {
			s.Logger.Error().Err(err).Msg("Failed to hash password")
			http.Error(res, "Failed to register", http.StatusInternalServerError)
			return
		}

		userRecord := NewUser(username)
		userRecord.Email = email
		userRecord.PasswordHash = sql.NullString{String: hash, Valid: true}

		err = s.store.InsertUser(userRecord)
		if errors.Is(err, ErrUsernameTaken) {
			s.renderAuthForm(res, tmpl, "username already taken")
			return
		}
		if err != nil {
			s.Logger.Error().Err(err).Msg("Failed to insert user")
			http.Error(res, "Failed to register", http.StatusInternalServerError)
			return
		}

		err = s.authService.SignIn(res, req, &authentication.User{
			Login: userRecord.Username,
			Email: userRecord.Email,
		})
		if err != nil {
			s.Logger.Error().Err(err).Msg("Failed to sign in")
			http.Error(res, "Failed to sign in", http.StatusInternalServerError)
			return
		}

		http.Redirect(res, req, "/", http.StatusFound)
	}
}

// HandleLogout handles requests destroying the current session.
func (s *Server) HandleLogout() httprouter.Handle {
	return func(res http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		s.authService.Destroy(res, req)
	}
}

func (s *Server) authTemplate(name string) *template.Template {
	tmpl, err := template.New(name).Funcs(helpers).ParseFiles(
		"assets/templates/"+name,
		"assets/templates/_header.html",
		"assets/templates/_footer.html")
	if err != nil {
		s.Logger.Fatal().Err(err).Msg("Failed to parse template")
	}
	return tmpl
}

func (s *Server) renderAuthForm(res http.ResponseWriter, tmpl *template.Template, errMessage string) {
	err := tmpl.Execute(res, map[string]interface{}{
		"Session": nil,
		"Error":   errMessage,
	})
	if err != nil {
		s.Logger.Error().Err(err).Msg("Failed to render template")
		http.Error(res, "Failed to render template", http.StatusInternalServerError)
	}
}

// HandleUserProfile handles requests for a user's profile page, showing their
// karma, their about text and their submitted stories.
func (s *Server) HandleUserProfile() httprouter.Handle {
	tmpl, err := template.New("user.html").Funcs(helpers).ParseFiles(
		"assets/templates/user.html",
		"assets/templates/_header.html",
		"assets/templates/_footer.html",
		"assets/templates/_story.html")
	if err != nil {
		s.Logger.Fatal().Err(err).Msg("Failed to parse template")
	}

	return func(res http.ResponseWriter, req *http.Request, params httprouter.Params) {
		res.Header().Set("Content-Type", "text/html")

		session := ctxSession(req.Context())

		username := params.ByName("username")
		userRecord, err := s.store.FindUserByUsername(username)
		if err != nil {
			s.Logger.Error().Err(err).Msg("Failed to fetch user from db")
			http.Error(res, "Failed to fetch user from database", http.StatusInternalServerError)
			return
		}
		if userRecord == nil {
			s.respondError(res, req, Maybe404(ErrNotFound), "user not found")
			return
		}

		page := parsePage(req)
		stories, total, err := s.store.ListStories(StoryFilter{AuthorID: userRecord.ID}, page, s.config.StoriesPerPage)
		if err != nil {
			s.Logger.Error().Err(err).Msg("Failed to list stories")
			http.Error(res, "Failed to list stories", http.StatusInternalServerError)
			return
		}

		storyPresenters := []*storyPresenter{}
		for i, st := range stories {
			pos := 1 + i + (page * s.config.StoriesPerPage)
			storyPresenters = append(storyPresenters, newStoryPresenterWithPos(st, pos))
		}

		nextPage := page + 1
		if (page+1)*s.config.StoriesPerPage >= total {
			nextPage = -1
		}

		var about template.HTML
		if userRecord.About.Valid {
			about = renderBody(userRecord.About.String)
		}

		vars := map[string]interface{}{
			"Session":  session,
			"User":     userRecord,
			"About":    about,
			"IsSelf":   session != nil && session.Login == userRecord.Username,
			"Stories":  storyPresenters,
			"NextPage": nextPage,
			"PrevPage": page - 1,
			"CurrPage": page,
			"BasePath": req.URL.Path,
		}

		err = tmpl.Execute(res, vars)
		if err != nil {
			s.Logger.Error().Err(err).Msg("Failed to render template")
			http.Error(res, "Failed to render template", http.StatusInternalServerError)
			return
		}
	}
}

// HandleUserUpdateAction handles profile edits. Only the fields present in
// the form change, and only on the requester's own profile.
func (s *Server) HandleUserUpdateAction() httprouter.Handle {
	return func(res http.ResponseWriter, req *http.Request, params httprouter.Params) {
		userRecord := ctxUser(req.Context())

		username := params.ByName("username")
		if username != userRecord.Username {
			s.respondError(res, req, Forbidden(req.URL.Path), "forbidden")
			return
		}

		err := req.ParseForm()
		if err != nil {
			http.Error(res, "Failed to parse form", http.StatusBadRequest)
			return
		}

		var update UserUpdate
		if values, ok := req.PostForm["email"]; ok && len(values) > 0 {
			email := strings.TrimSpace(values[0])
			update.Email = &email
		}
		if values, ok := req.PostForm["about"]; ok && len(values) > 0 {
			about := strings.TrimSpace(values[0])
			update.About = &about
		}

		if !update.IsEmpty() {
			err = s.store.UpdateUser(userRecord.ID, update)
			if err != nil {
				s.Logger.Error().Err(err).Msg("Failed to update user")
				http.Error(res, "Failed to update user", http.StatusInternalServerError)
				return
			}
		}

		http.Redirect(res, req, "/users/"+username, http.StatusFound)
	}
}

// normalizeRedir validates the redir query param, only accepting local
// absolute paths so the site cannot be used as an open redirector.
func normalizeRedir(values []string) (string, error) {
	if len(values) == 0 || values[0] == "" {
		return "/", nil
	}

	raw := values[0]
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme != "" || u.Host != "" || !strings.HasPrefix(u.Path, "/") || strings.HasPrefix(u.Path, "//") {
		return "", fmt.Errorf("not a local path: %q", raw)
	}

	return raw, nil
}

// addNotice appends a notice message to a local redirect target.
func addNotice(redir string, message string) string {
	u, err := url.Parse(redir)
	if err != nil {
		return redir
	}
	q := u.Query()
	q.Set("notice", message)
	u.RawQuery = q.Encode()
	return u.String()
}
