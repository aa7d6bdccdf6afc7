package broadsheet

import (
	"context"
	"encoding/gob"
	"errors"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
	"github.com/tommell/broadsheet/authentication"
	"golang.org/x/oauth2"
)

func init() {
	// be able to serialize session data in a cookie
	gob.Register(&oauth2.Token{})
}

// A StoryHook runs right after a story was submitted.
type StoryHook func(*Story) error

// A CommentHook runs right after a comment was submitted.
type CommentHook func(*Story, *Comment) error

type ServerConfig struct {
	Addr                string
	StoriesPerPage      int
	MinKarmaForDownvote int
	// KarmaIncrement is how much freshness one karma point buys in the
	// ranked front page ordering.
	KarmaIncrement      time.Duration
	ShowPrefix          string
	AskPrefix           string
	EditWindowInMinutes int
}

type Server struct {
	Logger          zerolog.Logger
	config          *ServerConfig
	store           Store
	votes           *VoteService
	router          *httprouter.Router
	done            chan struct{}
	idleConnsClosed chan struct{}
	authService     authentication.AuthService
	storyHooks      []StoryHook
	commentHooks    []CommentHook
}

func NewServer(config *ServerConfig, logger zerolog.Logger, store Store, authService authentication.AuthService) *Server {
	return &Server{
		config:          config,
		store:           store,
		votes:           NewVoteService(store, config.MinKarmaForDownvote, logger.With().Str("component", "votes").Logger()),
		authService:     authService,
		router:          httprouter.New(),
		Logger:          logger,
		done:            make(chan struct{}),
		idleConnsClosed: make(chan struct{}),
	}
}

// AddStoryHook registers a hook called for every newly submitted story.
func (s *Server) AddStoryHook(h StoryHook) {
	s.storyHooks = append(s.storyHooks, h)
}

// AddCommentHook registers a hook called for every newly posted comment.
func (s *Server) AddCommentHook(h CommentHook) {
	s.commentHooks = append(s.commentHooks, h)
}

// Votes exposes the vote service, mostly for tests and seeds.
func (s *Server) Votes() *VoteService {
	return s.votes
}

func (s *Server) Prepare() error {
	// database
	if err := s.store.Connect(); err != nil {
		return err
	}

	// routes readable by anyone, with the session loaded when present
	withMiddlewares(func(m middleware) {
		s.router.GET("/", m(s.HandleIndex()))
		s.router.GET("/newest", m(s.HandleNewest()))
		s.router.GET("/stories/:story_id/comments", m(s.HandleShow()))
		s.router.GET("/users/:username", m(s.HandleUserProfile()))
		s.router.GET("/login", m(s.HandleLogin()))
		s.router.POST("/login", m(s.HandleLoginAction()))
		s.router.GET("/register", m(s.HandleRegister()))
		s.router.POST("/register", m(s.HandleRegisterAction()))
		s.router.GET("/logout", m(s.HandleLogout()))
		s.router.GET("/submit", m(s.HandleSubmit()))
	}, s.loadSessionMiddleware())

	// mutations, requiring a session and its user record
	withMiddlewares(func(m middleware) {
		s.router.POST("/submit", m(s.HandleSubmitAction()))
		s.router.POST("/stories/:story_id/comments", m(s.HandleSubmitCommentAction()))
		s.router.POST("/stories/:story_id/vote", m(s.HandleVoteStoryAction()))
		s.router.POST("/stories/:story_id/unvote", m(s.HandleUnvoteStoryAction()))
		s.router.POST("/stories/:story_id/comments/:id/vote", m(s.HandleVoteCommentAction()))
		s.router.POST("/stories/:story_id/comments/:id/unvote", m(s.HandleUnvoteCommentAction()))
		s.router.GET("/stories/:story_id/comments/:id/edit", m(s.HandleCommentEdit()))
		s.router.POST("/stories/:story_id/comments/:id/update", m(s.HandleCommentUpdateAction()))
		s.router.POST("/stories/:story_id/comments/:id/delete", m(s.HandleCommentDeleteAction()))
		s.router.POST("/users/:username", m(s.HandleUserUpdateAction()))
	}, s.loadSessionMiddleware(), s.loadUserMiddleware())

	if oauth, ok := s.authService.(authentication.OAuthHandler); ok {
		s.router.GET("/oauth/start", s.HandleOAuthStart(oauth))
		s.router.GET("/oauth/authorize", s.HandleOAuthCallback(oauth))
	}
	s.router.GET("/oauth/destroy", s.HandleOAuthDestroy())

	s.router.ServeFiles("/static/*filepath", http.Dir("assets/static"))

	return nil
}

func (s *Server) Start() error {
	httpServer := http.Server{Addr: s.config.Addr, Handler: s}

	go func() {
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			s.Logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-s.done

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		return err
	}

	if err := s.store.Close(); err != nil {
		s.Logger.Warn().Err(err).Msg("failed to close store")
	}
	close(s.idleConnsClosed)

	return nil
}

func (s *Server) Stop() {
	close(s.done)
	<-s.idleConnsClosed
}

func (s *Server) ServeHTTP(res http.ResponseWriter, req *http.Request) {
	s.router.ServeHTTP(res, req)
}

// respondError answers with the status carried by a typed error, or a
// generic internal error for everything else.
func (s *Server) respondError(res http.ResponseWriter, req *http.Request, err error, fallback string) {
	var responder ErrorResponder
	if errors.As(err, &responder) && responder.RespondError(res, req) {
		return
	}

	s.Logger.Error().Err(err).Str("path", req.URL.Path).Msg(fallback)
	http.Error(res, fallback, http.StatusInternalServerError)
}
