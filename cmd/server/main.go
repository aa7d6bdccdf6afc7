package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/sessions"
	"github.com/rs/zerolog/log"
	"github.com/tommell/broadsheet"
	"github.com/tommell/broadsheet/announce"
	"github.com/tommell/broadsheet/authentication"
	"github.com/tommell/broadsheet/authentication/github_auth"
	"github.com/tommell/broadsheet/authentication/password_auth"
	"github.com/tommell/broadsheet/cmd"
	"github.com/tommell/broadsheet/pgstore"
)

func main() {
	cfg := cmd.DefaultConfig()
	err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Cannot read configuration")
	}
	logger := cmd.SetupLogger(cfg)

	// setup database
	pg := pgstore.New(cfg.DatabaseAddr(), cfg.KarmaIncrement())

	// setup authentication, GitHub OAuth when credentials are configured,
	// password accounts otherwise
	var authService authentication.AuthService
	if cfg.GithubClientID != "" {
		ll := logger.With().Str("component", "github auth").Logger()
		authService = github_auth.New(cfg.ServerSecret, cfg.GithubClientID, cfg.GithubClientSecret, ll)
	} else {
		ll := logger.With().Str("component", "password auth").Logger()
		sessionStore := sessions.NewCookieStore([]byte(cfg.ServerSecret))
		authService = password_auth.New(sessionStore, ll)
	}

	// fire the server
	s := broadsheet.NewServer(&broadsheet.ServerConfig{
		Addr:                cfg.Addr,
		StoriesPerPage:      cfg.StoriesPerPage,
		MinKarmaForDownvote: cfg.MinKarmaForDownvote,
		KarmaIncrement:      cfg.KarmaIncrement(),
		ShowPrefix:          cfg.ShowPrefix,
		AskPrefix:           cfg.AskPrefix,
		EditWindowInMinutes: cfg.EditWindowInMinutes,
	}, logger, pg, authService)

	if cfg.SlackToken != "" {
		ll := logger.With().Str("component", "slack").Logger()
		announcer := announce.NewSlackAnnouncer(cfg.SlackToken, cfg.SlackChannel, cfg.BaseURL, ll)
		s.AddStoryHook(announcer.Hook())
	}

	err = s.Prepare()
	if err != nil {
		logger.Fatal().Err(err).Msg("Cannot prepare server")
	}

	err = pg.Migrate()
	if err != nil {
		logger.Fatal().Err(err).Msg("Cannot migrate database")
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		logger.Info().Msg("Shutting down")
		s.Stop()
	}()

	err = s.Start()
	if err != nil {
		logger.Fatal().Err(err).Msg("Cannot start server")
	}
}
