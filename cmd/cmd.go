package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Config struct {
	LogLevel             string `json:"log_level"`
	LogFormat            string `json:"log_format"`
	DatabaseName         string `json:"database_name"`
	DatabaseUser         string `json:"database_user"`
	DatabaseHost         string `json:"database_host"`
	DatabasePassword     string `json:"database_password"`
	GithubClientID       string `json:"github_client_id"`
	GithubClientSecret   string `json:"github_client_secret"`
	SlackToken           string `json:"slack_token"`
	SlackChannel         string `json:"slack_channel"`
	BaseURL              string `json:"base_url"`
	ServerSecret         string `json:"server_secret,required"`
	StoriesPerPage       int    `json:"stories_per_page"`
	MinKarmaForDownvote  int    `json:"min_karma_for_downvote"`
	KarmaIncrementMillis int    `json:"karma_increment_millis"`
	ShowPrefix           string `json:"show_prefix"`
	AskPrefix            string `json:"ask_prefix"`
	EditWindowInMinutes  int    `json:"edit_window_in_minutes"`
	Addr                 string `json:"addr"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel:         "info",
		LogFormat:        "json",
		DatabaseName:     "broadsheet",
		DatabaseUser:     "postgres",
		DatabasePassword: "postgres",
		DatabaseHost:     "127.0.0.1",
		BaseURL:          "http://localhost:8080",
		StoriesPerPage:   25,
		// a downvote costs nothing to the voter but the right to downvote
		// has to be earned
		MinKarmaForDownvote: 50,
		// one karma point buys 30 minutes of freshness on the front page
		KarmaIncrementMillis: int((30 * time.Minute).Milliseconds()),
		ShowPrefix:           "Show:",
		AskPrefix:            "Ask:",
		EditWindowInMinutes:  15,
		Addr:                 "localhost:8080",
	}
}

// Load reads config.json when present, then overrides with the environment,
// .env file included.
func (c *Config) Load() error {
	// a missing .env file is fine, the environment may be set by other means
	_ = godotenv.Load()

	f, err := os.Open("config.json")
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	if !os.IsNotExist(err) {
		err = json.NewDecoder(f).Decode(c)
		if err != nil {
			return err
		}
	}

	stringVars := map[string]*string{
		"LOG_LEVEL":            &c.LogLevel,
		"LOG_FORMAT":           &c.LogFormat,
		"DATABASE_NAME":        &c.DatabaseName,
		"DATABASE_USER":        &c.DatabaseUser,
		"DATABASE_HOST":        &c.DatabaseHost,
		"DATABASE_PASSWORD":    &c.DatabasePassword,
		"GITHUB_CLIENT_ID":     &c.GithubClientID,
		"GITHUB_CLIENT_SECRET": &c.GithubClientSecret,
		"SLACK_TOKEN":          &c.SlackToken,
		"SLACK_CHANNEL":        &c.SlackChannel,
		"BASE_URL":             &c.BaseURL,
		"SERVER_SECRET":        &c.ServerSecret,
		"SHOW_PREFIX":          &c.ShowPrefix,
		"ASK_PREFIX":           &c.AskPrefix,
		"ADDR":                 &c.Addr,
	}
	for name, dst := range stringVars {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}

	intVars := map[string]*int{
		"STORIES_PER_PAGE":       &c.StoriesPerPage,
		"MIN_KARMA_FOR_DOWNVOTE": &c.MinKarmaForDownvote,
		"KARMA_INCREMENT_MILLIS": &c.KarmaIncrementMillis,
		"EDIT_WINDOW_IN_MINUTES": &c.EditWindowInMinutes,
	}
	for name, dst := range intVars {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		vi, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config %v: %w", name, err)
		}
		*dst = vi
	}

	if c.ServerSecret == "" {
		return fmt.Errorf("missing config 'server secret'")
	}

	// GitHub credentials are optional, password authentication takes over
	// when they are absent. Half a pair is a mistake though.
	if (c.GithubClientID == "") != (c.GithubClientSecret == "") {
		return fmt.Errorf("github client id and secret must be set together")
	}

	return nil
}

// DatabaseAddr assembles the lib/pq connection string.
func (c *Config) DatabaseAddr() string {
	return fmt.Sprintf(
		"user=%v dbname=%v sslmode=disable password=%v host=%v",
		c.DatabaseUser,
		c.DatabaseName,
		c.DatabasePassword,
		c.DatabaseHost,
	)
}

// KarmaIncrement returns the rank increment as a duration.
func (c *Config) KarmaIncrement() time.Duration {
	return time.Duration(c.KarmaIncrementMillis) * time.Millisecond
}

func SetupLogger(cfg *Config) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatal().Err(err).Str("input", cfg.LogLevel).Msg("Cannot parse log level")
	}
	zerolog.SetGlobalLevel(level)

	if cfg.LogFormat == "" || cfg.LogFormat == "json" {
		return zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}
}
