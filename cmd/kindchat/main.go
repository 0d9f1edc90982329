package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"kindbossing/internal/client/api"
	"kindbossing/internal/infra/obs"
)

var (
	configFile string
	baseURL    string
	token      string
)

var rootCmd = &cobra.Command{
	Use:           "kindchat",
	Short:         "Terminal client for KindBossing chat and applicant matching",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default ~/.kindchat/config.toml)")
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "API base URL, overrides the config file")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "bearer token, overrides the config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// session is the resolved configuration every command works from.
type session struct {
	cfg    *Config
	userID string
	api    *api.Client
	logger *slog.Logger
	close  func()
}

func openSession() (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if token != "" {
		cfg.Token = token
	}
	if env := os.Getenv("KINDCHAT_TOKEN"); env != "" && token == "" {
		cfg.Token = env
	}
	if cfg.Token == "" {
		return nil, errors.New("no token configured; run 'kindchat config set token <jwt>'")
	}
	userID := cfg.UserID
	if userID == "" {
		if userID, err = api.Subject(cfg.Token); err != nil {
			return nil, err
		}
	}

	logger, closeLog := fileLogger(cfg.LogLevel)
	client, err := api.New(api.Config{BaseURL: cfg.BaseURL, Token: cfg.Token, Timeout: 15 * time.Second}, logger)
	if err != nil {
		closeLog()
		return nil, err
	}
	return &session{cfg: cfg, userID: userID, api: client, logger: logger, close: closeLog}, nil
}

// fileLogger writes to ~/.kindchat/kindchat.log since the terminal belongs
// to the UI.
func fileLogger(level string) (*slog.Logger, func()) {
	var (
		w       io.Writer = io.Discard
		closeFn           = func() {}
	)
	if dir, err := configDir(); err == nil {
		f, err := os.OpenFile(filepath.Join(dir, "kindchat.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
		if err == nil {
			w = f
			closeFn = func() { _ = f.Close() }
		}
	}
	handler := tint.NewHandler(w, &tint.Options{
		Level:      obs.ParseLevel(level),
		TimeFormat: time.RFC3339,
		NoColor:    true,
	})
	return slog.New(handler), closeFn
}
