package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/bdobrica/marv/common/environment"
	"github.com/bdobrica/marv/common/version"
	"github.com/bdobrica/marv/internal/marv/app"
	"github.com/bdobrica/marv/internal/marv/matrix"
	"github.com/bdobrica/marv/internal/marv/nlp"
)

func main() {
	fmt.Printf("Marv\n")
	fmt.Printf("Version: %s\n", version.Info())
	fmt.Println()

	configureLogging()

	config, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	bot, err := app.New(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize Marv: %v\n", err)
		os.Exit(1)
	}
	defer bot.Stop()

	if err := bot.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running Marv: %v\n", err)
		os.Exit(1)
	}
}

// configureLogging sets the process-wide slog level from MARV_LOG_LEVEL.
func configureLogging() {
	level := slog.LevelInfo
	switch strings.ToLower(environment.StringOr("MARV_LOG_LEVEL", "info")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// loadConfig reads configuration from environment variables.
func loadConfig() (*app.Config, error) {
	homeserver, err := environment.RequiredString("MATRIX_HOMESERVER")
	if err != nil {
		return nil, err
	}
	userID, err := environment.RequiredString("MATRIX_USER_ID")
	if err != nil {
		return nil, err
	}
	accessToken, err := environment.RequiredString("MATRIX_ACCESS_TOKEN")
	if err != nil {
		return nil, err
	}
	apiKey, err := environment.RequiredString("OPENAI_API_KEY")
	if err != nil {
		return nil, err
	}

	rooms := environment.StringSliceOr("MARV_ROOMS", nil)
	if len(rooms) == 0 {
		return nil, fmt.Errorf("required environment variable %q is not set", "MARV_ROOMS")
	}

	profilePath, _ := environment.String("MARV_PROFILE")

	return &app.Config{
		LogPath:     environment.StringOr("MARV_LOG_PATH", "./messages.jsonl"),
		SyncDBPath:  environment.StringOr("MARV_DB_PATH", "./marv.db"),
		ProfilePath: profilePath,
		Matrix: matrix.Config{
			Homeserver:  homeserver,
			UserID:      userID,
			AccessToken: accessToken,
			Rooms:       rooms,
		},
		NLP: nlp.Config{
			APIKey:  apiKey,
			BaseURL: environment.StringOr("OPENAI_BASE_URL", ""),
			Timeout: environment.DurationOr("OPENAI_TIMEOUT", 0),
		},
	}, nil
}
