// Package app assembles the Marv bot: message log, bot profile, language
// model provider, Matrix transport and event dispatcher.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bdobrica/marv/internal/marv/dispatch"
	"github.com/bdobrica/marv/internal/marv/matrix"
	"github.com/bdobrica/marv/internal/marv/nlp"
	"github.com/bdobrica/marv/internal/marv/profile"
	"github.com/bdobrica/marv/internal/marv/store"
)

// Config holds application configuration.
type Config struct {
	// LogPath is the append-only message log (JSON Lines).
	LogPath string
	// SyncDBPath is the SQLite database holding the Matrix sync token.
	// When empty the sync position is kept in memory only.
	SyncDBPath string
	// ProfilePath points at an optional YAML bot profile. When empty the
	// built-in Marv profile is used.
	ProfilePath string
	Matrix      matrix.Config
	NLP         nlp.Config
}

// App is the assembled bot.
type App struct {
	config     *Config
	syncDB     *sql.DB
	store      *store.Store
	matrix     *matrix.Client
	dispatcher *dispatch.Dispatcher
}

// New wires all subsystems but does not start syncing yet.
func New(config *Config) (*App, error) {
	prof := profile.Default()
	if config.ProfilePath != "" {
		var err error
		if prof, err = profile.Load(config.ProfilePath); err != nil {
			return nil, fmt.Errorf("load profile: %w", err)
		}
	}
	slog.Info("profile ready", "name", prof.Name, "default_model", prof.Models.Default.Name)

	slog.Info("opening message log", "path", config.LogPath)
	log, err := store.Open(config.LogPath)
	if err != nil {
		return nil, fmt.Errorf("open message log: %w", err)
	}

	var syncDB *sql.DB
	if config.SyncDBPath != "" {
		syncDB, err = matrix.OpenSyncDB(config.SyncDBPath)
		if err != nil {
			log.Close()
			return nil, err
		}
	}

	matrixCfg := config.Matrix
	matrixCfg.DB = syncDB
	slog.Info("connecting to Matrix", "homeserver", matrixCfg.Homeserver, "rooms", len(matrixCfg.Rooms))
	matrixClient, err := matrix.New(&matrixCfg)
	if err != nil {
		log.Close()
		closeDB(syncDB)
		return nil, err
	}

	// The token counts that drive context truncation depend on the model's
	// encoding, so the tokenizer tracks the default model.
	tok, err := nlp.NewTiktoken(prof.Models.Default.Name)
	if err != nil {
		log.Close()
		closeDB(syncDB)
		return nil, fmt.Errorf("build tokenizer: %w", err)
	}

	dispatcher := dispatch.New(dispatch.Config{
		Store:      log,
		Profile:    prof,
		Provider:   nlp.New(config.NLP),
		Tokenizer:  tok,
		Outbound:   matrixClient,
		SelfUserID: config.Matrix.UserID,
	})

	return &App{
		config:     config,
		syncDB:     syncDB,
		store:      log,
		matrix:     matrixClient,
		dispatcher: dispatcher,
	}, nil
}

// Run starts the Matrix sync and blocks until an interrupt signal arrives.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slog.Info("starting Matrix sync")
	if err := a.matrix.Start(ctx, a.dispatcher.Handle); err != nil {
		return fmt.Errorf("start Matrix client: %w", err)
	}

	slog.Info("Marv is running; press Ctrl+C to stop",
		"log", a.store.Path(), "messages", a.store.Len())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down")
	return nil
}

// Stop tears the bot down. In-flight generations are allowed to finish so
// their results reach the log before it closes.
func (a *App) Stop() {
	slog.Info("stopping Matrix client")
	a.matrix.Stop()

	a.dispatcher.Wait()

	slog.Info("closing message log")
	if err := a.store.Close(); err != nil {
		slog.Warn("close message log", "err", err)
	}
	closeDB(a.syncDB)
}

func closeDB(db *sql.DB) {
	if db != nil {
		db.Close()
	}
}
