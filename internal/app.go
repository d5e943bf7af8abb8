package internal

import (
	"fmt"
	"log/slog"

	"github.com/starford/scribe/internal/capture"
	"github.com/starford/scribe/internal/notes"
	"github.com/starford/scribe/internal/processing"
	"github.com/starford/scribe/internal/remote"
	"github.com/starford/scribe/internal/session"
	"github.com/starford/scribe/internal/storage"
)

// Core is the wiring every surface shares: one session, one guarded client,
// and the components built on them.
type Core struct {
	Config  *Config
	Logger  *slog.Logger
	Store   *storage.FS
	Session *session.Session
	Auth    *session.Auth
	Client  *remote.Client
	Notes   *notes.Repository
}

// Open builds the core from cfg.
func Open(cfg *Config, logger *slog.Logger, noteOpts ...notes.Option) (*Core, error) {
	if logger == nil {
		logger = slog.Default()
	}

	store, err := storage.NewFS(cfg.Session.CredentialPath)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	sess, err := session.New(store, logger)
	if err != nil {
		return nil, fmt.Errorf("init session: %w", err)
	}
	client, err := sess.Client(cfg.Backend.BaseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("init client: %w", err)
	}
	auth, err := session.NewAuth(sess, cfg.Backend.BaseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("init auth: %w", err)
	}

	noteOpts = append([]notes.Option{notes.WithLogger(logger)}, noteOpts...)
	return &Core{
		Config:  cfg,
		Logger:  logger,
		Store:   store,
		Session: sess,
		Auth:    auth,
		Client:  client,
		Notes:   notes.NewRepository(client, noteOpts...),
	}, nil
}

// Orchestrator builds a processing orchestrator for target with the
// configured timeout and display delay.
func (c *Core) Orchestrator(target processing.Target, opts ...processing.Option) *processing.Orchestrator {
	base := []processing.Option{
		processing.WithLogger(c.Logger),
		processing.WithTimeout(c.Config.Processing.Timeout),
		processing.WithDisplayDelay(c.Config.Processing.DisplayDelay),
	}
	return processing.New(target, c.Client, append(base, opts...)...)
}

// Recorder returns a capture controller over the configured command, or nil
// when recording is disabled.
func (c *Core) Recorder() *capture.Controller {
	if !c.Config.Capture.Enabled() {
		return nil
	}
	dev := &capture.ExecDevice{Command: c.Config.Capture.Command, Args: c.Config.Capture.Args}
	return capture.NewController(dev, c.Logger)
}
