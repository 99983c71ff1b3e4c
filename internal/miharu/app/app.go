// Package app wires the Miharu bot together: the Matrix transport, the
// Icinga2 API client, the command registry, and the per-user dialogue
// engine.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"maunium.net/go/mautrix/event"

	"github.com/ansato/Miharu/common/redact"
	"github.com/ansato/Miharu/common/retry"
	"github.com/ansato/Miharu/common/trace"
	"github.com/ansato/Miharu/common/version"
	"github.com/ansato/Miharu/internal/miharu/commands"
	"github.com/ansato/Miharu/internal/miharu/config"
	"github.com/ansato/Miharu/internal/miharu/dialogue"
	"github.com/ansato/Miharu/internal/miharu/icinga"
	"github.com/ansato/Miharu/internal/miharu/matrix"
	"github.com/ansato/Miharu/internal/miharu/reply"
	"github.com/ansato/Miharu/internal/miharu/store"
)

// typingTimeout is how long the typing indicator stays up while a
// message is being processed.
const typingTimeout = 10 * time.Second

// App is the assembled Miharu bot.
type App struct {
	cfg      *config.Config
	store    *store.Store
	matrix   *matrix.Client
	icinga   *icinga.Client
	registry *commands.Registry
	handlers *commands.Handlers
	engine   *dialogue.Engine
}

// auditRecorder bridges the dialogue engine's audit records into the
// SQLite audit log.
type auditRecorder struct {
	store *store.Store
}

func (a *auditRecorder) RecordAction(ctx context.Context, rec dialogue.ActionRecord) error {
	entry := store.ActionAudit{
		UserID:  rec.UserID,
		Author:  rec.Author,
		Command: rec.Command,
		Filter:  rec.Filter,
		Objects: rec.Objects,
		Result:  "success",
	}
	if !rec.Success {
		entry.Result = "error"
		entry.ErrorMessage = rec.Detail
	}
	return a.store.WriteAction(ctx, entry)
}

// New assembles the bot from its configuration.
func New(cfg *config.Config) (*App, error) {
	slog.Info("opening database", "path", cfg.Bot.DBPath)
	db, err := store.New(cfg.Bot.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Inject the DB so the client can persist the sync token across
	// restarts.
	matrixCfg := matrix.Config{
		Homeserver:  cfg.Matrix.Homeserver,
		UserID:      cfg.Matrix.UserID,
		AccessToken: cfg.Matrix.AccessToken,
		Rooms:       cfg.Matrix.Rooms,
		DB:          db.DB(),
	}
	slog.Info("connecting to Matrix", "homeserver", matrixCfg.Homeserver)
	matrixClient, err := matrix.New(&matrixCfg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize Matrix client: %w", err)
	}

	icingaClient := icinga.New(icinga.Config{
		URL:         cfg.Icinga.APIURL,
		Username:    cfg.Icinga.Username,
		Password:    cfg.Icinga.Password,
		InsecureTLS: cfg.Icinga.InsecureTLS,
		Filter:      cfg.Icinga.Filter,
		Timeout:     cfg.Icinga.APITimeout(),
		MaxResults:  cfg.Icinga.MaxResults,
	})

	registry := commands.NewRegistry()

	handlers := &commands.Handlers{
		Registry: registry,
		Icinga:   icingaClient,
		WebURL:   cfg.Icinga.WebURL,
		BotName:  cfg.Bot.Name,
		Version:  version.Version,
	}

	engine := dialogue.New(dialogue.Config{
		Registry: registry,
		Querier:  icingaClient,
		Executor: icingaClient,
		Audit:    &auditRecorder{store: db},
		WebURL:   cfg.Icinga.WebURL,
		Timeout:  cfg.Timeout(),
	})

	return &App{
		cfg:      cfg,
		store:    db,
		matrix:   matrixClient,
		icinga:   icingaClient,
		registry: registry,
		handlers: handlers,
		engine:   engine,
	}, nil
}

// Run starts the bot and blocks until an interrupt signal arrives.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slog.Info("starting Matrix sync")
	if err := a.matrix.Start(ctx, a.handleMessage); err != nil {
		return fmt.Errorf("failed to start Matrix client: %w", err)
	}

	// Announce the bot in each room with the monitoring daemon's current
	// state, so operators see immediately whether Icinga is reachable.
	startup := a.handlers.Daemon(ctx, true)
	for _, roomID := range a.cfg.Matrix.Rooms {
		a.sendResponse(ctx, roomID, startup)
	}

	slog.Info("Miharu is running; press Ctrl+C to stop", "version", version.Version)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down")
	return nil
}

// Stop shuts the bot down.
func (a *App) Stop() {
	slog.Info("stopping Matrix client")
	a.matrix.Stop()

	slog.Info("closing database")
	a.store.Close()
}

// handleMessage processes one incoming Matrix message through the
// command pipeline: reset first (it must work even mid-conversation),
// then the dialogue engine, then the stateless commands, and finally a
// did-you-mean fallback.
func (a *App) handleMessage(ctx context.Context, evt *event.Event) {
	defer func() {
		if r := recover(); r != nil {
			sentry.CurrentHub().Recover(r)
			slog.Error("panic while handling message", "room", evt.RoomID.String(), "panic", r)
		}
	}()

	msgContent := evt.Content.AsMessage()
	if msgContent == nil {
		return
	}

	sender := evt.Sender.String()
	if !a.cfg.UserAllowed(sender) {
		// Silently ignore users not on the allowlist.
		return
	}

	ctx = trace.WithTraceID(ctx, trace.GenerateID())
	roomID := evt.RoomID.String()
	text := strings.TrimSpace(msgContent.Body)
	if text == "" {
		return
	}

	log := slog.With("trace", trace.FromContext(ctx), "sender", sender)
	log.Debug("handling message", "room", roomID)

	if err := a.matrix.SetTyping(roomID, true, typingTimeout); err != nil {
		log.Debug("set typing", "err", err)
	}
	defer a.matrix.SetTyping(roomID, false, 0)

	a.sendResponse(ctx, roomID, a.respond(ctx, sender, text))
}

// respond runs the pipeline for one message and returns the reply to
// send, or nil when the message should be ignored.
func (a *App) respond(ctx context.Context, sender, text string) *reply.Response {
	if cmd, _, ok := a.registry.Match(text); ok && cmd.Kind == commands.KindReset {
		a.engine.Reset(sender)
		return reply.New("Your conversation has been reset.")
	}

	displayName, err := a.matrix.GetDisplayName(sender)
	if err != nil {
		slog.Debug("get display name", "sender", sender, "err", err)
	}

	if resp := a.engine.Handle(ctx, sender, displayName, text); resp != nil {
		return resp
	}

	if cmd, rest, ok := a.registry.Match(text); ok {
		switch cmd.Kind {
		case commands.KindHelp:
			return a.handlers.Help(rest)
		case commands.KindPing:
			return a.handlers.Ping()
		case commands.KindStatusQuery:
			return a.handlers.StatusQuery(ctx, cmd, rest)
		case commands.KindOverview:
			return a.handlers.Overview(ctx)
		case commands.KindDaemonStatus:
			return a.handlers.Daemon(ctx, false)
		}
	}

	text = strings.TrimSpace(text)
	fallback := "I didn't understand the command. Please use `help` for more details."
	if suggestion := a.registry.Suggest(text); suggestion != "" {
		fallback = fmt.Sprintf("I didn't understand the command. Did you mean `%s`?\nPlease use `help` for more details.", suggestion)
	}
	return reply.New(fallback)
}

// sendResponse renders a response as Matrix HTML and delivers it,
// retrying transient send failures. Credentials are scrubbed from the
// text in case an API error message leaked one.
func (a *App) sendResponse(ctx context.Context, roomID string, resp *reply.Response) {
	if resp == nil {
		return
	}

	text := redact.String(resp.String(), a.cfg.Icinga.Password, a.cfg.Matrix.AccessToken)

	err := retry.Do(ctx, retry.DefaultConfig, func() error {
		return a.matrix.SendFormattedMessage(roomID, markdownToHTML(text), text)
	})
	if err != nil {
		sentry.CaptureException(err)
		slog.Error("failed to send response", "room", roomID, "err", err)
	}
}
