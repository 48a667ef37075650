package chatbot

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"LegalMind/internal/backend"
	"LegalMind/internal/clarify"
	"LegalMind/internal/composer"
	"LegalMind/internal/config"
	"LegalMind/internal/conversation"
	"LegalMind/internal/session"
	"LegalMind/internal/telemetry"
	"LegalMind/internal/transcript"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// ChatBot is the terminal front end of a LegalMind conversation
type ChatBot struct {
	config   config.Config
	db       *sql.DB
	logger   *slog.Logger
	client   *backend.Client
	identity *session.Identity
	users    *session.UserStore
	orch     *conversation.Orchestrator
	render   *renderer

	in  io.Reader
	out io.Writer

	mu    sync.Mutex // guards out and typed
	typed bool       // the current user turn is already on screen

	shutdown func()
}

// deps are the pieces NewChatBot builds from the environment
type deps struct {
	logger  *slog.Logger
	tracer  trace.Tracer
	meter   metric.Meter
	storage session.Storage
	in      io.Reader
	out     io.Writer
}

// NewChatBot creates a new ChatBot instance backed by rotating log files,
// OpenTelemetry exporters and a SQLite store under cfg.DataDir
func NewChatBot(ctx context.Context, cfg config.Config) (*ChatBot, error) {
	logger, err := telemetry.InitLogger(cfg.LogDir, cfg.Debug)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize logger")
	}

	tracer, meter, shutdown, err := telemetry.InitTelemetry(ctx, cfg.LogDir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize telemetry")
	}

	db, err := telemetry.InitDB(filepath.Join(cfg.DataDir, "legalmind.db"))
	if err != nil {
		shutdown()
		return nil, errors.Wrap(err, "failed to initialize database")
	}

	if cfg.Debug {
		logger.Info("Debug mode enabled")
	}

	cb, err := assemble(cfg, deps{
		logger:  logger,
		tracer:  tracer,
		meter:   meter,
		storage: session.NewSQLiteStorage(db),
		in:      os.Stdin,
		out:     os.Stdout,
	})
	if err != nil {
		_ = db.Close()
		shutdown()
		return nil, err
	}
	cb.db = db
	cb.shutdown = shutdown
	return cb, nil
}

func assemble(cfg config.Config, d deps) (*ChatBot, error) {
	if d.logger == nil {
		d.logger = slog.Default()
	}

	cb := &ChatBot{
		config:   cfg,
		logger:   d.logger,
		identity: session.NewIdentity(d.storage, d.logger),
		users:    session.NewUserStore(d.storage, d.logger),
		render:   newRenderer(cfg.Plain),
		in:       d.in,
		out:      d.out,
	}

	opts := []backend.Option{
		backend.WithTimeout(cfg.RequestTimeout),
		backend.WithLogger(d.logger),
		backend.WithHealthTTL(cfg.HealthTTL),
	}
	if d.tracer != nil {
		opts = append(opts, backend.WithTracer(d.tracer))
	}
	if d.meter != nil {
		opts = append(opts, backend.WithMeter(d.meter))
	}
	cb.client = backend.NewClient(cfg.BaseURL, opts...)

	orch, err := conversation.New(conversation.Options{
		Transport:       cb.client,
		Identity:        cb.identity,
		Users:           cb.users,
		Composer:        composer.New(cfg.MaxAttachmentBytes),
		Clarify:         clarify.NewController(d.logger),
		Transcript:      transcript.NewStore(),
		Logout:          cb.expireLogin,
		Logger:          d.logger,
		Tracer:          d.tracer,
		Meter:           d.meter,
		DefaultLanguage: cfg.Language,
		Timeout:         cfg.RequestTimeout,
		Serialize:       cfg.Serialize,
		Chips:           cfg.Chips,
		OnTurn:          cb.printTurn,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create conversation")
	}
	cb.orch = orch
	return cb, nil
}

// Close releases the database and flushes telemetry.
func (cb *ChatBot) Close() {
	if cb.db != nil {
		if err := cb.db.Close(); err != nil {
			cb.logger.Error("failed to close database", "error", err)
		}
	}
	if cb.shutdown != nil {
		cb.shutdown()
	}
}

// Health reports whether the backend answers its health check.
func (cb *ChatBot) Health(ctx context.Context) bool {
	return cb.client.Health(ctx)
}

// SessionID returns the session token, creating one if needed.
func (cb *ChatBot) SessionID() string {
	return cb.identity.GetOrCreate()
}

// ClearSession forgets the session token.
func (cb *ChatBot) ClearSession() {
	cb.identity.Clear()
}

// expireLogin runs when the backend rejects the credentials.
func (cb *ChatBot) expireLogin(ctx context.Context) {
	if err := cb.users.Logout(); err != nil {
		cb.logger.Error("failed to clear user after 401", "error", err)
	}
	cb.println("Your login has expired. Use /login to sign in again.")
}

func (cb *ChatBot) println(a ...any) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	fmt.Fprintln(cb.out, a...)
}

func (cb *ChatBot) printf(format string, a ...any) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	fmt.Fprintf(cb.out, format, a...)
}

func (cb *ChatBot) printTurn(t transcript.Turn) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if t.Role == transcript.RoleUser {
		if !cb.typed {
			fmt.Fprintln(cb.out, cb.render.Turn(t))
		}
		return
	}
	fmt.Fprintf(cb.out, "%s\n\n", cb.render.Turn(t))
}

func (cb *ChatBot) submitTyped(ctx context.Context, text string) conversation.Outcome {
	cb.mu.Lock()
	cb.typed = true
	cb.mu.Unlock()
	defer func() {
		cb.mu.Lock()
		cb.typed = false
		cb.mu.Unlock()
	}()
	return cb.orch.Submit(ctx, conversation.Input{Text: text})
}

// report prints anything the transcript does not already show.
func (cb *ChatBot) report(out conversation.Outcome) {
	switch out.Kind {
	case conversation.OutcomeClarification:
		cb.println(cb.render.Clarification(cb.orch.Clarification()))
		cb.println()
	case conversation.OutcomeRejected:
		cb.printf("Error: %v\n", out.Err)
	}
}

// startup checks the backend and loads the session concurrently.
func (cb *ChatBot) startup(ctx context.Context) (online bool, sessionID string) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		online = cb.client.Health(gctx)
		return nil
	})
	g.Go(func() error {
		sessionID = cb.identity.GetOrCreate()
		return nil
	})
	_ = g.Wait()
	return online, sessionID
}

// Run starts the chat loop and returns when input ends or /quit is typed.
func (cb *ChatBot) Run(ctx context.Context) error {
	online, sessionID := cb.startup(ctx)

	cb.println("=== LegalMind ===")
	cb.printf("Session: %s\n", sessionID)
	if online {
		cb.printf("Backend: %s (online)\n", cb.config.BaseURL)
	} else {
		cb.printf("Backend: %s (offline)\n", cb.config.BaseURL)
	}
	if u, ok := cb.users.Current(); ok {
		cb.printf("Signed in as %s\n", u.Email)
	}
	cb.println("Type /help for commands, /chips for suggested questions, /quit to exit")
	cb.println()

	scanner := bufio.NewScanner(cb.in)
	for {
		if ctx.Err() != nil {
			break
		}
		cb.printf("You: ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			shouldQuit, err := cb.handleCommand(ctx, input)
			if err != nil {
				cb.printf("Error: %v\n", err)
				cb.logger.Error("command error", "error", err)
			}
			if shouldQuit {
				break
			}
			continue
		}

		cb.report(cb.submitTyped(ctx, input))
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "failed to read input")
	}

	cb.println("Goodbye!")
	return nil
}
