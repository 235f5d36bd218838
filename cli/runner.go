// Package cli wires settings into running agents for the command line:
// an interactive chat loop, the HTTP server, and store maintenance.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/richinex/carlos/config"
	"github.com/richinex/carlos/llm"
	"github.com/richinex/carlos/pipeline"
	"github.com/richinex/carlos/server"
	"github.com/richinex/carlos/session"
	"github.com/richinex/carlos/store"
)

// Options carries the global CLI flags.
type Options struct {
	User    string
	Verbose bool
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

func openStore(settings config.Settings) (store.Store, error) {
	switch settings.Store.Backend {
	case "mongo":
		return store.OpenMongo(context.Background(), settings.Store.MongoURI, settings.Store.MongoDB)
	default:
		return store.OpenSQLite(settings.Store.SQLitePath)
	}
}

func buildClient(settings config.Settings) (*llm.Client, error) {
	providerType, err := llm.ParseProviderType(settings.LLM.Provider)
	if err != nil {
		return nil, err
	}
	provider, err := llm.NewProviderBuilder(providerType).
		Model(settings.LLM.Model).
		EmbedModel(settings.LLM.EmbedModel).
		BaseURL(settings.LLM.BaseURL).
		FromEnv()
	if err != nil {
		return nil, err
	}
	return llm.NewClient(provider).WithTimeout(settings.LLM.Timeout), nil
}

func buildManager(settings config.Settings, logger *zap.Logger) (*session.Manager, store.Store, error) {
	client, err := buildClient(settings)
	if err != nil {
		return nil, nil, err
	}
	st, err := openStore(settings)
	if err != nil {
		return nil, nil, err
	}
	return session.NewManager(client, st, settings, logger), st, nil
}

// Chat runs an interactive turn loop on stdin until EOF or /quit.
func Chat(ctx context.Context, opts Options) error {
	logger, err := newLogger(opts.Verbose)
	if err != nil {
		return err
	}
	defer logger.Sync()

	settings, err := config.New()
	if err != nil {
		return err
	}
	manager, st, err := buildManager(settings, logger)
	if err != nil {
		return err
	}
	defer st.Close(context.Background())
	defer manager.ShutdownAll()

	inst, err := manager.GetOrCreate(ctx, opts.User)
	if err != nil {
		return err
	}

	fmt.Printf("Chatting as %s. /quit to exit.\n", opts.User)
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			break
		}

		if err := streamTurn(ctx, inst, line); err != nil {
			fmt.Fprintf(os.Stderr, "turn failed: %v\n", err)
		}
	}
	return scanner.Err()
}

// streamTurn prints one turn's events: statuses dimly, text inline, markers
// bracketed.
func streamTurn(ctx context.Context, inst *session.Instance, line string) error {
	events := make(chan pipeline.Event, 16)
	errc := make(chan error, 1)
	go func() {
		errc <- inst.Pipeline.Stream(ctx, line, events)
		close(events)
	}()

	for ev := range events {
		switch ev.Type {
		case pipeline.EventStatus:
			fmt.Printf("  (%s)\n", ev.Content)
		case pipeline.EventText:
			fmt.Print(ev.Content)
		case pipeline.EventMarker:
			fmt.Printf("*%s*", ev.Content)
		case pipeline.EventDone:
			fmt.Println()
		}
	}
	return <-errc
}

// Serve runs the HTTP server until interrupted.
func Serve(ctx context.Context, opts Options) error {
	logger, err := newLogger(opts.Verbose)
	if err != nil {
		return err
	}
	defer logger.Sync()

	settings, err := config.New()
	if err != nil {
		return err
	}
	manager, st, err := buildManager(settings, logger)
	if err != nil {
		return err
	}
	defer st.Close(context.Background())

	srv := server.New(ctx, manager, settings.Server.Addr, logger)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-stop:
		logger.Info("shutting down")
		return srv.Shutdown(context.Background())
	}
}

// ResetDB clears every stored document for a user, first asking for
// confirmation unless force is set. With seed it then inserts a small
// starter dataset so a fresh install has something to retrieve.
func ResetDB(ctx context.Context, user string, force, seed bool) error {
	settings, err := config.New()
	if err != nil {
		return err
	}
	st, err := openStore(settings)
	if err != nil {
		return err
	}
	defer st.Close(ctx)

	if !force {
		fmt.Printf("This wipes all stored memory for %q (%s backend). Type the username to confirm: ", user, settings.Store.Backend)
		var answer string
		fmt.Scanln(&answer)
		if answer != user {
			return fmt.Errorf("aborted")
		}
	}

	if err := st.Reset(ctx, user); err != nil {
		return fmt.Errorf("reset store: %w", err)
	}
	fmt.Printf("Cleared stored data for %q.\n", user)

	if seed {
		if err := seedSampleData(ctx, st, user); err != nil {
			return fmt.Errorf("seed sample data: %w", err)
		}
		fmt.Printf("Seeded sample data for %q.\n", user)
	}
	return nil
}

func seedSampleData(ctx context.Context, st store.Store, user string) error {
	now := time.Now().UTC()
	if _, err := st.Insert(ctx, store.Conversations, store.Document{
		"user_id":        user,
		"timestamp":      now,
		"user_input":     "Hello Carlos!",
		"agent_response": "Hello! How can I help you today?",
		"entities":       []string{"greeting"},
		"tags":           []string{"social", "greeting"},
		"sentiment":      "positive",
	}); err != nil {
		return err
	}
	if _, err := st.Insert(ctx, store.UserState, store.Document{
		"user_id":       user,
		"last_updated":  now,
		"context_flags": []string{"active"},
		"preferences":   map[string]any{"language": "english", "tone": "friendly"},
	}); err != nil {
		return err
	}
	_, err := st.Insert(ctx, store.Entities, store.Document{
		"user_id":     user,
		"timestamp":   now,
		"name":        "test_project",
		"type":        "project",
		"description": "A sample project for trying out retrieval",
	})
	return err
}
