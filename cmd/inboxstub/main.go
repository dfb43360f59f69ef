package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/matheus3301/inbox/internal/logging"
	"github.com/matheus3301/inbox/internal/session"
	"github.com/matheus3301/inbox/internal/store"
	"github.com/matheus3301/inbox/internal/stub"
	"go.uber.org/zap"
)

// SecretEnv supplies the token signing secret when --secret is not given.
const SecretEnv = "INBOX_STUB_SECRET"

func main() {
	addr := flag.String("addr", "127.0.0.1:8080", "listen address")
	dbPath := flag.String("db", filepath.Join(session.BaseDir(), "stub", "inbox.db"), "SQLite database path")
	secret := flag.String("secret", os.Getenv(SecretEnv), "HS256 signing secret (default $"+SecretEnv+")")
	seed := flag.String("seed", "", "users to create, as id:name pairs separated by commas")
	reset := flag.Bool("reset", false, "wipe the database before serving")
	debug := flag.Bool("debug", false, "gin debug mode and debug logging")
	flag.Parse()

	if *secret == "" {
		fmt.Fprintf(os.Stderr, "error: a signing secret is required (--secret or $%s)\n", SecretEnv)
		os.Exit(1)
	}

	logger, err := logging.New(filepath.Join(filepath.Dir(*dbPath), "inboxstub.log"), "stub", logging.Options{
		Component: "inboxstub",
		Console:   true,
		Debug:     *debug,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(*addr, *dbPath, []byte(*secret), *seed, *reset, *debug, logger); err != nil {
		logger.Error("stub failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(addr, dbPath string, secret []byte, seed string, reset, debug bool, logger *zap.Logger) error {
	db, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	migrate := db.Migrate
	if reset {
		logger.Warn("wiping stub database", zap.String("path", dbPath))
		migrate = db.Reset
	}
	result, err := migrate()
	if err != nil {
		return err
	}
	logger.Info("store initialized", zap.String("path", dbPath), zap.Uint("version", result.Version), zap.Bool("migrated", result.Changed))

	srv, err := stub.New(db, stub.Options{Secret: secret, Debug: debug, Logger: logger})
	if err != nil {
		return err
	}
	if err := seedUsers(db, srv, seed); err != nil {
		return err
	}

	httpSrv := &http.Server{Addr: addr, Handler: srv.Handler(), ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("stub API listening", zap.String("addr", addr))
		errCh <- httpSrv.ListenAndServe()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger.Info("stub API stopping")
	return httpSrv.Shutdown(shutdownCtx)
}

// seedUsers creates the listed users and prints a token for each so a session
// can be pointed at the stub right away.
func seedUsers(db *store.DB, srv *stub.Server, spec string) error {
	if spec == "" {
		return nil
	}
	for _, pair := range strings.Split(spec, ",") {
		id, name, _ := strings.Cut(strings.TrimSpace(pair), ":")
		if id == "" {
			continue
		}
		if err := db.UpsertUser(&store.User{ID: id, Name: name}); err != nil {
			return fmt.Errorf("seed %s: %w", id, err)
		}
		token, err := srv.IssueToken(id)
		if err != nil {
			return err
		}
		fmt.Printf("%s\t%s\n", id, token)
	}
	return nil
}
