package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"
	"gorm.io/gorm"

	"github.com/Heshamoov/aid-app-admin-production/internal/adapters/authclient"
	sqliteadapter "github.com/Heshamoov/aid-app-admin-production/internal/adapters/db/sqlite"
	httpadapter "github.com/Heshamoov/aid-app-admin-production/internal/adapters/http"
	rpcadapter "github.com/Heshamoov/aid-app-admin-production/internal/adapters/rpcjson"
	"github.com/Heshamoov/aid-app-admin-production/internal/application"
	"github.com/Heshamoov/aid-app-admin-production/internal/config"
	"github.com/Heshamoov/aid-app-admin-production/internal/migrations"
	"github.com/Heshamoov/aid-app-admin-production/internal/session"
)

func main() {
	args := os.Args
	if len(args) == 1 {
		args = append(args, "--help")
	}

	root := &cli.Command{
		Name:  "aidledger",
		Usage: "Aid expense and donation ledger server and CLI",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config-dir", Value: ".", Usage: "directory holding config.yaml"},
		},
		Commands: []*cli.Command{
			serverCommand(),
			migrateCommand(),
			authCommand(),
			recordsCommand(),
			usersCommand(),
			auditCommand(),
			versionCommand(),
		},
	}

	if err := root.Run(context.Background(), args); err != nil {
		log.Fatal(err)
	}
}

// serverConfig merges config.yaml/env with any flags set on the command line.
func serverConfig(c *cli.Command) (config.Config, error) {
	cfg, err := config.Load(c.String("config-dir"))
	if err != nil {
		return config.Config{}, err
	}
	if c.IsSet("addr") {
		cfg.Addr = c.String("addr")
	}
	if c.IsSet("rpc-socket") {
		cfg.Socket = c.String("rpc-socket")
	}
	if c.IsSet("db-path") {
		cfg.DB = c.String("db-path")
	}
	if c.IsSet("bootstrap-admin-email") {
		cfg.AdminEmail = c.String("bootstrap-admin-email")
	}
	if c.IsSet("bootstrap-admin-password") {
		cfg.AdminPassword = c.String("bootstrap-admin-password")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	return cfg, nil
}

func serverCommand() *cli.Command {
	return &cli.Command{
		Name:  "server",
		Usage: "Run HTTP server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Value: ":8080", Usage: "HTTP listen address"},
			&cli.StringFlag{Name: "rpc-socket", Value: "/tmp/aidledger.sock", Usage: "JSON-RPC unix socket path"},
			&cli.StringFlag{Name: "db-path", Value: "aidledger.db", Usage: "SQLite database path"},
			&cli.StringFlag{Name: "bootstrap-admin-email", Value: "admin@aidledger.local", Usage: "initial admin email"},
			&cli.StringFlag{Name: "bootstrap-admin-password", Value: "admin", Usage: "initial admin password when users are empty"},
			&cli.StringFlag{Name: "log-level", Value: "info", Usage: "debug, info, warn or error"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := serverConfig(c)
			if err != nil {
				return err
			}
			return runServer(ctx, cfg)
		},
	}
}

func runServer(ctx context.Context, cfg config.Config) error {
	logger := config.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	db, runner, err := openLedger(ctx, cfg.DB, logger)
	if err != nil {
		return err
	}

	secret := cfg.TokenSecret
	if secret == "" {
		secret = uuid.NewString() + uuid.NewString()
		logger.Warn("token_secret is not set; sessions will not survive a restart")
	}
	tokens, err := application.NewTokenIssuer(secret, cfg.TokenTTL)
	if err != nil {
		return err
	}

	store := sqliteadapter.NewSchemaStore(db)
	service := application.NewLedgerService(sqliteadapter.NewLedgerRepository(db), store, tokens, logger)

	applied, err := runner.Up(ctx)
	for _, name := range applied {
		service.WriteAudit(ctx, "", "migration.up", "migration", name, "server start")
	}
	if err != nil {
		return fmt.Errorf("refusing to start: %w", err)
	}
	if err := service.BootstrapAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		return err
	}

	var authClient session.AuthClient = service
	if cfg.AuthBackend != "" {
		authClient = application.NewRemoteAuth(authclient.New(cfg.AuthBackend, 10*time.Second), service)
		logger.Info("using remote auth backend", "url", cfg.AuthBackend)
	}

	router := httpadapter.NewRouter(service, httpadapter.Options{
		AuthClient: authClient,
		Version:    application.NewVersionChecker(application.ExecGit{}, cfg.RepoDir, logger),
		Migrations: runner,
		Cookie:     session.CookieOptions{Secure: cfg.CookieSecure},
		Logger:     logger,
	})
	srv := &http.Server{Addr: cfg.Addr, Handler: router, ReadHeaderTimeout: 5 * time.Second}
	rpcSrv, err := rpcadapter.Start(cfg.Socket, service, runner, logger)
	if err != nil {
		return err
	}

	defer func() {
		_ = rpcSrv.Close()
	}()
	logger.Info("json-rpc listening", "socket", "unix://"+cfg.Socket)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openLedger opens the database, brings the storage tables up to date, and
// returns a runner over the built-in migration sequence.
func openLedger(ctx context.Context, path string, logger *slog.Logger) (*gorm.DB, *migrations.Runner, error) {
	db, err := sqliteadapter.OpenAndMigrate(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	steps, err := migrations.Sequence()
	if err != nil {
		return nil, nil, err
	}
	return db, migrations.NewRunner(sqliteadapter.NewSchemaStore(db), steps, logger), nil
}

func jsonMarshal(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}
