// Command learnexa-roles grants or revokes the admin role from the shell.
// It is how the first administrator is created:
//
//	learnexa-roles -email owner@example.com -role admin
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/learnexa/learnexa/internal/app"
	"github.com/learnexa/learnexa/internal/identity/local"
	"github.com/learnexa/learnexa/internal/platform/cache"
	"github.com/learnexa/learnexa/internal/platform/db"
	"github.com/learnexa/learnexa/internal/roles"
	"github.com/learnexa/learnexa/internal/shared"
)

func main() {
	email := flag.String("email", "", "email of the account to change")
	role := flag.String("role", roles.RoleAdmin, "admin or user")
	flag.Parse()

	if err := run(*email, *role); err != nil {
		fmt.Fprintln(os.Stderr, "learnexa-roles:", err)
		os.Exit(1)
	}
}

func run(email, role string) error {
	if email == "" {
		return errors.New("-email is required")
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: 2})
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	account, err := local.NewRepository(pool).ByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("find %s: %w", email, err)
	}
	service := roles.NewService(roles.NewRepository(pool), local.NewBroker(redisClient, logger), logger)
	if err := service.SetRole(ctx, account.ID, role); err != nil {
		return err
	}
	entry := shared.AuditLog{
		Action:   "role.set",
		Entity:   "user",
		EntityID: account.ID,
		Meta:     map[string]any{"role": role, "source": "cli"},
	}
	if err := shared.NewAuditLogger(pool).Record(ctx, entry); err != nil {
		logger.Warn("audit role change", slog.Any("error", err))
	}
	logger.Info("role updated", slog.String("user_id", account.ID), slog.String("email", email), slog.String("role", role))
	return nil
}
