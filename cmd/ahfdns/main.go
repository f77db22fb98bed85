// Command ahfdns is a minimal client for the Arrowhead Framework's DNS
// subsystem: it opens a resolver socket against a configured server and
// performs one demonstration lookup, wiring the same logging and
// configuration conventions as the rest of this module.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/arrowhead-go/core-dns/internal/dnssd"
	"github.com/arrowhead-go/core-dns/internal/orchestration"
	"github.com/arrowhead-go/core-dns/internal/orchestration/registrystore"
	"github.com/arrowhead-go/core-dns/internal/resolver"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("application failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	serverAddr := os.Getenv("AHFDNS_SERVER_ADDR")
	if serverAddr == "" {
		serverAddr = "127.0.0.1"
	}
	serverPort := getEnvUint16("AHFDNS_SERVER_PORT", 53)

	sock, err := resolver.New(resolver.Config{
		Address: serverAddr,
		Port:    serverPort,
		Logger:  logger,
		OnIgnoredError: func(err error) {
			logger.Warn("resolver: ignored error", "error", err)
		},
	})
	if err != nil {
		return err
	}
	defer func() { _ = sock.Close() }()

	var cache *redis.Client
	if redisAddr := os.Getenv("AHFDNS_REDIS_ADDR"); redisAddr != "" {
		cache = redis.NewClient(&redis.Options{Addr: redisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := cache.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Warn("redis unavailable, continuing without a lookup cache", "addr", redisAddr, "error", err)
			cache = nil
		}
	}
	_ = orchestration.New(os.Getenv("AHFDNS_REGISTRY_URL"), cache)

	var store *registrystore.Store
	if dbURL := os.Getenv("AHFDNS_POSTGRES_DSN"); dbURL != "" {
		db, err := sql.Open("pgx", dbURL)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()
		store = registrystore.New(db)
	}

	client := dnssd.New(sock, nil)
	if store != nil {
		regs, err := store.ListAll(ctx)
		if err != nil {
			logger.Warn("registrystore: could not load existing registrations", "error", err)
		} else {
			logger.Info("registrystore: loaded registrations", "count", len(regs))
		}
	}

	serviceType := os.Getenv("AHFDNS_SERVICE_TYPE")
	if serviceType == "" {
		logger.Info("no AHFDNS_SERVICE_TYPE set, resolver is wired and idle")
		<-ctx.Done()
		return nil
	}

	queryCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	instances, err := client.Browse(queryCtx, serviceType)
	if err != nil {
		return err
	}
	for _, inst := range instances {
		logger.Info("discovered service instance",
			"name", inst.Name, "target", inst.Target, "port", inst.Port, "text", inst.Text)
	}
	return nil
}

func getEnvUint16(key string, def uint16) uint16 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseUint(v, 10, 16)
	if err != nil {
		return def
	}
	return uint16(n)
}
