package main

import (
	"bufio"
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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"buchat/cache"
	"buchat/config"
	"buchat/connectivity"
	"buchat/logging"
	"buchat/messaging"
	"buchat/models"
	"buchat/network"
	"buchat/queue"
	"buchat/storage"
)

func main() {
	with := flag.String("with", "", "user ID of the conversation partner")
	flag.Parse()

	cfg, cfgPath, err := config.LoadOrCreate()
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup failed while loading config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if cfg.UserID == "" || *with == "" {
		logger.Fatal().Str("config", cfgPath).Msg("user_id (config or BUCHAT_USER_ID) and -with are required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, cfgPath, *with, logger); err != nil {
		logger.Fatal().Err(err).Msg("client stopped")
	}
}

func run(ctx context.Context, cfg *config.ClientConfig, cfgPath, with string, logger zerolog.Logger) error {
	dataDir := filepath.Dir(cfgPath)
	logger.Info().
		Str("client_id", cfg.ClientID).
		Str("user_id", cfg.UserID).
		Str("api", cfg.APIBaseURL).
		Str("data_dir", dataDir).
		Msg("starting")

	store, dbPath, err := storage.Open(dataDir)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn().Err(err).Msg("database close error")
		}
	}()
	logger.Debug().Str("path", dbPath).Msg("database open")

	var outbox queue.Persister
	if cfg.QueuePersistence {
		outbox = store
	}
	pending := queue.New(outbox, &logger)
	if restored, err := pending.Restore(); err != nil {
		logger.Warn().Err(err).Msg("restore offline queue")
	} else if restored > 0 {
		logger.Info().Int("count", restored).Msg("restored offline queue")
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
	}
	tiered := cache.NewTiered(cache.TieredOptions{
		Capacity: cfg.CacheCapacity,
		Redis:    redisClient,
		Logger:   &logger,
	})

	client, err := network.NewClient(network.ClientOptions{
		BaseURL:        cfg.APIBaseURL,
		TokenSource:    network.StaticToken(cfg.AuthToken),
		RequestTimeout: cfg.RequestTimeout,
		Logger:         &logger,
	})
	if err != nil {
		return fmt.Errorf("create API client: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	engine, err := messaging.New(messaging.Options{
		Transport:        client,
		Cache:            tiered,
		Queue:            pending,
		Seen:             store,
		Notifier:         messaging.LogNotifier{Logger: logger},
		Metrics:          messaging.NewMetrics(registry),
		Logger:           &logger,
		MediaBaseURL:     cfg.MediaBaseURL,
		PageLimit:        cfg.PageLimit,
		MessagesTTL:      cfg.MessagesTTL,
		ConversationsTTL: cfg.ConversationsTTL,
		StartOffline:     true,
	})
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}
	defer engine.Close()

	if cfg.MetricsAddr != "" {
		server := serveMetrics(cfg.MetricsAddr, registry, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
	}

	monitor, err := connectivity.NewMonitor(connectivity.Config{
		Probe:  client.Ping,
		Logger: &logger,
	})
	if err != nil {
		return fmt.Errorf("create connectivity monitor: %w", err)
	}
	monitor.Start()
	defer monitor.Stop()
	go func() {
		for event := range monitor.Events() {
			engine.SetOnline(event.Online)
		}
	}()

	conversationID := models.ConversationID(cfg.UserID, with)
	printer := &threadPrinter{self: cfg.UserID}

	poller := messaging.NewPoller(cfg.PollInterval, func(pollCtx context.Context) {
		result, err := engine.Reconcile(pollCtx, cfg.UserID, conversationID, messaging.ReconcileOptions{
			Known:   printer.known(),
			Visible: true,
		})
		if err != nil {
			logger.Debug().Err(err).Msg("reconcile failed")
			return
		}
		printer.print(result.New)
	})
	poller.Start(ctx)
	defer poller.Stop()

	typingPoller := messaging.NewPoller(cfg.TypingPollInterval, func(pollCtx context.Context) {
		if !engine.IsOnline() {
			return
		}
		printer.typing(engine.GetTypingUsers(pollCtx, cfg.UserID, conversationID))
	})
	typingPoller.Start(ctx)
	defer typingPoller.Stop()

	fmt.Printf("Chatting with %s as %s. Type a message and press Enter (Ctrl+C to quit).\n", with, cfg.UserID)
	lines := readLines(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			send(ctx, engine, cfg.UserID, with, line, printer, logger)
			engine.SetTyping(ctx, conversationID, false)
		}
	}
}

func send(ctx context.Context, engine *messaging.Engine, self, with, line string, printer *threadPrinter, logger zerolog.Logger) {
	if strings.TrimSpace(line) == "" {
		return
	}
	out, err := engine.Send(ctx, self, with, line, messaging.SendOptions{})
	if err != nil {
		logger.Warn().Err(err).Msg("send rejected")
		return
	}
	if out.Placeholder.Status == models.StatusQueued {
		fmt.Printf("  (offline, queued; %d waiting)\n", engine.QueueLen())
		return
	}
	go func() {
		msg, err := out.Wait(ctx)
		if err != nil {
			return
		}
		if msg.Status == models.StatusFailed {
			if sendErr := out.Err(); sendErr != nil && !network.IsRetryable(sendErr) {
				logger.Error().Err(sendErr).Str("temp_id", msg.MessageID).Msg("send rejected by server")
				fmt.Println("  (send rejected)")
				return
			}
			fmt.Println("  (send failed)")
			return
		}
		printer.markKnown(msg.MessageID)
	}()
}

func readLines(ctx context.Context) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

func serveMetrics(addr string, registry *prometheus.Registry, logger zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Str("addr", addr).Msg("metrics server stopped")
		}
	}()
	logger.Info().Str("addr", addr).Msg("metrics listening")
	return server
}
