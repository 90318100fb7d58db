package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatlink/internal/app/events"
	authsvc "chatlink/internal/app/services/auth"
	"chatlink/internal/app/services/chatlist"
	"chatlink/internal/app/services/directory"
	"chatlink/internal/app/services/linking"
	"chatlink/internal/app/services/messages"
	domainchat "chatlink/internal/domain/chat"
	domainuser "chatlink/internal/domain/user"
	"chatlink/internal/infra/broker/kafka"
	"chatlink/internal/infra/config"
	mongostore "chatlink/internal/infra/db/mongo"
	ginserver "chatlink/internal/infra/http/gin"
	"chatlink/internal/infra/obs"
	"chatlink/internal/infra/security"
	"chatlink/internal/infra/storage/memory"
	"chatlink/internal/infra/storage/s3"
	"chatlink/internal/infra/storage/scylla"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env := getenv("APP_ENV", "dev")
	logger := obs.NewLogger(env)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	app, cleanup, err := buildApplication(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	server := ginserver.NewServer(cfg, obs.Middleware{Logger: logger}, obs.HealthHandlers{
		Ready: app.ready,
	}, app.handlers)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
	}()

	logger.Info("HTTP server starting", "addr", cfg.HTTPAddr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("HTTP server stopped")
}

type application struct {
	handlers ginserver.Handlers
	ready    func() error
}

func buildApplication(ctx context.Context, cfg config.Config, logger *slog.Logger) (application, func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	var (
		users   domainuser.Repository
		indexes domainchat.IndexRepository
		linker  domainchat.Linker
		watcher domainchat.IndexWatcher
		threads domainchat.ThreadRepository
		ready   = func() error { return nil }
	)

	if cfg.MongoURI != "" {
		client, err := mongostore.New(cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return application{}, cleanup, fmt.Errorf("mongo connect: %w", err)
		}
		cleanups = append(cleanups, func() {
			disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(disconnectCtx)
		})

		userRepo := mongostore.NewUserRepository(client.DB)
		indexRepo := mongostore.NewIndexRepository(client.DB)
		threadRepo := mongostore.NewThreadRepository(client.DB)

		indexCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		for _, ensure := range []func(context.Context) error{
			userRepo.EnsureIndexes, indexRepo.EnsureIndexes, threadRepo.EnsureIndexes,
		} {
			if err := ensure(indexCtx); err != nil {
				return application{}, cleanup, fmt.Errorf("mongo ensure indexes: %w", err)
			}
		}

		users = userRepo
		indexes = indexRepo
		threads = threadRepo
		linker = mongostore.NewLinker(client.DB, indexRepo, threadRepo)
		watcher = mongostore.NewIndexWatcher(indexRepo, logger)
		ready = func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return client.Ping(pingCtx)
		}
		logger.Info("mongo storage ready", "database", cfg.MongoDB)
	} else {
		chatStore := memory.NewChatStore()
		users = memory.NewUserRepository()
		indexes = chatStore
		threads = chatStore.Threads()
		linker = chatStore
		watcher = chatStore
		logger.Warn("MONGO_URI not set, using in-memory storage")
	}

	if cfg.ThreadsBackend == "scylla" {
		session, err := scylla.NewSession(scylla.Options{
			Hosts:    cfg.ScyllaHosts,
			Keyspace: cfg.ScyllaKeyspace,
			Timeout:  cfg.ScyllaTimeout,
		}, logger)
		if err != nil {
			return application{}, cleanup, fmt.Errorf("scylla connect: %w", err)
		}
		cleanups = append(cleanups, session.Close)
		store := scylla.NewThreadStore(session, logger)
		threads = store
		linker = &scylla.Linker{Threads: store, Indexes: indexes}
		logger.Info("scylla thread storage ready", "keyspace", cfg.ScyllaKeyspace)
	}

	var publisher events.Publisher = events.Noop{}
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, nil)
		if err != nil {
			return application{}, cleanup, fmt.Errorf("kafka connect: %w", err)
		}
		cleanups = append(cleanups, func() { _ = producer.Close() })
		publisher = &kafka.EventPublisher{Producer: producer, TopicPrefix: cfg.KafkaTopicPrefix}
		logger.Info("kafka producer ready", "brokers", cfg.KafkaBrokers)
	}

	var uploader directory.Uploader = s3.NoopUploader{}
	if cfg.S3Endpoint != "" {
		client, err := s3.NewClient(cfg.S3Endpoint, cfg.S3UseSSL, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Bucket, cfg.S3PublicEndpoint, logger)
		if err != nil {
			return application{}, cleanup, fmt.Errorf("s3 connect: %w", err)
		}
		uploader = client
	}

	sessions := memory.NewSessionStore()

	authService := &authsvc.Service{
		Users:      users,
		Indexes:    indexes,
		Sessions:   sessions,
		Passwords:  security.BcryptHasher{},
		Tokens:     security.RandomTokenGenerator{},
		Events:     publisher,
		SessionTTL: cfg.SessionTTL,
		Logger:     logger,
	}
	directoryService := &directory.Service{Users: users, Uploader: uploader, Logger: logger}
	chatlistService := &chatlist.Service{Users: users, Indexes: indexes, Watcher: watcher, Events: publisher, Logger: logger}
	linkingService := &linking.Service{Users: users, Linker: linker, Events: publisher, Logger: logger}
	messagesService := &messages.Service{Threads: threads, Indexes: indexes, Events: publisher, Logger: logger}

	handlers := ginserver.Handlers{
		Auth:           ginserver.AuthHandler{Service: authService, Logger: logger},
		Directory:      ginserver.DirectoryHandler{Service: directoryService, Logger: logger},
		Chat:           ginserver.ChatHandler{Chats: chatlistService, Linking: linkingService, Messages: messagesService, Logger: logger},
		AuthMiddleware: ginserver.AuthMiddleware{Service: authService, Logger: logger}.Handle,
	}

	return application{handlers: handlers, ready: ready}, cleanup, nil
}

func getenv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
