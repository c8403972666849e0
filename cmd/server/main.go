package main

import (
	"chat-relay/auth"
	"chat-relay/contract"
	"chat-relay/domain/chat"
	"chat-relay/infrastructure/rest"
	"chat-relay/infrastructure/websocket"
	"chat-relay/internal"
	"chat-relay/moderation"
	"chat-relay/observability"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/search"
	"chat-relay/services"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/database"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes to provide meaningful status to the operating system or service manager.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

const (
	debugPort     = 8081
	debugEndpoint = "/inspect"
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires every component and blocks until a signal asks for the shutdown.
// Returning instead of exiting lets the deferred closes flush Badger and Bluge.
func run() (int, error) {
	// 1. Configuration & Logger
	// A missing .env is fine, the environment is used as is
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	charReplacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return exitConfig, err
	}
	logger := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Storage (Badger documents, Bluge full-text index)
	db, err := badger.Open(buildBadgerOpts(ctx, config, logger))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()
	if logger.Enabled(ctx, slog.LevelDebug) {
		logger.Info("Debug Badger inspector available", "url", fmt.Sprintf("http://localhost:%d%s", debugPort, debugEndpoint))
		database.StartDebugServer(db, debugPort, debugEndpoint, recordMapper)
	}

	blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	defer func() {
		logger.Info("Closing Bluge...")
		_ = blugeWriter.Close()
	}()

	words := internal.Words(config.CensoredWords)
	if config.CensoredWordsDir != "" {
		dictionary, err := moderation.LoadDictionary(os.DirFS(config.CensoredWordsDir), ".")
		if err != nil {
			return exitConfig, fmt.Errorf("censored words error: %w", err)
		}
		logger.Info("Censored words loaded", "languages", dictionary.Languages, "count", len(dictionary.Words))
		words = append(words, dictionary.Words...)
	}

	var moderator contract.IModerator
	if len(words) > 0 {
		m, err := moderation.NewModerator(words, charReplacement, logger)
		if err != nil {
			return exitConfig, fmt.Errorf("moderator error: %w", err)
		}
		moderator = m
	}

	// 3. Core components
	userRepository := repositories.NewUserRepository(db)
	channelRepository := repositories.NewChannelRepository(db)
	messageRepository := repositories.NewMessageRepository(db, logger, config.LimitMessages)

	registry := runtime.NewRegistry()
	dispatcher := runtime.NewDispatcher(logger, registry, config.SinkTimeout)
	membership := services.NewMembershipResolver(channelRepository)
	indexed := make(chan chat.Message, config.IndexBuffer)
	gateway := services.NewMessageGateway(logger, messageRepository, userRepository, channelRepository, moderator, indexed)
	index := search.NewIndex(blugeWriter, logger)

	signer := auth.NewSigner(config.JWTSecret, config.AuthTokenDuration)
	chatService := services.NewChatService(logger, registry, membership, gateway, dispatcher, messageRepository, userRepository)
	health, err := observability.NewHealth(registry.Online)
	if err != nil {
		return exitRuntime, err
	}

	// 4. Transport
	wsConfig := websocket.DefaultConfig()
	wsConfig.SendBuffer = config.SendBuffer
	wsConfig.AllowedOrigins = internal.Words(config.AllowedOrigins)
	wsServer := websocket.NewServer(logger, chatService, wsConfig)

	router := rest.NewRouter(logger, signer, rest.Services{
		Auth:     services.NewAuthService(userRepository, signer),
		Chat:     chatService,
		Channels: services.NewChannelService(logger, channelRepository, messageRepository, userRepository, registry, dispatcher),
		Contacts: services.NewContactService(userRepository, messageRepository),
		Files:    services.NewFileService(logger, config.UploadDir, config.MaxFileSize),
		Search:   services.NewSearchService(index, membership),
		Health:   health,
	}, wsServer, config.RequestTimeout, config.MaxFileSize)

	httpServer := &http.Server{Addr: config.Addr(), Handler: router}
	// Hijacked connections are not closed by http.Server.Shutdown
	httpServer.RegisterOnShutdown(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
		defer cancel()
		if err := wsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("WebSocket connections not closed in time", "error", err)
		}
	})

	// 5. Supervised workers, until a signal cancels the context
	supervisor := workers.NewSupervisor(logger)
	supervisor.Add(
		workers.NewIndexerWorker(index, indexed, logger),
		workers.NewHTTPServerWorker(httpServer, config.ShutdownTimeout, logger),
	)
	supervisor.Run(ctx)

	logger.Info("Program stopped cleanly")
	return exitOK, nil
}

func buildBadgerOpts(ctx context.Context, config internal.Config, logger *slog.Logger) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)
	if logger.Enabled(ctx, slog.LevelDebug) {
		return options.WithLoggingLevel(badger.DEBUG)
	}
	return options.WithLoggingLevel(badger.WARNING)
}

func recordMapper(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)
	record := repositories.Describe(key, val)
	row.Type = record.Kind
	row.Detail = record.Detail
	return row
}
