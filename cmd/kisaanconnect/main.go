package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"

	"kisaanconnect/internal/app/commands"
	directoryapp "kisaanconnect/internal/app/handlers/directory"
	listingapp "kisaanconnect/internal/app/handlers/listings"
	marketapp "kisaanconnect/internal/app/handlers/market"
	supportapp "kisaanconnect/internal/app/handlers/support"
	"kisaanconnect/internal/app/middleware"
	"kisaanconnect/internal/app/outbox"
	"kisaanconnect/internal/app/policies"
	"kisaanconnect/internal/app/queries"
	authsvc "kisaanconnect/internal/app/services/auth"
	chatsvc "kisaanconnect/internal/app/services/chat"
	"kisaanconnect/internal/app/tasks"
	"kisaanconnect/internal/app/uow"
	domainauth "kisaanconnect/internal/domain/auth"
	domainchat "kisaanconnect/internal/domain/chat"
	domainlistings "kisaanconnect/internal/domain/listings"
	domainmarket "kisaanconnect/internal/domain/market"
	domainsupport "kisaanconnect/internal/domain/support"
	domainuser "kisaanconnect/internal/domain/user"
	"kisaanconnect/internal/infra/broker/kafka"
	"kisaanconnect/internal/infra/config"
	mongodb "kisaanconnect/internal/infra/db/mongo"
	ginserver "kisaanconnect/internal/infra/http/gin"
	"kisaanconnect/internal/infra/mail"
	"kisaanconnect/internal/infra/market"
	"kisaanconnect/internal/infra/media"
	"kisaanconnect/internal/infra/obs"
	infraoutbox "kisaanconnect/internal/infra/outbox"
	"kisaanconnect/internal/infra/push"
	"kisaanconnect/internal/infra/realtime"
	"kisaanconnect/internal/infra/security"
	"kisaanconnect/internal/infra/storage/local"
	"kisaanconnect/internal/infra/storage/memory"
	redisstore "kisaanconnect/internal/infra/storage/redis"
	"kisaanconnect/internal/infra/storage/s3"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := obs.NewLogger(cfg.Env, cfg.LogLevel)

	app, err := buildApplication(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer app.close(logger)

	server := ginserver.NewServer(cfg, obs.Middleware{Logger: logger, Quiet: []string{"/livez", "/readyz"}}, obs.HealthHandlers{
		Checks: app.checks,
	}, app.handlers)

	go app.limiter.Run(ctx)
	if app.worker != nil {
		go func() {
			if err := app.worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("outbox worker stopped", "error", err)
			}
		}()
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := app.gateway.Shutdown(shutdownCtx); err != nil {
			logger.Warn("websocket drain incomplete", "error", err)
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
		if err := app.tasks.Wait(shutdownCtx); err != nil {
			logger.Warn("background tasks still running", "error", err)
		}
	}()

	logger.Info("HTTP server starting", "addr", cfg.HTTPAddr, "env", cfg.Env)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("HTTP server stopped")
}

type application struct {
	handlers ginserver.Handlers
	gateway  *realtime.Gateway
	limiter  *ginserver.IPRateLimiter
	worker   *infraoutbox.Worker
	tasks    *tasks.Group
	checks   map[string]obs.Check
	closers  []func(context.Context) error
}

func (a *application) close(logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			logger.Warn("close failed", "error", err)
		}
	}
}

type stores struct {
	users         domainuser.Repository
	listings      domainlistings.Repository
	tickets       domainsupport.Repository
	conversations domainchat.ConversationRepository
	messages      domainchat.MessageRepository
	factory       uow.UoWFactory
	idempotency   middleware.IdempotencyStore
	outbox        interface {
		outbox.Outbox
		infraoutbox.Queue
	}
}

func buildApplication(ctx context.Context, cfg config.Config, logger *slog.Logger) (*application, error) {
	app := &application{
		tasks:  &tasks.Group{Logger: logger},
		checks: map[string]obs.Check{},
	}

	st, err := app.openStores(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	sessions, err := app.openSessions(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	images, err := openImages(cfg, logger)
	if err != nil {
		return nil, err
	}

	var mailer policies.Notifier = mail.LogMailer{Logger: logger}
	if cfg.BrevoAPIKey != "" {
		mailer = mail.NewBrevoMailer(cfg.BrevoAPIKey, cfg.EmailFrom, cfg.EmailFromName, logger)
	} else {
		logger.Warn("BREVO_API_KEY not set, mail is logged only")
	}

	var sender push.Sender = push.LogSender{Logger: logger}
	if cfg.FirebaseCredFile != "" {
		fcm, err := push.NewFCMSender(ctx, cfg.FirebaseCredFile)
		if err != nil {
			return nil, fmt.Errorf("firebase: %w", err)
		}
		sender = fcm
	} else {
		logger.Warn("FIREBASE_CREDENTIALS_FILE not set, push notifications are logged only")
	}
	dispatcher := push.NewDispatcher(sender, logger)
	dispatcher.OnInvalidAddress = func(ctx context.Context, address string) {
		if err := st.users.ClearPushToken(ctx, address); err != nil {
			logger.Warn("stale push token not cleared", "error", err)
		}
	}

	encoder := outbox.JSONEventEncoder{}
	var box outbox.Outbox
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaClientID)
		if err != nil {
			return nil, fmt.Errorf("kafka: %w", err)
		}
		app.closers = append(app.closers, func(context.Context) error { return producer.Close() })
		box = st.outbox
		app.worker = &infraoutbox.Worker{
			Store:       st.outbox,
			Producer:    producer,
			Interval:    cfg.OutboxPollInterval,
			TopicPrefix: cfg.KafkaTopicPrefix,
			Source:      "kisaanconnect",
			Backoff:     cfg.RetryBackoff,
			Logger:      logger,
		}
	} else {
		logger.Info("KAFKA_BROKERS not set, domain events are not published")
	}

	var resets authsvc.ResetTokenIssuer
	if cfg.JWTSecret != "" {
		resets = security.ResetTokens{Secret: []byte(cfg.JWTSecret), TTL: cfg.ResetTokenTTL}
	} else {
		logger.Warn("JWT_SECRET not set, password reset is disabled")
	}

	auth := &authsvc.Service{
		Users:       st.users,
		Sessions:    sessions,
		Passwords:   security.BcryptHasher{Cost: bcrypt.DefaultCost},
		Tokens:      security.RandomTokenGenerator{},
		Resets:      resets,
		Images:      images,
		Mailer:      mailer,
		Tasks:       app.tasks,
		AdminEmails: cfg.AdminEmails,
		BaseURL:     cfg.BaseURL,
		SessionTTL:  cfg.SessionTTL,
		Logger:      logger,
	}
	chat := &chatsvc.Service{
		Conversations: st.conversations,
		Messages:      st.messages,
		Users:         st.users,
		Listings:      st.listings,
		Push:          dispatcher,
		Outbox:        box,
		Encoder:       encoder,
		Tasks:         app.tasks,
		Logger:        logger,
	}
	app.gateway = &realtime.Gateway{
		Chat:           chat,
		Registry:       realtime.NewRegistry(),
		Logger:         logger,
		OriginPatterns: originPatterns(cfg.CORSOrigins),
	}

	catalog, err := market.Load(cfg.MarketCatalogFile)
	if err != nil {
		return nil, fmt.Errorf("market catalog: %w", err)
	}
	board := &domainmarket.Board{Catalog: catalog}

	notifications := &supportapp.Notifications{
		Mailer:      mailer,
		Push:        dispatcher,
		Tasks:       app.tasks,
		AdminEmails: cfg.AdminEmails,
		BaseURL:     cfg.BaseURL,
		Logger:      logger,
	}

	commandBus := commands.NewInMemoryBus()
	commands.RegisterHandler(commandBus, listingapp.CreateCropCommand{}.Key(), &listingapp.CreateCropHandler{
		Images: images, Outbox: box, Encoder: encoder, Logger: logger,
	})
	commands.RegisterHandler(commandBus, listingapp.UpdateCropCommand{}.Key(), &listingapp.UpdateCropHandler{
		Images: images, Logger: logger,
	})
	commands.RegisterHandler(commandBus, listingapp.DeleteCropCommand{}.Key(), &listingapp.DeleteCropHandler{
		Images: images, Outbox: box, Encoder: encoder, Logger: logger,
	})
	commands.RegisterHandler(commandBus, supportapp.CreateTicketCommand{}.Key(), &supportapp.CreateTicketHandler{
		Outbox: box, Encoder: encoder, Notifications: notifications, Logger: logger,
	})
	commands.RegisterHandler(commandBus, supportapp.UpdateTicketCommand{}.Key(), &supportapp.UpdateTicketHandler{
		Notifications: notifications, Logger: logger,
	})
	commands.RegisterHandler(commandBus, supportapp.AddTicketResponseCommand{}.Key(), &supportapp.AddTicketResponseHandler{
		Notifications: notifications, Logger: logger,
	})

	queryBus := queries.NewInMemoryBus()
	queries.RegisterHandler(queryBus, listingapp.SearchCropsQuery{}.Key(), &listingapp.SearchCropsHandler{UoWFactory: st.factory})
	queries.RegisterHandler(queryBus, listingapp.CropSuggestionsQuery{}.Key(), &listingapp.CropSuggestionsHandler{UoWFactory: st.factory})
	queries.RegisterHandler(queryBus, listingapp.SellerCropsQuery{}.Key(), &listingapp.SellerCropsHandler{UoWFactory: st.factory})
	queries.RegisterHandler(queryBus, listingapp.GetCropQuery{}.Key(), &listingapp.GetCropHandler{UoWFactory: st.factory})
	queries.RegisterHandler(queryBus, supportapp.ListTicketsQuery{}.Key(), &supportapp.ListTicketsHandler{UoWFactory: st.factory})
	queries.RegisterHandler(queryBus, supportapp.GetTicketQuery{}.Key(), &supportapp.GetTicketHandler{UoWFactory: st.factory})
	queries.RegisterHandler(queryBus, supportapp.TicketStatsQuery{}.Key(), &supportapp.TicketStatsHandler{UoWFactory: st.factory})
	queries.RegisterHandler(queryBus, marketapp.MarketPricesQuery{}.Key(), &marketapp.MarketPricesHandler{Board: board})
	queries.RegisterHandler(queryBus, directoryapp.ListFarmersQuery{}.Key(), &directoryapp.ListFarmersHandler{UoWFactory: st.factory})
	queries.RegisterHandler(queryBus, directoryapp.GetFarmerQuery{}.Key(), &directoryapp.GetFarmerHandler{UoWFactory: st.factory})
	queries.RegisterHandler(queryBus, directoryapp.DashboardStatsQuery{}.Key(), &directoryapp.DashboardStatsHandler{UoWFactory: st.factory})

	cmdMiddlewares := []middleware.CommandMiddleware{
		middleware.Logging(logger),
		middleware.Validation(middleware.SelfValidator{}),
		middleware.Authorization(middleware.RoleAuthorizer{}),
		middleware.Idempotency(st.idempotency, middleware.JSONResultCodec{}),
		middleware.Transaction(st.factory, nil),
	}
	if box != nil {
		cmdMiddlewares = append(cmdMiddlewares, middleware.OutboxFlush(box))
	}
	commandsWithMiddleware := middleware.ChainCommands(commandBus, cmdMiddlewares...)
	queriesWithMiddleware := middleware.ChainQueries(queryBus,
		middleware.QueryLogging(logger),
		middleware.QueryAuthorization(middleware.RoleAuthorizer{}),
	)

	app.limiter = ginserver.NewIPRateLimiter(cfg.RateLimitPerMinute, logger)
	app.handlers = ginserver.Handlers{
		Auth: ginserver.AuthHandler{
			Service: auth,
			Cookie:  ginserver.SessionCookie{Name: cfg.SessionCookie, TTL: cfg.SessionTTL, Secure: cfg.SessionSecure},
			Logger:  logger,
		},
		Chat:           ginserver.ChatHandler{Chat: chat, Realtime: app.gateway, Logger: logger},
		Crops:          ginserver.CropHandler{Commands: commandsWithMiddleware, Queries: queriesWithMiddleware, Logger: logger},
		Help:           ginserver.HelpHandler{Commands: commandsWithMiddleware, Queries: queriesWithMiddleware, Logger: logger},
		Market:         ginserver.MarketHandler{Queries: queriesWithMiddleware, Logger: logger},
		Directory:      ginserver.DirectoryHandler{Queries: queriesWithMiddleware, Logger: logger},
		AuthMiddleware: ginserver.AuthMiddleware{Service: auth, CookieName: cfg.SessionCookie, Logger: logger}.Handle,
		RateLimit:      app.limiter.Handler(),
	}
	return app, nil
}

// openStores picks Mongo when MONGO_URI is set and falls back to in-memory
// repositories otherwise.
func (a *application) openStores(ctx context.Context, cfg config.Config, logger *slog.Logger) (stores, error) {
	if cfg.MongoURI == "" {
		logger.Warn("MONGO_URI not set, using in-memory storage")
		users := memory.NewUserRepository()
		listings := memory.NewListingRepository()
		tickets := memory.NewTicketRepository()
		return stores{
			users:         users,
			listings:      listings,
			tickets:       tickets,
			conversations: memory.NewConversationRepository(),
			messages:      memory.NewMessageRepository(),
			factory:       memory.Factory{ListingsRepo: listings, TicketsRepo: tickets, UsersRepo: users},
			idempotency:   memory.NewIdempotencyStore(),
			outbox:        memory.NewOutbox(),
		}, nil
	}

	client, err := mongodb.New(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		return stores{}, fmt.Errorf("mongo: %w", err)
	}
	a.closers = append(a.closers, client.Close)
	a.checks["mongo"] = client.Ping
	if err := client.EnsureIndexes(ctx); err != nil {
		return stores{}, fmt.Errorf("mongo indexes: %w", err)
	}
	idem, err := mongodb.NewIdempotencyStore(ctx, client.DB, cfg.IdempotencyTTL)
	if err != nil {
		return stores{}, fmt.Errorf("mongo idempotency: %w", err)
	}
	users := mongodb.NewUserRepository(client.DB)
	listings := mongodb.NewListingRepository(client.DB)
	tickets := mongodb.NewTicketRepository(client.DB)
	logger.Info("mongo connected", "database", cfg.MongoDB)
	return stores{
		users:         users,
		listings:      listings,
		tickets:       tickets,
		conversations: mongodb.NewConversationRepository(client.DB),
		messages:      mongodb.NewMessageRepository(client.DB),
		factory:       mongodb.Factory{DB: client.DB, ListingsRepo: listings, TicketsRepo: tickets, UsersRepo: users},
		idempotency:   idem,
		outbox:        infraoutbox.NewStore(client.DB),
	}, nil
}

func (a *application) openSessions(ctx context.Context, cfg config.Config, logger *slog.Logger) (domainauth.SessionStore, error) {
	if cfg.RedisAddr == "" {
		logger.Warn("REDIS_ADDR not set, sessions are kept in memory")
		return memory.NewSessionStore(), nil
	}
	client, err := redisstore.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error { return client.Close() })
	store := redisstore.NewSessionStore(client)
	a.checks["redis"] = store.Ping
	return store, nil
}

func openImages(cfg config.Config, logger *slog.Logger) (*media.Pipeline, error) {
	var uploader s3.Uploader
	if cfg.S3Enabled() {
		client, err := s3.NewClient(cfg.S3Endpoint, cfg.S3UseSSL, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Bucket, cfg.S3PublicEndpoint, logger)
		if err != nil {
			return nil, fmt.Errorf("s3: %w", err)
		}
		uploader = client
	} else {
		logger.Warn("S3 not configured, images are stored on local disk", "dir", cfg.UploadsDir)
		uploader = &local.Disk{Root: cfg.UploadsDir, URLPrefix: "/uploads", Logger: logger}
	}
	return &media.Pipeline{Uploader: uploader, Logger: logger}, nil
}

// originPatterns turns CORS origins into websocket host patterns. No
// configured origins means any origin may connect.
func originPatterns(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if u, err := parseOriginHost(o); err == nil {
			out = append(out, u)
		}
	}
	return out
}

func parseOriginHost(origin string) (string, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", fmt.Errorf("origin %q has no host", origin)
	}
	return u.Host, nil
}
