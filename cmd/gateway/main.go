package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/incident-gateway/internal/api/http"
	"github.com/spec-kit/incident-gateway/internal/api/http/handlers"
	"github.com/spec-kit/incident-gateway/internal/auth"
	"github.com/spec-kit/incident-gateway/internal/config"
	"github.com/spec-kit/incident-gateway/internal/events"
	"github.com/spec-kit/incident-gateway/internal/mcp"
	"github.com/spec-kit/incident-gateway/internal/observability"
	"github.com/spec-kit/incident-gateway/internal/persistence"
	"github.com/spec-kit/incident-gateway/internal/repository"
	"github.com/spec-kit/incident-gateway/internal/service"
	"github.com/spec-kit/incident-gateway/internal/servicenow"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "incident-gateway",
		Short: "Ticket bridge gateway for an external incident system",
		Long: "incident-gateway bridges agents and services to an external " +
			"incident ticketing system. Without --port it speaks a stream " +
			"protocol on stdin/stdout; with --port it serves a REST API plus " +
			"the protocol endpoint over HTTP.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runGateway,
	}

	flags := cmd.Flags()
	flags.String("host", "", "network listen host")
	flags.String("port", "", "network listen port (enables the network transport)")
	flags.String("instance-url", "", "base URL of the incident system instance")
	flags.String("auth-type", "", "upstream auth type: basic, oauth or apikey")
	flags.String("username", "", "upstream username (basic and oauth)")
	flags.String("password", "", "upstream password (basic and oauth)")
	flags.String("client-id", "", "OAuth client id")
	flags.String("client-secret", "", "OAuth client secret")
	flags.String("token-url", "", "OAuth token endpoint override")
	flags.String("api-key", "", "upstream API key")
	flags.String("api-key-header", "", "header name carrying the API key")
	flags.Int("timeout", 0, "upstream request timeout in seconds")
	flags.Bool("debug", false, "enable debug logging")

	return cmd
}

func runGateway(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		log.Printf("failed to load config: %v", err)
		return err
	}
	overlayFlags(cmd, cfg)

	logger, err := observability.NewLogger(cfg.Logger, cfg.ServiceNow.Debug)
	if err != nil {
		log.Printf("failed to init logger: %v", err)
		return err
	}
	defer logger.Sync() //nolint:errcheck

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", zap.Error(err))
		return err
	}

	strategy, err := servicenow.NewStrategy(cfg.ServiceNow, logger)
	if err != nil {
		logger.Error("invalid upstream auth configuration", zap.Error(err))
		return err
	}

	bridge := servicenow.NewClient(cfg.ServiceNow, strategy, logger)
	incidents := service.NewIncidentService(bridge)

	if !cfg.App.NetworkMode() {
		return runStream(cfg, incidents, logger)
	}
	return runNetwork(cfg, incidents, bridge, logger)
}

// overlayFlags applies explicitly-set command-line flags on top of the
// environment-derived config. Flags win.
func overlayFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	setString := func(name string, dst *string) {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	setString("host", &cfg.App.Host)
	setString("port", &cfg.App.Port)
	setString("instance-url", &cfg.ServiceNow.InstanceURL)
	setString("auth-type", &cfg.ServiceNow.AuthType)
	setString("username", &cfg.ServiceNow.Username)
	setString("password", &cfg.ServiceNow.Password)
	setString("client-id", &cfg.ServiceNow.ClientID)
	setString("client-secret", &cfg.ServiceNow.ClientSecret)
	setString("token-url", &cfg.ServiceNow.TokenURL)
	setString("api-key", &cfg.ServiceNow.APIKey)
	setString("api-key-header", &cfg.ServiceNow.APIKeyHeader)
	if flags.Changed("timeout") {
		cfg.ServiceNow.TimeoutSeconds, _ = flags.GetInt("timeout")
	}
	if flags.Changed("debug") {
		cfg.ServiceNow.Debug, _ = flags.GetBool("debug")
	}
}

// runStream serves the protocol on stdin/stdout until EOF or a signal.
// The submission workflow and identity endpoints only exist on the
// network transport, so no database or Redis connection is made here.
func runStream(cfg *config.Config, incidents *service.IncidentService, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting stream transport",
		zap.String("instance_url", cfg.ServiceNow.InstanceURL),
		zap.String("auth_type", cfg.ServiceNow.AuthType),
	)
	server := mcp.NewServer(incidents, logger, cfg.App.Version)
	if err := server.Serve(ctx); err != nil {
		logger.Error("stream transport failed", zap.Error(err))
		return err
	}
	logger.Info("stream transport closed")
	return nil
}

func runNetwork(cfg *config.Config, incidents *service.IncidentService, bridge service.TicketBridge, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Error("failed to connect postgres", zap.Error(err))
		return err
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Error("failed to run migrations", zap.Error(err))
			return err
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	pool := pg.PoolHandle()
	principalRepo := repository.NewPrincipalRepository(pool)
	submissionRepo := repository.NewSubmissionRepository(pool)

	dispatcher := events.NewInMemoryDispatcher()
	notifications := service.NewNotificationService(dispatcher, redis, cfg.Redis.EventChannel, logger)
	notifications.RegisterHandlers()

	identity := service.NewIdentityService(*cfg, principalRepo)
	workflow := service.NewWorkflowService(submissionRepo, bridge, dispatcher, logger)
	authMiddleware := auth.NewAuthMiddleware(identity.TokenManager())

	metrics := observability.NewMetrics()
	protocol := mcp.NewServer(incidents, logger, cfg.App.Version)

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.ServiceNow.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Incidents:      handlers.NewIncidentsHandler(incidents),
		Auth:           handlers.NewAuthHandler(identity),
		Submissions:    handlers.NewSubmissionsHandler(workflow),
		Protocol:       protocol,
		AuthMiddleware: authMiddleware,
	})

	go func() {
		logger.Info("starting network transport", zap.String("addr", cfg.App.Addr()))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	return app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
