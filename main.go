package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	apihttp "fieldops-cloud/internal/api/http"
	"fieldops-cloud/internal/audit"
	"fieldops-cloud/internal/auth"
	commandsapp "fieldops-cloud/internal/commands/application"
	commandsevents "fieldops-cloud/internal/commands/application/events"
	commands "fieldops-cloud/internal/commands/domain"
	commandsmemory "fieldops-cloud/internal/commands/infrastructure/memory"
	commandsmqtt "fieldops-cloud/internal/commands/infrastructure/mqtt"
	commandsrepo "fieldops-cloud/internal/commands/infrastructure/postgres"
	commandsinterfaces "fieldops-cloud/internal/commands/interfaces"
	commandshttp "fieldops-cloud/internal/commands/interfaces/http"
	"fieldops-cloud/internal/eventing"
	"fieldops-cloud/internal/eventing/eventbus"
	eventingrepo "fieldops-cloud/internal/eventing/infrastructure/postgres"
	"fieldops-cloud/internal/observability/metrics"
	templatesapp "fieldops-cloud/internal/templates/application"
	templatesmemory "fieldops-cloud/internal/templates/infrastructure/memory"
	templatesrepo "fieldops-cloud/internal/templates/infrastructure/postgres"
	templateshttp "fieldops-cloud/internal/templates/interfaces/http"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "fieldops",
		Short:        "Field device command service",
		SilenceUsage: true,
	}
	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the MQTT command pipeline",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, log.New(os.Stdout, "", log.LstdFlags))
		},
	})
	root.AddCommand(newTemplateCommand())
	root.AddCommand(newTokenCommand())
	return root
}

func serve(ctx context.Context, cfg config, logger *log.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var db *sql.DB
	if cfg.DatabaseURL != "" {
		var err error
		db, err = sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return err
		}
	} else {
		logger.Printf("DATABASE_URL not set, using in-memory stores")
	}

	metrics.Init(db, logger)

	var (
		commandStore  commandsapp.CommandStore
		templateStore templatesapp.Repository
		auditLogger   audit.Logger
	)
	if db != nil {
		commandStore = commandsrepo.NewCommandRepository(db)
		templateStore = templatesrepo.NewTemplateRepository(db)
		auditLogger = audit.NewRepository(db)
	} else {
		commandStore = commandsmemory.NewCommandRepository()
		templateStore = templatesmemory.NewTemplateRepository()
		auditLogger = audit.LogWriter{Logger: logger}
	}

	bus := eventbus.NewInMemoryBus()
	wireEventLogging(bus, logger)
	var publisher commandsapp.EventPublisher = bus
	if db != nil {
		registry := eventing.NewRegistry()
		registry.Register(commandsevents.CommandDispatched{})
		registry.Register(commandsevents.CommandStatusChanged{})
		registry.Register(commandsevents.DeviceStatusReported{})
		outbox := eventingrepo.NewOutboxStore(db)
		relay := eventing.NewDispatcher(bus, outbox, registry, logger)
		if delivered, err := relay.Dispatch(ctx, 0); err != nil {
			logger.Printf("outbox replay error: %v", err)
		} else if delivered > 0 {
			logger.Printf("outbox replayed: count=%d", delivered)
		}
		publisher = eventing.NewPublisher(outbox, relay, cfg.TenantID)
	}

	templateService, err := templatesapp.NewService(templateStore, logger)
	if err != nil {
		return err
	}
	if cfg.TemplateSeedFile != "" {
		defaults, err := templatesapp.LoadSeedFile(cfg.TemplateSeedFile)
		if err != nil {
			return err
		}
		if _, err := templateService.SeedDefaults(ctx, defaults); err != nil {
			return err
		}
	}

	transport, err := commandsmqtt.NewTransport(commandsmqtt.Config{
		BrokerURL: cfg.MQTTBrokerURL,
		ClientID:  cfg.MQTTClientID,
		Username:  cfg.MQTTUsername,
		Password:  cfg.MQTTPassword,
		QoS:       cfg.MQTTQoS,
	}, logger)
	if err != nil {
		return err
	}

	topics := commands.NewTopics(cfg.MQTTTopicPrefix)
	inFlight := commandsapp.NewInFlightRegistry(cfg.RetiredRetention)
	reconciler, err := commandsapp.NewReconciler(commandStore, publisher, cfg.StoreTimeout, logger)
	if err != nil {
		return err
	}
	dispatcher, err := commandsapp.NewDispatcher(transport, inFlight, reconciler, publisher, commandsapp.DispatcherConfig{
		CommandTimeout: cfg.commandTimeout(),
		PublishTimeout: cfg.PublishTimeout,
		Topics:         topics,
	}, logger)
	if err != nil {
		return err
	}
	correlator, err := commandsapp.NewCorrelator(inFlight, reconciler, publisher, logger)
	if err != nil {
		return err
	}
	ackConsumer, err := commandsinterfaces.NewAckConsumer(correlator, topics, logger)
	if err != nil {
		return err
	}
	if err := ackConsumer.Register(transport); err != nil {
		return err
	}
	if err := transport.Connect(ctx); err != nil {
		logger.Printf("mqtt connect pending: %v", err)
	}

	commandService, err := commandsapp.NewService(commandStore, templateService, dispatcher, cfg.TenantID, logger)
	if err != nil {
		return err
	}
	commandHandler, err := commandshttp.NewHandler(commandService, auditLogger)
	if err != nil {
		return err
	}
	templateHandler, err := templateshttp.NewHandler(templateService, auditLogger)
	if err != nil {
		return err
	}

	var authMiddleware *auth.Middleware
	if cfg.JWTSecret != "" {
		authMiddleware = auth.NewMiddleware([]byte(cfg.JWTSecret), auth.NewDefaultPolicy("/healthz", "/metrics"))
		authMiddleware.Logger = logger
	} else {
		logger.Printf("AUTH_JWT_SECRET not set, API is unauthenticated")
	}

	stream := commandshttp.NewStreamBroker()
	eventbus.On(bus, stream.HandleDispatched)
	eventbus.On(bus, stream.HandleStatusChanged)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/commands/stream", commandshttp.NewStreamHandler(stream))
	mux.Handle("/api/v1/commands", commandHandler)
	mux.Handle("/api/v1/commands/", commandHandler)
	mux.Handle("/api/v1/templates", templateHandler)
	mux.Handle("/api/v1/templates/", templateHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", apihttp.NewHealthHandler(db, dispatcher))

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           loggingMiddleware(authMiddleware.Wrap(mux), logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		logger.Printf("http listening on %s", cfg.HTTPAddr)
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		dispatcher.Shutdown()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Printf("shutdown requested")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("http shutdown error: %v", err)
	}
	dispatcher.Shutdown()
	return nil
}

func wireEventLogging(bus eventbus.Bus, logger *log.Logger) {
	eventbus.On(bus, func(_ context.Context, evt commandsevents.CommandDispatched) error {
		logger.Printf("command dispatched: id=%s device=%s type=%s topic=%s timeout=%s", evt.CommandID, evt.DeviceID, evt.CommandType, evt.Topic, evt.Timeout)
		return nil
	})
	eventbus.On(bus, func(_ context.Context, evt commandsevents.CommandStatusChanged) error {
		logger.Printf("command status changed: id=%s device=%s status=%s terminal=%t", evt.CommandID, evt.DeviceID, evt.Status, evt.Terminal)
		return nil
	})
	eventbus.On(bus, func(_ context.Context, evt commandsevents.DeviceStatusReported) error {
		logger.Printf("device status reported: device=%s", evt.DeviceID)
		return nil
	})
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
