package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Ramsey-B/tansy/config"
	"github.com/Ramsey-B/tansy/internal/database"
	"github.com/Ramsey-B/tansy/internal/repositories/contact"
	"github.com/Ramsey-B/tansy/internal/repositories/dependent"
	"github.com/Ramsey-B/tansy/internal/repositories/detail"
	"github.com/Ramsey-B/tansy/internal/repositories/reviewcandidate"
	"github.com/Ramsey-B/tansy/pkg/classify"
	"github.com/Ramsey-B/tansy/pkg/events"
	"github.com/Ramsey-B/tansy/pkg/graph"
	"github.com/Ramsey-B/tansy/pkg/grouping"
	"github.com/Ramsey-B/tansy/pkg/kafka"
	"github.com/Ramsey-B/tansy/pkg/merging"
	"github.com/Ramsey-B/tansy/pkg/reconcile"
	"github.com/Ramsey-B/tansy/pkg/tracing"
	"github.com/Ramsey-B/tansy/pkg/tracing/exporters"
)

// App carries the collaborators every verb shares. Close releases them
// in reverse acquisition order.
type App struct {
	Config *config.Config
	Logger ectologger.Logger
	DB     database.DB

	closers []func(context.Context) error
}

func newApp(ctx context.Context) (*App, error) {
	cfg := config.Load()
	logger := newLogger(cfg)

	app := &App{Config: cfg, Logger: logger}

	shutdownTracing, err := tracing.InitProvider(ctx, tracing.ProviderConfig{
		ServiceName: cfg.AppName,
		Exporter:    cfg.TracingExporter,
		OTLP: exporters.OTLPConfig{
			Endpoint: cfg.OTLPEndpoint,
			Protocol: cfg.OTLPProtocol,
			Insecure: cfg.OTLPInsecure,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init tracing: %w", err)
	}
	app.closers = append(app.closers, shutdownTracing)

	db, err := database.Connect(ctx, connConfigFrom(cfg), logger)
	if err != nil {
		app.Close(ctx)
		return nil, err
	}
	app.DB = db
	app.closers = append(app.closers, func(context.Context) error { return db.Close() })

	return app, nil
}

// Close runs the registered shutdown steps newest first.
func (a *App) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.Logger.WithError(err).Warn("Shutdown step failed")
		}
	}
}

func newLogger(cfg *config.Config) ectologger.Logger {
	zapCfg := zap.NewProductionConfig()
	if cfg.PrettyLogs {
		zapCfg = zap.NewDevelopmentConfig()
	}
	if level, err := zapcore.ParseLevel(cfg.LogLevel); err == nil {
		zapCfg.Level = zap.NewAtomicLevelAt(level)
	}
	zapLogger, _ := zapCfg.Build()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func connConfigFrom(cfg *config.Config) database.ConnConfig {
	return database.ConnConfig{
		Host:            cfg.DatabaseHost,
		Port:            cfg.DatabasePort,
		User:            cfg.DatabaseUserName,
		Password:        cfg.DatabasePassword,
		Name:            cfg.DatabaseName,
		SSLMode:         cfg.DatabaseSSLMode,
		MaxOpenConns:    cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: cfg.DatabaseConnMaxLifetime,
	}
}

// buildRunner assembles the dedupe pipeline over the open store.
func (a *App) buildRunner(observers ...reconcile.MergeObserver) (*reconcile.Runner, error) {
	spec, err := merging.LoadFieldSpec(a.Config.FieldSpecPath)
	if err != nil {
		return nil, err
	}

	contacts := contact.NewRepository(a.DB, a.Logger)
	details := detail.NewRepository(a.DB, a.Logger)
	dependents := dependent.NewRepository(a.DB, a.Logger)
	reviews := reviewcandidate.NewRepository(a.DB, a.Logger)

	engine := merging.NewEngine(a.Logger, a.DB, spec, contacts, details, dependents)
	grouper := grouping.NewGrouper(a.Logger, contacts, a.Config.ScanBatchSize)
	classifier := classify.NewClassifier(a.Logger)

	return reconcile.NewRunner(a.Logger, contacts, grouper, classifier, engine, reviews, observers...), nil
}

// buildEmitter wires the Kafka producer when enabled, nil otherwise.
func (a *App) buildEmitter() *events.Emitter {
	if !a.Config.KafkaProducerEnabled {
		return nil
	}

	producer := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:      a.Config.KafkaBrokers,
		Topic:        a.Config.KafkaOutputTopic,
		BatchSize:    a.Config.KafkaBatchSize,
		BatchTimeout: time.Duration(a.Config.KafkaBatchTimeout) * time.Millisecond,
		RequiredAcks: a.Config.KafkaRequiredAcks,
		Compression:  a.Config.KafkaCompression,
	}, a.Logger)
	a.closers = append(a.closers, func(context.Context) error { return producer.Close() })

	return events.NewEmitter(a.Logger, producer)
}

// buildObservers wires the optional post-commit fan-out (events, graph).
func (a *App) buildObservers(ctx context.Context) ([]reconcile.MergeObserver, error) {
	var observers []reconcile.MergeObserver

	if emitter := a.buildEmitter(); emitter != nil {
		observers = append(observers, emitter)
	}

	if a.Config.GraphSyncEnabled {
		client, err := graph.NewClient(graph.Config{
			Host:     a.Config.GraphDBHost,
			Port:     a.Config.GraphDBPort,
			Username: a.Config.GraphDBUser,
			Password: a.Config.GraphDBPassword,
		}, a.Logger)
		if err != nil {
			return nil, err
		}
		if err := client.VerifyConnectivity(ctx); err != nil {
			_ = client.Close(ctx)
			return nil, fmt.Errorf("graph database unreachable: %w", err)
		}
		a.closers = append(a.closers, client.Close)

		observers = append(observers, graph.NewProjector(a.Logger, client, contact.NewRepository(a.DB, a.Logger)))
	}

	return observers, nil
}

// writeReport prints serialized report bytes to stdout, or to outPath
// when given.
func writeReport(data []byte, outPath string) error {
	if outPath == "" {
		_, err := os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(outPath, data, 0o644)
}
