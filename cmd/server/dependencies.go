package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectoinject/ectocontainer"
	"github.com/Gobusters/ectologger"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Ramsey-B/laurel/config"
	"github.com/Ramsey-B/laurel/internal/repositories/canonicalentity"
	caserepo "github.com/Ramsey-B/laurel/internal/repositories/cases"
	"github.com/Ramsey-B/laurel/internal/repositories/caselink"
	schemarepo "github.com/Ramsey-B/laurel/internal/repositories/docschema"
	"github.com/Ramsey-B/laurel/internal/repositories/doclink"
	"github.com/Ramsey-B/laurel/internal/repositories/embeddings"
	"github.com/Ramsey-B/laurel/internal/repositories/mergehistory"
	"github.com/Ramsey-B/laurel/pkg/database"
	"github.com/Ramsey-B/laurel/pkg/dedup"
	"github.com/Ramsey-B/laurel/pkg/events"
	"github.com/Ramsey-B/laurel/pkg/graph"
	"github.com/Ramsey-B/laurel/pkg/kafka"
	"github.com/Ramsey-B/laurel/pkg/matching"
	"github.com/Ramsey-B/laurel/pkg/middleware"
	"github.com/Ramsey-B/laurel/pkg/processor"
	"github.com/Ramsey-B/laurel/pkg/reconciler"
	caseroutes "github.com/Ramsey-B/laurel/pkg/routes/cases"
	schemaroutes "github.com/Ramsey-B/laurel/pkg/routes/docschema"
	"github.com/Ramsey-B/laurel/pkg/routes/documents"
	graphroutes "github.com/Ramsey-B/laurel/pkg/routes/graph"
	"github.com/Ramsey-B/laurel/pkg/routes/health"
	"github.com/Ramsey-B/laurel/pkg/routes/orphans"
	"github.com/Ramsey-B/laurel/pkg/schema"
	"github.com/Ramsey-B/laurel/pkg/similarity"
)

type app struct {
	cfg       *config.Config
	logger    ectologger.Logger
	container ectocontainer.DIContainer

	db           *sqlx.DB
	graphClient  *graph.Client
	queryService *graph.QueryService
	producer     *kafka.Producer
	consumer     *kafka.Consumer
	processor    *processor.Processor
	echo         *echo.Echo
	health       *health.Checker
}

func newApp(cfg *config.Config, logger ectologger.Logger) (*app, error) {
	container, err := ectoinject.NewDIDefaultContainer()
	if err != nil {
		return nil, err
	}
	if err := ectoinject.RegisterInstance[ectologger.Logger](container, logger); err != nil {
		return nil, err
	}
	if err := ectoinject.RegisterInstance[*config.Config](container, cfg); err != nil {
		return nil, err
	}

	return &app{cfg: cfg, logger: logger, container: container}, nil
}

// postgresDependency connects the case store and applies migrations.
type postgresDependency struct {
	app *app
}

func (d *postgresDependency) GetName() string { return "postgres" }
func (d *postgresDependency) DependsOn() []string { return nil }

func (d *postgresDependency) Start(ctx context.Context) error {
	cfg := d.app.cfg
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DatabaseHost, cfg.DatabasePort, cfg.DatabaseUserName, cfg.DatabasePassword,
		cfg.DatabaseName, cfg.DatabaseSSLMode)

	db, err := sqlx.ConnectContext(ctx, cfg.DatabaseDriver, dsn)
	if err != nil {
		return err
	}
	db.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
	db.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)

	driver, err := migratepg.WithInstance(db.DB, &migratepg.Config{})
	if err != nil {
		db.Close()
		return err
	}

	migrations := database.NewMigrationService(d.app.logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             uint(cfg.DatabaseMigrationVersion),
		Force:               cfg.DatabaseMigrationForce,
		AutoRollback:        cfg.DatabaseMigrationAutoRollback,
	})
	if err := migrations.Migrate(cfg.DatabaseName, driver); err != nil {
		db.Close()
		return err
	}

	d.app.db = db
	return nil
}

func (d *postgresDependency) Stop(ctx context.Context) error {
	if d.app.db != nil {
		return d.app.db.Close()
	}
	return nil
}

// graphDependency connects the optional graph database.
type graphDependency struct {
	app *app
}

func (d *graphDependency) GetName() string { return "graph" }
func (d *graphDependency) DependsOn() []string { return nil }

func (d *graphDependency) Start(ctx context.Context) error {
	cfg := d.app.cfg
	client, err := graph.NewClient(graph.Config{
		Host:     cfg.GraphDBHost,
		Port:     cfg.GraphDBPort,
		Username: cfg.GraphDBUser,
		Password: cfg.GraphDBPassword,
	}, d.app.logger)
	if err != nil {
		return err
	}
	if err := client.VerifyConnectivity(ctx); err != nil {
		client.Close(ctx)
		return err
	}

	d.app.graphClient = client
	return nil
}

func (d *graphDependency) Stop(ctx context.Context) error {
	if d.app.graphClient != nil {
		return d.app.graphClient.Close(ctx)
	}
	return nil
}

// servicesDependency builds repositories and the resolution pipeline, and
// registers everything route handlers resolve from the DI container.
type servicesDependency struct {
	app *app
}

func (d *servicesDependency) GetName() string { return "services" }

func (d *servicesDependency) DependsOn() []string {
	deps := []string{"postgres"}
	if d.app.cfg.GraphDBEnabled {
		deps = append(deps, "graph")
	}
	return deps
}

func (d *servicesDependency) Start(ctx context.Context) error {
	cfg := d.app.cfg
	logger := d.app.logger
	db := database.NewDatabaseInstance(d.app.db, logger)

	caseRepo := caserepo.NewRepository(db, logger)
	entityRepo := canonicalentity.NewRepository(db, logger)
	linkRepo := caselink.NewRepository(db, logger)
	docLinkRepo := doclink.NewRepository(db, logger)
	historyRepo := mergehistory.NewRepository(db, logger)
	embeddingRepo := embeddings.NewRepository(db, logger)
	schemaRepo := schemarepo.NewRepository(db, logger)

	d.app.producer = kafka.NewProducer(kafka.ProducerConfig{
		Brokers:      cfg.KafkaBrokers,
		Topic:        cfg.KafkaOutputTopic,
		BatchSize:    cfg.KafkaBatchSize,
		BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
		RequiredAcks: cfg.KafkaRequiredAcks,
		Compression:  cfg.KafkaCompression,
	}, logger)
	emitter := events.NewEmitter(d.app.producer, logger)

	validation := schema.NewValidationService(schemaRepo, logger)
	linker := similarity.NewLinker(embeddingRepo, linkRepo, cfg, logger)
	matcher := matching.NewMatcher(caseRepo, docLinkRepo, historyRepo, embeddingRepo, linker, cfg, logger)
	deduplicator := dedup.NewDeduplicator(entityRepo, linkRepo, cfg, logger).WithEmitter(emitter)
	recon := reconciler.NewReconciler(caseRepo, docLinkRepo, linkRepo, historyRepo, embeddingRepo, logger)

	var projector processor.GraphProjector
	var graphProjector *graph.Projector
	if d.app.graphClient != nil {
		graphProjector = graph.NewProjector(d.app.graphClient, logger)
		projector = graphProjector
		d.app.queryService = graph.NewQueryService(d.app.graphClient, logger)
	}

	d.app.processor = processor.NewProcessor(validation, matcher, deduplicator, caseRepo, emitter, projector, cfg, logger)

	type registration func() error
	registrations := []registration{
		func() error {
			return ectoinject.RegisterInstance[*caserepo.Repository](d.app.container, caseRepo)
		},
		func() error {
			return ectoinject.RegisterInstance[*canonicalentity.Repository](d.app.container, entityRepo)
		},
		func() error {
			return ectoinject.RegisterInstance[*caselink.Repository](d.app.container, linkRepo)
		},
		func() error {
			return ectoinject.RegisterInstance[*doclink.Repository](d.app.container, docLinkRepo)
		},
		func() error {
			return ectoinject.RegisterInstance[*mergehistory.Repository](d.app.container, historyRepo)
		},
		func() error {
			return ectoinject.RegisterInstance[*embeddings.Repository](d.app.container, embeddingRepo)
		},
		func() error {
			return ectoinject.RegisterInstance[*schemarepo.Repository](d.app.container, schemaRepo)
		},
		func() error {
			return ectoinject.RegisterInstance[*schema.ValidationService](d.app.container, validation)
		},
		func() error {
			return ectoinject.RegisterInstance[*processor.Processor](d.app.container, d.app.processor)
		},
		func() error {
			return ectoinject.RegisterInstance[*reconciler.Reconciler](d.app.container, recon)
		},
		func() error {
			return ectoinject.RegisterInstance[*events.Emitter](d.app.container, emitter)
		},
	}
	if d.app.queryService != nil {
		registrations = append(registrations, func() error {
			return ectoinject.RegisterInstance[*graph.QueryService](d.app.container, d.app.queryService)
		})
		registrations = append(registrations, func() error {
			return ectoinject.RegisterInstance[*graph.Projector](d.app.container, graphProjector)
		})
	}
	for _, register := range registrations {
		if err := register(); err != nil {
			return err
		}
	}

	if cfg.KafkaConsumerEnabled {
		d.app.consumer = kafka.NewConsumer(*cfg, logger, d.app.processor.ProcessMessage)
		if err := d.app.consumer.Start(ctx); err != nil {
			return err
		}
	}

	return nil
}

func (d *servicesDependency) Stop(ctx context.Context) error {
	if d.app.consumer != nil {
		if err := d.app.consumer.Stop(); err != nil {
			return err
		}
	}
	if d.app.producer != nil {
		return d.app.producer.Close()
	}
	return nil
}

// serverDependency runs the HTTP API.
type serverDependency struct {
	app *app
}

func (d *serverDependency) GetName() string { return "server" }
func (d *serverDependency) DependsOn() []string { return []string{"services"} }

func (d *serverDependency) Start(ctx context.Context) error {
	cfg := d.app.cfg
	logger := d.app.logger

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(echomw.Recover())
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	if cfg.TracingEnabled {
		e.Use(otelecho.Middleware(cfg.AppName))
	}
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))

	e.Server.ReadTimeout = time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second
	e.Server.ReadHeaderTimeout = time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second
	e.Server.MaxHeaderBytes = cfg.MaxHeaderBytes

	d.app.health = health.NewChecker(d.app.db, nil, version)
	d.app.health.RegisterRoutes(e)

	api := e.Group("/api/v1")
	documents.Register(api.Group("/documents"))
	caseroutes.Register(api.Group("/cases"))
	orphans.Register(api.Group("/orphans"))
	schemaroutes.Register(api.Group("/schemas"))
	graphroutes.NewHandler(d.app.queryService, logger).Register(api.Group("/graph"))

	d.app.echo = e

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		logger.WithField("addr", addr).Infof("HTTP server listening on %s", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("HTTP server stopped unexpectedly")
		}
	}()

	d.app.health.SetReady(true)
	return nil
}

func (d *serverDependency) Stop(ctx context.Context) error {
	if d.app.health != nil {
		d.app.health.SetReady(false)
	}
	if d.app.echo != nil {
		return d.app.echo.Shutdown(ctx)
	}
	return nil
}
