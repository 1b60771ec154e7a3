package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gocql/gocql"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"sensorgrid/internal/api"
	"sensorgrid/internal/app"
	"sensorgrid/internal/billing"
	"sensorgrid/internal/config"
)

func main() {
	ctx := context.Background()

	// Load .env file (if present)
	if err := config.LoadDotEnv(".env"); err != nil {
		log.Printf("warning: could not load .env: %v", err)
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)
	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}

	// Document store
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("connect document store: %v", err)
	}
	defer mongoClient.Disconnect(ctx) //nolint:errcheck
	mongoDB := mongoClient.Database(cfg.MongoDatabase)

	// Graph store
	graphDriver, err := neo4j.NewDriverWithContext(cfg.Neo4jURI,
		neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, ""))
	if err != nil {
		log.Fatalf("connect graph store: %v", err)
	}
	defer graphDriver.Close(ctx) //nolint:errcheck

	// Column store
	cluster := gocql.NewCluster(cfg.CassandraHosts...)
	cluster.Keyspace = cfg.CassandraKeyspace
	cluster.Consistency = gocql.Quorum
	cluster.Timeout = 10 * time.Second
	cassSession, err := cluster.CreateSession()
	if err != nil {
		log.Fatalf("connect column store: %v", err)
	}
	defer cassSession.Close()

	application, err := app.New(app.Deps{
		Cfg:     cfg,
		Mongo:   mongoDB,
		Graph:   graphDriver,
		Cass:    cassSession,
		Billing: billing.NewLogNotifier(logger.With("component", "billing")),
		Logger:  logger,
	})
	if err != nil {
		log.Fatalf("wire application: %v", err)
	}

	handler := api.NewHandler(
		application.Services.Synchronizer,
		application.Services.Authorization,
		application.Services.Grant,
		application.Services.Ingestion,
		logger.With("component", "api"),
	)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 5*time.Second)
		defer cancel()
		if err := mongoClient.Ping(ctx, nil); err != nil {
			http.Error(w, "document store unreachable", http.StatusServiceUnavailable)
			return
		}
		if err := graphDriver.VerifyConnectivity(ctx); err != nil {
			http.Error(w, "graph store unreachable", http.StatusServiceUnavailable)
			return
		}
		if cassSession.Closed() {
			http.Error(w, "column store unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Mount("/v1", handler.Routes())

	logger.Info("server listening", "addr", cfg.ListenAddr, "auth_mode", cfg.AuthMode)
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		log.Fatalf("server: %v", err)
	}
}
