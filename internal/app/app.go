// Package app provides application-level wiring and dependency injection,
// following hexagonal architecture: main() opens the store connections, this
// package builds repositories and services on top of them.
package app

import (
	"fmt"
	"log/slog"

	"github.com/gocql/gocql"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.mongodb.org/mongo-driver/mongo"

	"sensorgrid/internal/config"
	"sensorgrid/internal/domain"
	"sensorgrid/internal/service/ingestion"
	"sensorgrid/internal/service/security"
	"sensorgrid/internal/store/cassstore"
	"sensorgrid/internal/store/graphstore"
	"sensorgrid/internal/store/mongostore"
)

// Deps holds the external dependencies that main() must provide: the three
// store handles, config, and the logger. Billing is optional.
type Deps struct {
	Cfg     *config.Config
	Mongo   *mongo.Database
	Graph   neo4j.DriverWithContext
	Cass    *gocql.Session
	Billing domain.BillingNotifier // nil disables billing notifications
	Logger  *slog.Logger
}

// Services groups all service pointers that the API layer needs.
type Services struct {
	Synchronizer  *security.SynchronizerService
	Authorization *security.AuthorizationService
	Grant         *security.GrantService
	Ingestion     *ingestion.IngestionService
}

// App holds the fully-wired application.
type App struct {
	Services Services
}

// New wires all repositories and services from the provided deps. The
// ingestion authorization strategy is selected by cfg.AuthMode.
func New(deps Deps) (*App, error) {
	cfg := deps.Cfg

	// === Repositories ===
	principalRepo := mongostore.NewPrincipalRepo(deps.Mongo)
	sensorRepo := mongostore.NewSensorRepo(deps.Mongo)
	directoryRepo := graphstore.NewDirectoryRepo(deps.Graph)
	readingRepo := cassstore.NewReadingRepo(deps.Cass)

	// === Authorization ===
	authSvc := security.NewAuthorizationService(directoryRepo, deps.Logger.With("component", "authorization"))

	var authorizer domain.Authorizer
	switch cfg.AuthMode {
	case config.AuthModeStrict:
		authorizer = security.NewStrictAuthorizer(authSvc)
	case config.AuthModeRelaxed:
		authorizer = security.NewRelaxedAuthorizer(authSvc)
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.AuthMode)
	}

	// === Core services ===
	syncSvc := security.NewSynchronizerService(
		principalRepo, sensorRepo, directoryRepo, authSvc,
		deps.Logger.With("component", "synchronizer"),
	)
	grantSvc := security.NewGrantService(directoryRepo, deps.Logger.With("component", "grants"))
	ingestSvc := ingestion.NewIngestionService(
		readingRepo, authorizer, deps.Billing, cfg.BatchFanOutAll,
		deps.Logger.With("component", "ingestion"),
	)

	return &App{
		Services: Services{
			Synchronizer:  syncSvc,
			Authorization: authSvc,
			Grant:         grantSvc,
			Ingestion:     ingestSvc,
		},
	}, nil
}
