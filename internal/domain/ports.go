package domain

import (
	"context"
	"time"
)

// PrincipalRepository is the document-store access interface for principals.
// The document store is the source of truth for principal identity.
type PrincipalRepository interface {
	Create(ctx context.Context, p *Principal) error
	GetByID(ctx context.Context, id string) (*Principal, error)
	GetByEmail(ctx context.Context, email string) (*Principal, error)
	Update(ctx context.Context, id string, fields UpdatePrincipalRequest) (bool, error)
	SetStatus(ctx context.Context, id, status string) (bool, error)
	// Delete removes the record permanently. It is the compensating action of
	// the registration saga and must be idempotent: deleting an absent id is
	// not an error.
	Delete(ctx context.Context, id string) error
}

// SensorRepository is the document-store access interface for sensors.
type SensorRepository interface {
	Create(ctx context.Context, s *Sensor) error
	GetByID(ctx context.Context, id string) (*Sensor, error)
}

// DirectoryRepository is the graph-store access interface: the principal
// mirror, grant edges, and geography topology live here.
type DirectoryRepository interface {
	// UpsertMirror is idempotent: create-if-absent, else update in place.
	UpsertMirror(ctx context.Context, m PrincipalMirror) error
	// MirrorStatus returns the mirrored status, or NotFoundError when the
	// principal has no mirror node.
	MirrorStatus(ctx context.Context, principalID string) (string, error)

	// EffectivePermissions returns the distinct permission ids reachable from
	// an active principal through role, group, or direct grants. Unknown or
	// inactive principals yield an empty slice, not an error.
	EffectivePermissions(ctx context.Context, principalID string) ([]string, error)
	HasPermission(ctx context.Context, principalID, permissionID string) (bool, error)
	// CoversCity reports whether an active principal covers the city directly
	// or covers the country containing it.
	CoversCity(ctx context.Context, principalID, cityName string) (bool, error)

	AssignRole(ctx context.Context, principalID, roleID string) error
	AddToGroup(ctx context.Context, principalID, groupID string) error
	// GrantPermission creates a direct CAN_EXECUTE edge on the principal.
	GrantPermission(ctx context.Context, principalID, permissionID string) error
	AssignCityCoverage(ctx context.Context, principalID, cityName string) error
	AssignCountryCoverage(ctx context.Context, principalID, countryName string) error

	// UpsertSensorTopology mirrors a sensor node and its IN_CITY edge.
	UpsertSensorTopology(ctx context.Context, sensorID, code, sensorType, cityName string) error
}

// ReadingRepository is the column-store access interface for readings.
type ReadingRepository interface {
	// WriteFanOut applies the reading to all four projections as one atomic
	// multi-statement unit: a reader observes all four updated or none.
	WriteFanOut(ctx context.Context, r *Reading) error
	// WriteBySensor writes a batch into the per-sensor projection only.
	WriteBySensor(ctx context.Context, readings []Reading) error

	Latest(ctx context.Context, sensorID string) (*Reading, error)
	BySensor(ctx context.Context, sensorID string, day time.Time, limit int) ([]Reading, error)
	ByCity(ctx context.Context, city string, day time.Time, limit int) ([]Reading, error)
	ByCountry(ctx context.Context, country string, day time.Time, limit int) ([]Reading, error)
}

// AuthorizationEvaluator answers permission questions against the graph.
// Implemented by security.AuthorizationService.
type AuthorizationEvaluator interface {
	EffectivePermissions(ctx context.Context, principalID string) (PermissionSet, error)
	HasPermission(ctx context.Context, principalID, permissionID string) (bool, error)
	HasPermissionInScope(ctx context.Context, principalID, permissionID, cityName string) (bool, error)
	ActivePrincipal(ctx context.Context, principalID string) (bool, error)
}

// Authorizer is the ingestion authorization strategy. Exactly one
// implementation (strict or relaxed) is selected at wiring time.
type Authorizer interface {
	// AuthorizeRecord returns nil when the principal may record a reading in
	// the given city, or an AuthorizationError.
	AuthorizeRecord(ctx context.Context, principalID, city string) error
	// AuthorizeRead returns nil when the principal may read projections.
	AuthorizeRead(ctx context.Context, principalID string) error
}

// ResultRef is an opaque reference to a completed operation, handed to the
// billing collaborator.
type ResultRef struct {
	Process     string
	PrincipalID string
	SensorID    string
	At          time.Time
}

// BillingNotifier is invoked after successful process execution. The
// receiver's business logic is outside this core.
type BillingNotifier interface {
	Notify(ctx context.Context, ref ResultRef) error
}
