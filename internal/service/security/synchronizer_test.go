package security

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sensorgrid/internal/domain"
	"sensorgrid/internal/testutil"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type syncFixture struct {
	principals *testutil.MemPrincipalRepo
	sensors    *testutil.MemSensorRepo
	dir        *testutil.MemDirectory
	svc        *SynchronizerService
}

func newSyncFixture() *syncFixture {
	principals := testutil.NewMemPrincipalRepo()
	sensors := testutil.NewMemSensorRepo()
	dir := testutil.NewMemDirectory()
	eval := NewAuthorizationService(dir, testLogger())
	return &syncFixture{
		principals: principals,
		sensors:    sensors,
		dir:        dir,
		svc:        NewSynchronizerService(principals, sensors, dir, eval, testLogger()),
	}
}

func registerReq() domain.RegisterPrincipalRequest {
	return domain.RegisterPrincipalRequest{
		Name:       "Ana Pérez",
		Email:      "ana@example.com",
		Credential: "s3cret",
		OrgUnit:    "observability",
	}
}

func TestRegisterPrincipalMirrorsIdentity(t *testing.T) {
	fx := newSyncFixture()

	id, err := fx.svc.RegisterPrincipal(context.Background(), registerReq())
	require.NoError(t, err)
	require.NotEmpty(t, id)

	p, err := fx.principals.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, p.Status)
	assert.Equal(t, HashCredential("s3cret"), p.CredentialHash)
	assert.NotEqual(t, "s3cret", p.CredentialHash)

	mirror, ok := fx.dir.Mirrors[id]
	require.True(t, ok, "principal must be mirrored into the graph")
	assert.Equal(t, "ana@example.com", mirror.Email)
	assert.Equal(t, domain.StatusActive, mirror.Status)
}

func TestRegisterPrincipalDuplicateEmail(t *testing.T) {
	fx := newSyncFixture()

	_, err := fx.svc.RegisterPrincipal(context.Background(), registerReq())
	require.NoError(t, err)

	_, err = fx.svc.RegisterPrincipal(context.Background(), registerReq())
	require.Error(t, err)
	assert.True(t, errors.As(err, new(*domain.DuplicateError)))
	assert.Len(t, fx.principals.Principals, 1, "second registration must not write")
}

func TestRegisterPrincipalValidation(t *testing.T) {
	fx := newSyncFixture()

	req := registerReq()
	req.Email = "not-an-email"
	_, err := fx.svc.RegisterPrincipal(context.Background(), req)

	assert.True(t, errors.As(err, new(*domain.ValidationError)))
	assert.Empty(t, fx.principals.Principals)
}

func TestRegisterPrincipalMirrorFailureRollsBack(t *testing.T) {
	fx := newSyncFixture()
	fx.dir.UpsertMirrorFn = func(context.Context, domain.PrincipalMirror) error {
		return fmt.Errorf("graph unreachable")
	}

	_, err := fx.svc.RegisterPrincipal(context.Background(), registerReq())

	require.Error(t, err)
	assert.True(t, errors.As(err, new(*domain.SyncError)))
	assert.Empty(t, fx.principals.Principals, "document-store record must be compensated away")
	assert.Empty(t, fx.dir.Mirrors, "no mirror must exist either")
}

func TestRegisterPrincipalRollbackFailureIsTerminal(t *testing.T) {
	fx := newSyncFixture()
	fx.dir.UpsertMirrorFn = func(context.Context, domain.PrincipalMirror) error {
		return fmt.Errorf("graph unreachable")
	}
	fx.principals.DeleteFn = func(context.Context, string) error {
		return fmt.Errorf("document store down")
	}

	_, err := fx.svc.RegisterPrincipal(context.Background(), registerReq())

	var rollback *domain.RollbackError
	require.True(t, errors.As(err, &rollback), "rollback failure must surface, not be swallowed")
	assert.NotEmpty(t, rollback.PrincipalID)
	assert.Len(t, fx.principals.Principals, 1, "the orphaned record remains for operator cleanup")
}

func TestUpdatePrincipalPropagatesAtLeastOnce(t *testing.T) {
	fx := newSyncFixture()
	id, err := fx.svc.RegisterPrincipal(context.Background(), registerReq())
	require.NoError(t, err)

	// Mirror is down; the update must still succeed against the source of
	// truth and report success.
	fx.dir.UpsertMirrorFn = func(context.Context, domain.PrincipalMirror) error {
		return fmt.Errorf("graph unreachable")
	}

	updated, err := fx.svc.UpdatePrincipal(context.Background(), id, domain.UpdatePrincipalRequest{Name: "Ana García"})
	require.NoError(t, err)
	assert.True(t, updated)

	p, err := fx.principals.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Ana García", p.Name)
	assert.Equal(t, "Ana Pérez", fx.dir.Mirrors[id].Name, "mirror stays stale until next sync")

	// Mirror recovers; the next update converges it.
	fx.dir.UpsertMirrorFn = nil
	updated, err = fx.svc.UpdatePrincipal(context.Background(), id, domain.UpdatePrincipalRequest{OrgUnit: "platform"})
	require.NoError(t, err)
	assert.True(t, updated)
	assert.Equal(t, "Ana García", fx.dir.Mirrors[id].Name)
	assert.Equal(t, "platform", fx.dir.Mirrors[id].OrgUnit)
}

func TestUpdatePrincipalUnknownID(t *testing.T) {
	fx := newSyncFixture()

	updated, err := fx.svc.UpdatePrincipal(context.Background(), "nope", domain.UpdatePrincipalRequest{Name: "x"})
	require.NoError(t, err)
	assert.False(t, updated)
}

func TestUpdatePrincipalEmailCollision(t *testing.T) {
	fx := newSyncFixture()
	id, err := fx.svc.RegisterPrincipal(context.Background(), registerReq())
	require.NoError(t, err)

	other := registerReq()
	other.Email = "bruno@example.com"
	_, err = fx.svc.RegisterPrincipal(context.Background(), other)
	require.NoError(t, err)

	_, err = fx.svc.UpdatePrincipal(context.Background(), id, domain.UpdatePrincipalRequest{Email: "bruno@example.com"})
	assert.True(t, errors.As(err, new(*domain.DuplicateError)))
}

func TestDeactivateStopsPermissionResolution(t *testing.T) {
	fx := newSyncFixture()
	id, err := fx.svc.RegisterPrincipal(context.Background(), registerReq())
	require.NoError(t, err)

	fx.dir.SeedRole("operator", domain.PermRecordMeasurement)
	require.NoError(t, fx.dir.AssignRole(context.Background(), id, "operator"))

	eval := NewAuthorizationService(fx.dir, testLogger())
	perms, err := eval.EffectivePermissions(context.Background(), id)
	require.NoError(t, err)
	require.True(t, perms.Has(domain.PermRecordMeasurement))

	require.NoError(t, fx.svc.Deactivate(context.Background(), id))

	p, err := fx.principals.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInactive, p.Status)

	perms, err = eval.EffectivePermissions(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, perms, "inactive principal resolves no permissions despite intact edges")
}

func TestDeactivateUnknownID(t *testing.T) {
	fx := newSyncFixture()

	err := fx.svc.Deactivate(context.Background(), "nope")
	assert.True(t, errors.As(err, new(*domain.NotFoundError)))
}

func TestAuthenticate(t *testing.T) {
	fx := newSyncFixture()
	id, err := fx.svc.RegisterPrincipal(context.Background(), registerReq())
	require.NoError(t, err)
	fx.dir.SeedRole("operator", domain.PermRecordMeasurement)
	require.NoError(t, fx.dir.AssignRole(context.Background(), id, "operator"))

	t.Run("valid credentials", func(t *testing.T) {
		p, perms, err := fx.svc.Authenticate(context.Background(), "ana@example.com", "s3cret")
		require.NoError(t, err)
		assert.Equal(t, id, p.ID)
		assert.True(t, perms.Has(domain.PermRecordMeasurement))
	})

	t.Run("wrong credential", func(t *testing.T) {
		_, _, err := fx.svc.Authenticate(context.Background(), "ana@example.com", "wrong")
		assert.True(t, errors.As(err, new(*domain.AuthorizationError)))
	})

	t.Run("unknown email", func(t *testing.T) {
		_, _, err := fx.svc.Authenticate(context.Background(), "ghost@example.com", "s3cret")
		assert.True(t, errors.As(err, new(*domain.AuthorizationError)))
	})

	t.Run("inactive principal", func(t *testing.T) {
		require.NoError(t, fx.svc.Deactivate(context.Background(), id))
		_, _, err := fx.svc.Authenticate(context.Background(), "ana@example.com", "s3cret")
		assert.True(t, errors.As(err, new(*domain.AuthorizationError)))
	})
}

func TestRegisterSensor(t *testing.T) {
	fx := newSyncFixture()
	ownerID, err := fx.svc.RegisterPrincipal(context.Background(), registerReq())
	require.NoError(t, err)

	id, err := fx.svc.RegisterSensor(context.Background(), ownerID, RegisterSensorRequest{
		Name:    "Rooftop North",
		Type:    "combined",
		City:    "Buenos Aires",
		Country: "Argentina",
	})
	require.NoError(t, err)

	s, err := fx.sensors.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, ownerID, s.OwnerID)
	assert.Contains(t, s.Code, "SENSOR_BUENOS_AIRES_")
}

func TestRegisterSensorRequiresActiveOwner(t *testing.T) {
	fx := newSyncFixture()

	_, err := fx.svc.RegisterSensor(context.Background(), "ghost", RegisterSensorRequest{
		Name: "Rooftop", City: "Buenos Aires", Country: "Argentina",
	})
	assert.True(t, errors.As(err, new(*domain.AuthorizationError)))
	assert.Empty(t, fx.sensors.Sensors)
}
