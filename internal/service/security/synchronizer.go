package security

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"sensorgrid/internal/domain"
)

// SynchronizerService keeps principal identity consistent across the
// document store (source of truth) and the graph mirror. The two stores
// share no transaction; registration uses a forward action plus an explicit
// compensating delete, while updates propagate at-least-once.
type SynchronizerService struct {
	principals domain.PrincipalRepository
	sensors    domain.SensorRepository
	dir        domain.DirectoryRepository
	eval       domain.AuthorizationEvaluator
	logger     *slog.Logger
}

// NewSynchronizerService creates a SynchronizerService.
func NewSynchronizerService(
	principals domain.PrincipalRepository,
	sensors domain.SensorRepository,
	dir domain.DirectoryRepository,
	eval domain.AuthorizationEvaluator,
	logger *slog.Logger,
) *SynchronizerService {
	return &SynchronizerService{
		principals: principals,
		sensors:    sensors,
		dir:        dir,
		eval:       eval,
		logger:     logger,
	}
}

// RegisterPrincipal creates the principal in the document store and mirrors
// the identity projection into the graph. The mirror is not transactional
// with the create: on mirror failure the document-store record is deleted
// again and the call fails with SyncError. If that compensating delete also
// fails, the distinguished RollbackError surfaces the orphaned record.
func (s *SynchronizerService) RegisterPrincipal(ctx context.Context, req domain.RegisterPrincipalRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	if _, err := s.principals.GetByEmail(ctx, req.Email); err == nil {
		return "", domain.ErrDuplicate("email %q is already registered", req.Email)
	} else {
		var notFound *domain.NotFoundError
		if !errors.As(err, &notFound) {
			return "", err
		}
	}

	p := &domain.Principal{
		ID:             domain.NewID(),
		Name:           req.Name,
		Email:          req.Email,
		CredentialHash: HashCredential(req.Credential),
		Status:         domain.StatusActive,
		OrgUnit:        req.OrgUnit,
	}

	if err := s.principals.Create(ctx, p); err != nil {
		return "", err
	}

	if err := s.dir.UpsertMirror(ctx, p.Mirror()); err != nil {
		// Compensate: the graph mirror must never be the only trace of a
		// principal, and the document store must not keep an unmirrored one.
		if delErr := s.principals.Delete(ctx, p.ID); delErr != nil {
			return "", &domain.RollbackError{PrincipalID: p.ID, SyncCause: err, DeleteCause: delErr}
		}
		return "", domain.ErrSync(err, "mirror of principal %s failed, registration rolled back", p.ID)
	}

	s.logger.Info("principal registered", "principal", p.ID, "email", p.Email)
	return p.ID, nil
}

// UpdatePrincipal updates the document store, then re-mirrors the changed
// fields. Unlike registration there is no rollback on mirror failure: the
// document store already holds the truth and the mirror converges on the
// next successful sync (at-least-once propagation).
func (s *SynchronizerService) UpdatePrincipal(ctx context.Context, id string, fields domain.UpdatePrincipalRequest) (bool, error) {
	if err := fields.Validate(); err != nil {
		return false, err
	}

	current, err := s.principals.GetByID(ctx, id)
	if err != nil {
		var notFound *domain.NotFoundError
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, err
	}

	if fields.Email != "" && fields.Email != current.Email {
		if _, err := s.principals.GetByEmail(ctx, fields.Email); err == nil {
			return false, domain.ErrDuplicate("email %q is already registered", fields.Email)
		}
	}

	updated, err := s.principals.Update(ctx, id, fields)
	if err != nil || !updated {
		return false, err
	}

	mirror := current.Mirror()
	if fields.Name != "" {
		mirror.Name = fields.Name
	}
	if fields.Email != "" {
		mirror.Email = fields.Email
	}
	if fields.OrgUnit != "" {
		mirror.OrgUnit = fields.OrgUnit
	}
	if err := s.dir.UpsertMirror(ctx, mirror); err != nil {
		s.logger.Warn("mirror of principal update failed, will converge on next sync",
			"principal", id, "error", err)
	}
	return true, nil
}

// Deactivate sets status=inactive in the document store and mirrors it.
// Every evaluator traversal filters on the mirrored status, so a principal
// stops resolving permissions as soon as the mirror converges.
func (s *SynchronizerService) Deactivate(ctx context.Context, id string) error {
	matched, err := s.principals.SetStatus(ctx, id, domain.StatusInactive)
	if err != nil {
		return err
	}
	if !matched {
		return domain.ErrNotFound("principal %s not found", id)
	}

	current, err := s.principals.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.dir.UpsertMirror(ctx, current.Mirror()); err != nil {
		s.logger.Warn("mirror of principal deactivation failed, will converge on next sync",
			"principal", id, "error", err)
	}
	s.logger.Info("principal deactivated", "principal", id)
	return nil
}

// Authenticate verifies credentials against the document store and returns
// the principal together with its effective permission set.
func (s *SynchronizerService) Authenticate(ctx context.Context, email, credential string) (*domain.Principal, domain.PermissionSet, error) {
	p, err := s.principals.GetByEmail(ctx, email)
	if err != nil {
		var notFound *domain.NotFoundError
		if errors.As(err, &notFound) {
			return nil, nil, domain.ErrAuthorization("invalid credentials")
		}
		return nil, nil, err
	}
	if !p.Active() {
		return nil, nil, domain.ErrAuthorization("invalid credentials")
	}
	if HashCredential(credential) != p.CredentialHash {
		return nil, nil, domain.ErrAuthorization("invalid credentials")
	}

	perms, err := s.eval.EffectivePermissions(ctx, p.ID)
	if err != nil {
		return nil, nil, err
	}
	return p, perms, nil
}

// RegisterSensorRequest holds parameters for registering a sensor.
type RegisterSensorRequest struct {
	Name    string
	Type    string
	City    string
	Country string
}

// Validate checks that the request is well-formed.
func (r *RegisterSensorRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return domain.ErrValidation("sensor name is required")
	}
	if strings.TrimSpace(r.City) == "" || strings.TrimSpace(r.Country) == "" {
		return domain.ErrValidation("sensor city and country are required")
	}
	return nil
}

// RegisterSensor creates a sensor in the document store and mirrors its city
// topology into the graph. The topology mirror is best-effort, like updates.
func (s *SynchronizerService) RegisterSensor(ctx context.Context, ownerID string, req RegisterSensorRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	active, err := s.eval.ActivePrincipal(ctx, ownerID)
	if err != nil {
		return "", err
	}
	if !active {
		return "", domain.ErrAuthorization("principal %s is unknown or inactive", ownerID)
	}

	sensor := &domain.Sensor{
		ID:      domain.NewID(),
		Name:    req.Name,
		Code:    sensorCode(req.City),
		Type:    req.Type,
		City:    req.City,
		Country: req.Country,
		Status:  domain.StatusActive,
		OwnerID: ownerID,
	}
	if err := s.sensors.Create(ctx, sensor); err != nil {
		return "", err
	}

	if err := s.dir.UpsertSensorTopology(ctx, sensor.ID, sensor.Code, sensor.Type, sensor.City); err != nil {
		s.logger.Warn("mirror of sensor topology failed, will converge on next sync",
			"sensor", sensor.ID, "error", err)
	}

	s.logger.Info("sensor registered", "sensor", sensor.ID, "city", sensor.City)
	return sensor.ID, nil
}

// HashCredential returns the hex SHA-256 digest of a credential.
func HashCredential(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return hex.EncodeToString(sum[:])
}

func sensorCode(city string) string {
	c := strings.ToUpper(strings.ReplaceAll(city, " ", "_"))
	return fmt.Sprintf("SENSOR_%s_%04d", c, time.Now().UnixMilli()%10000)
}
