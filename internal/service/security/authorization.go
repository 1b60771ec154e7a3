// Package security implements identity synchronization and authorization
// evaluation over the document and graph stores.
package security

import (
	"context"
	"errors"
	"log/slog"

	"sensorgrid/internal/domain"
)

// AuthorizationService answers permission questions against the graph store.
// It is read-only and stateless; every check re-reads the mirrored principal
// status so deactivation takes effect regardless of propagation lag.
// It implements domain.AuthorizationEvaluator.
type AuthorizationService struct {
	dir    domain.DirectoryRepository
	logger *slog.Logger
}

// NewAuthorizationService creates an AuthorizationService backed by the
// graph directory.
func NewAuthorizationService(dir domain.DirectoryRepository, logger *slog.Logger) *AuthorizationService {
	return &AuthorizationService{dir: dir, logger: logger}
}

var _ domain.AuthorizationEvaluator = (*AuthorizationService)(nil)

// EffectivePermissions returns the union of permissions reachable via direct
// grant, role, or group membership. Unknown, inactive, or edge-less
// principals yield the empty set, never an error.
func (s *AuthorizationService) EffectivePermissions(ctx context.Context, principalID string) (domain.PermissionSet, error) {
	ids, err := s.dir.EffectivePermissions(ctx, principalID)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("effective permissions resolved", "principal", principalID, "count", len(ids))
	return domain.NewPermissionSet(ids...), nil
}

// HasPermission is a direct existence check in the graph, not a
// materialize-then-contains call.
func (s *AuthorizationService) HasPermission(ctx context.Context, principalID, permissionID string) (bool, error) {
	return s.dir.HasPermission(ctx, principalID, permissionID)
}

// HasPermissionInScope requires the permission and geographic coverage of
// the city: a COVERS_CITY edge to it, or COVERS_COUNTRY to its country.
func (s *AuthorizationService) HasPermissionInScope(ctx context.Context, principalID, permissionID, cityName string) (bool, error) {
	ok, err := s.dir.HasPermission(ctx, principalID, permissionID)
	if err != nil || !ok {
		return false, err
	}
	return s.dir.CoversCity(ctx, principalID, cityName)
}

// ActivePrincipal reports whether the principal's mirror exists and is
// active. A missing mirror means no permissions, not an error.
func (s *AuthorizationService) ActivePrincipal(ctx context.Context, principalID string) (bool, error) {
	status, err := s.dir.MirrorStatus(ctx, principalID)
	if err != nil {
		var notFound *domain.NotFoundError
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, err
	}
	return status == domain.StatusActive, nil
}
