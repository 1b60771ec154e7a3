package security

import (
	"context"
	"log/slog"

	"sensorgrid/internal/domain"
)

// GrantService administers the grant and coverage edges in the graph store.
// All writes are idempotent merges; re-granting is a no-op.
type GrantService struct {
	dir    domain.DirectoryRepository
	logger *slog.Logger
}

// NewGrantService creates a GrantService.
func NewGrantService(dir domain.DirectoryRepository, logger *slog.Logger) *GrantService {
	return &GrantService{dir: dir, logger: logger}
}

// AssignRole attaches a HAS_ROLE edge from the principal to the role.
func (s *GrantService) AssignRole(ctx context.Context, principalID, roleID string) error {
	if err := s.dir.AssignRole(ctx, principalID, roleID); err != nil {
		return err
	}
	s.logger.Info("role assigned", "principal", principalID, "role", roleID)
	return nil
}

// AddToGroup attaches a MEMBER_OF edge from the principal to the group.
func (s *GrantService) AddToGroup(ctx context.Context, principalID, groupID string) error {
	if err := s.dir.AddToGroup(ctx, principalID, groupID); err != nil {
		return err
	}
	s.logger.Info("group membership added", "principal", principalID, "group", groupID)
	return nil
}

// GrantPermission attaches a direct CAN_EXECUTE edge to the principal.
func (s *GrantService) GrantPermission(ctx context.Context, principalID, permissionID string) error {
	if err := s.dir.GrantPermission(ctx, principalID, permissionID); err != nil {
		return err
	}
	s.logger.Info("permission granted", "principal", principalID, "permission", permissionID)
	return nil
}

// AssignCityCoverage attaches a COVERS_CITY edge to the principal.
func (s *GrantService) AssignCityCoverage(ctx context.Context, principalID, cityName string) error {
	if err := s.dir.AssignCityCoverage(ctx, principalID, cityName); err != nil {
		return err
	}
	s.logger.Info("city coverage assigned", "principal", principalID, "city", cityName)
	return nil
}

// AssignCountryCoverage attaches a COVERS_COUNTRY edge to the principal.
// Country coverage implies coverage of every city with an IN_COUNTRY edge.
func (s *GrantService) AssignCountryCoverage(ctx context.Context, principalID, countryName string) error {
	if err := s.dir.AssignCountryCoverage(ctx, principalID, countryName); err != nil {
		return err
	}
	s.logger.Info("country coverage assigned", "principal", principalID, "country", countryName)
	return nil
}
