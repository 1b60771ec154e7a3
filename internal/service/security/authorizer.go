package security

import (
	"context"

	"sensorgrid/internal/domain"
)

// Authorization modes selectable via configuration. Both modes share the
// domain.Authorizer interface so ingestion call sites stay single-path.
const (
	ModeStrict  = "strict"
	ModeRelaxed = "relaxed"
)

// StrictAuthorizer requires the record-measurement permission scoped to the
// reading's city.
type StrictAuthorizer struct {
	eval domain.AuthorizationEvaluator
}

// NewStrictAuthorizer creates the geography-scoped authorizer.
func NewStrictAuthorizer(eval domain.AuthorizationEvaluator) *StrictAuthorizer {
	return &StrictAuthorizer{eval: eval}
}

var _ domain.Authorizer = (*StrictAuthorizer)(nil)

// AuthorizeRecord checks the permission and the geographic scope.
func (a *StrictAuthorizer) AuthorizeRecord(ctx context.Context, principalID, city string) error {
	ok, err := a.eval.HasPermissionInScope(ctx, principalID, domain.PermRecordMeasurement, city)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrAuthorization("principal %s may not record measurements in %q", principalID, city)
	}
	return nil
}

// AuthorizeRead requires an active principal.
func (a *StrictAuthorizer) AuthorizeRead(ctx context.Context, principalID string) error {
	return authorizeActive(ctx, a.eval, principalID)
}

// RelaxedAuthorizer checks the record-measurement permission without
// geographic scoping.
type RelaxedAuthorizer struct {
	eval domain.AuthorizationEvaluator
}

// NewRelaxedAuthorizer creates the unscoped authorizer.
func NewRelaxedAuthorizer(eval domain.AuthorizationEvaluator) *RelaxedAuthorizer {
	return &RelaxedAuthorizer{eval: eval}
}

var _ domain.Authorizer = (*RelaxedAuthorizer)(nil)

// AuthorizeRecord checks the permission only; any covered or uncovered city
// is accepted.
func (a *RelaxedAuthorizer) AuthorizeRecord(ctx context.Context, principalID, _ string) error {
	ok, err := a.eval.HasPermission(ctx, principalID, domain.PermRecordMeasurement)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrAuthorization("principal %s may not record measurements", principalID)
	}
	return nil
}

// AuthorizeRead requires an active principal.
func (a *RelaxedAuthorizer) AuthorizeRead(ctx context.Context, principalID string) error {
	return authorizeActive(ctx, a.eval, principalID)
}

func authorizeActive(ctx context.Context, eval domain.AuthorizationEvaluator, principalID string) error {
	active, err := eval.ActivePrincipal(ctx, principalID)
	if err != nil {
		return err
	}
	if !active {
		return domain.ErrAuthorization("principal %s is unknown or inactive", principalID)
	}
	return nil
}
