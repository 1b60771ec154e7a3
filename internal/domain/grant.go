package domain

// Graph edge kinds. Role, group, and direct grants share one traversal
// algorithm parameterized over GrantEdges rather than three separate queries.
const (
	EdgeHasRole       = "HAS_ROLE"
	EdgeMemberOf      = "MEMBER_OF"
	EdgeCanExecute    = "CAN_EXECUTE"
	EdgeCoversCity    = "COVERS_CITY"
	EdgeCoversCountry = "COVERS_COUNTRY"
	EdgeInCity        = "IN_CITY"
	EdgeInCountry     = "IN_COUNTRY"
)

// GrantEdges are the indirection hops a permission may be reached through.
// The zero-length hop (a direct CAN_EXECUTE edge on the principal) is part
// of the same traversal.
var GrantEdges = []string{EdgeHasRole, EdgeMemberOf}

// PermRecordMeasurement gates reading ingestion.
const PermRecordMeasurement = "record-measurement"

// PermissionSet is the effective permission set of a principal. A permission
// reachable through multiple paths appears once.
type PermissionSet map[string]bool

// NewPermissionSet builds a set from permission ids, deduplicating.
func NewPermissionSet(ids ...string) PermissionSet {
	s := make(PermissionSet, len(ids))
	for _, id := range ids {
		s[id] = true
	}
	return s
}

// Has reports membership.
func (s PermissionSet) Has(id string) bool { return s[id] }
