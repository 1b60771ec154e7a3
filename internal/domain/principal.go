package domain

import (
	"strings"
	"time"
)

// Principal status values. The document store owns the authoritative status;
// the graph mirror carries a copy that every traversal re-checks.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// Principal is an authenticated actor. The document store is the source of
// truth; a minimal projection is mirrored into the graph store.
type Principal struct {
	ID             string
	Name           string
	Email          string
	CredentialHash string
	Status         string // "active" or "inactive"
	OrgUnit        string
	RegisteredAt   time.Time
	UpdatedAt      time.Time
}

// Active reports whether the principal may act.
func (p *Principal) Active() bool { return p.Status == StatusActive }

// PrincipalMirror is the projection of a Principal kept in the graph store
// for join performance. It must never contain an id absent from the document
// store.
type PrincipalMirror struct {
	ID      string
	Email   string
	Name    string
	Status  string
	OrgUnit string
}

// Mirror returns the graph projection of the principal.
func (p *Principal) Mirror() PrincipalMirror {
	return PrincipalMirror{
		ID:      p.ID,
		Email:   p.Email,
		Name:    p.Name,
		Status:  p.Status,
		OrgUnit: p.OrgUnit,
	}
}

// RegisterPrincipalRequest holds parameters for registering a new principal.
type RegisterPrincipalRequest struct {
	Name       string
	Email      string
	Credential string
	OrgUnit    string
}

// Validate checks that the request is well-formed.
func (r *RegisterPrincipalRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return ErrValidation("principal name is required")
	}
	if !strings.Contains(r.Email, "@") {
		return ErrValidation("a valid email is required")
	}
	if r.Credential == "" {
		return ErrValidation("credential is required")
	}
	return nil
}

// UpdatePrincipalRequest holds the mutable principal fields. Zero-value
// fields are left unchanged.
type UpdatePrincipalRequest struct {
	Name    string
	Email   string
	OrgUnit string
}

// Validate checks that the request changes at least one field.
func (r *UpdatePrincipalRequest) Validate() error {
	if r.Name == "" && r.Email == "" && r.OrgUnit == "" {
		return ErrValidation("no fields to update")
	}
	if r.Email != "" && !strings.Contains(r.Email, "@") {
		return ErrValidation("a valid email is required")
	}
	return nil
}

// Sensor is a measurement device registered in the document store and
// mirrored into the graph topology via an IN_CITY edge.
type Sensor struct {
	ID          string
	Name        string
	Code        string
	Type        string
	City        string
	Country     string
	Status      string
	OwnerID     string
	InstalledAt time.Time
}
