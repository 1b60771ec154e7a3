// Package testutil provides shared in-memory implementations of domain
// interfaces for use in tests across the codebase. This follows the Go
// convention of a shared test utility package (like net/http/httptest).
package testutil

import (
	"context"
	"sort"
	"time"

	"sensorgrid/internal/domain"
)

// === Principal Repository Mock ===

// MemPrincipalRepo implements domain.PrincipalRepository over a map. Fn
// fields, when set, replace the default behavior of the matching method.
type MemPrincipalRepo struct {
	CreateFn func(ctx context.Context, p *domain.Principal) error
	DeleteFn func(ctx context.Context, id string) error

	Principals map[string]*domain.Principal
}

// NewMemPrincipalRepo creates an empty in-memory principal repository.
func NewMemPrincipalRepo() *MemPrincipalRepo {
	return &MemPrincipalRepo{Principals: make(map[string]*domain.Principal)}
}

var _ domain.PrincipalRepository = (*MemPrincipalRepo)(nil)

// Create implements the interface method for testing.
func (m *MemPrincipalRepo) Create(ctx context.Context, p *domain.Principal) error {
	if m.CreateFn != nil {
		if err := m.CreateFn(ctx, p); err != nil {
			return err
		}
	}
	if _, ok := m.Principals[p.ID]; ok {
		return domain.ErrDuplicate("principal %s already exists", p.ID)
	}
	for _, existing := range m.Principals {
		if existing.Email == p.Email {
			return domain.ErrDuplicate("email %q is already registered", p.Email)
		}
	}
	p.RegisteredAt = time.Now().UTC()
	p.UpdatedAt = p.RegisteredAt
	cp := *p
	m.Principals[p.ID] = &cp
	return nil
}

// GetByID implements the interface method for testing.
func (m *MemPrincipalRepo) GetByID(_ context.Context, id string) (*domain.Principal, error) {
	p, ok := m.Principals[id]
	if !ok {
		return nil, domain.ErrNotFound("principal %s not found", id)
	}
	cp := *p
	return &cp, nil
}

// GetByEmail implements the interface method for testing.
func (m *MemPrincipalRepo) GetByEmail(_ context.Context, email string) (*domain.Principal, error) {
	for _, p := range m.Principals {
		if p.Email == email {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound("principal with email %q not found", email)
}

// Update implements the interface method for testing.
func (m *MemPrincipalRepo) Update(_ context.Context, id string, fields domain.UpdatePrincipalRequest) (bool, error) {
	p, ok := m.Principals[id]
	if !ok {
		return false, nil
	}
	if fields.Name != "" {
		p.Name = fields.Name
	}
	if fields.Email != "" {
		p.Email = fields.Email
	}
	if fields.OrgUnit != "" {
		p.OrgUnit = fields.OrgUnit
	}
	p.UpdatedAt = time.Now().UTC()
	return true, nil
}

// SetStatus implements the interface method for testing.
func (m *MemPrincipalRepo) SetStatus(_ context.Context, id, status string) (bool, error) {
	p, ok := m.Principals[id]
	if !ok {
		return false, nil
	}
	p.Status = status
	p.UpdatedAt = time.Now().UTC()
	return true, nil
}

// Delete implements the interface method for testing.
func (m *MemPrincipalRepo) Delete(ctx context.Context, id string) error {
	if m.DeleteFn != nil {
		return m.DeleteFn(ctx, id)
	}
	delete(m.Principals, id)
	return nil
}

// === Sensor Repository Mock ===

// MemSensorRepo implements domain.SensorRepository over a map.
type MemSensorRepo struct {
	Sensors map[string]*domain.Sensor
}

// NewMemSensorRepo creates an empty in-memory sensor repository.
func NewMemSensorRepo() *MemSensorRepo {
	return &MemSensorRepo{Sensors: make(map[string]*domain.Sensor)}
}

var _ domain.SensorRepository = (*MemSensorRepo)(nil)

// Create implements the interface method for testing.
func (m *MemSensorRepo) Create(_ context.Context, s *domain.Sensor) error {
	if _, ok := m.Sensors[s.ID]; ok {
		return domain.ErrDuplicate("sensor %s already exists", s.ID)
	}
	s.InstalledAt = time.Now().UTC()
	cp := *s
	m.Sensors[s.ID] = &cp
	return nil
}

// GetByID implements the interface method for testing.
func (m *MemSensorRepo) GetByID(_ context.Context, id string) (*domain.Sensor, error) {
	s, ok := m.Sensors[id]
	if !ok {
		return nil, domain.ErrNotFound("sensor %s not found", id)
	}
	cp := *s
	return &cp, nil
}

// === Directory Repository Mock ===

type stringSet map[string]struct{}

func (s stringSet) add(v string)      { s[v] = struct{}{} }
func (s stringSet) has(v string) bool { _, ok := s[v]; return ok }

// MemDirectory implements domain.DirectoryRepository with the same edge
// semantics as the graph adapter: grants reach permissions directly or
// through one role/group hop, and every traversal requires an active mirror.
type MemDirectory struct {
	UpsertMirrorFn func(ctx context.Context, m domain.PrincipalMirror) error

	Mirrors map[string]domain.PrincipalMirror

	roles        stringSet // known role ids
	groups       stringSet // known group ids
	permissions  stringSet // known permission ids
	cities       stringSet
	countries    stringSet
	cityCountry  map[string]string // city -> country (IN_COUNTRY)
	hasRole      map[string]stringSet
	memberOf     map[string]stringSet
	rolePerms    map[string]stringSet
	groupPerms   map[string]stringSet
	directPerms  map[string]stringSet
	cityCover    map[string]stringSet
	countryCover map[string]stringSet
}

// NewMemDirectory creates an empty in-memory directory.
func NewMemDirectory() *MemDirectory {
	return &MemDirectory{
		Mirrors:      make(map[string]domain.PrincipalMirror),
		roles:        make(stringSet),
		groups:       make(stringSet),
		permissions:  make(stringSet),
		cities:       make(stringSet),
		countries:    make(stringSet),
		cityCountry:  make(map[string]string),
		hasRole:      make(map[string]stringSet),
		memberOf:     make(map[string]stringSet),
		rolePerms:    make(map[string]stringSet),
		groupPerms:   make(map[string]stringSet),
		directPerms:  make(map[string]stringSet),
		cityCover:    make(map[string]stringSet),
		countryCover: make(map[string]stringSet),
	}
}

var _ domain.DirectoryRepository = (*MemDirectory)(nil)

// SeedPermission registers a permission node.
func (m *MemDirectory) SeedPermission(id string) { m.permissions.add(id) }

// SeedRole registers a role node granting the given permissions.
func (m *MemDirectory) SeedRole(id string, perms ...string) {
	m.roles.add(id)
	set := make(stringSet)
	for _, p := range perms {
		m.permissions.add(p)
		set.add(p)
	}
	m.rolePerms[id] = set
}

// SeedGroup registers a group node granting the given permissions.
func (m *MemDirectory) SeedGroup(id string, perms ...string) {
	m.groups.add(id)
	set := make(stringSet)
	for _, p := range perms {
		m.permissions.add(p)
		set.add(p)
	}
	m.groupPerms[id] = set
}

// SeedCity registers a city node with an IN_COUNTRY edge.
func (m *MemDirectory) SeedCity(city, country string) {
	m.cities.add(city)
	m.countries.add(country)
	m.cityCountry[city] = country
}

// UpsertMirror implements the interface method for testing.
func (m *MemDirectory) UpsertMirror(ctx context.Context, mir domain.PrincipalMirror) error {
	if m.UpsertMirrorFn != nil {
		if err := m.UpsertMirrorFn(ctx, mir); err != nil {
			return err
		}
	}
	m.Mirrors[mir.ID] = mir
	return nil
}

// MirrorStatus implements the interface method for testing.
func (m *MemDirectory) MirrorStatus(_ context.Context, principalID string) (string, error) {
	mir, ok := m.Mirrors[principalID]
	if !ok {
		return "", domain.ErrNotFound("principal %s has no mirror", principalID)
	}
	return mir.Status, nil
}

func (m *MemDirectory) active(principalID string) bool {
	mir, ok := m.Mirrors[principalID]
	return ok && mir.Status == domain.StatusActive
}

// EffectivePermissions implements the interface method for testing.
func (m *MemDirectory) EffectivePermissions(_ context.Context, principalID string) ([]string, error) {
	if !m.active(principalID) {
		return nil, nil
	}
	set := make(stringSet)
	for p := range m.directPerms[principalID] {
		set.add(p)
	}
	for role := range m.hasRole[principalID] {
		for p := range m.rolePerms[role] {
			set.add(p)
		}
	}
	for group := range m.memberOf[principalID] {
		for p := range m.groupPerms[group] {
			set.add(p)
		}
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

// HasPermission implements the interface method for testing.
func (m *MemDirectory) HasPermission(ctx context.Context, principalID, permissionID string) (bool, error) {
	perms, err := m.EffectivePermissions(ctx, principalID)
	if err != nil {
		return false, err
	}
	for _, p := range perms {
		if p == permissionID {
			return true, nil
		}
	}
	return false, nil
}

// CoversCity implements the interface method for testing.
func (m *MemDirectory) CoversCity(_ context.Context, principalID, cityName string) (bool, error) {
	if !m.active(principalID) {
		return false, nil
	}
	if m.cityCover[principalID].has(cityName) {
		return true, nil
	}
	country, ok := m.cityCountry[cityName]
	return ok && m.countryCover[principalID].has(country), nil
}

func (m *MemDirectory) attach(edges map[string]stringSet, principalID, target string, known stringSet, kind string) error {
	if _, ok := m.Mirrors[principalID]; !ok {
		return domain.ErrNotFound("principal %s has no mirror", principalID)
	}
	if !known.has(target) {
		return domain.ErrNotFound("%s %q not found", kind, target)
	}
	if edges[principalID] == nil {
		edges[principalID] = make(stringSet)
	}
	edges[principalID].add(target)
	return nil
}

// AssignRole implements the interface method for testing.
func (m *MemDirectory) AssignRole(_ context.Context, principalID, roleID string) error {
	return m.attach(m.hasRole, principalID, roleID, m.roles, "role")
}

// AddToGroup implements the interface method for testing.
func (m *MemDirectory) AddToGroup(_ context.Context, principalID, groupID string) error {
	return m.attach(m.memberOf, principalID, groupID, m.groups, "group")
}

// GrantPermission implements the interface method for testing.
func (m *MemDirectory) GrantPermission(_ context.Context, principalID, permissionID string) error {
	return m.attach(m.directPerms, principalID, permissionID, m.permissions, "permission")
}

// AssignCityCoverage implements the interface method for testing.
func (m *MemDirectory) AssignCityCoverage(_ context.Context, principalID, cityName string) error {
	return m.attach(m.cityCover, principalID, cityName, m.cities, "city")
}

// AssignCountryCoverage implements the interface method for testing.
func (m *MemDirectory) AssignCountryCoverage(_ context.Context, principalID, countryName string) error {
	return m.attach(m.countryCover, principalID, countryName, m.countries, "country")
}

// UpsertSensorTopology implements the interface method for testing.
func (m *MemDirectory) UpsertSensorTopology(_ context.Context, _, _, _, cityName string) error {
	m.cities.add(cityName)
	return nil
}

// === Reading Repository Mock ===

// MemReadings implements domain.ReadingRepository over four projection maps,
// mirroring the column-store layout. WriteFanOutFn, when set and failing,
// leaves all four projections untouched.
type MemReadings struct {
	WriteFanOutFn   func(ctx context.Context, r *domain.Reading) error
	WriteBySensorFn func(ctx context.Context, readings []domain.Reading) error

	BySensorRows  map[string][]domain.Reading
	ByCityRows    map[string][]domain.Reading
	ByCountryRows map[string][]domain.Reading
	LatestRows    map[string]domain.Reading
}

// NewMemReadings creates an empty in-memory reading store.
func NewMemReadings() *MemReadings {
	return &MemReadings{
		BySensorRows:  make(map[string][]domain.Reading),
		ByCityRows:    make(map[string][]domain.Reading),
		ByCountryRows: make(map[string][]domain.Reading),
		LatestRows:    make(map[string]domain.Reading),
	}
}

var _ domain.ReadingRepository = (*MemReadings)(nil)

// WriteFanOut implements the interface method for testing.
func (m *MemReadings) WriteFanOut(ctx context.Context, r *domain.Reading) error {
	if m.WriteFanOutFn != nil {
		if err := m.WriteFanOutFn(ctx, r); err != nil {
			return err
		}
	}
	m.BySensorRows[r.SensorID] = append(m.BySensorRows[r.SensorID], *r)
	m.ByCityRows[r.City] = append(m.ByCityRows[r.City], *r)
	m.ByCountryRows[r.Country] = append(m.ByCountryRows[r.Country], *r)
	if cur, ok := m.LatestRows[r.SensorID]; !ok || !r.Timestamp.Before(cur.Timestamp) {
		m.LatestRows[r.SensorID] = *r
	}
	return nil
}

// WriteBySensor implements the interface method for testing.
func (m *MemReadings) WriteBySensor(ctx context.Context, readings []domain.Reading) error {
	if m.WriteBySensorFn != nil {
		if err := m.WriteBySensorFn(ctx, readings); err != nil {
			return err
		}
	}
	for _, r := range readings {
		m.BySensorRows[r.SensorID] = append(m.BySensorRows[r.SensorID], r)
	}
	return nil
}

// Latest implements the interface method for testing.
func (m *MemReadings) Latest(_ context.Context, sensorID string) (*domain.Reading, error) {
	r, ok := m.LatestRows[sensorID]
	if !ok {
		return nil, domain.ErrNotFound("no reading recorded for sensor %s", sensorID)
	}
	cp := r
	return &cp, nil
}

// BySensor implements the interface method for testing.
func (m *MemReadings) BySensor(_ context.Context, sensorID string, day time.Time, limit int) ([]domain.Reading, error) {
	return filterDay(m.BySensorRows[sensorID], day, limit), nil
}

// ByCity implements the interface method for testing.
func (m *MemReadings) ByCity(_ context.Context, city string, day time.Time, limit int) ([]domain.Reading, error) {
	return filterDay(m.ByCityRows[city], day, limit), nil
}

// ByCountry implements the interface method for testing.
func (m *MemReadings) ByCountry(_ context.Context, country string, day time.Time, limit int) ([]domain.Reading, error) {
	return filterDay(m.ByCountryRows[country], day, limit), nil
}

func filterDay(rows []domain.Reading, day time.Time, limit int) []domain.Reading {
	day = day.UTC().Truncate(24 * time.Hour)
	var out []domain.Reading
	for _, r := range rows {
		if r.Day().Equal(day) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// === Authorizer Mock ===

// MockAuthorizer implements domain.Authorizer. By default every call is
// allowed.
type MockAuthorizer struct {
	AuthorizeRecordFn func(ctx context.Context, principalID, city string) error
	AuthorizeReadFn   func(ctx context.Context, principalID string) error

	RecordCalls []string // cities passed to AuthorizeRecord
}

var _ domain.Authorizer = (*MockAuthorizer)(nil)

// AuthorizeRecord implements the interface method for testing.
func (m *MockAuthorizer) AuthorizeRecord(ctx context.Context, principalID, city string) error {
	m.RecordCalls = append(m.RecordCalls, city)
	if m.AuthorizeRecordFn != nil {
		return m.AuthorizeRecordFn(ctx, principalID, city)
	}
	return nil
}

// AuthorizeRead implements the interface method for testing.
func (m *MockAuthorizer) AuthorizeRead(ctx context.Context, principalID string) error {
	if m.AuthorizeReadFn != nil {
		return m.AuthorizeReadFn(ctx, principalID)
	}
	return nil
}

// === Billing Notifier Mock ===

// MockBilling implements domain.BillingNotifier and collects notifications.
type MockBilling struct {
	NotifyFn func(ctx context.Context, ref domain.ResultRef) error
	Refs     []domain.ResultRef
}

var _ domain.BillingNotifier = (*MockBilling)(nil)

// Notify implements the interface method for testing.
func (m *MockBilling) Notify(ctx context.Context, ref domain.ResultRef) error {
	if m.NotifyFn != nil {
		if err := m.NotifyFn(ctx, ref); err != nil {
			return err
		}
	}
	m.Refs = append(m.Refs, ref)
	return nil
}
