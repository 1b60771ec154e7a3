// Package graphstore implements the graph-store access interfaces on top of
// the Neo4j driver. It owns every Cypher statement in the system.
package graphstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"sensorgrid/internal/domain"
)

// DirectoryRepo implements domain.DirectoryRepository against a Neo4j driver.
// Sessions are opened per call; the driver pools connections underneath.
type DirectoryRepo struct {
	driver neo4j.DriverWithContext
}

// NewDirectoryRepo creates a DirectoryRepo on an injected driver handle.
func NewDirectoryRepo(driver neo4j.DriverWithContext) *DirectoryRepo {
	return &DirectoryRepo{driver: driver}
}

var _ domain.DirectoryRepository = (*DirectoryRepo)(nil)

// grantPattern builds the traversal fragment shared by every grant query.
// The *0..1 hop makes direct CAN_EXECUTE edges part of the same pattern:
// with zero indirection hops the intermediate node is the principal itself.
func grantPattern(edges []string) string {
	return fmt.Sprintf("-[:%s*0..1]->()-[:%s]->", strings.Join(edges, "|"), domain.EdgeCanExecute)
}

// UpsertMirror creates or updates the principal projection node. MERGE keyed
// on id makes the operation idempotent.
func (r *DirectoryRepo) UpsertMirror(ctx context.Context, m domain.PrincipalMirror) error {
	query := `
		MERGE (p:Principal {id: $id})
		SET p.email = $email,
		    p.name = $name,
		    p.status = $status,
		    p.orgUnit = $orgUnit,
		    p.updatedAt = datetime()
		RETURN p.id AS id`
	_, err := r.writeSingle(ctx, query, map[string]any{
		"id":      m.ID,
		"email":   m.Email,
		"name":    m.Name,
		"status":  m.Status,
		"orgUnit": m.OrgUnit,
	})
	if err != nil {
		return domain.ErrStorage(err, "upsert principal mirror %s", m.ID)
	}
	return nil
}

// MirrorStatus returns the mirrored status for a principal id.
func (r *DirectoryRepo) MirrorStatus(ctx context.Context, principalID string) (string, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	status, err := neo4j.ExecuteRead(ctx, session, func(tx neo4j.ManagedTransaction) (string, error) {
		res, err := tx.Run(ctx, `MATCH (p:Principal {id: $id}) RETURN p.status AS status`,
			map[string]any{"id": principalID})
		if err != nil {
			return "", err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return "", err
		}
		if len(records) == 0 {
			return "", domain.ErrNotFound("principal %s has no mirror node", principalID)
		}
		s, _ := records[0].Get("status")
		status, _ := s.(string)
		return status, nil
	})
	if err != nil {
		var notFound *domain.NotFoundError
		if errors.As(err, &notFound) {
			return "", err
		}
		return "", domain.ErrStorage(err, "read mirror status for %s", principalID)
	}
	return status, nil
}

// EffectivePermissions traverses role, group, and direct grants in one query.
// Inactive or unknown principals simply match nothing.
func (r *DirectoryRepo) EffectivePermissions(ctx context.Context, principalID string) ([]string, error) {
	query := fmt.Sprintf(`
		MATCH (u:Principal {id: $id})%s(perm:Permission)
		WHERE u.status = $active
		RETURN DISTINCT perm.id AS id`, grantPattern(domain.GrantEdges))

	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	ids, err := neo4j.ExecuteRead(ctx, session, func(tx neo4j.ManagedTransaction) ([]string, error) {
		res, err := tx.Run(ctx, query, map[string]any{
			"id":     principalID,
			"active": domain.StatusActive,
		})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		ids := make([]string, 0, len(records))
		for _, rec := range records {
			v, _ := rec.Get("id")
			if id, ok := v.(string); ok {
				ids = append(ids, id)
			}
		}
		return ids, nil
	})
	if err != nil {
		return nil, domain.ErrStorage(err, "traverse grants for %s", principalID)
	}
	return ids, nil
}

// HasPermission is a direct existence check over the same grant pattern.
func (r *DirectoryRepo) HasPermission(ctx context.Context, principalID, permissionID string) (bool, error) {
	query := fmt.Sprintf(`
		MATCH (u:Principal {id: $id})%s(perm:Permission {id: $permID})
		WHERE u.status = $active
		RETURN count(perm) > 0 AS allowed`, grantPattern(domain.GrantEdges))

	allowed, err := r.readBool(ctx, query, map[string]any{
		"id":     principalID,
		"permID": permissionID,
		"active": domain.StatusActive,
	}, "allowed")
	if err != nil {
		return false, domain.ErrStorage(err, "check permission %s for %s", permissionID, principalID)
	}
	return allowed, nil
}

// CoversCity checks geographic scope: a COVERS_CITY edge to the city itself,
// or a COVERS_COUNTRY edge to the country containing it. Country coverage
// implies every city in that country; the converse does not hold.
func (r *DirectoryRepo) CoversCity(ctx context.Context, principalID, cityName string) (bool, error) {
	query := `
		MATCH (u:Principal {id: $id})
		WHERE u.status = $active
		OPTIONAL MATCH (u)-[:COVERS_CITY]->(c:City {name: $city})
		OPTIONAL MATCH (u)-[:COVERS_COUNTRY]->(:Country)<-[:IN_COUNTRY]-(c2:City {name: $city})
		RETURN count(c) + count(c2) > 0 AS covered`

	covered, err := r.readBool(ctx, query, map[string]any{
		"id":     principalID,
		"city":   cityName,
		"active": domain.StatusActive,
	}, "covered")
	if err != nil {
		return false, domain.ErrStorage(err, "check coverage of %s for %s", cityName, principalID)
	}
	return covered, nil
}

// AssignRole creates a HAS_ROLE edge. Both endpoints must already exist.
func (r *DirectoryRepo) AssignRole(ctx context.Context, principalID, roleID string) error {
	return r.mergeEdge(ctx, `
		MATCH (u:Principal {id: $from}), (t:Role {id: $to})
		MERGE (u)-[:HAS_ROLE]->(t)
		RETURN count(*) AS n`, principalID, roleID)
}

// AddToGroup creates a MEMBER_OF edge.
func (r *DirectoryRepo) AddToGroup(ctx context.Context, principalID, groupID string) error {
	return r.mergeEdge(ctx, `
		MATCH (u:Principal {id: $from}), (t:Group {id: $to})
		MERGE (u)-[:MEMBER_OF]->(t)
		RETURN count(*) AS n`, principalID, groupID)
}

// GrantPermission creates a direct CAN_EXECUTE edge on the principal,
// independent of any role or group grant of the same permission.
func (r *DirectoryRepo) GrantPermission(ctx context.Context, principalID, permissionID string) error {
	return r.mergeEdge(ctx, `
		MATCH (u:Principal {id: $from}), (t:Permission {id: $to})
		MERGE (u)-[:CAN_EXECUTE]->(t)
		RETURN count(*) AS n`, principalID, permissionID)
}

// AssignCityCoverage creates a COVERS_CITY edge, keyed by city name.
func (r *DirectoryRepo) AssignCityCoverage(ctx context.Context, principalID, cityName string) error {
	return r.mergeEdge(ctx, `
		MATCH (u:Principal {id: $from}), (t:City {name: $to})
		MERGE (u)-[:COVERS_CITY]->(t)
		RETURN count(*) AS n`, principalID, cityName)
}

// AssignCountryCoverage creates a COVERS_COUNTRY edge, keyed by country name.
func (r *DirectoryRepo) AssignCountryCoverage(ctx context.Context, principalID, countryName string) error {
	return r.mergeEdge(ctx, `
		MATCH (u:Principal {id: $from}), (t:Country {name: $to})
		MERGE (u)-[:COVERS_COUNTRY]->(t)
		RETURN count(*) AS n`, principalID, countryName)
}

// UpsertSensorTopology mirrors a sensor node and links it to its city.
func (r *DirectoryRepo) UpsertSensorTopology(ctx context.Context, sensorID, code, sensorType, cityName string) error {
	query := `
		MERGE (s:Sensor {id: $id})
		SET s.code = $code, s.type = $type, s.state = $active
		MERGE (c:City {name: $city})
		MERGE (s)-[:IN_CITY]->(c)
		RETURN s.id AS id`
	_, err := r.writeSingle(ctx, query, map[string]any{
		"id":     sensorID,
		"code":   code,
		"type":   sensorType,
		"city":   cityName,
		"active": domain.StatusActive,
	})
	if err != nil {
		return domain.ErrStorage(err, "upsert sensor topology %s", sensorID)
	}
	return nil
}

func (r *DirectoryRepo) mergeEdge(ctx context.Context, query, from, to string) error {
	n, err := r.writeCount(ctx, query, map[string]any{"from": from, "to": to})
	if err != nil {
		return domain.ErrStorage(err, "merge edge %s -> %s", from, to)
	}
	if n == 0 {
		return domain.ErrNotFound("edge endpoints %s, %s not found", from, to)
	}
	return nil
}

func (r *DirectoryRepo) writeSingle(ctx context.Context, query string, params map[string]any) (*neo4j.Record, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	return neo4j.ExecuteWrite(ctx, session, func(tx neo4j.ManagedTransaction) (*neo4j.Record, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return res.Single(ctx)
	})
}

func (r *DirectoryRepo) writeCount(ctx context.Context, query string, params map[string]any) (int64, error) {
	rec, err := r.writeSingle(ctx, query, params)
	if err != nil {
		return 0, err
	}
	v, _ := rec.Get("n")
	n, _ := v.(int64)
	return n, nil
}

func (r *DirectoryRepo) readBool(ctx context.Context, query string, params map[string]any, field string) (bool, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	return neo4j.ExecuteRead(ctx, session, func(tx neo4j.ManagedTransaction) (bool, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return false, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return false, err
		}
		if len(records) == 0 {
			return false, nil
		}
		v, _ := records[0].Get(field)
		b, _ := v.(bool)
		return b, nil
	})
}
