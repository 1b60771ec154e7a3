// Package mongostore implements the document-store access interfaces on top
// of the official MongoDB driver. The document store is the source of truth
// for principal and sensor identity.
package mongostore

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"sensorgrid/internal/domain"
)

const principalCollection = "principals"

// principalDoc is the persisted shape of a Principal.
type principalDoc struct {
	ID             string    `bson:"_id"`
	Name           string    `bson:"name"`
	Email          string    `bson:"email"`
	CredentialHash string    `bson:"credentialHash"`
	Status         string    `bson:"status"`
	OrgUnit        string    `bson:"orgUnit,omitempty"`
	RegisteredAt   time.Time `bson:"registeredAt"`
	UpdatedAt      time.Time `bson:"updatedAt"`
}

// PrincipalRepo implements domain.PrincipalRepository.
type PrincipalRepo struct {
	col *mongo.Collection
}

// NewPrincipalRepo creates a PrincipalRepo on an injected database handle.
// The collection carries a unique index on email, created at bootstrap.
func NewPrincipalRepo(db *mongo.Database) *PrincipalRepo {
	return &PrincipalRepo{col: db.Collection(principalCollection)}
}

var _ domain.PrincipalRepository = (*PrincipalRepo)(nil)

// Create inserts a new principal record.
func (r *PrincipalRepo) Create(ctx context.Context, p *domain.Principal) error {
	now := time.Now().UTC()
	p.RegisteredAt = now
	p.UpdatedAt = now

	_, err := r.col.InsertOne(ctx, toDoc(p))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrDuplicate("email %q is already registered", p.Email)
		}
		return domain.ErrStorage(err, "insert principal %s", p.ID)
	}
	return nil
}

// GetByID returns the principal with the given id.
func (r *PrincipalRepo) GetByID(ctx context.Context, id string) (*domain.Principal, error) {
	return r.findOne(ctx, bson.M{"_id": id}, "principal %s not found", id)
}

// GetByEmail returns the principal with the given email (exact match).
func (r *PrincipalRepo) GetByEmail(ctx context.Context, email string) (*domain.Principal, error) {
	return r.findOne(ctx, bson.M{"email": email}, "principal with email %q not found", email)
}

// Update applies the non-empty fields and bumps updatedAt.
func (r *PrincipalRepo) Update(ctx context.Context, id string, fields domain.UpdatePrincipalRequest) (bool, error) {
	set := bson.M{"updatedAt": time.Now().UTC()}
	if fields.Name != "" {
		set["name"] = fields.Name
	}
	if fields.Email != "" {
		set["email"] = fields.Email
	}
	if fields.OrgUnit != "" {
		set["orgUnit"] = fields.OrgUnit
	}

	res, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, domain.ErrDuplicate("email %q is already registered", fields.Email)
		}
		return false, domain.ErrStorage(err, "update principal %s", id)
	}
	return res.MatchedCount > 0, nil
}

// SetStatus updates only the status field.
func (r *PrincipalRepo) SetStatus(ctx context.Context, id, status string) (bool, error) {
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": id},
		bson.M{"$set": bson.M{"status": status, "updatedAt": time.Now().UTC()}})
	if err != nil {
		return false, domain.ErrStorage(err, "set status of principal %s", id)
	}
	return res.MatchedCount > 0, nil
}

// Delete removes the record permanently. Deleting an absent id succeeds, so
// the registration saga can compensate idempotently.
func (r *PrincipalRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.col.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return domain.ErrStorage(err, "delete principal %s", id)
	}
	return nil
}

func (r *PrincipalRepo) findOne(ctx context.Context, filter bson.M, notFoundFormat string, args ...interface{}) (*domain.Principal, error) {
	var doc principalDoc
	err := r.col.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound(notFoundFormat, args...)
		}
		return nil, domain.ErrStorage(err, "find principal")
	}
	return fromDoc(&doc), nil
}

func toDoc(p *domain.Principal) *principalDoc {
	return &principalDoc{
		ID:             p.ID,
		Name:           p.Name,
		Email:          p.Email,
		CredentialHash: p.CredentialHash,
		Status:         p.Status,
		OrgUnit:        p.OrgUnit,
		RegisteredAt:   p.RegisteredAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

func fromDoc(d *principalDoc) *domain.Principal {
	return &domain.Principal{
		ID:             d.ID,
		Name:           d.Name,
		Email:          d.Email,
		CredentialHash: d.CredentialHash,
		Status:         d.Status,
		OrgUnit:        d.OrgUnit,
		RegisteredAt:   d.RegisteredAt,
		UpdatedAt:      d.UpdatedAt,
	}
}
