package mongostore

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"sensorgrid/internal/domain"
)

const sensorCollection = "sensors"

type sensorDoc struct {
	ID          string    `bson:"_id"`
	Name        string    `bson:"name"`
	Code        string    `bson:"code"`
	Type        string    `bson:"type"`
	City        string    `bson:"city"`
	Country     string    `bson:"country"`
	Status      string    `bson:"status"`
	OwnerID     string    `bson:"ownerId"`
	InstalledAt time.Time `bson:"installedAt"`
}

// SensorRepo implements domain.SensorRepository.
type SensorRepo struct {
	col *mongo.Collection
}

// NewSensorRepo creates a SensorRepo on an injected database handle.
func NewSensorRepo(db *mongo.Database) *SensorRepo {
	return &SensorRepo{col: db.Collection(sensorCollection)}
}

var _ domain.SensorRepository = (*SensorRepo)(nil)

// Create inserts a new sensor record.
func (r *SensorRepo) Create(ctx context.Context, s *domain.Sensor) error {
	s.InstalledAt = time.Now().UTC()
	doc := sensorDoc{
		ID:          s.ID,
		Name:        s.Name,
		Code:        s.Code,
		Type:        s.Type,
		City:        s.City,
		Country:     s.Country,
		Status:      s.Status,
		OwnerID:     s.OwnerID,
		InstalledAt: s.InstalledAt,
	}
	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrDuplicate("sensor %s already exists", s.ID)
		}
		return domain.ErrStorage(err, "insert sensor %s", s.ID)
	}
	return nil
}

// GetByID returns the sensor with the given id.
func (r *SensorRepo) GetByID(ctx context.Context, id string) (*domain.Sensor, error) {
	var doc sensorDoc
	err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound("sensor %s not found", id)
		}
		return nil, domain.ErrStorage(err, "find sensor %s", id)
	}
	return &domain.Sensor{
		ID:          doc.ID,
		Name:        doc.Name,
		Code:        doc.Code,
		Type:        doc.Type,
		City:        doc.City,
		Country:     doc.Country,
		Status:      doc.Status,
		OwnerID:     doc.OwnerID,
		InstalledAt: doc.InstalledAt,
	}, nil
}
