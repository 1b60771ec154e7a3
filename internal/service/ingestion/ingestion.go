// Package ingestion implements the measurement write and read paths over the
// column-store projections.
package ingestion

import (
	"context"
	"log/slog"
	"time"

	"sensorgrid/internal/domain"
)

// IngestionService validates, authorizes, and persists readings. The
// authorization strategy is injected; the service itself never inspects
// permissions directly.
type IngestionService struct {
	readings   domain.ReadingRepository
	authorizer domain.Authorizer
	billing    domain.BillingNotifier // optional
	fanOutAll  bool
	logger     *slog.Logger
}

// NewIngestionService creates an IngestionService. billing may be nil.
// fanOutAll switches the batch path from per-sensor-only writes to a full
// four-projection fan-out per reading.
func NewIngestionService(
	readings domain.ReadingRepository,
	authorizer domain.Authorizer,
	billing domain.BillingNotifier,
	fanOutAll bool,
	logger *slog.Logger,
) *IngestionService {
	return &IngestionService{
		readings:   readings,
		authorizer: authorizer,
		billing:    billing,
		fanOutAll:  fanOutAll,
		logger:     logger,
	}
}

// Ingest validates and authorizes a single reading, then writes it to all
// four projections atomically. A zero timestamp defaults to now.
func (s *IngestionService) Ingest(ctx context.Context, principalID string, rd *domain.Reading) error {
	if err := rd.Validate(); err != nil {
		return err
	}
	if rd.Timestamp.IsZero() {
		rd.Timestamp = time.Now().UTC()
	}

	if err := s.authorizer.AuthorizeRecord(ctx, principalID, rd.City); err != nil {
		return err
	}

	if err := s.readings.WriteFanOut(ctx, rd); err != nil {
		return err
	}
	s.logger.Debug("reading ingested", "sensor", rd.SensorID, "city", rd.City)

	s.notifyBilling(ctx, domain.ResultRef{
		Process:     "ingest",
		PrincipalID: principalID,
		SensorID:    rd.SensorID,
		At:          rd.Timestamp,
	})
	return nil
}

// IngestBatch writes many readings in one call. Invalid readings are dropped
// up front; an all-invalid batch is a ValidationError. Authorization is
// checked once per distinct city, and any denial rejects the whole batch
// before a single row is written. By default the batch lands in the
// per-sensor projection only; with fanOutAll each reading takes the full
// atomic fan-out instead.
func (s *IngestionService) IngestBatch(ctx context.Context, principalID string, readings []domain.Reading) (int, error) {
	valid := readings[:0:0]
	for i := range readings {
		if err := readings[i].Validate(); err != nil {
			s.logger.Warn("reading dropped from batch", "index", i, "error", err)
			continue
		}
		valid = append(valid, readings[i])
	}
	if len(valid) == 0 {
		return 0, domain.ErrValidation("batch contains no valid readings")
	}

	now := time.Now().UTC()
	cities := make(map[string]struct{})
	for i := range valid {
		if valid[i].Timestamp.IsZero() {
			valid[i].Timestamp = now
		}
		cities[valid[i].City] = struct{}{}
	}

	for city := range cities {
		if err := s.authorizer.AuthorizeRecord(ctx, principalID, city); err != nil {
			return 0, err
		}
	}

	if s.fanOutAll {
		for i := range valid {
			if err := s.readings.WriteFanOut(ctx, &valid[i]); err != nil {
				return i, err
			}
		}
	} else {
		if err := s.readings.WriteBySensor(ctx, valid); err != nil {
			return 0, err
		}
	}
	s.logger.Info("batch ingested", "accepted", len(valid), "dropped", len(readings)-len(valid))

	s.notifyBilling(ctx, domain.ResultRef{
		Process:     "ingest-batch",
		PrincipalID: principalID,
		At:          now,
	})
	return len(valid), nil
}

// Latest returns the most recent reading of a sensor.
func (s *IngestionService) Latest(ctx context.Context, principalID, sensorID string) (*domain.Reading, error) {
	if err := s.authorizer.AuthorizeRead(ctx, principalID); err != nil {
		return nil, err
	}
	return s.readings.Latest(ctx, sensorID)
}

// BySensor returns up to limit readings of a sensor on a day, newest first.
func (s *IngestionService) BySensor(ctx context.Context, principalID, sensorID string, day time.Time, limit int) ([]domain.Reading, error) {
	if err := s.authorizer.AuthorizeRead(ctx, principalID); err != nil {
		return nil, err
	}
	return s.readings.BySensor(ctx, sensorID, day, normalizeLimit(limit))
}

// ByCity returns up to limit readings recorded in a city on a day.
func (s *IngestionService) ByCity(ctx context.Context, principalID, city string, day time.Time, limit int) ([]domain.Reading, error) {
	if err := s.authorizer.AuthorizeRead(ctx, principalID); err != nil {
		return nil, err
	}
	return s.readings.ByCity(ctx, city, day, normalizeLimit(limit))
}

// ByCountry returns up to limit readings recorded in a country on a day.
func (s *IngestionService) ByCountry(ctx context.Context, principalID, country string, day time.Time, limit int) ([]domain.Reading, error) {
	if err := s.authorizer.AuthorizeRead(ctx, principalID); err != nil {
		return nil, err
	}
	return s.readings.ByCountry(ctx, country, day, normalizeLimit(limit))
}

const defaultReadLimit = 100

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultReadLimit
	}
	return limit
}

// notifyBilling reports the completed process to the billing collaborator.
// Billing failures are logged, never propagated: persistence has already
// succeeded and the caller must see success.
func (s *IngestionService) notifyBilling(ctx context.Context, ref domain.ResultRef) {
	if s.billing == nil {
		return
	}
	if err := s.billing.Notify(ctx, ref); err != nil {
		s.logger.Warn("billing notification failed", "process", ref.Process, "error", err)
	}
}
