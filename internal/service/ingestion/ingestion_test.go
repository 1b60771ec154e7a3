package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sensorgrid/internal/domain"
	"sensorgrid/internal/testutil"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func f(v float64) *float64 { return &v }

func baReading(ts time.Time) domain.Reading {
	return domain.Reading{
		SensorID:    "S1",
		Timestamp:   ts,
		City:        "Buenos Aires",
		Country:     "Argentina",
		Temperature: f(23.5),
		Type:        "temperature",
	}
}

func TestIngestFansOutToAllProjections(t *testing.T) {
	store := testutil.NewMemReadings()
	authz := &testutil.MockAuthorizer{}
	svc := NewIngestionService(store, authz, nil, false, testLogger())

	ts := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	rd := baReading(ts)
	require.NoError(t, svc.Ingest(context.Background(), "p1", &rd))

	require.Len(t, store.BySensorRows["S1"], 1)
	require.Len(t, store.ByCityRows["Buenos Aires"], 1)
	require.Len(t, store.ByCountryRows["Argentina"], 1)

	latest, err := store.Latest(context.Background(), "S1")
	require.NoError(t, err)

	// All four projections carry the identical reading.
	for _, got := range []domain.Reading{
		store.BySensorRows["S1"][0],
		store.ByCityRows["Buenos Aires"][0],
		store.ByCountryRows["Argentina"][0],
		*latest,
	} {
		assert.Equal(t, ts, got.Timestamp)
		require.NotNil(t, got.Temperature)
		assert.Equal(t, 23.5, *got.Temperature)
		assert.Equal(t, "Buenos Aires", got.City)
	}

	assert.Equal(t, []string{"Buenos Aires"}, authz.RecordCalls)
}

func TestIngestDefaultsTimestamp(t *testing.T) {
	store := testutil.NewMemReadings()
	svc := NewIngestionService(store, &testutil.MockAuthorizer{}, nil, false, testLogger())

	rd := baReading(time.Time{})
	before := time.Now().UTC()
	require.NoError(t, svc.Ingest(context.Background(), "p1", &rd))

	assert.False(t, rd.Timestamp.IsZero())
	assert.False(t, rd.Timestamp.Before(before))
}

func TestIngestValidationRejectsBeforeAuthorization(t *testing.T) {
	store := testutil.NewMemReadings()
	authz := &testutil.MockAuthorizer{}
	svc := NewIngestionService(store, authz, nil, false, testLogger())

	rd := domain.Reading{SensorID: "S1"} // no values
	err := svc.Ingest(context.Background(), "p1", &rd)

	assert.True(t, errors.As(err, new(*domain.ValidationError)))
	assert.Empty(t, authz.RecordCalls)
	assert.Empty(t, store.BySensorRows)
}

func TestIngestUnauthorizedWritesNothing(t *testing.T) {
	store := testutil.NewMemReadings()
	authz := &testutil.MockAuthorizer{
		AuthorizeRecordFn: func(_ context.Context, principalID, city string) error {
			return domain.ErrAuthorization("denied")
		},
	}
	svc := NewIngestionService(store, authz, nil, false, testLogger())

	rd := baReading(time.Now().UTC())
	err := svc.Ingest(context.Background(), "p1", &rd)

	assert.True(t, errors.As(err, new(*domain.AuthorizationError)))
	assert.Empty(t, store.BySensorRows)
	assert.Empty(t, store.LatestRows)
}

func TestIngestStorageFailureLeavesNoPartialProjections(t *testing.T) {
	store := testutil.NewMemReadings()
	store.WriteFanOutFn = func(context.Context, *domain.Reading) error {
		return domain.ErrStorage(fmt.Errorf("batch timeout"), "fan out reading")
	}
	svc := NewIngestionService(store, &testutil.MockAuthorizer{}, nil, false, testLogger())

	rd := baReading(time.Now().UTC())
	err := svc.Ingest(context.Background(), "p1", &rd)

	assert.True(t, errors.As(err, new(*domain.StorageError)))
	assert.Empty(t, store.BySensorRows)
	assert.Empty(t, store.ByCityRows)
	assert.Empty(t, store.ByCountryRows)
	assert.Empty(t, store.LatestRows)
}

func TestIngestNotifiesBilling(t *testing.T) {
	store := testutil.NewMemReadings()
	billing := &testutil.MockBilling{}
	svc := NewIngestionService(store, &testutil.MockAuthorizer{}, billing, false, testLogger())

	rd := baReading(time.Now().UTC())
	require.NoError(t, svc.Ingest(context.Background(), "p1", &rd))

	require.Len(t, billing.Refs, 1)
	assert.Equal(t, "ingest", billing.Refs[0].Process)
	assert.Equal(t, "p1", billing.Refs[0].PrincipalID)
	assert.Equal(t, "S1", billing.Refs[0].SensorID)
}

func TestIngestBillingFailureDoesNotFailIngest(t *testing.T) {
	store := testutil.NewMemReadings()
	billing := &testutil.MockBilling{
		NotifyFn: func(context.Context, domain.ResultRef) error {
			return fmt.Errorf("billing queue down")
		},
	}
	svc := NewIngestionService(store, &testutil.MockAuthorizer{}, billing, false, testLogger())

	rd := baReading(time.Now().UTC())
	require.NoError(t, svc.Ingest(context.Background(), "p1", &rd))
	require.Len(t, store.BySensorRows["S1"], 1)
}

func TestIngestBatchDropsInvalidReadings(t *testing.T) {
	store := testutil.NewMemReadings()
	svc := NewIngestionService(store, &testutil.MockAuthorizer{}, nil, false, testLogger())

	batch := []domain.Reading{
		baReading(time.Now().UTC()),
		{SensorID: "S2"}, // no values, dropped
		{SensorID: "S3", City: "Buenos Aires", Country: "Argentina", Humidity: f(40)},
	}
	accepted, err := svc.IngestBatch(context.Background(), "p1", batch)
	require.NoError(t, err)
	assert.Equal(t, 2, accepted)
}

func TestIngestBatchAllInvalid(t *testing.T) {
	store := testutil.NewMemReadings()
	svc := NewIngestionService(store, &testutil.MockAuthorizer{}, nil, false, testLogger())

	_, err := svc.IngestBatch(context.Background(), "p1", []domain.Reading{{SensorID: "S1"}, {}})
	assert.True(t, errors.As(err, new(*domain.ValidationError)))
}

func TestIngestBatchAuthorizesOncePerCity(t *testing.T) {
	store := testutil.NewMemReadings()
	authz := &testutil.MockAuthorizer{}
	svc := NewIngestionService(store, authz, nil, false, testLogger())

	now := time.Now().UTC()
	batch := []domain.Reading{
		baReading(now),
		baReading(now.Add(time.Minute)),
		{SensorID: "S2", Timestamp: now, City: "Córdoba", Country: "Argentina", Humidity: f(55)},
	}
	_, err := svc.IngestBatch(context.Background(), "p1", batch)
	require.NoError(t, err)

	assert.Len(t, authz.RecordCalls, 2, "one check per distinct city, not per reading")
	assert.ElementsMatch(t, []string{"Buenos Aires", "Córdoba"}, authz.RecordCalls)
}

func TestIngestBatchOneDeniedCityRejectsWholeBatch(t *testing.T) {
	store := testutil.NewMemReadings()
	authz := &testutil.MockAuthorizer{
		AuthorizeRecordFn: func(_ context.Context, _, city string) error {
			if city == "Córdoba" {
				return domain.ErrAuthorization("no coverage of Córdoba")
			}
			return nil
		},
	}
	svc := NewIngestionService(store, authz, nil, false, testLogger())

	now := time.Now().UTC()
	batch := []domain.Reading{
		baReading(now),
		{SensorID: "S2", Timestamp: now, City: "Córdoba", Country: "Argentina", Humidity: f(55)},
	}
	accepted, err := svc.IngestBatch(context.Background(), "p1", batch)

	assert.True(t, errors.As(err, new(*domain.AuthorizationError)))
	assert.Zero(t, accepted)
	assert.Empty(t, store.BySensorRows, "no row may land before all cities are authorized")
}

func TestIngestBatchWritesPerSensorProjectionOnly(t *testing.T) {
	store := testutil.NewMemReadings()
	svc := NewIngestionService(store, &testutil.MockAuthorizer{}, nil, false, testLogger())

	accepted, err := svc.IngestBatch(context.Background(), "p1", []domain.Reading{baReading(time.Now().UTC())})
	require.NoError(t, err)
	assert.Equal(t, 1, accepted)

	assert.Len(t, store.BySensorRows["S1"], 1)
	assert.Empty(t, store.ByCityRows, "batch path skips the city projection")
	assert.Empty(t, store.ByCountryRows)
	assert.Empty(t, store.LatestRows)
}

func TestIngestBatchFanOutAll(t *testing.T) {
	store := testutil.NewMemReadings()
	svc := NewIngestionService(store, &testutil.MockAuthorizer{}, nil, true, testLogger())

	accepted, err := svc.IngestBatch(context.Background(), "p1", []domain.Reading{baReading(time.Now().UTC())})
	require.NoError(t, err)
	assert.Equal(t, 1, accepted)

	assert.Len(t, store.BySensorRows["S1"], 1)
	assert.Len(t, store.ByCityRows["Buenos Aires"], 1)
	assert.Len(t, store.ByCountryRows["Argentina"], 1)
	assert.Len(t, store.LatestRows, 1)
}

func TestReadPathsRequireAuthorization(t *testing.T) {
	store := testutil.NewMemReadings()
	denied := &testutil.MockAuthorizer{
		AuthorizeReadFn: func(context.Context, string) error {
			return domain.ErrAuthorization("inactive")
		},
	}
	svc := NewIngestionService(store, denied, nil, false, testLogger())
	ctx := context.Background()
	day := time.Now().UTC()

	_, err := svc.Latest(ctx, "ghost", "S1")
	assert.True(t, errors.As(err, new(*domain.AuthorizationError)))

	_, err = svc.BySensor(ctx, "ghost", "S1", day, 10)
	assert.True(t, errors.As(err, new(*domain.AuthorizationError)))

	_, err = svc.ByCity(ctx, "ghost", "Buenos Aires", day, 10)
	assert.True(t, errors.As(err, new(*domain.AuthorizationError)))

	_, err = svc.ByCountry(ctx, "ghost", "Argentina", day, 10)
	assert.True(t, errors.As(err, new(*domain.AuthorizationError)))
}

func TestReadPathsReturnIngestedData(t *testing.T) {
	store := testutil.NewMemReadings()
	svc := NewIngestionService(store, &testutil.MockAuthorizer{}, nil, false, testLogger())
	ctx := context.Background()

	ts := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	first := baReading(ts)
	second := baReading(ts.Add(time.Hour))
	second.Temperature = f(25.0)
	require.NoError(t, svc.Ingest(ctx, "p1", &first))
	require.NoError(t, svc.Ingest(ctx, "p1", &second))

	latest, err := svc.Latest(ctx, "p1", "S1")
	require.NoError(t, err)
	assert.Equal(t, 25.0, *latest.Temperature)

	rows, err := svc.BySensor(ctx, "p1", "S1", ts, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.True(t, rows[0].Timestamp.After(rows[1].Timestamp), "newest first")

	rows, err = svc.ByCity(ctx, "p1", "Buenos Aires", ts, 1)
	require.NoError(t, err)
	require.Len(t, rows, 1, "limit applies")

	rows, err = svc.ByCountry(ctx, "p1", "Argentina", ts, 10)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}
