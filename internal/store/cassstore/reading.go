// Package cassstore implements the reading projections on top of the gocql
// driver. Every reading is denormalized into four read-optimized tables; the
// single-reading path writes them as one logged batch so a reader observes
// all four projections updated or none.
package cassstore

import (
	"context"
	"errors"
	"time"

	"github.com/gocql/gocql"

	"sensorgrid/internal/domain"
)

const (
	insertBySensor = `INSERT INTO readings_by_sensor_day
		(sensor_id, day, ts, temperature, humidity, type, city, country)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	insertByCity = `INSERT INTO readings_by_city_day
		(city, day, ts, sensor_id, temperature, humidity, type, country)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	insertByCountry = `INSERT INTO readings_by_country_day
		(country, day, ts, city, sensor_id, temperature, humidity, type)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	upsertLatest = `INSERT INTO latest_reading_by_sensor
		(sensor_id, ts, temperature, humidity, type, city, country)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	selectBySensor = `SELECT ts, temperature, humidity, type, city, country
		FROM readings_by_sensor_day
		WHERE sensor_id = ? AND day = ?
		ORDER BY ts DESC LIMIT ?`

	selectByCity = `SELECT sensor_id, ts, temperature, humidity, type, country
		FROM readings_by_city_day
		WHERE city = ? AND day = ?
		ORDER BY ts DESC LIMIT ?`

	selectByCountry = `SELECT sensor_id, ts, city, temperature, humidity, type
		FROM readings_by_country_day
		WHERE country = ? AND day = ?
		ORDER BY ts DESC LIMIT ?`

	selectLatest = `SELECT ts, temperature, humidity, type, city, country
		FROM latest_reading_by_sensor
		WHERE sensor_id = ?`
)

// ReadingRepo implements domain.ReadingRepository. Statements are prepared
// and cached by the driver on first execution.
type ReadingRepo struct {
	session *gocql.Session
}

// NewReadingRepo creates a ReadingRepo on an injected session.
func NewReadingRepo(session *gocql.Session) *ReadingRepo {
	return &ReadingRepo{session: session}
}

var _ domain.ReadingRepository = (*ReadingRepo)(nil)

// WriteFanOut writes the reading into all four projections as one LOGGED
// batch. A single time-UUID is generated once and bound to every statement,
// so the projections agree bit-for-bit.
func (r *ReadingRepo) WriteFanOut(ctx context.Context, rd *domain.Reading) error {
	ts := gocql.UUIDFromTime(rd.Timestamp)
	day := rd.Day()

	b := r.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	b.Query(insertBySensor, rd.SensorID, day, ts, rd.Temperature, rd.Humidity, rd.Type, rd.City, rd.Country)
	b.Query(insertByCity, rd.City, day, ts, rd.SensorID, rd.Temperature, rd.Humidity, rd.Type, rd.Country)
	b.Query(insertByCountry, rd.Country, day, ts, rd.City, rd.SensorID, rd.Temperature, rd.Humidity, rd.Type)
	b.Query(upsertLatest, rd.SensorID, ts, rd.Temperature, rd.Humidity, rd.Type, rd.City, rd.Country)

	if err := r.session.ExecuteBatch(b); err != nil {
		return domain.ErrStorage(err, "fan out reading for sensor %s", rd.SensorID)
	}
	return nil
}

// WriteBySensor writes a batch of readings into the per-sensor projection
// only. The batch is UNLOGGED: rows land on different partitions and the
// throughput path does not need cross-partition atomicity.
func (r *ReadingRepo) WriteBySensor(ctx context.Context, readings []domain.Reading) error {
	if len(readings) == 0 {
		return nil
	}

	b := r.session.NewBatch(gocql.UnloggedBatch).WithContext(ctx)
	for i := range readings {
		rd := &readings[i]
		ts := gocql.UUIDFromTime(rd.Timestamp)
		b.Query(insertBySensor, rd.SensorID, rd.Day(), ts, rd.Temperature, rd.Humidity, rd.Type, rd.City, rd.Country)
	}

	if err := r.session.ExecuteBatch(b); err != nil {
		return domain.ErrStorage(err, "write reading batch of %d", len(readings))
	}
	return nil
}

// Latest returns the single row of the latest-by-sensor projection.
func (r *ReadingRepo) Latest(ctx context.Context, sensorID string) (*domain.Reading, error) {
	var (
		ts         gocql.UUID
		temp, hum  *float64
		typ        string
		city, ctry string
	)
	err := r.session.Query(selectLatest, sensorID).WithContext(ctx).
		Scan(&ts, &temp, &hum, &typ, &city, &ctry)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, domain.ErrNotFound("no reading recorded for sensor %s", sensorID)
		}
		return nil, domain.ErrStorage(err, "read latest for sensor %s", sensorID)
	}
	return &domain.Reading{
		SensorID:    sensorID,
		Timestamp:   ts.Time(),
		City:        city,
		Country:     ctry,
		Temperature: temp,
		Humidity:    hum,
		Type:        typ,
	}, nil
}

// BySensor returns up to limit readings for a sensor on a day, newest first.
func (r *ReadingRepo) BySensor(ctx context.Context, sensorID string, day time.Time, limit int) ([]domain.Reading, error) {
	iter := r.session.Query(selectBySensor, sensorID, day.UTC().Truncate(24*time.Hour), limit).
		WithContext(ctx).Iter()

	var out []domain.Reading
	var (
		ts         gocql.UUID
		temp, hum  *float64
		typ        string
		city, ctry string
	)
	for iter.Scan(&ts, &temp, &hum, &typ, &city, &ctry) {
		out = append(out, domain.Reading{
			SensorID:    sensorID,
			Timestamp:   ts.Time(),
			City:        city,
			Country:     ctry,
			Temperature: copyFloat(temp),
			Humidity:    copyFloat(hum),
			Type:        typ,
		})
		temp, hum = nil, nil
	}
	if err := iter.Close(); err != nil {
		return nil, domain.ErrStorage(err, "read sensor %s history", sensorID)
	}
	return out, nil
}

// ByCity returns up to limit readings for a city on a day, newest first.
func (r *ReadingRepo) ByCity(ctx context.Context, city string, day time.Time, limit int) ([]domain.Reading, error) {
	iter := r.session.Query(selectByCity, city, day.UTC().Truncate(24*time.Hour), limit).
		WithContext(ctx).Iter()

	var out []domain.Reading
	var (
		sensorID  string
		ts        gocql.UUID
		temp, hum *float64
		typ, ctry string
	)
	for iter.Scan(&sensorID, &ts, &temp, &hum, &typ, &ctry) {
		out = append(out, domain.Reading{
			SensorID:    sensorID,
			Timestamp:   ts.Time(),
			City:        city,
			Country:     ctry,
			Temperature: copyFloat(temp),
			Humidity:    copyFloat(hum),
			Type:        typ,
		})
		temp, hum = nil, nil
	}
	if err := iter.Close(); err != nil {
		return nil, domain.ErrStorage(err, "read city %s history", city)
	}
	return out, nil
}

// ByCountry returns up to limit readings for a country on a day, newest first.
func (r *ReadingRepo) ByCountry(ctx context.Context, country string, day time.Time, limit int) ([]domain.Reading, error) {
	iter := r.session.Query(selectByCountry, country, day.UTC().Truncate(24*time.Hour), limit).
		WithContext(ctx).Iter()

	var out []domain.Reading
	var (
		sensorID  string
		ts        gocql.UUID
		city      string
		temp, hum *float64
		typ       string
	)
	for iter.Scan(&sensorID, &ts, &city, &temp, &hum, &typ) {
		out = append(out, domain.Reading{
			SensorID:    sensorID,
			Timestamp:   ts.Time(),
			City:        city,
			Country:     country,
			Temperature: copyFloat(temp),
			Humidity:    copyFloat(hum),
			Type:        typ,
		})
		temp, hum = nil, nil
	}
	if err := iter.Close(); err != nil {
		return nil, domain.ErrStorage(err, "read country %s history", country)
	}
	return out, nil
}

// copyFloat detaches a scanned nullable value from the scan destination.
func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
