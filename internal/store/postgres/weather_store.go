package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skybotdev/skybot/internal/domain"
)

// WeatherStore implements domain.WeatherStore using PostgreSQL.
type WeatherStore struct {
	pool *pgxpool.Pool
}

// NewWeatherStore creates a WeatherStore backed by the given pool.
func NewWeatherStore(pool *pgxpool.Pool) *WeatherStore {
	return &WeatherStore{pool: pool}
}

const weatherCols = `id, city_code, captured_at, forecast_high_f, forecast_std_dev_f,
	observed_temp_f, forecast_issued_at, observed_at, stale`

// SaveSnapshot inserts a weather snapshot and returns its row ID.
func (s *WeatherStore) SaveSnapshot(ctx context.Context, snap domain.WeatherSnapshot) (int64, error) {
	const query = `
		INSERT INTO ops.weather_snapshots (
			city_code, captured_at, forecast_high_f, forecast_std_dev_f,
			observed_temp_f, forecast_issued_at, observed_at, stale
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	var id int64
	err := s.pool.QueryRow(ctx, query,
		snap.CityCode, snap.CapturedAt, snap.ForecastHighF, snap.ForecastStdDevF,
		snap.ObservedTempF, snap.ForecastIssued, snap.ObservedAt, snap.Stale,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: save weather snapshot %s: %w", snap.CityCode, err)
	}
	return id, nil
}

// LatestByCity returns the most recent snapshot for a city.
func (s *WeatherStore) LatestByCity(ctx context.Context, cityCode string) (domain.WeatherSnapshot, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+weatherCols+` FROM ops.weather_snapshots
		 WHERE city_code = $1 ORDER BY captured_at DESC LIMIT 1`, cityCode)

	snap, err := scanWeather(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.WeatherSnapshot{}, domain.ErrNotFound
		}
		return domain.WeatherSnapshot{}, fmt.Errorf("postgres: latest weather %s: %w", cityCode, err)
	}
	return snap, nil
}

// ListBefore returns snapshots captured strictly before the cutoff.
func (s *WeatherStore) ListBefore(ctx context.Context, before time.Time) ([]domain.WeatherSnapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+weatherCols+` FROM ops.weather_snapshots
		 WHERE captured_at < $1 ORDER BY captured_at`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list weather before: %w", err)
	}
	defer rows.Close()

	var out []domain.WeatherSnapshot
	for rows.Next() {
		snap, err := scanWeather(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan weather snapshot: %w", err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

func scanWeather(scanner interface{ Scan(dest ...any) error }) (domain.WeatherSnapshot, error) {
	var snap domain.WeatherSnapshot
	err := scanner.Scan(
		&snap.ID, &snap.CityCode, &snap.CapturedAt, &snap.ForecastHighF, &snap.ForecastStdDevF,
		&snap.ObservedTempF, &snap.ForecastIssued, &snap.ObservedAt, &snap.Stale,
	)
	return snap, err
}
