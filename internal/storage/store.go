// Package storage persists canonical events, weather warnings, and congestion
// rankings to Postgres. Writes are content-addressed and idempotent: every
// table keys on a deterministic ID and inserts use ON CONFLICT DO NOTHING.
package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"github.com/roadpulse/highway-etl/internal/config"
	"github.com/roadpulse/highway-etl/internal/domain"
)

//go:embed schema.sql
var schema string

// Store wraps the shared connection pool. database/sql pools internally, so
// one Store serves every worker goroutine.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open connects to Postgres, applies pool limits, and verifies the
// connection with a ping.
func Open(cfg config.DatabaseConfig, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}
	if cfg.MaxIdle > 0 {
		db.SetMaxIdleConns(cfg.MaxIdle)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	logger.Info("database connected", "host", cfg.Host, "database", cfg.Database)
	return &Store{db: db, logger: logger}, nil
}

// EnsureSchema creates all tables and indexes if they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable, for readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// EventExists reports whether any event for the province was already stored
// with the given publish time. Sources whose feed repeats whole bulletins use
// this as a cheap gate before the expensive classification call.
func (s *Store) EventExists(ctx context.Context, province string, publishTime time.Time) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM province_road_condition
			WHERE province = $1 AND publish_time = $2
		)`,
		province, publishTime.Format(domain.TimestampLayout),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check event existence: %w", err)
	}
	return exists, nil
}

// InsertEvents writes a batch of canonical events. Rows that collide on ID
// are silently skipped; rows that fail for any other reason are counted and
// logged but never abort the batch.
func (s *Store) InsertEvents(ctx context.Context, events []domain.CanonicalEvent) (domain.WriteResult, error) {
	const insert = `
		INSERT INTO province_road_condition (
			id, province, road_code, road_name, publish_content,
			publish_time, start_time, end_time, insert_time,
			event_type_name, event_category
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING`

	var result domain.WriteResult
	now := domain.Now()
	for _, ev := range events {
		res, err := s.db.ExecContext(ctx, insert,
			ev.ID, ev.Province, ev.RoadCode, ev.RoadName, ev.PublishContent,
			ev.PublishTime.Format(domain.TimestampLayout),
			formatOptional(ev.StartTime), formatOptional(ev.EndTime),
			now.Format(domain.TimestampLayout),
			ev.EventTypeName, ev.Category.Label(),
		)
		if err != nil {
			result.Failed++
			s.logger.Error("insert event failed", "id", ev.ID, "province", ev.Province, "error", err)
			continue
		}
		if n, _ := res.RowsAffected(); n > 0 {
			result.Written++
		}
	}
	return result, nil
}

// WeatherExists reports whether a warning with this content hash is stored.
func (s *Store) WeatherExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM weather_warning WHERE id = $1)`, id,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check weather existence: %w", err)
	}
	return exists, nil
}

// TodayWeatherIDs returns the IDs of warnings published since local midnight,
// used to warm the in-process seen cache on startup.
func (s *Store) TodayWeatherIDs(ctx context.Context) ([]string, error) {
	now := domain.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM weather_warning WHERE publish_time >= $1`,
		midnight.Format(domain.TimestampLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("list today's weather ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan weather id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// InsertWeather writes one enriched warning, skipping on ID collision.
func (s *Store) InsertWeather(ctx context.Context, w domain.WeatherWarning) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO weather_warning (
			id, province, city, area, title, warning_level, warning_type,
			warning_content, publish_time, insert_time
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`,
		w.ID, w.Province, w.City, w.Area, w.Title, w.WarningLevel, w.WarningType,
		w.WarningContent, formatOptional(w.PublishTime),
		domain.Now().Format(domain.TimestampLayout),
	)
	if err != nil {
		return false, fmt.Errorf("insert weather warning: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// InsertRegion records a (province, city, area) triple discovered through
// weather extraction. The ID is content-addressed so repeats are no-ops.
func (s *Store) InsertRegion(ctx context.Context, province, city, area string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO region_info (id, province, city, area)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING`,
		domain.HashID(province+city+area), province, city, area,
	)
	if err != nil {
		return fmt.Errorf("insert region: %w", err)
	}
	return nil
}

// InsertSections writes one batch of the congested-section ranking.
func (s *Store) InsertSections(ctx context.Context, rows []domain.SectionCongestion) (domain.WriteResult, error) {
	const insert = `
		INSERT INTO crawler_section_congestion (
			id, publish_time, province_name, road_name, section_rank,
			congest_length, avg_speed, batch_num, semantic
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`

	var result domain.WriteResult
	for _, r := range rows {
		_, err := s.db.ExecContext(ctx, insert,
			r.ID, r.PublishTime.Format(domain.TimestampLayout), r.ProvinceName,
			r.RoadName, r.SectionRank, r.CongestLength, r.AvgSpeed, r.BatchNum, r.Semantic,
		)
		if err != nil {
			result.Failed++
			s.logger.Error("insert section congestion failed", "id", r.ID, "error", err)
			continue
		}
		result.Written++
	}
	return result, nil
}

// InsertStations writes one batch of the congested toll-station ranking.
func (s *Store) InsertStations(ctx context.Context, rows []domain.StationCongestion) (domain.WriteResult, error) {
	const insert = `
		INSERT INTO crawler_station_congestion (
			id, publish_time, province_name, city_name, road_name,
			station_name, station_rank, congest_length, avg_speed, batch_num
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`

	var result domain.WriteResult
	for _, r := range rows {
		_, err := s.db.ExecContext(ctx, insert,
			r.ID, r.PublishTime.Format(domain.TimestampLayout), r.ProvinceName,
			r.CityName, r.RoadName, r.StationName, r.StationRank,
			r.CongestLength, r.AvgSpeed, r.BatchNum,
		)
		if err != nil {
			result.Failed++
			s.logger.Error("insert station congestion failed", "id", r.ID, "error", err)
			continue
		}
		result.Written++
	}
	return result, nil
}

func formatOptional(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(domain.TimestampLayout)
}
