package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"presence/internal/model"
)

// uniqueViolation is the Postgres error code for constraint conflicts.
const uniqueViolation = "23505"

// Postgres persists domain state in Postgres via the pgx stdlib driver.
type Postgres struct {
	db *sql.DB
}

// NewPostgres wraps an open connection.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// EnsureSchema creates tables and constraints if they do not exist. The
// unique index on (actor_id, session_id, day) is what makes duplicate
// check-ins race-safe without any client-side locking.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS actors (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			role TEXT NOT NULL,
			department TEXT NOT NULL DEFAULT '',
			face_template TEXT NOT NULL DEFAULT '',
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			token TEXT PRIMARY KEY,
			actor_id TEXT NOT NULL REFERENCES actors(id),
			expires_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS geofences (
			id TEXT PRIMARY KEY,
			center_lat DOUBLE PRECISION NOT NULL,
			center_lng DOUBLE PRECISION NOT NULL,
			radius_m DOUBLE PRECISION NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS schedule_windows (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			start_time TIMESTAMPTZ NOT NULL,
			end_time TIMESTAMPTZ NOT NULL,
			late_threshold_seconds BIGINT NOT NULL DEFAULT 0,
			fence_id TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS attendance (
			id TEXT PRIMARY KEY,
			actor_id TEXT NOT NULL REFERENCES actors(id),
			session_id TEXT NOT NULL DEFAULT '',
			day TEXT NOT NULL,
			check_in_time TIMESTAMPTZ NOT NULL,
			check_out_time TIMESTAMPTZ,
			status TEXT NOT NULL,
			lat DOUBLE PRECISION NOT NULL,
			lng DOUBLE PRECISION NOT NULL,
			accuracy_m DOUBLE PRECISION,
			location_valid BOOLEAN NOT NULL,
			face_verified BOOLEAN NOT NULL,
			face_confidence DOUBLE PRECISION,
			notes TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS attendance_actor_session_day
			ON attendance (actor_id, session_id, day)`,
		`CREATE INDEX IF NOT EXISTS attendance_day ON attendance (day, status)`,
		`CREATE INDEX IF NOT EXISTS sessions_expires_at ON sessions (expires_at)`,
	}
	for _, stmt := range stmts {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func mapPgErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicate
	}
	return err
}

// --- actors ---

func (p *Postgres) CreateActor(ctx context.Context, a *model.Actor) error {
	tpl, err := encodeTemplate(a.FaceTemplate)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO actors (id, name, email, password_hash, role, department, face_template, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$9)
	`, a.ID, a.Name, a.Email, a.PasswordHash, a.Role, a.Department, tpl, a.Active, a.CreatedAt)
	return mapPgErr(err)
}

func (p *Postgres) GetActor(ctx context.Context, id string) (*model.Actor, error) {
	return p.scanActor(p.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, role, department, face_template, active, created_at, updated_at
		FROM actors WHERE id = $1
	`, id))
}

func (p *Postgres) GetActorByEmail(ctx context.Context, email string) (*model.Actor, error) {
	return p.scanActor(p.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, role, department, face_template, active, created_at, updated_at
		FROM actors WHERE email = $1
	`, email))
}

func (p *Postgres) scanActor(row *sql.Row) (*model.Actor, error) {
	var a model.Actor
	var tpl string
	err := row.Scan(&a.ID, &a.Name, &a.Email, &a.PasswordHash, &a.Role, &a.Department, &tpl, &a.Active, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if a.FaceTemplate, err = decodeTemplate(tpl); err != nil {
		return nil, err
	}
	return &a, nil
}

func (p *Postgres) UpdateActor(ctx context.Context, a *model.Actor) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE actors
		SET name = $2, department = $3, role = $4, active = $5, updated_at = NOW()
		WHERE id = $1
	`, a.ID, a.Name, a.Department, a.Role, a.Active)
	return err
}

func (p *Postgres) SetFaceTemplate(ctx context.Context, actorID string, template []float64) error {
	tpl, err := encodeTemplate(template)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		UPDATE actors SET face_template = $2, updated_at = NOW() WHERE id = $1
	`, actorID, tpl)
	return err
}

func encodeTemplate(t []float64) (string, error) {
	if len(t) == 0 {
		return "", nil
	}
	b, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("encode face template: %w", err)
	}
	return string(b), nil
}

func decodeTemplate(s string) ([]float64, error) {
	if s == "" {
		return nil, nil
	}
	var t []float64
	if err := json.Unmarshal([]byte(s), &t); err != nil {
		return nil, fmt.Errorf("decode face template: %w", err)
	}
	return t, nil
}

// --- sessions ---

func (p *Postgres) CreateSession(ctx context.Context, s *model.Session) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO sessions (token, actor_id, expires_at, created_at)
		VALUES ($1,$2,$3,$4)
	`, s.Token, s.ActorID, s.ExpiresAt, s.CreatedAt)
	return mapPgErr(err)
}

func (p *Postgres) GetSession(ctx context.Context, token string) (*model.Session, error) {
	var s model.Session
	err := p.db.QueryRowContext(ctx, `
		SELECT token, actor_id, expires_at, created_at FROM sessions WHERE token = $1
	`, token).Scan(&s.Token, &s.ActorID, &s.ExpiresAt, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (p *Postgres) DeleteSession(ctx context.Context, token string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = $1`, token)
	return err
}

func (p *Postgres) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// --- geofences ---

func (p *Postgres) GetFence(ctx context.Context, id string) (*model.GeoFence, error) {
	var f model.GeoFence
	err := p.db.QueryRowContext(ctx, `
		SELECT id, center_lat, center_lng, radius_m, updated_at FROM geofences WHERE id = $1
	`, id).Scan(&f.ID, &f.CenterLat, &f.CenterLng, &f.RadiusMeters, &f.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (p *Postgres) PutFence(ctx context.Context, f *model.GeoFence) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO geofences (id, center_lat, center_lng, radius_m, updated_at)
		VALUES ($1,$2,$3,$4,NOW())
		ON CONFLICT (id) DO UPDATE SET
			center_lat = EXCLUDED.center_lat,
			center_lng = EXCLUDED.center_lng,
			radius_m = EXCLUDED.radius_m,
			updated_at = NOW()
	`, f.ID, f.CenterLat, f.CenterLng, f.RadiusMeters)
	return err
}

// --- schedule windows ---

func (p *Postgres) CreateWindow(ctx context.Context, w *model.ScheduleWindow) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO schedule_windows (id, name, start_time, end_time, late_threshold_seconds, fence_id)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, w.ID, w.Name, w.StartTime, w.EndTime, int64(w.LateThreshold.Seconds()), w.FenceID)
	return mapPgErr(err)
}

func (p *Postgres) GetWindow(ctx context.Context, id string) (*model.ScheduleWindow, error) {
	var w model.ScheduleWindow
	var thresholdSec int64
	err := p.db.QueryRowContext(ctx, `
		SELECT id, name, start_time, end_time, late_threshold_seconds, fence_id
		FROM schedule_windows WHERE id = $1
	`, id).Scan(&w.ID, &w.Name, &w.StartTime, &w.EndTime, &thresholdSec, &w.FenceID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	w.LateThreshold = time.Duration(thresholdSec) * time.Second
	return &w, nil
}

// --- attendance ---

func (p *Postgres) InsertAttendance(ctx context.Context, rec *model.AttendanceRecord) error {
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO attendance (id, actor_id, session_id, day, check_in_time, check_out_time,
			status, lat, lng, accuracy_m, location_valid, face_verified, face_confidence, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		RETURNING created_at
	`, rec.ID, rec.ActorID, rec.SessionID, rec.Day, rec.CheckInTime, rec.CheckOutTime,
		rec.Status, rec.Lat, rec.Lng, rec.AccuracyMeters, rec.LocationValid, rec.FaceVerified, rec.FaceConfidence, rec.Notes,
	).Scan(&rec.CreatedAt)
	return mapPgErr(err)
}

const attendanceCols = `id, actor_id, session_id, day, check_in_time, check_out_time,
	status, lat, lng, accuracy_m, location_valid, face_verified, face_confidence, notes, created_at`

func (p *Postgres) GetAttendance(ctx context.Context, id string) (*model.AttendanceRecord, error) {
	return p.scanAttendance(p.db.QueryRowContext(ctx,
		`SELECT `+attendanceCols+` FROM attendance WHERE id = $1`, id))
}

func (p *Postgres) FindAttendance(ctx context.Context, actorID, sessionID, day string) (*model.AttendanceRecord, error) {
	return p.scanAttendance(p.db.QueryRowContext(ctx,
		`SELECT `+attendanceCols+` FROM attendance WHERE actor_id = $1 AND session_id = $2 AND day = $3`,
		actorID, sessionID, day))
}

func (p *Postgres) scanAttendance(row *sql.Row) (*model.AttendanceRecord, error) {
	var rec model.AttendanceRecord
	err := row.Scan(&rec.ID, &rec.ActorID, &rec.SessionID, &rec.Day, &rec.CheckInTime, &rec.CheckOutTime,
		&rec.Status, &rec.Lat, &rec.Lng, &rec.AccuracyMeters, &rec.LocationValid, &rec.FaceVerified,
		&rec.FaceConfidence, &rec.Notes, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (p *Postgres) UpdateAttendance(ctx context.Context, rec *model.AttendanceRecord) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE attendance
		SET status = $2, location_valid = $3, face_verified = $4, face_confidence = $5,
			check_in_time = $6, lat = $7, lng = $8, accuracy_m = $9, notes = $10
		WHERE id = $1
	`, rec.ID, rec.Status, rec.LocationValid, rec.FaceVerified, rec.FaceConfidence,
		rec.CheckInTime, rec.Lat, rec.Lng, rec.AccuracyMeters, rec.Notes)
	return err
}

func (p *Postgres) SetCheckOut(ctx context.Context, id string, at time.Time) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE attendance SET check_out_time = $2 WHERE id = $1 AND check_out_time IS NULL
	`, id, at)
	return err
}

func (p *Postgres) ListAttendance(ctx context.Context, f AttendanceFilter) ([]model.AttendanceRecord, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + attendanceCols + ` FROM attendance`
	args := []any{}
	clauses := []string{}
	if f.ActorID != "" {
		args = append(args, f.ActorID)
		clauses = append(clauses, fmt.Sprintf("actor_id = $%d", len(args)))
	}
	if f.SessionID != "" {
		args = append(args, f.SessionID)
		clauses = append(clauses, fmt.Sprintf("session_id = $%d", len(args)))
	}
	if !f.From.IsZero() {
		args = append(args, f.From)
		clauses = append(clauses, fmt.Sprintf("check_in_time >= $%d", len(args)))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		clauses = append(clauses, fmt.Sprintf("check_in_time < $%d", len(args)))
	}
	for i, c := range clauses {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY check_in_time DESC LIMIT $%d", len(args))

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []model.AttendanceRecord
	for rows.Next() {
		var rec model.AttendanceRecord
		if err := rows.Scan(&rec.ID, &rec.ActorID, &rec.SessionID, &rec.Day, &rec.CheckInTime, &rec.CheckOutTime,
			&rec.Status, &rec.Lat, &rec.Lng, &rec.AccuracyMeters, &rec.LocationValid, &rec.FaceVerified,
			&rec.FaceConfidence, &rec.Notes, &rec.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

func (p *Postgres) CountByStatus(ctx context.Context, day string) (map[model.Status]int, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM attendance WHERE day = $1 GROUP BY status
	`, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[model.Status]int)
	for rows.Next() {
		var status model.Status
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
