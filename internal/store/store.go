package store

import (
	"context"
	"errors"
	"time"

	"presence/internal/model"
)

// Sentinel errors shared by both implementations. Callers translate them into
// the user-facing taxonomy; the store stays transport-agnostic.
var (
	// ErrDuplicate signals a uniqueness violation: session token, actor
	// email, or the (actor, session, day) attendance key.
	ErrDuplicate = errors.New("store: duplicate key")
)

// AttendanceFilter narrows ListAttendance. Zero values mean "no constraint".
type AttendanceFilter struct {
	ActorID   string
	SessionID string
	From      time.Time
	To        time.Time
	Limit     int
}

// Store is the persistence contract the pipeline is written against. Two
// implementations exist: Postgres for production and an in-memory fixture set
// for tests and offline demos. Nothing above this interface may branch on
// which one is in use.
type Store interface {
	// Actors.
	CreateActor(ctx context.Context, a *model.Actor) error
	GetActor(ctx context.Context, id string) (*model.Actor, error)
	GetActorByEmail(ctx context.Context, email string) (*model.Actor, error)
	UpdateActor(ctx context.Context, a *model.Actor) error
	SetFaceTemplate(ctx context.Context, actorID string, template []float64) error

	// Sessions. Token uniqueness is a hard invariant enforced here.
	CreateSession(ctx context.Context, s *model.Session) error
	GetSession(ctx context.Context, token string) (*model.Session, error)
	DeleteSession(ctx context.Context, token string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)

	// Geofences.
	GetFence(ctx context.Context, id string) (*model.GeoFence, error)
	PutFence(ctx context.Context, f *model.GeoFence) error

	// Schedule windows.
	CreateWindow(ctx context.Context, w *model.ScheduleWindow) error
	GetWindow(ctx context.Context, id string) (*model.ScheduleWindow, error)

	// Attendance. InsertAttendance returns ErrDuplicate when a record for
	// the same (actor, session, day) already exists, which is how two
	// concurrent check-ins are serialized without client-side locking.
	InsertAttendance(ctx context.Context, rec *model.AttendanceRecord) error
	GetAttendance(ctx context.Context, id string) (*model.AttendanceRecord, error)
	FindAttendance(ctx context.Context, actorID, sessionID, day string) (*model.AttendanceRecord, error)
	UpdateAttendance(ctx context.Context, rec *model.AttendanceRecord) error
	SetCheckOut(ctx context.Context, id string, at time.Time) error
	ListAttendance(ctx context.Context, f AttendanceFilter) ([]model.AttendanceRecord, error)
	CountByStatus(ctx context.Context, day string) (map[model.Status]int, error)
}
