package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"presence/internal/model"
)

// Memory is a mutex-guarded in-memory Store. It backs the test suite and the
// offline demo mode, enforcing the same uniqueness semantics as Postgres.
type Memory struct {
	mu         sync.RWMutex
	actors     map[string]model.Actor
	emails     map[string]string // email -> actor id
	sessions   map[string]model.Session
	fences     map[string]model.GeoFence
	windows    map[string]model.ScheduleWindow
	attendance map[string]model.AttendanceRecord
	attKeys    map[string]string // actor|session|day -> record id
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		actors:     make(map[string]model.Actor),
		emails:     make(map[string]string),
		sessions:   make(map[string]model.Session),
		fences:     make(map[string]model.GeoFence),
		windows:    make(map[string]model.ScheduleWindow),
		attendance: make(map[string]model.AttendanceRecord),
		attKeys:    make(map[string]string),
	}
}

func attKey(actorID, sessionID, day string) string {
	return actorID + "|" + sessionID + "|" + day
}

// --- actors ---

func (m *Memory) CreateActor(_ context.Context, a *model.Actor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	email := strings.ToLower(a.Email)
	if _, exists := m.emails[email]; exists {
		return ErrDuplicate
	}
	if _, exists := m.actors[a.ID]; exists {
		return ErrDuplicate
	}
	m.actors[a.ID] = cloneActor(a)
	m.emails[email] = a.ID
	return nil
}

func (m *Memory) GetActor(_ context.Context, id string) (*model.Actor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.actors[id]
	if !ok {
		return nil, nil
	}
	out := cloneActor(&a)
	return &out, nil
}

func (m *Memory) GetActorByEmail(_ context.Context, email string) (*model.Actor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.emails[strings.ToLower(email)]
	if !ok {
		return nil, nil
	}
	a := m.actors[id]
	out := cloneActor(&a)
	return &out, nil
}

func (m *Memory) UpdateActor(_ context.Context, a *model.Actor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.actors[a.ID]
	if !ok {
		return nil
	}
	cur.Name = a.Name
	cur.Department = a.Department
	cur.Role = a.Role
	cur.Active = a.Active
	cur.UpdatedAt = time.Now().UTC()
	m.actors[a.ID] = cur
	return nil
}

func (m *Memory) SetFaceTemplate(_ context.Context, actorID string, template []float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.actors[actorID]
	if !ok {
		return nil
	}
	cur.FaceTemplate = append([]float64(nil), template...)
	cur.UpdatedAt = time.Now().UTC()
	m.actors[actorID] = cur
	return nil
}

func cloneActor(a *model.Actor) model.Actor {
	out := *a
	out.FaceTemplate = append([]float64(nil), a.FaceTemplate...)
	return out
}

// --- sessions ---

func (m *Memory) CreateSession(_ context.Context, s *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[s.Token]; exists {
		return ErrDuplicate
	}
	m.sessions[s.Token] = *s
	return nil
}

func (m *Memory) GetSession(_ context.Context, token string) (*model.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[token]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *Memory) DeleteSession(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
	return nil
}

func (m *Memory) DeleteExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for token, s := range m.sessions {
		if now.After(s.ExpiresAt) {
			delete(m.sessions, token)
			n++
		}
	}
	return n, nil
}

// --- geofences ---

func (m *Memory) GetFence(_ context.Context, id string) (*model.GeoFence, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.fences[id]
	if !ok {
		return nil, nil
	}
	return &f, nil
}

func (m *Memory) PutFence(_ context.Context, f *model.GeoFence) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *f
	stored.UpdatedAt = time.Now().UTC()
	m.fences[f.ID] = stored
	return nil
}

// --- schedule windows ---

func (m *Memory) CreateWindow(_ context.Context, w *model.ScheduleWindow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.windows[w.ID]; exists {
		return ErrDuplicate
	}
	m.windows[w.ID] = *w
	return nil
}

func (m *Memory) GetWindow(_ context.Context, id string) (*model.ScheduleWindow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.windows[id]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

// --- attendance ---

func (m *Memory) InsertAttendance(_ context.Context, rec *model.AttendanceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := attKey(rec.ActorID, rec.SessionID, rec.Day)
	if _, exists := m.attKeys[key]; exists {
		return ErrDuplicate
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	m.attendance[rec.ID] = *rec
	m.attKeys[key] = rec.ID
	return nil
}

func (m *Memory) GetAttendance(_ context.Context, id string) (*model.AttendanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.attendance[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *Memory) FindAttendance(_ context.Context, actorID, sessionID, day string) (*model.AttendanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.attKeys[attKey(actorID, sessionID, day)]
	if !ok {
		return nil, nil
	}
	rec := m.attendance[id]
	return &rec, nil
}

func (m *Memory) UpdateAttendance(_ context.Context, rec *model.AttendanceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.attendance[rec.ID]
	if !ok {
		return nil
	}
	cur.Status = rec.Status
	cur.LocationValid = rec.LocationValid
	cur.FaceVerified = rec.FaceVerified
	cur.FaceConfidence = rec.FaceConfidence
	cur.CheckInTime = rec.CheckInTime
	cur.Lat = rec.Lat
	cur.Lng = rec.Lng
	cur.AccuracyMeters = rec.AccuracyMeters
	cur.Notes = rec.Notes
	m.attendance[rec.ID] = cur
	return nil
}

func (m *Memory) SetCheckOut(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.attendance[id]
	if !ok || rec.CheckOutTime != nil {
		return nil
	}
	out := at
	rec.CheckOutTime = &out
	m.attendance[id] = rec
	return nil
}

func (m *Memory) ListAttendance(_ context.Context, f AttendanceFilter) ([]model.AttendanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	var res []model.AttendanceRecord
	for _, rec := range m.attendance {
		if f.ActorID != "" && rec.ActorID != f.ActorID {
			continue
		}
		if f.SessionID != "" && rec.SessionID != f.SessionID {
			continue
		}
		if !f.From.IsZero() && rec.CheckInTime.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && !rec.CheckInTime.Before(f.To) {
			continue
		}
		res = append(res, rec)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CheckInTime.After(res[j].CheckInTime) })
	if len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (m *Memory) CountByStatus(_ context.Context, day string) (map[model.Status]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[model.Status]int)
	for _, rec := range m.attendance {
		if rec.Day == day {
			counts[rec.Status]++
		}
	}
	return counts, nil
}
