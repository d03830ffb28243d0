package model

import "time"

// Role determines what an actor may do; admins manage fences and windows.
type Role string

const (
	RoleStudent  Role = "student"
	RoleEmployee Role = "employee"
	RoleAdmin    Role = "admin"
)

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleEmployee, RoleAdmin:
		return true
	}
	return false
}

// Actor is a registered person who can check in.
type Actor struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	Department   string    `json:"department,omitempty"`
	FaceTemplate []float64 `json:"-"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// FaceEnrolled reports whether the enrollment step has stored a template.
func (a *Actor) FaceEnrolled() bool { return len(a.FaceTemplate) > 0 }

// Status is the classified outcome of a check-in.
type Status string

const (
	StatusPresent Status = "present"
	StatusLate    Status = "late"
	StatusAbsent  Status = "absent"
	StatusExcused Status = "excused"
)

// AttendanceRecord is the durable result of one check-in attempt that reached
// persistence. Records are appended and checked out, never deleted.
type AttendanceRecord struct {
	ID             string     `json:"id"`
	ActorID        string     `json:"actor_id"`
	SessionID      string     `json:"session_id,omitempty"`
	Day            string     `json:"day"` // YYYY-MM-DD in UTC, part of the idempotency key
	CheckInTime    time.Time  `json:"check_in_time"`
	CheckOutTime   *time.Time `json:"check_out_time,omitempty"`
	Status         Status     `json:"status"`
	Lat            float64    `json:"latitude"`
	Lng            float64    `json:"longitude"`
	AccuracyMeters *float64   `json:"accuracy_meters,omitempty"`
	LocationValid  bool       `json:"location_valid"`
	FaceVerified   bool       `json:"face_verified"`
	FaceConfidence *float64   `json:"face_confidence,omitempty"`
	Notes          string     `json:"notes,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// DayOf formats a check-in timestamp into the calendar day used for
// idempotency, always in UTC so the key does not shift with server locale.
func DayOf(t time.Time) string { return t.UTC().Format("2006-01-02") }

// Session is a login session. Token uniqueness is enforced by the store.
type Session struct {
	Token     string    `json:"token"`
	ActorID   string    `json:"actor_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Expired reports whether the session is past its expiry at the given time.
func (s *Session) Expired(now time.Time) bool { return now.After(s.ExpiresAt) }

// DefaultFenceID names the institution-wide fence used when a schedule window
// does not carry its own.
const DefaultFenceID = "default"

// GeoFence is an admin-configured circular boundary, read-only to the
// pipeline. Loaded per request, never held as process-global state.
type GeoFence struct {
	ID           string    `json:"id"`
	CenterLat    float64   `json:"center_lat"`
	CenterLng    float64   `json:"center_lng"`
	RadiusMeters float64   `json:"radius_meters"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ScheduleWindow bounds when check-ins for a class session are accepted and
// when "present" degrades to "late".
type ScheduleWindow struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	StartTime     time.Time     `json:"start_time"`
	EndTime       time.Time     `json:"end_time"`
	LateThreshold time.Duration `json:"late_threshold"`
	FenceID       string        `json:"fence_id,omitempty"`
}

// Kinds for VerificationOutcome.
const (
	VerificationIdentity = "identity"
	VerificationLocation = "location"
)

// VerificationOutcome is the transient result of one verification check. It
// feeds the classifier and is folded into the record, never stored directly.
type VerificationOutcome struct {
	Kind           string
	Passed         bool
	Confidence     float64
	DistanceMeters float64
	Reason         string
}
