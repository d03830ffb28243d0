package attendance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"presence/internal/face"
	"presence/internal/faults"
	"presence/internal/model"
	"presence/internal/queue"
	"presence/internal/session"
	"presence/internal/store"
)

// Fence center used by all pipeline tests; radius 100 m.
const (
	fenceLat = 40.7128
	fenceLng = -74.0060
)

type pipelineFixture struct {
	store    *store.Memory
	verifier *face.Mock
	guard    *session.Guard
	pipeline *Pipeline
	audit    *queue.InMemory
	actor    *model.Actor
	token    string
	now      time.Time
}

func setupPipeline(t *testing.T) *pipelineFixture {
	t.Helper()
	ctx := context.Background()

	m := store.NewMemory()
	if err := m.PutFence(ctx, &model.GeoFence{
		ID: model.DefaultFenceID, CenterLat: fenceLat, CenterLng: fenceLng, RadiusMeters: 100,
	}); err != nil {
		t.Fatalf("put fence: %v", err)
	}

	actor := &model.Actor{
		ID:           uuid.NewString(),
		Name:         "Alice",
		Email:        "alice@school.edu",
		Role:         model.RoleStudent,
		FaceTemplate: []float64{0.1, 0.2, 0.3},
		Active:       true,
		CreatedAt:    time.Now().UTC(),
	}
	if err := m.CreateActor(ctx, actor); err != nil {
		t.Fatalf("create actor: %v", err)
	}

	g := session.NewGuard(m, "test-key", "presence-test", time.Hour, 2*time.Second, nil)
	sess, err := g.Issue(ctx, actor)
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}

	verifier := &face.Mock{Similarity: 0.9, Threshold: face.DefaultThreshold}
	audit := queue.NewInMemory(16)
	p := NewPipeline(m, verifier, g, audit, nil, 2*time.Second)

	now := time.Date(2026, 3, 2, 9, 5, 0, 0, time.UTC)
	p.nowFn = func() time.Time { return now }

	return &pipelineFixture{
		store: m, verifier: verifier, guard: g, pipeline: p,
		audit: audit, actor: actor, token: sess.Token, now: now,
	}
}

func (f *pipelineFixture) insideRequest() CheckInRequest {
	return CheckInRequest{
		Token:     f.token,
		Sample:    []byte("frame"),
		Latitude:  fenceLat,
		Longitude: fenceLng,
	}
}

func (f *pipelineFixture) drainAudit(t *testing.T) queue.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	events, err := f.audit.Consume(ctx)
	if err != nil {
		t.Fatalf("consume audit: %v", err)
	}
	select {
	case evt := <-events:
		return evt
	case <-ctx.Done():
		t.Fatal("no audit event published")
		return queue.Event{}
	}
}

func wantKind(t *testing.T, err error, kind faults.Kind) {
	t.Helper()
	if !errors.Is(err, &faults.Error{Kind: kind}) {
		t.Fatalf("expected %s, got %v", kind, err)
	}
}

func TestCheckInHappyPath(t *testing.T) {
	f := setupPipeline(t)

	accuracy := 12.5
	req := f.insideRequest()
	req.AccuracyMeters = &accuracy

	rec, err := f.pipeline.CheckIn(context.Background(), req)
	if err != nil {
		t.Fatalf("check-in: %v", err)
	}
	if rec.Status != model.StatusPresent {
		t.Errorf("status = %s, want present", rec.Status)
	}
	if !rec.FaceVerified || !rec.LocationValid {
		t.Errorf("flags = face:%v location:%v, want both true", rec.FaceVerified, rec.LocationValid)
	}
	if rec.FaceConfidence == nil || *rec.FaceConfidence != 0.9 {
		t.Errorf("confidence = %v, want 0.9", rec.FaceConfidence)
	}
	if rec.Day != "2026-03-02" {
		t.Errorf("day = %s", rec.Day)
	}
	if rec.AccuracyMeters == nil || *rec.AccuracyMeters != accuracy {
		t.Errorf("accuracy = %v, want %v", rec.AccuracyMeters, accuracy)
	}

	evt := f.drainAudit(t)
	if evt.Kind != queue.KindAccepted || evt.RecordID != rec.ID {
		t.Errorf("audit event = %+v", evt)
	}
}

func TestCheckInLocationAsymmetry(t *testing.T) {
	// Face matches at 0.9 but the actor is ~500 m outside a 100 m fence:
	// the attempt is recorded as absent, not rejected.
	f := setupPipeline(t)

	req := f.insideRequest()
	req.Latitude = fenceLat + 0.0045 // about 500 m north

	rec, err := f.pipeline.CheckIn(context.Background(), req)
	if err != nil {
		t.Fatalf("check-in: %v", err)
	}
	if rec.Status != model.StatusAbsent {
		t.Errorf("status = %s, want absent", rec.Status)
	}
	if rec.LocationValid {
		t.Error("location_valid = true, want false")
	}
	if !rec.FaceVerified {
		t.Error("face_verified = false, want true")
	}
	if rec.Notes == "" {
		t.Error("expected distance note on absent record")
	}
}

func TestCheckInNotEnrolled(t *testing.T) {
	f := setupPipeline(t)
	ctx := context.Background()

	// Second actor without an enrolled template.
	other := &model.Actor{
		ID: uuid.NewString(), Name: "Bob", Email: "bob@school.edu",
		Role: model.RoleStudent, Active: true, CreatedAt: time.Now().UTC(),
	}
	if err := f.store.CreateActor(ctx, other); err != nil {
		t.Fatalf("create actor: %v", err)
	}
	sess, err := f.guard.Issue(ctx, other)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	req := f.insideRequest()
	req.Token = sess.Token
	_, err = f.pipeline.CheckIn(ctx, req)
	wantKind(t, err, faults.NotEnrolled)

	// No record was created.
	recs, _ := f.store.ListAttendance(ctx, store.AttendanceFilter{ActorID: other.ID})
	if len(recs) != 0 {
		t.Errorf("found %d records after rejection, want 0", len(recs))
	}
}

func TestCheckInMultipleFaces(t *testing.T) {
	f := setupPipeline(t)
	f.verifier.Similarity = 0.99
	f.verifier.FacesDetected = 2

	_, err := f.pipeline.CheckIn(context.Background(), f.insideRequest())
	wantKind(t, err, faults.IdentityFailed)

	var ferr *faults.Error
	errors.As(err, &ferr)
	if ferr.Detail != faults.ReasonMultipleFaces {
		t.Errorf("detail = %q, want %q", ferr.Detail, faults.ReasonMultipleFaces)
	}

	evt := f.drainAudit(t)
	if evt.Kind != queue.KindRejected || evt.ErrorKind != string(faults.IdentityFailed) {
		t.Errorf("audit event = %+v", evt)
	}
}

func TestCheckInInvalidCoordinate(t *testing.T) {
	f := setupPipeline(t)
	req := f.insideRequest()
	req.Latitude = 123.4

	_, err := f.pipeline.CheckIn(context.Background(), req)
	wantKind(t, err, faults.InvalidCoordinate)
}

func TestCheckInExpiredSession(t *testing.T) {
	f := setupPipeline(t)
	ctx := context.Background()

	if err := f.guard.Revoke(ctx, f.token); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	_, err := f.pipeline.CheckIn(ctx, f.insideRequest())
	wantKind(t, err, faults.SessionNotFound)
}

func TestCheckInIdempotent(t *testing.T) {
	f := setupPipeline(t)
	ctx := context.Background()

	first, err := f.pipeline.CheckIn(ctx, f.insideRequest())
	if err != nil {
		t.Fatalf("first check-in: %v", err)
	}
	second, err := f.pipeline.CheckIn(ctx, f.insideRequest())
	if err != nil {
		t.Fatalf("second check-in: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("second check-in created record %s, want existing %s", second.ID, first.ID)
	}

	recs, _ := f.store.ListAttendance(ctx, store.AttendanceFilter{ActorID: f.actor.ID})
	if len(recs) != 1 {
		t.Errorf("stored %d records, want 1", len(recs))
	}
}

func TestCheckInUpgradesAbsentRecord(t *testing.T) {
	f := setupPipeline(t)
	ctx := context.Background()

	outside := f.insideRequest()
	outside.Latitude = fenceLat + 0.0045
	rec, err := f.pipeline.CheckIn(ctx, outside)
	if err != nil {
		t.Fatalf("outside check-in: %v", err)
	}
	if rec.Status != model.StatusAbsent {
		t.Fatalf("status = %s, want absent", rec.Status)
	}

	// The actor walks into the fence and retries.
	upgraded, err := f.pipeline.CheckIn(ctx, f.insideRequest())
	if err != nil {
		t.Fatalf("retry check-in: %v", err)
	}
	if upgraded.ID != rec.ID {
		t.Errorf("upgrade created new record %s, want in-place update of %s", upgraded.ID, rec.ID)
	}
	if upgraded.Status != model.StatusPresent {
		t.Errorf("status = %s, want present", upgraded.Status)
	}
	if !upgraded.LocationValid {
		t.Error("location_valid must flip to true on upgrade")
	}
	if upgraded.Lat != fenceLat || upgraded.Lng != fenceLng {
		t.Errorf("upgraded coordinates = (%v, %v), want the passing attempt's (%v, %v)",
			upgraded.Lat, upgraded.Lng, fenceLat, fenceLng)
	}

	stored, err := f.store.GetAttendance(ctx, rec.ID)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if stored.Lat != fenceLat {
		t.Errorf("stored latitude = %v, still the outside attempt's", stored.Lat)
	}

	recs, _ := f.store.ListAttendance(ctx, store.AttendanceFilter{ActorID: f.actor.ID})
	if len(recs) != 1 {
		t.Errorf("stored %d records, want 1", len(recs))
	}
}

func TestCheckInScheduleWindow(t *testing.T) {
	f := setupPipeline(t)
	ctx := context.Background()

	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	if err := f.store.CreateWindow(ctx, &model.ScheduleWindow{
		ID: "w1", Name: "Morning Lecture",
		StartTime: start, EndTime: start.Add(2 * time.Hour),
		LateThreshold: 15 * time.Minute,
	}); err != nil {
		t.Fatalf("create window: %v", err)
	}

	req := f.insideRequest()
	req.SessionID = "w1"

	// 9:05 with a 15 minute threshold: present.
	rec, err := f.pipeline.CheckIn(ctx, req)
	if err != nil {
		t.Fatalf("check-in: %v", err)
	}
	if rec.Status != model.StatusPresent {
		t.Errorf("status = %s, want present", rec.Status)
	}

	// Before the window opens: rejected, nothing stored.
	req2 := req
	req2.SessionID = "w2"
	if err := f.store.CreateWindow(ctx, &model.ScheduleWindow{
		ID: "w2", Name: "Afternoon Lab",
		StartTime: f.now.Add(3 * time.Hour), EndTime: f.now.Add(5 * time.Hour),
		LateThreshold: 10 * time.Minute,
	}); err != nil {
		t.Fatalf("create window: %v", err)
	}
	_, err = f.pipeline.CheckIn(ctx, req2)
	wantKind(t, err, faults.OutsideWindow)

	// Unknown window id.
	req3 := req
	req3.SessionID = "missing"
	_, err = f.pipeline.CheckIn(ctx, req3)
	wantKind(t, err, faults.NotFound)
}

func TestCheckOutLifecycle(t *testing.T) {
	f := setupPipeline(t)
	ctx := context.Background()

	rec, err := f.pipeline.CheckIn(ctx, f.insideRequest())
	if err != nil {
		t.Fatalf("check-in: %v", err)
	}

	out, err := f.pipeline.CheckOut(ctx, f.token, rec.ID)
	if err != nil {
		t.Fatalf("check-out: %v", err)
	}
	if out.CheckOutTime == nil {
		t.Fatal("check_out_time not set")
	}

	_, err = f.pipeline.CheckOut(ctx, f.token, rec.ID)
	wantKind(t, err, faults.AlreadyCheckedOut)

	_, err = f.pipeline.CheckOut(ctx, f.token, "no-such-record")
	wantKind(t, err, faults.NotFound)
}

func TestCheckOutForbiddenForOtherActor(t *testing.T) {
	f := setupPipeline(t)
	ctx := context.Background()

	rec, err := f.pipeline.CheckIn(ctx, f.insideRequest())
	if err != nil {
		t.Fatalf("check-in: %v", err)
	}

	other := &model.Actor{
		ID: uuid.NewString(), Name: "Mallory", Email: "mallory@school.edu",
		Role: model.RoleStudent, Active: true, CreatedAt: time.Now().UTC(),
	}
	f.store.CreateActor(ctx, other)
	sess, _ := f.guard.Issue(ctx, other)

	_, err = f.pipeline.CheckOut(ctx, sess.Token, rec.ID)
	wantKind(t, err, faults.Forbidden)
}

func TestMarkExcusedRequiresAdmin(t *testing.T) {
	f := setupPipeline(t)
	ctx := context.Background()

	_, err := f.pipeline.MarkExcused(ctx, f.token, f.actor.ID, "", "doctor visit")
	wantKind(t, err, faults.Forbidden)

	admin := &model.Actor{
		ID: uuid.NewString(), Name: "Root", Email: "admin@school.edu",
		Role: model.RoleAdmin, Active: true, CreatedAt: time.Now().UTC(),
	}
	f.store.CreateActor(ctx, admin)
	sess, _ := f.guard.Issue(ctx, admin)

	rec, err := f.pipeline.MarkExcused(ctx, sess.Token, f.actor.ID, "", "doctor visit")
	if err != nil {
		t.Fatalf("mark excused: %v", err)
	}
	if rec.Status != model.StatusExcused {
		t.Errorf("status = %s, want excused", rec.Status)
	}

	// A second mark for the same day conflicts.
	_, err = f.pipeline.MarkExcused(ctx, sess.Token, f.actor.ID, "", "again")
	wantKind(t, err, faults.Conflict)
}
