package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"presence/internal/face"
	"presence/internal/faults"
	"presence/internal/geo"
	"presence/internal/metrics"
	"presence/internal/model"
	"presence/internal/queue"
	"presence/internal/session"
	"presence/internal/store"
)

// Pipeline runs the full check-in sequence: authenticate, verify identity
// and location, classify, persist. It is written purely against the Store
// and Verifier interfaces; which implementation backs them is wiring.
type Pipeline struct {
	store    store.Store
	verifier face.Verifier
	guard    *session.Guard
	audit    queue.Queue
	log      *zap.Logger
	timeout  time.Duration
	nowFn    func() time.Time
}

// NewPipeline wires the pipeline. audit may be nil, in which case decisions
// are only logged. timeout bounds every store and verifier call.
func NewPipeline(s store.Store, v face.Verifier, g *session.Guard, audit queue.Queue, log *zap.Logger, timeout time.Duration) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Pipeline{
		store:    s,
		verifier: v,
		guard:    g,
		audit:    audit,
		log:      log,
		timeout:  timeout,
		nowFn:    time.Now,
	}
}

// CheckInRequest is the wire shape of one check-in attempt.
type CheckInRequest struct {
	Token          string
	Sample         []byte
	Latitude       float64
	Longitude      float64
	AccuracyMeters *float64
	SessionID      string
}

func (p *Pipeline) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, p.timeout)
}

// CheckIn runs the pipeline for one attempt. Identity and location are
// evaluated independently so the classifier can apply its asymmetric policy;
// a second submission for the same (actor, session, day) returns the
// existing record instead of creating a duplicate.
func (p *Pipeline) CheckIn(ctx context.Context, req CheckInRequest) (*model.AttendanceRecord, error) {
	actor, err := p.guard.Authenticate(ctx, req.Token)
	if err != nil {
		return nil, err
	}

	point := geo.Point{Lat: req.Latitude, Lng: req.Longitude}
	if err := point.Validate(); err != nil {
		p.reject(ctx, actor.ID, req.SessionID, err)
		return nil, err
	}

	sctx, cancel := p.bound(ctx)
	defer cancel()

	var window *model.ScheduleWindow
	if req.SessionID != "" {
		window, err = p.store.GetWindow(sctx, req.SessionID)
		if err != nil {
			return nil, faults.Store(err)
		}
		if window == nil {
			return nil, faults.New(faults.NotFound, "schedule window not found")
		}
	}

	fence, err := p.resolveFence(sctx, window)
	if err != nil {
		return nil, err
	}

	// Identity and location have no data dependency; run the verifier call
	// concurrently with the fence check. Both outcomes are always computed.
	type verifyResult struct {
		out face.Outcome
		err error
	}
	verifyCh := make(chan verifyResult, 1)
	vctx, vcancel := p.bound(ctx)
	defer vcancel()
	go func() {
		out, verr := p.verifier.Verify(vctx, actor, req.Sample)
		verifyCh <- verifyResult{out, verr}
	}()

	inside, distance, geoErr := fence.Contains(point)
	vres := <-verifyCh

	if vres.err != nil {
		if errors.Is(vres.err, context.DeadlineExceeded) {
			vres.err = faults.Wrap(faults.UpstreamTimeout, "identity verification timed out", vres.err)
		}
		p.reject(ctx, actor.ID, req.SessionID, vres.err)
		return nil, vres.err
	}
	if geoErr != nil {
		p.reject(ctx, actor.ID, req.SessionID, geoErr)
		return nil, geoErr
	}

	identity := model.VerificationOutcome{
		Kind:       model.VerificationIdentity,
		Passed:     vres.out.Passed,
		Confidence: vres.out.Confidence,
		Reason:     vres.out.Reason,
	}
	location := model.VerificationOutcome{
		Kind:           model.VerificationLocation,
		Passed:         inside,
		DistanceMeters: distance,
	}
	if !inside {
		location.Reason = fmt.Sprintf("%.0f m from fence center, radius %.0f m", distance, fence.RadiusMeters)
	}

	now := p.nowFn().UTC()
	dec := Classify(now, window, identity, location)
	if dec.Reject != nil {
		p.reject(ctx, actor.ID, req.SessionID, dec.Reject)
		return nil, dec.Reject
	}

	return p.persist(ctx, actor, req, now, dec, identity, location)
}

func (p *Pipeline) resolveFence(ctx context.Context, window *model.ScheduleWindow) (geo.Fence, error) {
	fenceID := model.DefaultFenceID
	if window != nil && window.FenceID != "" {
		fenceID = window.FenceID
	}
	f, err := p.store.GetFence(ctx, fenceID)
	if err != nil {
		return geo.Fence{}, faults.Store(err)
	}
	if f == nil {
		return geo.Fence{}, faults.New(faults.NotFound, "geofence not configured")
	}
	return geo.Fence{Center: geo.Point{Lat: f.CenterLat, Lng: f.CenterLng}, RadiusMeters: f.RadiusMeters}, nil
}

func (p *Pipeline) persist(ctx context.Context, actor *model.Actor, req CheckInRequest, now time.Time, dec Decision, identity, location model.VerificationOutcome) (*model.AttendanceRecord, error) {
	day := model.DayOf(now)
	sctx, cancel := p.bound(ctx)
	defer cancel()

	existing, err := p.store.FindAttendance(sctx, actor.ID, req.SessionID, day)
	if err != nil {
		return nil, faults.Store(err)
	}
	if existing != nil {
		return p.reconcile(sctx, existing, req, now, dec, identity, location)
	}

	conf := identity.Confidence
	rec := &model.AttendanceRecord{
		ID:             uuid.NewString(),
		ActorID:        actor.ID,
		SessionID:      req.SessionID,
		Day:            day,
		CheckInTime:    now,
		Status:         dec.Status,
		Lat:            req.Latitude,
		Lng:            req.Longitude,
		AccuracyMeters: req.AccuracyMeters,
		LocationValid:  location.Passed,
		FaceVerified:   identity.Passed,
		FaceConfidence: &conf,
		Notes:          location.Reason,
	}
	if err := p.store.InsertAttendance(sctx, rec); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			// Lost the race against a concurrent check-in; the constraint
			// guarantees exactly one row, so return the winner.
			winner, ferr := p.store.FindAttendance(sctx, actor.ID, req.SessionID, day)
			if ferr != nil {
				return nil, faults.Store(ferr)
			}
			if winner != nil {
				return winner, nil
			}
			return nil, faults.New(faults.Conflict, "concurrent check-in conflict")
		}
		return nil, faults.Store(err)
	}

	metrics.CheckinsTotal.WithLabelValues(string(rec.Status)).Inc()
	p.publish(ctx, queue.Event{
		Kind:      queue.KindAccepted,
		ActorID:   actor.ID,
		RecordID:  rec.ID,
		SessionID: req.SessionID,
		Status:    string(rec.Status),
		At:        now,
	})
	p.log.Info("check-in recorded",
		zap.String("actor_id", actor.ID),
		zap.String("record_id", rec.ID),
		zap.String("status", string(rec.Status)),
		zap.Bool("location_valid", rec.LocationValid),
		zap.Float64("confidence", conf),
	)
	return rec, nil
}

// reconcile handles a resubmission that found an existing record. An absent
// record upgrades in place when a later attempt passes the location check;
// everything else is a no-op returning the stored row. Never a second row.
func (p *Pipeline) reconcile(ctx context.Context, existing *model.AttendanceRecord, req CheckInRequest, now time.Time, dec Decision, identity, location model.VerificationOutcome) (*model.AttendanceRecord, error) {
	if existing.Status != model.StatusAbsent || dec.Status == model.StatusAbsent {
		return existing, nil
	}
	conf := identity.Confidence
	existing.Status = dec.Status
	existing.LocationValid = location.Passed
	existing.FaceVerified = identity.Passed
	existing.FaceConfidence = &conf
	existing.CheckInTime = now
	// The row keeps the coordinates of the attempt that passed, not the
	// outside-the-fence ones it was created with.
	existing.Lat = req.Latitude
	existing.Lng = req.Longitude
	existing.AccuracyMeters = req.AccuracyMeters
	existing.Notes = ""
	if err := p.store.UpdateAttendance(ctx, existing); err != nil {
		return nil, faults.Store(err)
	}
	metrics.CheckinsTotal.WithLabelValues(string(existing.Status)).Inc()
	p.log.Info("check-in upgraded from absent",
		zap.String("record_id", existing.ID),
		zap.String("status", string(existing.Status)),
	)
	return existing, nil
}

// CheckOut closes an open attendance interval. Only the owning actor (or an
// admin) may check out, and only once.
func (p *Pipeline) CheckOut(ctx context.Context, token, recordID string) (*model.AttendanceRecord, error) {
	actor, err := p.guard.Authenticate(ctx, token)
	if err != nil {
		return nil, err
	}

	sctx, cancel := p.bound(ctx)
	defer cancel()

	rec, err := p.store.GetAttendance(sctx, recordID)
	if err != nil {
		return nil, faults.Store(err)
	}
	if rec == nil {
		return nil, faults.New(faults.NotFound, "attendance record not found")
	}
	if rec.ActorID != actor.ID && actor.Role != model.RoleAdmin {
		return nil, faults.New(faults.Forbidden, "record belongs to another actor")
	}
	if rec.CheckOutTime != nil {
		return nil, faults.New(faults.AlreadyCheckedOut, "record already checked out")
	}

	now := p.nowFn().UTC()
	if err := p.store.SetCheckOut(sctx, rec.ID, now); err != nil {
		return nil, faults.Store(err)
	}
	rec.CheckOutTime = &now
	metrics.CheckoutsTotal.Inc()
	p.log.Info("check-out recorded", zap.String("record_id", rec.ID), zap.String("actor_id", rec.ActorID))
	return rec, nil
}

// MarkExcused lets an admin record an excused absence for an actor. The
// classifier never emits excused on its own.
func (p *Pipeline) MarkExcused(ctx context.Context, token, actorID, sessionID, notes string) (*model.AttendanceRecord, error) {
	admin, err := p.guard.Authenticate(ctx, token)
	if err != nil {
		return nil, err
	}
	if admin.Role != model.RoleAdmin {
		return nil, faults.New(faults.Forbidden, "admin role required")
	}

	sctx, cancel := p.bound(ctx)
	defer cancel()

	target, err := p.store.GetActor(sctx, actorID)
	if err != nil {
		return nil, faults.Store(err)
	}
	if target == nil {
		return nil, faults.New(faults.NotFound, "actor not found")
	}

	now := p.nowFn().UTC()
	rec := &model.AttendanceRecord{
		ID:          uuid.NewString(),
		ActorID:     actorID,
		SessionID:   sessionID,
		Day:         model.DayOf(now),
		CheckInTime: now,
		Status:      model.StatusExcused,
		Notes:       notes,
	}
	if err := p.store.InsertAttendance(sctx, rec); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, faults.New(faults.Conflict, "attendance already recorded for that day")
		}
		return nil, faults.Store(err)
	}
	metrics.CheckinsTotal.WithLabelValues(string(model.StatusExcused)).Inc()
	return rec, nil
}

// reject logs and publishes an audit event for a refused attempt. Every
// rejection is auditable even though no record is written.
func (p *Pipeline) reject(ctx context.Context, actorID, sessionID string, cause error) {
	kind := faults.KindOf(cause)
	detail := ""
	var ferr *faults.Error
	if errors.As(cause, &ferr) {
		detail = ferr.Detail
	}
	metrics.RejectionsTotal.WithLabelValues(string(kind)).Inc()
	p.publish(ctx, queue.Event{
		Kind:      queue.KindRejected,
		ActorID:   actorID,
		SessionID: sessionID,
		ErrorKind: string(kind),
		Detail:    detail,
		At:        p.nowFn().UTC(),
	})
	p.log.Warn("check-in rejected",
		zap.String("actor_id", actorID),
		zap.String("session_id", sessionID),
		zap.String("error_kind", string(kind)),
		zap.String("detail", detail),
	)
}

// publish is best-effort: a full or unreachable audit queue must not fail
// the request, the decision is already logged.
func (p *Pipeline) publish(ctx context.Context, evt queue.Event) {
	if p.audit == nil {
		return
	}
	pctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := p.audit.Publish(pctx, evt); err != nil {
		p.log.Warn("audit publish failed", zap.Error(err))
	}
}
