package handler

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"presence/internal/attendance"
	"presence/internal/faults"
	"presence/internal/model"
	"presence/internal/store"
)

type checkInRequest struct {
	Sample         string   `json:"sample" binding:"required"` // base64
	Latitude       float64  `json:"latitude"`
	Longitude      float64  `json:"longitude"`
	AccuracyMeters *float64 `json:"accuracy_meters"`
	SessionID      string   `json:"session_id"`
}

func (a *API) CheckIn(c *gin.Context) {
	var req checkInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	sample, err := base64.StdEncoding.DecodeString(req.Sample)
	if err != nil {
		a.writeError(c, faults.New(faults.NoSampleProvided, "sample is not valid base64"))
		return
	}
	rec, err := a.pipeline.CheckIn(c.Request.Context(), attendance.CheckInRequest{
		Token:          bearerToken(c),
		Sample:         sample,
		Latitude:       req.Latitude,
		Longitude:      req.Longitude,
		AccuracyMeters: req.AccuracyMeters,
		SessionID:      req.SessionID,
	})
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"record": rec})
}

type checkOutRequest struct {
	RecordID string `json:"record_id" binding:"required"`
}

func (a *API) CheckOut(c *gin.Context) {
	var req checkOutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	rec, err := a.pipeline.CheckOut(c.Request.Context(), bearerToken(c), req.RecordID)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"record": rec})
}

type excuseRequest struct {
	ActorID   string `json:"actor_id" binding:"required"`
	SessionID string `json:"session_id"`
	Notes     string `json:"notes"`
}

func (a *API) MarkExcused(c *gin.Context) {
	var req excuseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	rec, err := a.pipeline.MarkExcused(c.Request.Context(), bearerToken(c), req.ActorID, req.SessionID, req.Notes)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"record": rec})
}

// History lists attendance records. Non-admin callers only see their own
// rows regardless of the actor_id query parameter.
func (a *API) History(c *gin.Context) {
	actor := currentActor(c)

	filter := store.AttendanceFilter{
		ActorID:   c.Query("actor_id"),
		SessionID: c.Query("session_id"),
	}
	if actor.Role != model.RoleAdmin {
		filter.ActorID = actor.ID
	}
	if v := c.Query("from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			badRequest(c, err)
			return
		}
		filter.From = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			badRequest(c, err)
			return
		}
		// Inclusive day bound.
		filter.To = t.Add(24*time.Hour - time.Nanosecond)
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			badRequest(c, errors.New("limit must be a positive integer"))
			return
		}
		filter.Limit = n
	}

	recs, err := a.store.ListAttendance(c.Request.Context(), filter)
	if err != nil {
		a.writeError(c, faults.Store(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": recs, "count": len(recs)})
}

// Summary reports per-status counts for a day plus a seven day present trend.
// Admin only; an individual's history endpoint covers the non-admin case.
func (a *API) Summary(c *gin.Context) {
	actor := currentActor(c)
	if actor.Role != model.RoleAdmin {
		a.writeError(c, faults.New(faults.Forbidden, "admin role required"))
		return
	}

	day := c.Query("day")
	if day == "" {
		day = model.DayOf(time.Now())
	}
	anchor, err := time.Parse("2006-01-02", day)
	if err != nil {
		badRequest(c, err)
		return
	}

	counts, err := a.store.CountByStatus(c.Request.Context(), day)
	if err != nil {
		a.writeError(c, faults.Store(err))
		return
	}

	type trendPoint struct {
		Day     string `json:"day"`
		Present int    `json:"present"`
		Late    int    `json:"late"`
	}
	trend := make([]trendPoint, 0, 7)
	for i := 6; i >= 0; i-- {
		d := model.DayOf(anchor.AddDate(0, 0, -i))
		dc, err := a.store.CountByStatus(c.Request.Context(), d)
		if err != nil {
			a.writeError(c, faults.Store(err))
			return
		}
		trend = append(trend, trendPoint{
			Day:     d,
			Present: dc[model.StatusPresent],
			Late:    dc[model.StatusLate],
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"day": day,
		"counts": gin.H{
			"present": counts[model.StatusPresent],
			"late":    counts[model.StatusLate],
			"absent":  counts[model.StatusAbsent],
			"excused": counts[model.StatusExcused],
		},
		"trend": trend,
	})
}

type windowRequest struct {
	Name             string `json:"name" binding:"required"`
	StartTime        string `json:"start_time" binding:"required"` // RFC 3339
	EndTime          string `json:"end_time" binding:"required"`
	LateThresholdMin int    `json:"late_threshold_minutes"`
	FenceID          string `json:"fence_id"`
}

func (a *API) CreateWindow(c *gin.Context) {
	var req windowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		badRequest(c, err)
		return
	}
	end, err := time.Parse(time.RFC3339, req.EndTime)
	if err != nil {
		badRequest(c, err)
		return
	}
	if !end.After(start) {
		a.writeError(c, faults.New(faults.Conflict, "window end must be after start"))
		return
	}
	w := &model.ScheduleWindow{
		ID:            uuid.NewString(),
		Name:          req.Name,
		StartTime:     start.UTC(),
		EndTime:       end.UTC(),
		LateThreshold: time.Duration(req.LateThresholdMin) * time.Minute,
		FenceID:       req.FenceID,
	}
	if err := a.store.CreateWindow(c.Request.Context(), w); err != nil {
		a.writeError(c, faults.Store(err))
		return
	}
	c.JSON(http.StatusCreated, gin.H{"window": w})
}

func (a *API) GetWindow(c *gin.Context) {
	w, err := a.store.GetWindow(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.writeError(c, faults.Store(err))
		return
	}
	if w == nil {
		a.writeError(c, faults.New(faults.NotFound, "schedule window not found"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"window": w})
}
