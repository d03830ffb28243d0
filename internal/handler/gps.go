package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"presence/internal/faults"
	"presence/internal/geo"
	"presence/internal/model"
)

type locationCheckRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	FenceID   string  `json:"fence_id"`
}

// CheckLocation answers "would this position pass the fence check" without
// touching attendance. Clients use it to preflight a check-in.
func (a *API) CheckLocation(c *gin.Context) {
	var req locationCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	point := geo.Point{Lat: req.Latitude, Lng: req.Longitude}
	if err := point.Validate(); err != nil {
		a.writeError(c, err)
		return
	}

	fenceID := req.FenceID
	if fenceID == "" {
		fenceID = model.DefaultFenceID
	}
	f, err := a.store.GetFence(c.Request.Context(), fenceID)
	if err != nil {
		a.writeError(c, faults.Store(err))
		return
	}
	if f == nil {
		a.writeError(c, faults.New(faults.NotFound, "geofence not configured"))
		return
	}

	fence := geo.Fence{Center: geo.Point{Lat: f.CenterLat, Lng: f.CenterLng}, RadiusMeters: f.RadiusMeters}
	inside, distance, err := fence.Contains(point)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"within_bounds":   inside,
		"distance_meters": distance,
		"radius_meters":   f.RadiusMeters,
		"fence_id":        f.ID,
	})
}

func (a *API) GetFence(c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		id = model.DefaultFenceID
	}
	f, err := a.store.GetFence(c.Request.Context(), id)
	if err != nil {
		a.writeError(c, faults.Store(err))
		return
	}
	if f == nil {
		a.writeError(c, faults.New(faults.NotFound, "geofence not configured"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"fence": f})
}

type fenceUpdateRequest struct {
	ID           string  `json:"id"`
	CenterLat    float64 `json:"center_lat"`
	CenterLng    float64 `json:"center_lng"`
	RadiusMeters float64 `json:"radius_meters" binding:"required,gt=0"`
}

func (a *API) UpdateFence(c *gin.Context) {
	var req fenceUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	center := geo.Point{Lat: req.CenterLat, Lng: req.CenterLng}
	if err := center.Validate(); err != nil {
		a.writeError(c, err)
		return
	}
	id := req.ID
	if id == "" {
		id = model.DefaultFenceID
	}
	f := &model.GeoFence{
		ID:           id,
		CenterLat:    req.CenterLat,
		CenterLng:    req.CenterLng,
		RadiusMeters: req.RadiusMeters,
		UpdatedAt:    time.Now().UTC(),
	}
	if err := a.store.PutFence(c.Request.Context(), f); err != nil {
		a.writeError(c, faults.Store(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"fence": f})
}
