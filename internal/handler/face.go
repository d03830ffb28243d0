package handler

import (
	"encoding/base64"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"presence/internal/faults"
	"presence/internal/model"
)

type enrollRequest struct {
	Sample string `json:"sample" binding:"required"` // base64
}

// EnrollFace extracts a template from the captured frame and stores it on the
// caller's account. Re-enrolling replaces the previous template.
func (a *API) EnrollFace(c *gin.Context) {
	var req enrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	sample, err := base64.StdEncoding.DecodeString(req.Sample)
	if err != nil {
		a.writeError(c, faults.New(faults.NoSampleProvided, "sample is not valid base64"))
		return
	}

	template, err := a.faces.Extract(c.Request.Context(), sample)
	if err != nil {
		a.writeError(c, err)
		return
	}
	if len(template) == 0 {
		a.writeError(c, faults.New(faults.IdentityFailed, "no face found in enrollment frame"))
		return
	}

	actor := currentActor(c)
	if err := a.store.SetFaceTemplate(c.Request.Context(), actor.ID, template); err != nil {
		a.writeError(c, faults.Store(err))
		return
	}
	a.log.Info("face enrolled", zap.String("actor_id", actor.ID), zap.Int("template_len", len(template)))
	c.JSON(http.StatusOK, gin.H{"enrolled": true})
}

// FaceStatus reports whether an actor has an enrollment template. Actors can
// query themselves; admins can query anyone.
func (a *API) FaceStatus(c *gin.Context) {
	id := c.Param("id")
	caller := currentActor(c)
	if id != caller.ID && caller.Role != model.RoleAdmin {
		a.writeError(c, faults.New(faults.Forbidden, "cannot query another actor"))
		return
	}
	target, err := a.store.GetActor(c.Request.Context(), id)
	if err != nil {
		a.writeError(c, faults.Store(err))
		return
	}
	if target == nil {
		a.writeError(c, faults.New(faults.NotFound, "actor not found"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"actor_id": target.ID, "enrolled": target.FaceEnrolled()})
}
