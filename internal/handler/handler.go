package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"presence/internal/attendance"
	"presence/internal/face"
	"presence/internal/faults"
	"presence/internal/model"
	"presence/internal/session"
	"presence/internal/store"
)

// API bundles the HTTP handlers and their collaborators.
type API struct {
	store    store.Store
	pipeline *attendance.Pipeline
	guard    *session.Guard
	faces    *face.Client
	log      *zap.Logger
}

// New creates the handler set.
func New(s store.Store, p *attendance.Pipeline, g *session.Guard, faces *face.Client, log *zap.Logger) *API {
	if log == nil {
		log = zap.NewNop()
	}
	return &API{store: s, pipeline: p, guard: g, faces: faces, log: log}
}

// Register mounts all routes on the router group.
func (a *API) Register(r *gin.RouterGroup) {
	r.POST("/auth/register", a.RegisterActor)
	r.POST("/auth/login", a.Login)
	r.POST("/auth/logout", a.Logout)
	r.GET("/auth/me", a.requireAuth, a.Me)
	r.PUT("/auth/profile", a.requireAuth, a.UpdateProfile)

	r.POST("/face/enroll", a.requireAuth, a.EnrollFace)
	r.GET("/face/status/:id", a.requireAuth, a.FaceStatus)

	r.POST("/gps/check", a.requireAuth, a.CheckLocation)
	r.GET("/gps/fence", a.requireAuth, a.GetFence)
	r.PUT("/gps/fence", a.requireAuth, a.adminOnly, a.UpdateFence)

	// Check-in and check-out authenticate inside the pipeline so auth
	// failures flow through the same tagged-error path as every other stage.
	r.POST("/attendance/checkin", a.CheckIn)
	r.POST("/attendance/checkout", a.CheckOut)
	r.POST("/attendance/excuse", a.MarkExcused)
	r.GET("/attendance/history", a.requireAuth, a.History)
	r.GET("/attendance/summary", a.requireAuth, a.Summary)

	r.POST("/windows", a.requireAuth, a.adminOnly, a.CreateWindow)
	r.GET("/windows/:id", a.requireAuth, a.GetWindow)
}

const actorKey = "actor"

// bearerToken pulls the token out of the Authorization header.
func bearerToken(c *gin.Context) string {
	authz := c.GetHeader("Authorization")
	if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return ""
	}
	return strings.TrimSpace(authz[len("bearer "):])
}

func (a *API) requireAuth(c *gin.Context) {
	actor, err := a.guard.Authenticate(c.Request.Context(), bearerToken(c))
	if err != nil {
		a.writeError(c, err)
		c.Abort()
		return
	}
	c.Set(actorKey, actor)
	c.Next()
}

func (a *API) adminOnly(c *gin.Context) {
	if currentActor(c).Role != model.RoleAdmin {
		a.writeError(c, faults.New(faults.Forbidden, "admin role required"))
		c.Abort()
		return
	}
	c.Next()
}

func currentActor(c *gin.Context) *model.Actor {
	v, _ := c.Get(actorKey)
	actor, _ := v.(*model.Actor)
	return actor
}

// writeError renders a tagged error and logs it for audit. Nothing is
// swallowed: even rejections that never touch the store leave a trace.
func (a *API) writeError(c *gin.Context, err error) {
	kind := faults.KindOf(err)
	msg := "internal error"
	detail := ""
	var ferr *faults.Error
	if errors.As(err, &ferr) {
		msg = ferr.Message
		detail = ferr.Detail
	}
	a.log.Warn("request failed",
		zap.String("path", c.FullPath()),
		zap.String("error_kind", string(kind)),
		zap.Error(err),
	)
	c.JSON(faults.HTTPStatus(kind), gin.H{
		"error_kind": string(kind),
		"message":    msg,
		"detail":     detail,
		"retryable":  faults.Retryable(err),
	})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error_kind": "bad_request",
		"message":    err.Error(),
	})
}
