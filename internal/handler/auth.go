package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"presence/internal/auth"
	"presence/internal/faults"
	"presence/internal/model"
	"presence/internal/store"
)

type registerRequest struct {
	Name       string `json:"name" binding:"required"`
	Email      string `json:"email" binding:"required,email"`
	Password   string `json:"password" binding:"required,min=8"`
	Role       string `json:"role"`
	Department string `json:"department"`
}

type authResponse struct {
	Token     string       `json:"token"`
	ExpiresAt string       `json:"expires_at"`
	Actor     *model.Actor `json:"actor"`
}

func (a *API) RegisterActor(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	role := model.Role(req.Role)
	if req.Role == "" {
		role = model.RoleStudent
	}
	if !role.Valid() || role == model.RoleAdmin {
		a.writeError(c, faults.New(faults.Forbidden, "role not permitted at registration"))
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		a.writeError(c, err)
		return
	}
	actor := &model.Actor{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Email:        strings.ToLower(req.Email),
		PasswordHash: hash,
		Role:         role,
		Department:   req.Department,
		Active:       true,
	}
	if err := a.store.CreateActor(c.Request.Context(), actor); err != nil {
		if err == store.ErrDuplicate {
			a.writeError(c, faults.New(faults.Conflict, "email already registered"))
			return
		}
		a.writeError(c, faults.Store(err))
		return
	}
	sess, err := a.guard.Issue(c.Request.Context(), actor)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, authResponse{
		Token:     sess.Token,
		ExpiresAt: sess.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"),
		Actor:     actor,
	})
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (a *API) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	actor, err := a.store.GetActorByEmail(c.Request.Context(), strings.ToLower(req.Email))
	if err != nil {
		a.writeError(c, faults.Store(err))
		return
	}
	if actor == nil || !actor.Active {
		a.writeError(c, faults.New(faults.Unauthenticated, "invalid credentials"))
		return
	}
	if !auth.VerifyPassword(actor.PasswordHash, req.Password) {
		a.writeError(c, faults.New(faults.Unauthenticated, "invalid credentials"))
		return
	}
	sess, err := a.guard.Issue(c.Request.Context(), actor)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, authResponse{
		Token:     sess.Token,
		ExpiresAt: sess.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"),
		Actor:     actor,
	})
}

func (a *API) Logout(c *gin.Context) {
	token := bearerToken(c)
	if token == "" {
		a.writeError(c, faults.New(faults.Unauthenticated, "missing bearer token"))
		return
	}
	if err := a.guard.Revoke(c.Request.Context(), token); err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

func (a *API) Me(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"actor": currentActor(c)})
}

type profileUpdateRequest struct {
	Name       string `json:"name"`
	Department string `json:"department"`
}

func (a *API) UpdateProfile(c *gin.Context) {
	var req profileUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	actor := currentActor(c)
	if req.Name != "" {
		actor.Name = req.Name
	}
	if req.Department != "" {
		actor.Department = req.Department
	}
	if err := a.store.UpdateActor(c.Request.Context(), actor); err != nil {
		a.writeError(c, faults.Store(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"actor": actor})
}
