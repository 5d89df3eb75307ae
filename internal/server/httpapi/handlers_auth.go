package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type registerRequest struct {
	Login    string `json:"login" binding:"required"`
	Salt     []byte `json:"salt" binding:"required"`
	Verifier []byte `json:"verifier" binding:"required"`
}

func (r *Router) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	user, err := r.users.Register(c.Request.Context(), req.Login, req.Salt, req.Verifier)
	if err != nil {
		r.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": user.ID, "inbox_token": user.InboxToken})
}

type saltRequest struct {
	Login string `json:"login" binding:"required"`
}

func (r *Router) getSalt(c *gin.Context) {
	var req saltRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	salt, err := r.users.GetSalt(c.Request.Context(), req.Login)
	if err != nil {
		r.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"salt": salt})
}

type loginRequest struct {
	Login    string `json:"login" binding:"required"`
	Verifier []byte `json:"verifier" binding:"required"`
}

func (r *Router) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	pair, err := r.users.Login(c.Request.Context(), req.Login, req.Verifier)
	if err != nil {
		r.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

func (r *Router) refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	pair, err := r.users.RefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		r.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
	})
}
