package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vpetrenko/vaultd/internal/server/models"
)

type storeKeyRequest struct {
	UUID       string `json:"uuid" binding:"required"`
	Public     string `json:"public" binding:"required"`
	Private    string `json:"private" binding:"required"`
	Salt       string `json:"salt" binding:"required"`
	IV         string `json:"iv" binding:"required"`
	Iterations int    `json:"iterations" binding:"required"`
	Version    int    `json:"version" binding:"required"`
}

func (r *Router) storeKey(c *gin.Context) {
	var req storeKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	key, err := r.keys.Store(c.Request.Context(), principal(c), &models.UserKey{
		UUID:       req.UUID,
		Public:     req.Public,
		Private:    req.Private,
		Salt:       req.Salt,
		IV:         req.IV,
		Iterations: req.Iterations,
		Version:    req.Version,
	})
	if err != nil {
		r.fail(c, err)
		return
	}
	// nil means the identical key was already current; nothing was stored
	if key == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, toKeyResponse(key))
}

func toKeyResponse(k *models.UserKey) gin.H {
	return gin.H{
		"id":         k.ID,
		"uuid":       k.UUID,
		"public":     k.Public,
		"private":    k.Private,
		"salt":       k.Salt,
		"iv":         k.IV,
		"iterations": k.Iterations,
		"version":    k.Version,
	}
}

func (r *Router) getOwnKey(c *gin.Context) {
	key, err := r.keys.GetOwn(c.Request.Context(), principal(c))
	if err != nil {
		r.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toKeyResponse(key))
}

func (r *Router) getPublicKey(c *gin.Context) {
	pub, err := r.keys.PublicKey(c.Request.Context(), c.Param("userID"))
	if err != nil {
		r.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"public": pub})
}

type publicKeyRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// publicKeyLookup is the anonymous variant. Unknown users get an empty
// object instead of an error, so the route cannot be used to enumerate
// accounts.
func (r *Router) publicKeyLookup(c *gin.Context) {
	var req publicKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	pub, err := r.keys.PublicKey(c.Request.Context(), req.UserID)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, gin.H{"public": pub})
}
