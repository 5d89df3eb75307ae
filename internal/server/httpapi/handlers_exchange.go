package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vpetrenko/vaultd/internal/server/models"
	"github.com/vpetrenko/vaultd/internal/server/services"
)

func (r *Router) inboxStatus(c *gin.Context) {
	info, err := r.exchange.InboxStatus(c.Request.Context(), c.Param("token"))
	if err != nil {
		r.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": info.Name, "open": info.Open})
}

type inboxSubmitRequest struct {
	Secret     string `json:"secret"`
	SecretFile []byte `json:"secret_file"`
	Key        string `json:"key"`
	IV         string `json:"iv"`
	Actor      string `json:"actor"`
}

// inboxSubmit always answers 200 for a well-formed request. Whether the
// deposit landed is deliberately not observable from outside.
func (r *Router) inboxSubmit(c *gin.Context) {
	var req inboxSubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	err := r.exchange.InboxSubmit(c.Request.Context(), c.Param("token"), services.InboxDeposit{
		Secret:     req.Secret,
		SecretFile: req.SecretFile,
		Key:        req.Key,
		IV:         req.IV,
		Actor:      req.Actor,
		IP:         c.ClientIP(),
	})
	if err != nil {
		r.fail(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (r *Router) shareGet(c *gin.Context) {
	share, err := r.exchange.ShareGet(c.Request.Context(), c.Param("token"), c.ClientIP())
	if err != nil {
		r.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"name":        share.Name,
		"secret":      share.Secret,
		"secret_file": share.SecretFile,
		"salt":        share.Salt,
		"iv":          share.IV,
	})
}

func (r *Router) inboxGetOwn(c *gin.Context) {
	inbox, err := r.exchange.InboxGetOwn(c.Request.Context(), principal(c))
	if err != nil {
		r.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":          inbox.ID,
		"token":       inbox.Token,
		"name":        inbox.Name,
		"secret":      inbox.Secret,
		"secret_file": inbox.SecretFile,
		"key":         inbox.Key,
		"iv":          inbox.IV,
		"accesses":    inbox.Accesses,
		"expiration":  inbox.Expiration.Format(time.RFC3339),
	})
}

type inboxStoreRequest struct {
	Name       string    `json:"name"`
	Accesses   int       `json:"accesses"`
	Expiration time.Time `json:"expiration" binding:"required"`
}

func (r *Router) inboxStoreOwn(c *gin.Context) {
	var req inboxStoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	inbox, err := r.exchange.InboxStoreOwn(c.Request.Context(), principal(c), req.Name, req.Accesses, req.Expiration)
	if err != nil {
		r.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":         inbox.ID,
		"token":      inbox.Token,
		"accesses":   inbox.Accesses,
		"expiration": inbox.Expiration.Format(time.RFC3339),
	})
}

func (r *Router) rotateInboxToken(c *gin.Context) {
	token, err := r.exchange.RotateInboxToken(c.Request.Context(), principal(c))
	if err != nil {
		r.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

type shareCreateRequest struct {
	Name       string    `json:"name"`
	Secret     string    `json:"secret"`
	SecretFile []byte    `json:"secret_file"`
	Salt       string    `json:"salt"`
	IV         string    `json:"iv"`
	Pin        string    `json:"pin" binding:"required"`
	Accesses   int       `json:"accesses" binding:"required"`
	Expiration time.Time `json:"expiration" binding:"required"`
}

func (r *Router) shareCreate(c *gin.Context) {
	var req shareCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	share, err := r.exchange.ShareCreate(c.Request.Context(), principal(c), &models.Share{
		Name:       req.Name,
		Secret:     req.Secret,
		SecretFile: req.SecretFile,
		Salt:       req.Salt,
		IV:         req.IV,
		Pin:        req.Pin,
		Accesses:   req.Accesses,
		Expiration: req.Expiration,
	})
	if err != nil {
		r.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": share.ID, "token": share.Token})
}

func (r *Router) shareListOwn(c *gin.Context) {
	shares, err := r.exchange.ShareListOwn(c.Request.Context(), principal(c))
	if err != nil {
		r.fail(c, err)
		return
	}
	out := make([]gin.H, 0, len(shares))
	for _, sh := range shares {
		out = append(out, gin.H{
			"id":         sh.ID,
			"token":      sh.Token,
			"name":       sh.Name,
			"accesses":   sh.Accesses,
			"expiration": sh.Expiration.Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, out)
}

func (r *Router) shareDelete(c *gin.Context) {
	var req idRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if err := r.exchange.ShareDelete(c.Request.Context(), principal(c), req.ID); err != nil {
		r.fail(c, err)
		return
	}
	c.Status(http.StatusOK)
}
