package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vpetrenko/vaultd/internal/server/models"
	"github.com/vpetrenko/vaultd/internal/server/services"
)

type rightResponse struct {
	ID         string `json:"id"`
	VaultID    string `json:"vault_id"`
	UserID     string `json:"user_id"`
	Key        string `json:"key"`
	PermCreate bool   `json:"perm_create"`
	PermWrite  bool   `json:"perm_write"`
	PermShare  bool   `json:"perm_share"`
	PermDelete bool   `json:"perm_delete"`
}

func toRightResponse(r *models.Right) rightResponse {
	return rightResponse{
		ID:         r.ID,
		VaultID:    r.VaultID,
		UserID:     r.UserID,
		Key:        r.Key,
		PermCreate: r.PermCreate,
		PermWrite:  r.PermWrite,
		PermShare:  r.PermShare,
		PermDelete: r.PermDelete,
	}
}

func (r *Router) listOwnRights(c *gin.Context) {
	rights, err := r.rights.ListOwn(c.Request.Context(), principal(c))
	if err != nil {
		r.fail(c, err)
		return
	}
	out := make([]rightResponse, 0, len(rights))
	for _, right := range rights {
		out = append(out, toRightResponse(right))
	}
	c.JSON(http.StatusOK, out)
}

func (r *Router) listVaultRights(c *gin.Context) {
	rights, err := r.rights.ListVaultRights(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		r.fail(c, err)
		return
	}
	out := make([]rightResponse, 0, len(rights))
	for _, right := range rights {
		out = append(out, toRightResponse(right))
	}
	c.JSON(http.StatusOK, out)
}

type storeRightRequest struct {
	VaultID    string `json:"vault_id" binding:"required"`
	UserID     string `json:"user_id" binding:"required"`
	Key        string `json:"key" binding:"required"`
	PermCreate bool   `json:"perm_create"`
	PermWrite  bool   `json:"perm_write"`
	PermShare  bool   `json:"perm_share"`
	PermDelete bool   `json:"perm_delete"`
}

func (r *Router) storeRight(c *gin.Context) {
	var req storeRightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	right, err := r.rights.Share(c.Request.Context(), principal(c), req.VaultID, services.RightGrant{
		UserID:     req.UserID,
		Key:        req.Key,
		PermCreate: req.PermCreate,
		PermWrite:  req.PermWrite,
		PermShare:  req.PermShare,
		PermDelete: req.PermDelete,
	})
	if err != nil {
		r.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toRightResponse(right))
}

type updateRightRequest struct {
	ID         string `json:"id" binding:"required"`
	PermCreate bool   `json:"perm_create"`
	PermWrite  bool   `json:"perm_write"`
	PermShare  bool   `json:"perm_share"`
	PermDelete bool   `json:"perm_delete"`
}

func (r *Router) updateRight(c *gin.Context) {
	var req updateRightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	err := r.rights.UpdateRight(c.Request.Context(), principal(c), req.ID, services.RightGrant{
		PermCreate: req.PermCreate,
		PermWrite:  req.PermWrite,
		PermShare:  req.PermShare,
		PermDelete: req.PermDelete,
	})
	if err != nil {
		r.fail(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (r *Router) revokeRight(c *gin.Context) {
	var req idRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if err := r.rights.Revoke(c.Request.Context(), principal(c), req.ID); err != nil {
		r.fail(c, err)
		return
	}
	c.Status(http.StatusOK)
}

type rewrapItem struct {
	ID  string `json:"id" binding:"required"`
	Key string `json:"key" binding:"required"`
}

type rewrapRequest struct {
	Items []rewrapItem `json:"items" binding:"required"`
}

func (r *Router) rewrapOwnKeys(c *gin.Context) {
	var req rewrapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	items := make([]services.ReplaceItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, services.ReplaceItem{ID: it.ID, Key: it.Key})
	}
	if err := r.rights.UpdateOwnKeys(c.Request.Context(), principal(c), items); err != nil {
		r.fail(c, err)
		return
	}
	c.Status(http.StatusOK)
}

type replaceItemRequest struct {
	ID      string `json:"id" binding:"required"`
	Value   string `json:"value"`
	Content []byte `json:"content"`
	IV      string `json:"iv"`
	Key     string `json:"key"`
}

type replaceRequest struct {
	VaultID string               `json:"vault_id" binding:"required"`
	Fields  []replaceItemRequest `json:"fields"`
	Files   []replaceItemRequest `json:"files"`
	Rights  []replaceItemRequest `json:"rights"`
}

func (r *Router) replaceKeys(c *gin.Context) {
	var req replaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	batch := services.ReplaceBatch{}
	for _, it := range req.Fields {
		batch.Fields = append(batch.Fields, services.ReplaceItem{ID: it.ID, Value: it.Value, IV: it.IV})
	}
	for _, it := range req.Files {
		batch.Files = append(batch.Files, services.ReplaceItem{ID: it.ID, Content: it.Content, IV: it.IV})
	}
	for _, it := range req.Rights {
		batch.Rights = append(batch.Rights, services.ReplaceItem{ID: it.ID, Key: it.Key})
	}
	if err := r.rights.Replace(c.Request.Context(), principal(c), req.VaultID, batch); err != nil {
		r.fail(c, err)
		return
	}
	c.Status(http.StatusOK)
}
