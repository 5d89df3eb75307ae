package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vpetrenko/vaultd/internal/server/models"
	"github.com/vpetrenko/vaultd/internal/server/repositories/entries"
)

type vaultResponse struct {
	ID                string `json:"id"`
	UUID              string `json:"uuid"`
	OwnerID           string `json:"owner_id"`
	Name              string `json:"name"`
	Note              string `json:"note,omitempty"`
	ReencryptRequired bool   `json:"reencrypt_required"`
}

func toVaultResponse(v *models.Vault) vaultResponse {
	return vaultResponse{
		ID:                v.ID,
		UUID:              v.UUID,
		OwnerID:           v.OwnerID,
		Name:              v.Name,
		Note:              v.Note,
		ReencryptRequired: v.ReencryptRequired,
	}
}

type createVaultRequest struct {
	Name string `json:"name" binding:"required"`
	Note string `json:"note"`
	Key  string `json:"key" binding:"required"`
}

func (r *Router) createVault(c *gin.Context) {
	var req createVaultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	vault, err := r.vaults.CreateVault(c.Request.Context(), principal(c), req.Name, req.Note, req.Key)
	if err != nil {
		r.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toVaultResponse(vault))
}

func (r *Router) getVault(c *gin.Context) {
	vault, err := r.vaults.GetVault(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		r.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toVaultResponse(vault))
}

type updateVaultRequest struct {
	ID   string `json:"id" binding:"required"`
	Name string `json:"name" binding:"required"`
	Note string `json:"note"`
}

func (r *Router) updateVault(c *gin.Context) {
	var req updateVaultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if err := r.vaults.UpdateVault(c.Request.Context(), principal(c), req.ID, req.Name, req.Note); err != nil {
		r.fail(c, err)
		return
	}
	c.Status(http.StatusOK)
}

type idRequest struct {
	ID string `json:"id" binding:"required"`
}

func (r *Router) deleteVault(c *gin.Context) {
	var req idRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if err := r.vaults.DeleteVault(c.Request.Context(), principal(c), req.ID); err != nil {
		r.fail(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (r *Router) listLogs(c *gin.Context) {
	logs, err := r.vaults.ListLogs(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		r.fail(c, err)
		return
	}
	out := make([]gin.H, 0, len(logs))
	for _, l := range logs {
		out = append(out, gin.H{
			"actor":      l.Actor,
			"message":    l.Message,
			"entry_id":   l.EntryID,
			"created_at": l.CreatedAt.Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, out)
}

type searchRequest struct {
	VaultID string `json:"vault_id" binding:"required"`
	Name    string `json:"name"`
	Tag     string `json:"tag"`
	Expired *bool  `json:"expired"`
}

func (r *Router) searchEntries(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	found, err := r.vaults.SearchEntries(c.Request.Context(), principal(c), req.VaultID,
		entries.SearchFilter{Name: req.Name, Tag: req.Tag, Expired: req.Expired})
	if err != nil {
		r.fail(c, err)
		return
	}
	out := make([]entryResponse, 0, len(found))
	for _, e := range found {
		out = append(out, toEntryResponse(e))
	}
	c.JSON(http.StatusOK, out)
}
