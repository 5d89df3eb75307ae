package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vpetrenko/vaultd/internal/server/services"
)

// exportVault serializes the vault, or one subtree when the entry query
// parameter is set; children=false limits the export to the addressed nodes.
func (r *Router) exportVault(c *gin.Context) {
	includeChildren := c.DefaultQuery("children", "true") != "false"
	nodes, err := r.importExport.Export(c.Request.Context(), principal(c), c.Param("id"), c.Query("entry"), includeChildren)
	if err != nil {
		r.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": nodes})
}

type importRequest struct {
	VaultID        string           `json:"vault_id" binding:"required"`
	Entries        []*services.Node `json:"entries" binding:"required"`
	TargetParentID string           `json:"target_parent_id"`
	PathFilter     string           `json:"path_filter"`
}

func (r *Router) importVault(c *gin.Context) {
	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if err := r.importExport.Import(c.Request.Context(), principal(c), req.VaultID, req.Entries, req.TargetParentID, req.PathFilter); err != nil {
		r.fail(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (r *Router) presignPut(c *gin.Context) {
	key, url, err := r.archive.PresignedPutURL(c.Request.Context(), principal(c))
	if err != nil {
		r.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "url": url})
}

type presignGetRequest struct {
	Key string `json:"key" binding:"required"`
}

func (r *Router) presignGet(c *gin.Context) {
	var req presignGetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	url, err := r.archive.PresignedGetURL(c.Request.Context(), principal(c), req.Key)
	if err != nil {
		r.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}
