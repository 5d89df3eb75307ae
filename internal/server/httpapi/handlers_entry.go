package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vpetrenko/vaultd/internal/server/models"
	"github.com/vpetrenko/vaultd/internal/server/services"
)

type entryResponse struct {
	ID           string     `json:"id"`
	UUID         string     `json:"uuid"`
	VaultID      string     `json:"vault_id"`
	ParentID     *string    `json:"parent_id,omitempty"`
	Name         string     `json:"name"`
	URL          string     `json:"url,omitempty"`
	Note         string     `json:"note,omitempty"`
	Tags         string     `json:"tags,omitempty"`
	ExpireDate   *time.Time `json:"expire_date,omitempty"`
	CompleteName string     `json:"complete_name"`
	Expired      bool       `json:"expired"`
}

func toEntryResponse(e *models.Entry) entryResponse {
	return entryResponse{
		ID:           e.ID,
		UUID:         e.UUID,
		VaultID:      e.VaultID,
		ParentID:     e.ParentID,
		Name:         e.Name,
		URL:          e.URL,
		Note:         e.Note,
		Tags:         e.Tags,
		ExpireDate:   e.ExpireDate,
		CompleteName: e.CompleteName,
		Expired:      e.Expired(time.Now()),
	}
}

type createEntryRequest struct {
	VaultID    string     `json:"vault_id" binding:"required"`
	ParentID   *string    `json:"parent_id"`
	Name       string     `json:"name" binding:"required"`
	URL        string     `json:"url"`
	Note       string     `json:"note"`
	Tags       string     `json:"tags"`
	ExpireDate *time.Time `json:"expire_date"`
}

func (r *Router) createEntry(c *gin.Context) {
	var req createEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	entry, err := r.vaults.CreateEntry(c.Request.Context(), principal(c), &models.Entry{
		VaultID:    req.VaultID,
		ParentID:   req.ParentID,
		Name:       req.Name,
		URL:        req.URL,
		Note:       req.Note,
		Tags:       req.Tags,
		ExpireDate: req.ExpireDate,
	})
	if err != nil {
		r.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toEntryResponse(entry))
}

func (r *Router) getEntry(c *gin.Context) {
	entry, err := r.vaults.GetEntry(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		r.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toEntryResponse(entry))
}

type updateEntryRequest struct {
	ID         string     `json:"id" binding:"required"`
	Name       string     `json:"name" binding:"required"`
	URL        string     `json:"url"`
	Note       string     `json:"note"`
	Tags       string     `json:"tags"`
	ExpireDate *time.Time `json:"expire_date"`
	ParentID   *string    `json:"parent_id"`
	SetParent  bool       `json:"set_parent"`
}

func (r *Router) updateEntry(c *gin.Context) {
	var req updateEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	err := r.vaults.UpdateEntry(c.Request.Context(), principal(c), req.ID, services.EntryUpdate{
		Name:       req.Name,
		URL:        req.URL,
		Note:       req.Note,
		Tags:       req.Tags,
		ExpireDate: req.ExpireDate,
		ParentID:   req.ParentID,
		SetParent:  req.SetParent,
	})
	if err != nil {
		r.fail(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (r *Router) deleteEntry(c *gin.Context) {
	var req idRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if err := r.vaults.DeleteEntry(c.Request.Context(), principal(c), req.ID); err != nil {
		r.fail(c, err)
		return
	}
	c.Status(http.StatusOK)
}

type setFieldRequest struct {
	EntryID string `json:"entry_id" binding:"required"`
	Name    string `json:"name" binding:"required"`
	IV      string `json:"iv" binding:"required"`
	Value   string `json:"value" binding:"required"`
}

func (r *Router) setField(c *gin.Context) {
	var req setFieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if err := r.vaults.SetField(c.Request.Context(), principal(c), req.EntryID, req.Name, req.IV, req.Value); err != nil {
		r.fail(c, err)
		return
	}
	c.Status(http.StatusOK)
}

type setFileRequest struct {
	EntryID string `json:"entry_id" binding:"required"`
	Name    string `json:"name" binding:"required"`
	IV      string `json:"iv" binding:"required"`
	Content []byte `json:"content" binding:"required"`
}

func (r *Router) setFile(c *gin.Context) {
	var req setFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if err := r.vaults.SetFile(c.Request.Context(), principal(c), req.EntryID, req.Name, req.IV, req.Content); err != nil {
		r.fail(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (r *Router) listFields(c *gin.Context) {
	fields, err := r.vaults.ListFields(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		r.fail(c, err)
		return
	}
	out := make([]gin.H, 0, len(fields))
	for _, f := range fields {
		out = append(out, gin.H{"id": f.ID, "name": f.Name, "iv": f.IV, "value": f.Value})
	}
	c.JSON(http.StatusOK, out)
}

func (r *Router) listFiles(c *gin.Context) {
	files, err := r.vaults.ListFiles(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		r.fail(c, err)
		return
	}
	out := make([]gin.H, 0, len(files))
	for _, f := range files {
		out = append(out, gin.H{"id": f.ID, "name": f.Name, "iv": f.IV, "content": f.Content})
	}
	c.JSON(http.StatusOK, out)
}
