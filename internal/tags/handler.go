package tags

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"document-archive/internal/errors"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

type SetTagsRequest struct {
	Tags []string `json:"tags" binding:"required"`
}

type AddTagRequest struct {
	Name string `json:"name" binding:"required"`
}

// List handles GET /documents/:id/tags
func (h *Handler) List(c *gin.Context) {
	docID, err := documentIDParam(c)
	if err != nil {
		c.Error(err)
		return
	}

	result, err := h.service.GetTags(c.Request.Context(), docID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// Replace handles PUT /documents/:id/tags
func (h *Handler) Replace(c *gin.Context) {
	docID, err := documentIDParam(c)
	if err != nil {
		c.Error(err)
		return
	}

	var form SetTagsRequest
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(errors.ErrValidation(err))
		return
	}

	result, err := h.service.SetTags(c.Request.Context(), docID, form.Tags)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// Add handles POST /documents/:id/tags
func (h *Handler) Add(c *gin.Context) {
	docID, err := documentIDParam(c)
	if err != nil {
		c.Error(err)
		return
	}

	var form AddTagRequest
	if err := c.ShouldBindJSON(&form); err != nil {
		c.Error(errors.ErrValidation(err))
		return
	}

	tag, err := h.service.AddTag(c.Request.Context(), docID, form.Name)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, tag)
}

// Remove handles DELETE /documents/:id/tags/:name
func (h *Handler) Remove(c *gin.Context) {
	docID, err := documentIDParam(c)
	if err != nil {
		c.Error(err)
		return
	}

	if err := h.service.RemoveTag(c.Request.Context(), docID, c.Param("name")); err != nil {
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}

func documentIDParam(c *gin.Context) (uint64, error) {
	docID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return 0, errors.ErrValidation(err).WithMessage("Invalid document id")
	}
	return docID, nil
}
