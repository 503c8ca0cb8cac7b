package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	types "github.com/yungbote/contentlib/internal/domain"
	"github.com/yungbote/contentlib/internal/http/response"
	"github.com/yungbote/contentlib/internal/modules/tagging"
)

type TagService interface {
	CreateTaxonomy(ctx context.Context, in tagging.CreateTaxonomyInput) (*types.Taxonomy, error)
	CreateTag(ctx context.Context, in tagging.CreateTagInput) (*types.Tag, error)
	SetObjectTags(ctx context.Context, objectKey, taxonomy string, values []string) ([]*types.ObjectTag, error)
	ObjectTags(ctx context.Context, objectKey string) (map[string][]string, error)
}

type TagHandler struct {
	tags TagService
}

func NewTagHandler(tags TagService) *TagHandler {
	return &TagHandler{tags: tags}
}

// POST /api/taxonomies
func (h *TagHandler) CreateTaxonomy(c *gin.Context) {
	var in tagging.CreateTaxonomyInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	tax, err := h.tags.CreateTaxonomy(c.Request.Context(), in)
	if err != nil {
		response.RespondAPIError(c, "create_taxonomy_failed", err)
		return
	}
	response.RespondCreated(c, gin.H{"taxonomy": tax})
}

// POST /api/taxonomies/:name/tags
func (h *TagHandler) CreateTag(c *gin.Context) {
	var in tagging.CreateTagInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	in.Taxonomy = param(c, "name")
	tag, err := h.tags.CreateTag(c.Request.Context(), in)
	if err != nil {
		response.RespondAPIError(c, "create_tag_failed", err)
		return
	}
	response.RespondCreated(c, gin.H{"tag": tag})
}

type setTagsRequest struct {
	Taxonomy string   `json:"taxonomy" binding:"required"`
	Tags     []string `json:"tags"`
}

// PUT /api/tags/:usage_key
func (h *TagHandler) SetObjectTags(c *gin.Context) {
	var req setTagsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	ctx := c.Request.Context()
	key := param(c, "usage_key")
	if _, err := h.tags.SetObjectTags(ctx, key, req.Taxonomy, req.Tags); err != nil {
		response.RespondAPIError(c, "set_tags_failed", err)
		return
	}
	all, err := h.tags.ObjectTags(ctx, key)
	if err != nil {
		response.RespondAPIError(c, "load_tags_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"usage_key": key, "tags": all})
}

// GET /api/tags/:usage_key
func (h *TagHandler) GetObjectTags(c *gin.Context) {
	key := param(c, "usage_key")
	all, err := h.tags.ObjectTags(c.Request.Context(), key)
	if err != nil {
		response.RespondAPIError(c, "load_tags_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"usage_key": key, "tags": all})
}
