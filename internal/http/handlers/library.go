package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	types "github.com/yungbote/contentlib/internal/domain"
	"github.com/yungbote/contentlib/internal/http/response"
	"github.com/yungbote/contentlib/internal/modules/library/authoring"
)

type LibraryService interface {
	CreateLibrary(ctx context.Context, in authoring.CreateLibraryInput) (*types.Library, error)
	AddBlock(ctx context.Context, libraryKey string, in authoring.AddBlockInput) (*authoring.BlockResult, error)
	UpdateBlock(ctx context.Context, libraryKey, blockID string, in authoring.UpdateBlockInput) (*authoring.BlockResult, error)
	DeleteBlock(ctx context.Context, libraryKey, blockID string) (*types.Library, error)
}

type LibraryHandler struct {
	libraries LibraryService
}

func NewLibraryHandler(libraries LibraryService) *LibraryHandler {
	return &LibraryHandler{libraries: libraries}
}

// POST /api/libraries
func (h *LibraryHandler) CreateLibrary(c *gin.Context) {
	var in authoring.CreateLibraryInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	lib, err := h.libraries.CreateLibrary(c.Request.Context(), in)
	if err != nil {
		response.RespondAPIError(c, "create_library_failed", err)
		return
	}
	response.RespondCreated(c, gin.H{"library": lib})
}

// POST /api/libraries/:library_key/blocks
func (h *LibraryHandler) AddBlock(c *gin.Context) {
	var in authoring.AddBlockInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	res, err := h.libraries.AddBlock(c.Request.Context(), param(c, "library_key"), in)
	if err != nil {
		response.RespondAPIError(c, "add_block_failed", err)
		return
	}
	response.RespondCreated(c, res)
}

// PATCH /api/libraries/:library_key/blocks/:block_id
func (h *LibraryHandler) UpdateBlock(c *gin.Context) {
	var in authoring.UpdateBlockInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	res, err := h.libraries.UpdateBlock(c.Request.Context(), param(c, "library_key"), param(c, "block_id"), in)
	if err != nil {
		response.RespondAPIError(c, "update_block_failed", err)
		return
	}
	response.RespondOK(c, res)
}

// DELETE /api/libraries/:library_key/blocks/:block_id
func (h *LibraryHandler) DeleteBlock(c *gin.Context) {
	lib, err := h.libraries.DeleteBlock(c.Request.Context(), param(c, "library_key"), param(c, "block_id"))
	if err != nil {
		response.RespondAPIError(c, "delete_block_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"library": lib})
}
