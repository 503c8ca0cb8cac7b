package handlers

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	types "github.com/yungbote/contentlib/internal/domain"
	"github.com/yungbote/contentlib/internal/http/response"
	"github.com/yungbote/contentlib/internal/modules/itembank"
)

type ItemBankService interface {
	Create(ctx context.Context, userID string, in itembank.CreateInput) (*itembank.View, error)
	Get(ctx context.Context, usageKey string) (*itembank.View, error)
	UpdateSettings(ctx context.Context, userID, usageKey string, patch itembank.SettingsPatch) (*itembank.View, error)
	SyncFromLibraries(ctx context.Context, userID, usageKey string) (*itembank.View, error)
	Validate(ctx context.Context, usageKey string) (*itembank.ValidationReport, error)
	State(ctx context.Context, usageKey string) (itembank.State, error)
	GetChildBlocks(ctx context.Context, userID, usageKey string) ([]*types.CourseBlock, error)
	GetContentTitles(ctx context.Context, userID, usageKey string) ([]string, error)
	ResetSelectedChildren(ctx context.Context, userID, usageKey string) (*itembank.ResetReport, error)
	ExportOLX(ctx context.Context, usageKey string, w io.Writer) error
	ExportToStore(ctx context.Context, usageKey string) (string, error)
	ImportOLX(ctx context.Context, userID string, in itembank.ImportInput, r io.Reader) (*itembank.View, error)
	Delete(ctx context.Context, usageKey string) error
}

type ItemBankHandler struct {
	banks ItemBankService
}

func NewItemBankHandler(banks ItemBankService) *ItemBankHandler {
	return &ItemBankHandler{banks: banks}
}

// POST /api/itembanks
func (h *ItemBankHandler) Create(c *gin.Context) {
	var in itembank.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	view, err := h.banks.Create(c.Request.Context(), requestUserID(c), in)
	if err != nil {
		response.RespondAPIError(c, "create_itembank_failed", err)
		return
	}
	response.RespondCreated(c, gin.H{"itembank": view})
}

// GET /api/itembanks/:usage_key
func (h *ItemBankHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	key := param(c, "usage_key")
	view, err := h.banks.Get(ctx, key)
	if err != nil {
		response.RespondAPIError(c, "load_itembank_failed", err)
		return
	}
	state, err := h.banks.State(ctx, key)
	if err != nil {
		response.RespondAPIError(c, "load_itembank_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"itembank": view, "state": state})
}

// PATCH /api/itembanks/:usage_key/settings
func (h *ItemBankHandler) UpdateSettings(c *gin.Context) {
	var patch itembank.SettingsPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	view, err := h.banks.UpdateSettings(c.Request.Context(), requestUserID(c), param(c, "usage_key"), patch)
	if err != nil {
		response.RespondAPIError(c, "update_settings_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"itembank": view})
}

// POST /api/itembanks/:usage_key/sync
func (h *ItemBankHandler) Sync(c *gin.Context) {
	view, err := h.banks.SyncFromLibraries(c.Request.Context(), requestUserID(c), param(c, "usage_key"))
	if err != nil {
		response.RespondAPIError(c, "sync_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"itembank": view})
}

// GET /api/itembanks/:usage_key/validate
func (h *ItemBankHandler) Validate(c *gin.Context) {
	report, err := h.banks.Validate(c.Request.Context(), param(c, "usage_key"))
	if err != nil {
		response.RespondAPIError(c, "validate_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"valid": report.Valid(), "messages": report.Messages})
}

// GET /api/itembanks/:usage_key/children
func (h *ItemBankHandler) Children(c *gin.Context) {
	blocks, err := h.banks.GetChildBlocks(c.Request.Context(), requestUserID(c), param(c, "usage_key"))
	if err != nil {
		response.RespondAPIError(c, "load_children_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"children": blocks})
}

// GET /api/itembanks/:usage_key/titles
func (h *ItemBankHandler) Titles(c *gin.Context) {
	titles, err := h.banks.GetContentTitles(c.Request.Context(), requestUserID(c), param(c, "usage_key"))
	if err != nil {
		response.RespondAPIError(c, "load_titles_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"titles": titles})
}

// POST /api/itembanks/:usage_key/reset
func (h *ItemBankHandler) Reset(c *gin.Context) {
	report, err := h.banks.ResetSelectedChildren(c.Request.Context(), requestUserID(c), param(c, "usage_key"))
	if err != nil {
		response.RespondAPIError(c, "reset_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"reset": report})
}

// GET /api/itembanks/:usage_key/olx[?upload=true]
func (h *ItemBankHandler) ExportOLX(c *gin.Context) {
	ctx := c.Request.Context()
	key := param(c, "usage_key")
	if c.Query("upload") == "true" {
		url, err := h.banks.ExportToStore(ctx, key)
		if err != nil {
			response.RespondAPIError(c, "export_failed", err)
			return
		}
		response.RespondOK(c, gin.H{"url": url})
		return
	}
	var buf bytes.Buffer
	if err := h.banks.ExportOLX(ctx, key, &buf); err != nil {
		response.RespondAPIError(c, "export_failed", err)
		return
	}
	c.Data(http.StatusOK, "application/xml; charset=utf-8", buf.Bytes())
}

// POST /api/itembanks/import?parent_usage_key=...&block_id=...
func (h *ItemBankHandler) ImportOLX(c *gin.Context) {
	in := itembank.ImportInput{
		ParentUsageKey: c.Query("parent_usage_key"),
		BlockID:        c.Query("block_id"),
	}
	view, err := h.banks.ImportOLX(c.Request.Context(), requestUserID(c), in, c.Request.Body)
	if err != nil {
		response.RespondAPIError(c, "import_failed", err)
		return
	}
	response.RespondCreated(c, gin.H{"itembank": view})
}

// DELETE /api/itembanks/:usage_key
func (h *ItemBankHandler) Delete(c *gin.Context) {
	if err := h.banks.Delete(c.Request.Context(), param(c, "usage_key")); err != nil {
		response.RespondAPIError(c, "delete_failed", err)
		return
	}
	c.Status(http.StatusNoContent)
}
