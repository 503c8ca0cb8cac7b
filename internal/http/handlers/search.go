package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/contentlib/internal/http/response"
	"github.com/yungbote/contentlib/internal/modules/search"
	"github.com/yungbote/contentlib/internal/platform/dbctx"
	"github.com/yungbote/contentlib/internal/temporalx/rebuild"
)

type SearchTokenService interface {
	Token(ctx context.Context, userID string) (*search.SearchToken, error)
	UserAccess(dbc dbctx.Context, userID string) (search.Access, error)
}

type RebuildScheduler interface {
	Schedule(ctx context.Context, requestedBy string) (*rebuild.Scheduled, error)
}

type SearchHandler struct {
	tokens  SearchTokenService
	rebuild RebuildScheduler
}

func NewSearchHandler(tokens SearchTokenService, rebuild RebuildScheduler) *SearchHandler {
	return &SearchHandler{tokens: tokens, rebuild: rebuild}
}

// POST /api/search/token
func (h *SearchHandler) Token(c *gin.Context) {
	tok, err := h.tokens.Token(c.Request.Context(), requestUserID(c))
	if err != nil {
		response.RespondAPIError(c, "search_token_failed", err)
		return
	}
	response.RespondOK(c, tok)
}

// POST /api/search/rebuild (global staff only)
func (h *SearchHandler) Rebuild(c *gin.Context) {
	ctx := c.Request.Context()
	userID := requestUserID(c)
	access, err := h.tokens.UserAccess(dbctx.Context{Ctx: ctx}, userID)
	if err != nil {
		response.RespondAPIError(c, "load_access_failed", err)
		return
	}
	if !access.Global {
		response.RespondError(c, http.StatusForbidden, "forbidden", errors.New("global staff only"))
		return
	}
	out, err := h.rebuild.Schedule(ctx, userID)
	if err != nil {
		response.RespondAPIError(c, "rebuild_failed", err)
		return
	}
	status := http.StatusAccepted
	if !out.Started {
		status = http.StatusConflict
	}
	c.JSON(status, out)
}
