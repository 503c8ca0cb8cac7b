package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/contentlib/internal/platform/apierr"
	"github.com/yungbote/contentlib/internal/platform/errs"
)

// RespondAPIError maps usecase errors to a status. *apierr.Error wins, then
// the shared sentinels; anything else is a 500 with fallbackCode.
func RespondAPIError(c *gin.Context, fallbackCode string, err error) {
	var ae *apierr.Error
	if errors.As(err, &ae) {
		status, code := apierr.Status(err, fallbackCode)
		RespondError(c, status, code, err)
		return
	}
	switch {
	case errors.Is(err, errs.ErrNotFound):
		RespondError(c, http.StatusNotFound, "not_found", err)
	case errors.Is(err, errs.ErrUnauthorized):
		RespondError(c, http.StatusUnauthorized, "unauthorized", err)
	case errors.Is(err, errs.ErrInvalidArgument):
		RespondError(c, http.StatusBadRequest, "invalid_argument", err)
	case errors.Is(err, errs.ErrConflict), errors.Is(err, errs.ErrLockNotAcquired):
		RespondError(c, http.StatusConflict, "conflict", err)
	case errors.Is(err, errs.ErrResetNotAllowed):
		RespondError(c, http.StatusBadRequest, "reset_not_allowed", err)
	case errors.Is(err, errs.ErrNotConfigured):
		RespondError(c, http.StatusServiceUnavailable, "not_configured", err)
	default:
		RespondError(c, http.StatusInternalServerError, fallbackCode, err)
	}
}
