package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/contentlib/internal/platform/ctxutil"
)

func requestUserID(c *gin.Context) string {
	return ctxutil.UserID(c.Request.Context())
}

func param(c *gin.Context, name string) string {
	return strings.TrimSpace(c.Param(name))
}
