package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	types "github.com/yungbote/contentlib/internal/domain"
	"github.com/yungbote/contentlib/internal/http/response"
	"github.com/yungbote/contentlib/internal/modules/course"
)

type CourseService interface {
	CreateCourse(ctx context.Context, in course.CreateCourseInput) (*types.Course, error)
	CreateBlock(ctx context.Context, in course.CreateBlockInput) (*types.CourseBlock, error)
	ListBlocks(ctx context.Context, courseKey string) ([]*types.CourseBlock, error)
}

type CourseHandler struct {
	courses CourseService
}

func NewCourseHandler(courses CourseService) *CourseHandler {
	return &CourseHandler{courses: courses}
}

// POST /api/courses
func (h *CourseHandler) CreateCourse(c *gin.Context) {
	var in course.CreateCourseInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	out, err := h.courses.CreateCourse(c.Request.Context(), in)
	if err != nil {
		response.RespondAPIError(c, "create_course_failed", err)
		return
	}
	response.RespondCreated(c, gin.H{"course": out})
}

// POST /api/courses/blocks
func (h *CourseHandler) CreateBlock(c *gin.Context) {
	var in course.CreateBlockInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	b, err := h.courses.CreateBlock(c.Request.Context(), in)
	if err != nil {
		response.RespondAPIError(c, "create_block_failed", err)
		return
	}
	response.RespondCreated(c, gin.H{"block": b})
}

// GET /api/courses/:course_key/blocks
func (h *CourseHandler) ListBlocks(c *gin.Context) {
	blocks, err := h.courses.ListBlocks(c.Request.Context(), param(c, "course_key"))
	if err != nil {
		response.RespondAPIError(c, "list_blocks_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"blocks": blocks})
}
