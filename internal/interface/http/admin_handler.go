package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	userapp "github.com/oksasatya/go-membership-affiliate/internal/application"
	"github.com/oksasatya/go-membership-affiliate/pkg/response"
)

type AdminHandler struct {
	Svc    *userapp.Service
	Logger *logrus.Logger
}

func NewAdminHandler(svc *userapp.Service, logger *logrus.Logger) *AdminHandler {
	return &AdminHandler{Svc: svc, Logger: logger}
}

// Approve POST /api/admin/users/:id/approve
func (h *AdminHandler) Approve(c *gin.Context) {
	u, err := h.Svc.Approve(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	response.Success(c, http.StatusOK, userView(u), "user approved", nil)
}

// Search GET /api/admin/users/search?q=&size=
func (h *AdminHandler) Search(c *gin.Context) {
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))
	docs, err := h.Svc.SearchUsers(c.Request.Context(), c.Query("q"), size)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	response.Success(c, http.StatusOK, docs, "users", map[string]any{"count": len(docs)})
}

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Export GET /api/admin/users/export?q=
func (h *AdminHandler) Export(c *gin.Context) {
	var buf bytes.Buffer
	n, err := h.Svc.ExportUsers(c.Request.Context(), c.Query("q"), &buf)
	if err != nil {
		writeError(c, h.Logger, err)
		return
	}
	name := fmt.Sprintf("users-%s.xlsx", time.Now().UTC().Format("20060102-150405"))
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Header("X-Total-Count", strconv.Itoa(n))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

type notifyRequest struct {
	Subject string `json:"subject" binding:"required,max=200"`
	Text    string `json:"text" binding:"required"`
}

// Notify POST /api/admin/users/:id/notify {subject, text}
func (h *AdminHandler) Notify(c *gin.Context) {
	var req notifyRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.Svc.Notify(c.Request.Context(), c.Param("id"), req.Subject, req.Text); err != nil {
		writeError(c, h.Logger, err)
		return
	}
	response.Success[any](c, http.StatusAccepted, map[string]any{"enqueued": true}, "email enqueued", nil)
}
