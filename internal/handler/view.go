package handler

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"librarylog/internal/library"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	viewTemplate  = "library_view.html"
	displayLayout = "2006-01-02 15:04:05"
	xlsxMIME      = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Templates parses the embedded views. Times are shown in loc.
func Templates(loc *time.Location) *template.Template {
	funcs := template.FuncMap{
		"datetimeformat": func(v any) string {
			switch t := v.(type) {
			case time.Time:
				return t.In(loc).Format(displayLayout)
			case *time.Time:
				if t == nil {
					return ""
				}
				return t.In(loc).Format(displayLayout)
			default:
				return ""
			}
		},
		"zone": func() string { return loc.String() },
	}
	return template.Must(template.New("").Funcs(funcs).ParseFS(templateFS, "templates/*.html"))
}

type viewData struct {
	library.LogPage
	Message string
	Token   string
	Version uint64
}

func filterFrom(c *gin.Context) library.Filter {
	return library.Filter{
		Date:    c.Query("date"),
		Name:    c.Query("name"),
		ShowAll: c.Query("show_all") != "" && c.Query("show_all") != "false" && c.Query("show_all") != "0",
	}
}

// LibraryView handles GET /library_view.
func (h *Handler) LibraryView(c *gin.Context) {
	h.render(c, filterFrom(c), "")
}

// LibraryAction handles the kiosk form POST /library_action: it toggles the
// card and re-renders today's view with the outcome.
func (h *Handler) LibraryAction(c *gin.Context) {
	var req cardRequest
	if err := c.ShouldBind(&req); err != nil {
		h.badRequest(c, "user_id is required")
		return
	}
	action, visit, err := h.svc.Toggle(c.Request.Context(), req.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.render(c, library.Filter{}, actionMessage(action, visit))
}

func (h *Handler) render(c *gin.Context, f library.Filter, message string) {
	// read the version first so a change racing the query shows up as an event
	version := h.events.Version()
	page, err := h.svc.Logs(c.Request.Context(), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.HTML(http.StatusOK, viewTemplate, viewData{
		LogPage: page,
		Message: message,
		Token:   c.Query("token"),
		Version: version,
	})
}

// Logs handles GET /v1/logs, the JSON form of the staff view.
func (h *Handler) Logs(c *gin.Context) {
	version := h.events.Version()
	page, err := h.svc.Logs(c.Request.Context(), filterFrom(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"logs":            page.Logs,
		"signed_in_count": page.SignedInCount,
		"max_capacity":    page.MaxCapacity,
		"date":            page.Date,
		"version":         version,
	})
}

// Export handles GET /library_view/export.
func (h *Handler) Export(c *gin.Context) {
	buf, filename, err := h.svc.ExportLogs(c.Request.Context(), filterFrom(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q; filename*=UTF-8''%s", filename, url.PathEscape(filename)))
	c.Data(http.StatusOK, xlsxMIME, buf.Bytes())
}
