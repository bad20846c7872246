package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/singleflight"

	"github.com/hray3182/agenda/internal/agenda"
	"github.com/hray3182/agenda/internal/models"
)

type Handler struct {
	svc *agenda.Service
	now func() time.Time

	calendars singleflight.Group // one expansion per month at a time
}

func NewHandler(svc *agenda.Service, now func() time.Time) *Handler {
	return &Handler{svc: svc, now: now}
}

type DayResponse struct {
	Date  string        `json:"date"`
	Items []agenda.View `json:"items"`
	Total int           `json:"total"`
}

type CalendarResponse struct {
	Month string                    `json:"month"`
	Days  map[string]agenda.DayMark `json:"days"`
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   h.now().Format(time.RFC3339),
	})
}

// Day lists a day's occurrences. With ?page=first the list is cut to the
// configured page capacity.
func (h *Handler) Day(c *gin.Context) {
	date := c.Param("date")
	list, err := h.svc.Agenda(date)
	if err != nil {
		c.JSON(http.StatusBadRequest, newError(CodeInvalidDate, "date must be YYYY-MM-DD"))
		return
	}
	total := len(list)

	switch c.Query("page") {
	case "":
	case "first":
		list, _ = h.svc.Page(date)
	default:
		c.JSON(http.StatusBadRequest, newError(CodeInvalidPage, "page must be \"first\" or omitted"))
		return
	}

	c.JSON(http.StatusOK, DayResponse{Date: date, Items: agenda.Views(list), Total: total})
}

func (h *Handler) Calendar(c *gin.Context) {
	month := c.Param("month")
	v, err, _ := h.calendars.Do(month, func() (any, error) {
		return h.svc.Calendar(month)
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, newError(CodeInvalidMonth, "month must be YYYY-MM"))
		return
	}
	c.JSON(http.StatusOK, CalendarResponse{Month: month, Days: v.(map[string]agenda.DayMark)})
}

func (h *Handler) Widget(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Widget(h.now()))
}

func (h *Handler) Patterns(c *gin.Context) {
	patterns := h.svc.Patterns()
	if patterns == nil {
		patterns = []models.Pattern{}
	}
	c.JSON(http.StatusOK, patterns)
}
