package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"face-attendance-go/internal/db/repository"
	"face-attendance-go/internal/util/timezone"

	"github.com/gin-gonic/gin"
)

type checkOutRequest struct {
	CheckOutTime *time.Time `json:"check_out_time"`
}

// TodayAttendances lists today's check-ins, newest first.
func (h *APIHandler) TodayAttendances(c *gin.Context) {
	h.attendancesForDay(c, timezone.Now())
}

// DailyAttendances lists the check-ins of the YYYY-MM-DD day in the path.
func (h *APIHandler) DailyAttendances(c *gin.Context) {
	day, err := timezone.ParseDay(c.Param("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.attendancesForDay(c, day)
}

func (h *APIHandler) attendancesForDay(c *gin.Context, day time.Time) {
	records, err := h.repo.AttendancesForDay(c.Request.Context(), day)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to fetch attendances: %v", err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"date":        timezone.DayKey(day),
		"count":       len(records),
		"attendances": records,
	})
}

// PersonAttendances lists a person's check-ins. The optional from and to
// query parameters are inclusive YYYY-MM-DD days.
func (h *APIHandler) PersonAttendances(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var from, to time.Time
	if raw := c.Query("from"); raw != "" {
		day, err := timezone.ParseDay(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		from = day
	}
	if raw := c.Query("to"); raw != "" {
		day, err := timezone.ParseDay(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		to = day.AddDate(0, 0, 1)
	}
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from must not be after to"})
		return
	}

	ctx := c.Request.Context()
	person, err := h.repo.GetPerson(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to fetch person: %v", err)})
		return
	}
	if person == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Person not found"})
		return
	}

	records, err := h.repo.AttendancesForPerson(ctx, id, from, to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to fetch attendances: %v", err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"person_id": id, "count": len(records), "attendances": records})
}

// CheckOut sets the check-out time of an attendance record, now by default.
func (h *APIHandler) CheckOut(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req checkOutRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid check-out data: %v", err)})
			return
		}
	}
	at := timezone.Now()
	if req.CheckOutTime != nil {
		at = *req.CheckOutTime
	}

	record, err := h.repo.CheckOut(c.Request.Context(), id, at)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, record)
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Attendance not found"})
	case errors.Is(err, repository.ErrCheckOutBeforeCheckIn):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to check out: %v", err)})
	}
}

// ListRecognitions returns the most recent recognition log entries.
func (h *APIHandler) ListRecognitions(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 500 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
		return
	}
	recs, err := h.repo.ListRecognitions(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to fetch recognitions: %v", err)})
		return
	}
	c.JSON(http.StatusOK, recs)
}
