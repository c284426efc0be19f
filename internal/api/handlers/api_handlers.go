package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"face-attendance-go/internal/attendance"
	"face-attendance-go/internal/core/processor"
	"face-attendance-go/internal/db/repository"
	"face-attendance-go/internal/enrollment"
	"face-attendance-go/internal/utils"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Recognizer runs recognition requests and records attendance.
type Recognizer interface {
	RecognizeImage(ctx context.Context, data []byte, opts attendance.ImageOptions) (*attendance.Result, error)
	RecognizeVideo(ctx context.Context, path string, opts attendance.VideoOptions) (*attendance.VideoResult, error)
}

// Enroller registers reference faces.
type Enroller interface {
	Enroll(ctx context.Context, personID uint, data []byte) (*enrollment.Registration, error)
}

// Gallery is the reference sample directory.
type Gallery interface {
	Remove(person string) (int, error)
	Counts() (persons, samples int)
}

// Messages localizes response messages.
type Messages interface {
	Localize(lang, id string, data map[string]any, count any) string
}

// Pool runs recognition jobs with bounded concurrency.
type Pool interface {
	utils.PoolStats
	Do(ctx context.Context, task processor.Task) error
}

// Options are the dependencies of APIHandler. Pool and Checks are optional.
type Options struct {
	Repo           repository.Repository
	Recognizer     Recognizer
	Enroller       Enroller
	Gallery        Gallery
	Messages       Messages
	Pool           Pool
	UploadDir      string
	MaxUploadBytes int64
	// Checks report the readiness of optional components by name.
	Checks map[string]func() bool
}

// APIHandler serves the JSON API.
type APIHandler struct {
	repo       repository.Repository
	recognizer Recognizer
	enroller   Enroller
	gallery    Gallery
	messages   Messages
	pool       Pool
	uploadDir  string
	maxUpload  int64
	checks     map[string]func() bool
}

// NewAPIHandler creates the API handler.
func NewAPIHandler(opts Options) *APIHandler {
	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 64 << 20
	}
	return &APIHandler{
		repo:       opts.Repo,
		recognizer: opts.Recognizer,
		enroller:   opts.Enroller,
		gallery:    opts.Gallery,
		messages:   opts.Messages,
		pool:       opts.Pool,
		uploadDir:  opts.UploadDir,
		maxUpload:  maxUpload,
		checks:     opts.Checks,
	}
}

// RegisterRoutes registers all API routes on router.
func (h *APIHandler) RegisterRoutes(router *gin.RouterGroup) {
	fr := router.Group("/face-recognition")
	fr.POST("/recognize", h.RecognizeImage)
	fr.POST("/recognize-video", h.RecognizeVideo)
	fr.POST("/register-face/:person_id", h.RegisterFace)

	router.GET("/persons", h.ListPersons)
	router.POST("/persons", h.CreatePerson)
	router.GET("/persons/:id", h.GetPerson)
	router.DELETE("/persons/:id", h.DeletePerson)
	router.GET("/persons/:id/attendances", h.PersonAttendances)

	router.GET("/attendances/today", h.TodayAttendances)
	router.GET("/attendances/daily/:date", h.DailyAttendances)
	router.PUT("/attendances/:id/checkout", h.CheckOut)

	router.GET("/recognitions", h.ListRecognitions)
	router.GET("/status", h.GetStatus)
}

// run executes task on the worker pool, or inline when there is none.
func (h *APIHandler) run(ctx context.Context, task processor.Task) error {
	if h.pool == nil {
		return task(ctx)
	}
	return h.pool.Do(ctx, task)
}

// readUpload returns the bytes of the multipart "file" field.
func (h *APIHandler) readUpload(c *gin.Context) ([]byte, string, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		return nil, "", err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", err
	}
	return data, header.Filename, nil
}

// respondJobError maps worker pool and context failures onto HTTP statuses.
func respondJobError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, processor.ErrPoolClosed):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Server is shutting down"})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Request cancelled"})
	default:
		log.Errorf("Recognition request failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Recognition failed: %v", err)})
	}
}

func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid %s", name)})
		return 0, false
	}
	return uint(id), true
}

// queryFloat reads a float from the query string or the multipart form.
// A missing value yields 0, which selects the configured default.
func queryFloat(c *gin.Context, name string) (float64, error) {
	raw := c.Query(name)
	if raw == "" {
		raw = c.PostForm(name)
	}
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return v, nil
}

func queryInt(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		raw = c.PostForm(name)
	}
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return v, nil
}
