package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"face-attendance-go/internal/api/middleware"
	"face-attendance-go/internal/attendance"
	"face-attendance-go/internal/enrollment"
	"face-attendance-go/internal/locale"
	"face-attendance-go/internal/recognition"
	"face-attendance-go/internal/video"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

var videoExtensions = map[string]bool{
	".mp4": true, ".avi": true, ".mov": true, ".mkv": true, ".webm": true,
}

// RecognizeImage recognizes the faces of an uploaded photo and records attendance.
func (h *APIHandler) RecognizeImage(c *gin.Context) {
	data, _, err := h.readUpload(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded or invalid form data"})
		return
	}
	minConf, err := queryFloat(c, "min_confidence")
	if err == nil && (minConf < 0 || minConf > 1) {
		err = fmt.Errorf("min_confidence must be within [0, 1]")
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	opts := attendance.ImageOptions{MinConfidence: minConf, Lang: middleware.Language(c)}
	var res *attendance.Result
	err = h.run(c.Request.Context(), func(ctx context.Context) error {
		var rerr error
		res, rerr = h.recognizer.RecognizeImage(ctx, data, opts)
		return rerr
	})
	if err != nil {
		respondJobError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// RecognizeVideo samples an uploaded clip and records attendance.
func (h *APIHandler) RecognizeVideo(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded or invalid form data"})
		return
	}

	opts, err := videoOptions(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !videoExtensions[ext] {
		ext = ".mp4"
	}
	path := filepath.Join(h.uploadDir, uuid.NewString()+ext)
	if err := c.SaveUploadedFile(header, path); err != nil {
		log.Errorf("Failed to store uploaded video: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store uploaded video"})
		return
	}
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warnf("Failed to remove temporary video %s: %v", path, err)
		}
	}()

	var res *attendance.VideoResult
	err = h.run(c.Request.Context(), func(ctx context.Context) error {
		var rerr error
		res, rerr = h.recognizer.RecognizeVideo(ctx, path, opts)
		return rerr
	})
	if err != nil {
		respondJobError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func videoOptions(c *gin.Context) (attendance.VideoOptions, error) {
	opts := attendance.VideoOptions{Lang: middleware.Language(c)}
	var err error
	if opts.MinConfidence, err = queryFloat(c, "min_confidence"); err != nil {
		return opts, err
	}
	if opts.MinConfidence < 0 || opts.MinConfidence > 1 {
		return opts, fmt.Errorf("min_confidence must be within [0, 1]")
	}
	if opts.FrameInterval, err = queryInt(c, "frame_interval"); err != nil {
		return opts, err
	}
	if opts.MaxFrames, err = queryInt(c, "max_frames"); err != nil {
		return opts, err
	}
	timeout, err := queryFloat(c, "timeout_seconds")
	if err != nil {
		return opts, err
	}
	if timeout < 0 {
		return opts, fmt.Errorf("timeout_seconds must not be negative")
	}
	opts.Timeout = time.Duration(timeout * float64(time.Second))

	policy := c.Query("policy")
	if policy == "" {
		policy = c.PostForm("policy")
	}
	if policy != "" {
		if opts.Policy, err = video.ParsePolicy(policy); err != nil {
			return opts, err
		}
	}
	return opts, nil
}

// RegisterFace stores the largest face of an uploaded photo as reference for a person.
func (h *APIHandler) RegisterFace(c *gin.Context) {
	personID, ok := parseID(c, "person_id")
	if !ok {
		return
	}
	data, _, err := h.readUpload(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded or invalid form data"})
		return
	}

	var reg *enrollment.Registration
	err = h.run(c.Request.Context(), func(ctx context.Context) error {
		var rerr error
		reg, rerr = h.enroller.Enroll(ctx, personID, data)
		return rerr
	})
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{
			"success":      true,
			"message":      h.messages.Localize(middleware.Language(c), locale.MsgFaceRegistered, map[string]any{"Name": reg.Name}, nil),
			"registration": reg,
		})
	case errors.Is(err, enrollment.ErrPersonNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Person not found"})
	case errors.Is(err, recognition.ErrInvalidImage):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid image"})
	case errors.Is(err, enrollment.ErrNoFace), errors.Is(err, enrollment.ErrLowConfidence):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		respondJobError(c, err)
	}
}
