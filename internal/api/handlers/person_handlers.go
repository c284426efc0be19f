package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"face-attendance-go/internal/core/models"
	"face-attendance-go/internal/db/repository"
	"face-attendance-go/internal/gallery"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

type createPersonRequest struct {
	Name    string `json:"name" binding:"required,max=64"`
	Surname string `json:"surname" binding:"max=64"`
	Email   string `json:"email" binding:"omitempty,email"`
	Role    string `json:"role" binding:"omitempty,oneof=student teacher staff"`
}

// ListPersons returns the roster, paginated by limit and offset.
func (h *APIHandler) ListPersons(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}

	persons, total, err := h.repo.ListPersons(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to fetch persons: %v", err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"persons": persons, "total": total})
}

// CreatePerson adds a person to the roster. The name doubles as gallery label.
func (h *APIHandler) CreatePerson(c *gin.Context) {
	var req createPersonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid person data: %v", err)})
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if !gallery.ValidLabel(req.Name) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Name must not be empty or contain '_', '/' or '\\'"})
		return
	}

	ctx := c.Request.Context()
	if req.Email != "" {
		existing, err := h.repo.GetPersonByEmail(ctx, req.Email)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to check email: %v", err)})
			return
		}
		if existing != nil {
			c.JSON(http.StatusConflict, gin.H{"error": "Email already registered"})
			return
		}
	}

	if req.Role == "" {
		req.Role = "student"
	}
	person := &models.Person{
		Name:    req.Name,
		Surname: req.Surname,
		Email:   strings.ToLower(req.Email),
		Role:    req.Role,
	}
	if err := h.repo.CreatePerson(ctx, person); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to create person: %v", err)})
		return
	}
	c.JSON(http.StatusCreated, person)
}

// GetPerson returns a person with its reference faces.
func (h *APIHandler) GetPerson(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	person, err := h.repo.GetPerson(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to fetch person: %v", err)})
		return
	}
	if person == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Person not found"})
		return
	}
	c.JSON(http.StatusOK, person)
}

// DeletePerson removes a person, its attendance and its gallery samples.
func (h *APIHandler) DeletePerson(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
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

	if err := h.repo.DeletePerson(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Person not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to delete person: %v", err)})
		return
	}

	removed := 0
	if h.gallery != nil {
		if removed, err = h.gallery.Remove(person.Name); err != nil {
			log.WithField("person_id", id).Warnf("Failed to remove gallery samples: %v", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "samples_removed": removed})
}
