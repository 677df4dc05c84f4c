package handlers

import (
	"database/sql"
	"errors"

	"github.com/gin-gonic/gin"

	"slideSync/backend/internal/collab"
	"slideSync/backend/internal/store"
)

// Projects is the plain request/response surface for external collaborators
// (content generation, theming and the like). They read and write through
// here; convergence is the sync engine's business.
type Projects struct {
	store *store.ProjectStore
	svc   collab.Service
}

func NewProjects(store *store.ProjectStore, svc collab.Service) *Projects {
	return &Projects{store: store, svc: svc}
}

func (h *Projects) Create(c *gin.Context) {
	userID := c.GetString("userId")
	if userID == "" {
		c.JSON(500, gin.H{"error": "user context missing"})
		return
	}

	var body struct {
		Title string `json:"title"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Title == "" {
		c.JSON(400, gin.H{"error": "title is required"})
		return
	}

	id, err := h.store.CreateProject(c.Request.Context(), userID, body.Title)
	if err != nil {
		c.JSON(500, gin.H{"error": "create project failed"})
		return
	}
	c.JSON(200, gin.H{"projectId": id, "ownerId": userID, "title": body.Title})
}

func (h *Projects) Get(c *gin.Context) {
	projectID := c.Param("projectID")
	if projectID == "" {
		c.JSON(400, gin.H{"error": "project id missing"})
		return
	}

	proj, err := h.store.GetProject(c.Request.Context(), projectID)
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(404, gin.H{"error": "project not found"})
		return
	}
	if err != nil {
		c.JSON(500, gin.H{"error": "project lookup failed"})
		return
	}

	version, err := h.svc.CurrentVersion(c.Request.Context(), projectID)
	if err != nil {
		c.JSON(500, gin.H{"error": "version lookup failed"})
		return
	}
	c.JSON(200, gin.H{"project": proj, "version": version})
}

// Content returns the materialized text at the current version.
func (h *Projects) Content(c *gin.Context) {
	projectID := c.Param("projectID")
	content, version, err := h.svc.ProjectContent(c.Request.Context(), projectID)
	if errors.Is(err, collab.ErrProjectNotFound) {
		c.JSON(404, gin.H{"error": "project not found"})
		return
	}
	if err != nil {
		c.JSON(500, gin.H{"error": "content lookup failed"})
		return
	}
	c.JSON(200, gin.H{"projectId": projectID, "content": content, "version": version})
}
