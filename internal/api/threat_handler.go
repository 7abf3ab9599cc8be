package api

import (
	"errors"
	"net/http"
	"strconv"

	"cyberguard-server/internal/models"
	"cyberguard-server/internal/services"

	"github.com/gin-gonic/gin"
)

type ThreatHandler struct {
	threatService *services.ThreatService
}

func NewThreatHandler(threatService *services.ThreatService) *ThreatHandler {
	return &ThreatHandler{
		threatService: threatService,
	}
}

// Ingest scores and stores a single threat record
func (h *ThreatHandler) Ingest(c *gin.Context) {
	var record models.ThreatRecord
	if err := c.ShouldBindJSON(&record); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// records with no source are attributed to the authenticated intel source
	if record.Source == "" {
		record.Source = c.GetString("source")
	}

	analysis, err := h.threatService.Ingest(c.Request.Context(), record)
	if err != nil {
		if errors.Is(err, services.ErrInvalidRecord) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid threat record"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, analysis)
}

// IngestBatch scores a batch of records, skipping invalid ones
func (h *ThreatHandler) IngestBatch(c *gin.Context) {
	var req struct {
		Threats []models.ThreatRecord `json:"threats"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Threats) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty batch"})
		return
	}

	source := c.GetString("source")
	for i := range req.Threats {
		if req.Threats[i].Source == "" {
			req.Threats[i].Source = source
		}
	}

	analyses, rejected := h.threatService.IngestBatch(c.Request.Context(), req.Threats)

	c.JSON(http.StatusCreated, gin.H{
		"analyses": analyses,
		"accepted": len(analyses),
		"rejected": rejected,
	})
}

// List pages persisted threat records
func (h *ThreatHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	threatType := c.Query("type")
	classification := c.Query("classification")
	source := c.Query("source")

	threats, total, err := h.threatService.List(page, limit, threatType, classification, source)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"threats": threats,
		"total":   total,
		"page":    page,
		"limit":   limit,
	})
}

// Resolve marks a threat resolved
func (h *ThreatHandler) Resolve(c *gin.Context) {
	threatID := c.Param("id")

	if !h.threatService.Resolve(threatID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "threat not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "resolved"})
}

// Analyze scores a record without storing it
func (h *ThreatHandler) Analyze(c *gin.Context) {
	var record models.ThreatRecord
	if err := c.ShouldBindJSON(&record); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	analysis, err := h.threatService.Analyze(record)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid threat record"})
		return
	}

	c.JSON(http.StatusOK, analysis)
}

// AnalyzePhishing runs phishing detection over raw content
func (h *ThreatHandler) AnalyzePhishing(c *gin.Context) {
	var req struct {
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Content == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty content"})
		return
	}

	c.JSON(http.StatusOK, h.threatService.AnalyzePhishing(req.Content))
}

// AnalyzePosture evaluates a security profile
func (h *ThreatHandler) AnalyzePosture(c *gin.Context) {
	var profile models.SecurityProfile
	if err := c.ShouldBindJSON(&profile); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, h.threatService.AnalyzePosture(profile))
}
