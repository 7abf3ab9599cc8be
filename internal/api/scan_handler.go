package api

import (
	"errors"
	"net/http"
	"strconv"

	"cyberguard-server/internal/models"
	"cyberguard-server/internal/scan"
	"cyberguard-server/internal/services"

	"github.com/gin-gonic/gin"
)

type ScanHandler struct {
	manager       *scan.Manager
	reportService *services.ReportService
}

func NewScanHandler(manager *scan.Manager, reportService *services.ReportService) *ScanHandler {
	return &ScanHandler{
		manager:       manager,
		reportService: reportService,
	}
}

// Start launches a new scan session
func (h *ScanHandler) Start(c *gin.Context) {
	var req struct {
		Target   string `json:"target"`
		ScanType string `json:"scan_type"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := h.manager.Start(req.Target, req.ScanType)
	if err != nil {
		switch {
		case errors.Is(err, scan.ErrScanAlreadyRunning):
			c.JSON(http.StatusConflict, gin.H{"error": "scan already running for target"})
		case errors.Is(err, scan.ErrInvalidTarget):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid scan target"})
		case errors.Is(err, scan.ErrInvalidScanType):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid scan type"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusCreated, session.Record())
}

// Get returns the current state of a session
func (h *ScanHandler) Get(c *gin.Context) {
	sessionID := c.Param("id")

	record, err := h.manager.Get(sessionID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "scan session not found"})
		return
	}

	c.JSON(http.StatusOK, record)
}

// Cancel requests cancellation of a running session. Cancelling a
// finished session succeeds with no effect.
func (h *ScanHandler) Cancel(c *gin.Context) {
	sessionID := c.Param("id")

	if err := h.manager.Cancel(sessionID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "scan session not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// List returns all live sessions, optionally filtered by target
func (h *ScanHandler) List(c *gin.Context) {
	target := c.Query("target")

	records := h.manager.List(target)

	c.JSON(http.StatusOK, gin.H{
		"scans": records,
		"total": len(records),
	})
}

// History returns terminal sessions, newest first. When the in-memory
// window is empty, e.g. right after a restart, persisted records are
// served instead.
func (h *ScanHandler) History(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	records := h.manager.History(limit)
	if len(records) == 0 {
		if archived, err := h.reportService.History(limit, c.Query("target")); err == nil {
			records = archived
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"scans": records,
		"total": len(records),
	})
}

// Report builds the vulnerability report for a finished session
func (h *ScanHandler) Report(c *gin.Context) {
	sessionID := c.Param("id")

	record, err := h.manager.Get(sessionID)
	if err != nil {
		if archived, dbErr := h.reportService.GetArchived(sessionID); dbErr == nil {
			record = *archived
		} else {
			c.JSON(http.StatusNotFound, gin.H{"error": "scan session not found"})
			return
		}
	}

	if !record.IsTerminal() {
		c.JSON(http.StatusConflict, gin.H{"error": "scan still running"})
		return
	}
	if record.Status != models.ScanStateCompleted {
		c.JSON(http.StatusConflict, gin.H{"error": "scan did not complete"})
		return
	}

	c.JSON(http.StatusOK, h.reportService.BuildReport(record))
}
