package handlers

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/andresuchdata/autopo-py/replenish/internal/analysis"
	"github.com/andresuchdata/autopo-py/replenish/internal/domain"
	"github.com/andresuchdata/autopo-py/replenish/internal/export"
	"github.com/andresuchdata/autopo-py/replenish/internal/service"
)

type RecommendationHandler struct {
	service *service.RecommendationService
}

func NewRecommendationHandler(service *service.RecommendationService) *RecommendationHandler {
	return &RecommendationHandler{service: service}
}

func (h *RecommendationHandler) parseRequest(c *gin.Context) service.Request {
	return service.Request{
		Branch: strings.TrimSpace(c.DefaultQuery("branch", service.AllBranches)),
		View:   strings.TrimSpace(c.Query("view")),
	}
}

// GetBranches lists the branch catalogue, the views and the analysis periods.
func (h *RecommendationHandler) GetBranches(c *gin.Context) {
	views := make([]string, 0, len(h.service.Views()))
	for name := range h.service.Views() {
		views = append(views, name)
	}
	sort.Strings(views)

	c.JSON(http.StatusOK, domain.BranchesResponse{
		Branches: h.service.Branches(),
		Views:    views,
		Periods:  analysis.Periods(),
	})
}

func (h *RecommendationHandler) GetRecommendations(c *gin.Context) {
	report, err := h.service.Compute(c.Request.Context(), h.parseRequest(c))
	if err != nil {
		errorJSON(c, "failed to compute recommendations", err)
		return
	}

	c.JSON(http.StatusOK, toRecommendationResponse(report))
}

// ExportRecommendations streams the table as an xlsx or csv attachment.
func (h *RecommendationHandler) ExportRecommendations(c *gin.Context) {
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		errorJSON(c, "invalid format", err)
		return
	}

	req := h.parseRequest(c)
	report, err := h.service.Compute(c.Request.Context(), req)
	if err != nil {
		errorJSON(c, "failed to compute recommendations", err)
		return
	}
	if report.Table == nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":    "no branch produced a result",
			"failures": toFailures(report.Failures),
		})
		return
	}

	enc := export.EncoderFor(format)
	label := strings.NewReplacer(",", "-", " ", "").Replace(req.Branch)
	name := fmt.Sprintf("recommendations_%s_%s%s", label, time.Now().Format("20060102_150405"), enc.Extension())

	c.Header("Content-Type", enc.ContentType())
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	if len(report.Failures) > 0 {
		c.Header("X-Failed-Branches", strings.Join(failedBranches(report.Failures), ","))
	}
	c.Status(http.StatusOK)
	if err := enc.Encode(c.Writer, report.Table); err != nil {
		_ = c.Error(err)
	}
}

func (h *RecommendationHandler) StartRun(c *gin.Context) {
	var body domain.RunRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
			return
		}
	}
	if body.Branch == "" {
		body.Branch = service.AllBranches
	}

	run, err := h.service.Start(c.Request.Context(), service.Request{Branch: body.Branch, View: body.View})
	if err != nil {
		errorJSON(c, "failed to start run", err)
		return
	}

	c.JSON(http.StatusAccepted, toRunResponse(run))
}

func (h *RecommendationHandler) GetRun(c *gin.Context) {
	run, err := h.service.Status(c.Param("id"))
	if err != nil {
		errorJSON(c, "failed to fetch run", err)
		return
	}

	c.JSON(http.StatusOK, toRunResponse(run))
}

func (h *RecommendationHandler) CancelRun(c *gin.Context) {
	id := c.Param("id")
	if err := h.service.Cancel(id); err != nil {
		errorJSON(c, "failed to cancel run", err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"id": id, "status": "cancelling"})
}

func (h *RecommendationHandler) InvalidateCache(c *gin.Context) {
	if err := h.service.InvalidateCache(c.Request.Context()); err != nil {
		errorJSON(c, "failed to invalidate cache", err)
		return
	}

	c.Status(http.StatusNoContent)
}
