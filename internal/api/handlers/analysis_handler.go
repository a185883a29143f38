package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/andresuchdata/autopo-py/replenish/internal/analysis"
	"github.com/andresuchdata/autopo-py/replenish/internal/service"
)

type AnalysisHandler struct {
	service *service.AnalysisService
}

func NewAnalysisHandler(service *service.AnalysisService) *AnalysisHandler {
	return &AnalysisHandler{service: service}
}

func (h *AnalysisHandler) GetAnalysis(c *gin.Context) {
	months, err := analysis.ParseMonths(c.DefaultQuery("months", "3"))
	if err != nil {
		errorJSON(c, "invalid months", err)
		return
	}

	branch := strings.TrimSpace(c.DefaultQuery("branch", service.AllBranches))
	report, err := h.service.Report(c.Request.Context(), branch, months)
	if err != nil {
		errorJSON(c, "failed to build analysis", err)
		return
	}

	c.JSON(http.StatusOK, toAnalysisResponse(report))
}
