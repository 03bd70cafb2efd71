package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/venturely/venturely-backend/internal/requestdata"
	"github.com/venturely/venturely-backend/internal/services"
)

type BusinessPlanHandler struct {
	planService services.BusinessPlanService
}

func NewBusinessPlanHandler(planService services.BusinessPlanService) *BusinessPlanHandler {
	return &BusinessPlanHandler{planService: planService}
}

// callerAndPlan resolves the authenticated user and the :id route param.
// Responds and returns false on any failure.
func callerAndPlan(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		RespondError(c, http.StatusUnauthorized, "missing_token", fmt.Errorf("not authenticated"))
		return uuid.Nil, uuid.Nil, false
	}
	planID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_plan_id", fmt.Errorf("invalid plan id"))
		return uuid.Nil, uuid.Nil, false
	}
	return rd.UserID, planID, true
}

func (h *BusinessPlanHandler) Create(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		RespondError(c, http.StatusUnauthorized, "missing_token", fmt.Errorf("not authenticated"))
		return
	}
	var req struct {
		Title string `json:"title"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_json", fmt.Errorf("invalid request body"))
		return
	}
	plan, err := h.planService.CreatePlan(c.Request.Context(), rd.UserID, req.Title)
	if err != nil {
		RespondAPIError(c, err)
		return
	}
	RespondOK(c, gin.H{"plan": plan})
}

func (h *BusinessPlanHandler) List(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		RespondError(c, http.StatusUnauthorized, "missing_token", fmt.Errorf("not authenticated"))
		return
	}
	plans, err := h.planService.GetUserPlans(c.Request.Context(), rd.UserID)
	if err != nil {
		RespondAPIError(c, err)
		return
	}
	RespondOK(c, gin.H{"plans": plans})
}

func (h *BusinessPlanHandler) Get(c *gin.Context) {
	userID, planID, ok := callerAndPlan(c)
	if !ok {
		return
	}
	plan, err := h.planService.GetPlanForUser(c.Request.Context(), userID, planID)
	if err != nil {
		RespondAPIError(c, err)
		return
	}
	RespondOK(c, gin.H{"plan": plan})
}

func (h *BusinessPlanHandler) Summary(c *gin.Context) {
	userID, planID, ok := callerAndPlan(c)
	if !ok {
		return
	}
	summary, err := h.planService.Summary(c.Request.Context(), userID, planID)
	if err != nil {
		RespondAPIError(c, err)
		return
	}
	RespondOK(c, gin.H{"summary": summary})
}

func (h *BusinessPlanHandler) RefreshSummaries(c *gin.Context) {
	userID, planID, ok := callerAndPlan(c)
	if !ok {
		return
	}
	if err := h.planService.RefreshSummaries(c.Request.Context(), userID, planID); err != nil {
		RespondAPIError(c, err)
		return
	}
	RespondOK(c, gin.H{"success": true})
}
