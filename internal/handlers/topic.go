package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/venturely/venturely-backend/internal/logger"
	"github.com/venturely/venturely-backend/internal/platform/apierr"
	"github.com/venturely/venturely-backend/internal/services"
)

// TopicHandler serves every topic route from one pair of handlers,
// parameterized by the topic registry entry bound at route registration.
type TopicHandler struct {
	log         *logger.Logger
	planService services.BusinessPlanService
}

func NewTopicHandler(log *logger.Logger, planService services.BusinessPlanService) *TopicHandler {
	return &TopicHandler{
		log:         log.With("handler", "TopicHandler"),
		planService: planService,
	}
}

// Get returns the stored structured object and rendered markdown for one
// topic, keyed "<topic>Data" and "<topic>".
func (h *TopicHandler) Get(topic services.TopicConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, planID, ok := callerAndPlan(c)
		if !ok {
			return
		}
		data, markdown, err := h.planService.GetTopicContent(c.Request.Context(), userID, planID, topic)
		if err != nil {
			RespondAPIError(c, err)
			return
		}
		RespondOK(c, gin.H{
			topic.DataKey(): data,
			topic.Key:       markdown,
		})
	}
}

// Turn handles one conversational turn (POST and PUT behave identically).
func (h *TopicHandler) Turn(topic services.TopicConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, planID, ok := callerAndPlan(c)
		if !ok {
			return
		}

		raw, err := io.ReadAll(c.Request.Body)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "unreadable_body", err)
			return
		}

		req, err := services.NormalizeTurnRequest(topic, raw)
		if err != nil {
			RespondAPIError(c, err)
			return
		}

		resp, err := h.planService.HandleTurn(c.Request.Context(), userID, planID, topic, req)
		if err != nil {
			h.respondTurnError(c, topic, err)
			return
		}

		RespondOK(c, gin.H{
			"message":       resp.Message,
			topic.DataKey(): resp.Data,
		})
	}
}

// respondTurnError keeps the error envelope but adds the topic's apology text
// so a chat client has something safe to show the user.
func (h *TopicHandler) respondTurnError(c *gin.Context, topic services.TopicConfig, err error) {
	status := apierr.StatusOf(err)
	code := apierr.CodeOf(err)
	if status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable {
		c.Header("Retry-After", "5")
	}
	h.log.Warn("Turn failed", "topic", topic.Key, "status", status, "error", err)
	c.JSON(status, gin.H{
		"error": APIError{
			Message: clientMessage(status, code, err),
			Code:    code,
		},
		"message": services.AssistantMessage{
			Role:    "assistant",
			Content: topic.Apology,
		},
	})
}
