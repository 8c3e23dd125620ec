package handlers

import (
	"net/http"

	"github.com/taskflow/ai-backend/services/ai"
	"github.com/taskflow/ai-backend/services/providers"
	"github.com/taskflow/ai-backend/utils"
	"go.uber.org/zap"
)

// AIHandler exposes the provider operations over HTTP
type AIHandler struct {
	manager *ai.Manager
	logger  *zap.Logger
}

// NewAIHandler creates a new AIHandler
func NewAIHandler(manager *ai.Manager, logger *zap.Logger) *AIHandler {
	return &AIHandler{
		manager: manager,
		logger:  logger,
	}
}

// HandleProviders handles GET /api/v1/ai/providers
func (h *AIHandler) HandleProviders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	_ = utils.WriteOK(w, map[string]interface{}{
		"active_provider": h.manager.ActiveProvider(ctx),
		"has_configured":  h.manager.HasConfiguredProvider(ctx),
		"providers":       h.manager.AvailableProviders(ctx),
	})
}

// HandleUsage handles GET /api/v1/ai/usage
func (h *AIHandler) HandleUsage(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, h.manager.UsageMetrics(r.Context()))
}

// HandleChat handles POST /api/v1/ai/chat
func (h *AIHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if !h.decode(w, r, &req) {
		return
	}

	resp, err := h.manager.Chat(r.Context(), req.Provider, req.Messages, req.Options())
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, resp)
}

// HandleGenerateTasks handles POST /api/v1/ai/tasks/generate.
// A failed generation is still 200: the body carries success=false and the reason.
func (h *AIHandler) HandleGenerateTasks(w http.ResponseWriter, r *http.Request) {
	var req GenerateTasksRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.manager.GenerateTasks(r.Context(), req.Provider, req.Description, providers.TaskOptions{
		ChatOptions:  providers.ChatOptions{Model: req.Model},
		MaxTasks:     req.MaxTasks,
		ProjectTitle: req.ProjectTitle,
	})
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, result)
}

// HandleAnalyzeProject handles POST /api/v1/ai/projects/analyze
func (h *AIHandler) HandleAnalyzeProject(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeProjectRequest
	if !h.decode(w, r, &req) {
		return
	}

	analysis, err := h.manager.AnalyzeProject(r.Context(), req.Provider, req.Description, req.ExistingTasks,
		providers.ChatOptions{Model: req.Model})
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, map[string]string{"analysis": analysis})
}

// HandleSuggestImprovements handles POST /api/v1/ai/tasks/suggestions
func (h *AIHandler) HandleSuggestImprovements(w http.ResponseWriter, r *http.Request) {
	var req SuggestImprovementsRequest
	if !h.decode(w, r, &req) {
		return
	}

	suggestions, err := h.manager.SuggestTaskImprovements(r.Context(), req.Provider, req.Tasks,
		providers.ChatOptions{Model: req.Model})
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, map[string][]string{"suggestions": suggestions})
}

func (h *AIHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := utils.DecodeJSON(r, dst); err != nil {
		HandleServiceError(w, err, h.logger)
		return false
	}
	if err := utils.ValidateStruct(dst); err != nil {
		HandleServiceError(w, err, h.logger)
		return false
	}
	return true
}
