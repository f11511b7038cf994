package server

import (
	"encoding/json"
	"net/http"

	"github.com/Akashpatel2609/PrepWise/core"
	"github.com/Akashpatel2609/PrepWise/processors"
)

// QuestionHandlers 问题生成相关的HTTP处理器
type QuestionHandlers struct {
	registry  *core.SessionRegistry
	generator *processors.QuestionGenerator
}

// NewQuestionHandlers 创建问题处理器实例
func NewQuestionHandlers(registry *core.SessionRegistry, generator *processors.QuestionGenerator) *QuestionHandlers {
	return &QuestionHandlers{
		registry:  registry,
		generator: generator,
	}
}

type generateQuestionRequest struct {
	SessionID       string   `json:"session_id"`
	JobDescription  string   `json:"job_description"`
	NumQuestions    int      `json:"num_questions,omitempty"`
	DifficultyLevel string   `json:"difficulty_level,omitempty"`
	QuestionTypes   []string `json:"question_types,omitempty"`
}

// GenerateQuestionHandler 为会话生成一道面试问题
func (h *QuestionHandlers) GenerateQuestionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		core.WriteJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req generateQuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.SessionID == "" {
		core.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "session_id required"})
		return
	}

	state := h.registry.GetOrCreate(req.SessionID)
	jobDescription := req.JobDescription
	if jobDescription == "" {
		jobDescription = state.Meta().JobDescription
	}

	res := h.generator.Generate(r.Context(), state, jobDescription)
	core.WriteJSON(w, http.StatusOK, res)
}

// QuestionTypesHandler 返回支持的问题类型
func (h *QuestionHandlers) QuestionTypesHandler(w http.ResponseWriter, r *http.Request) {
	core.WriteJSON(w, http.StatusOK, processors.QuestionTypes())
}
