package server

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/Akashpatel2609/PrepWise/core"
	"github.com/Akashpatel2609/PrepWise/storage"
)

// InterviewHandlers 面试会话生命周期的HTTP处理器
type InterviewHandlers struct {
	registry *core.SessionRegistry
	archive  storage.SessionArchive
}

// NewInterviewHandlers 创建会话处理器实例
func NewInterviewHandlers(registry *core.SessionRegistry, archive storage.SessionArchive) *InterviewHandlers {
	return &InterviewHandlers{
		registry: registry,
		archive:  archive,
	}
}

type createSessionRequest struct {
	Name               string `json:"name"`
	JobDescription     string `json:"job_description"`
	MinutesPerQuestion int    `json:"minutes_per_question"`
	TotalTime          int    `json:"total_time"`
}

// CreateSessionHandler 创建面试会话
func (h *InterviewHandlers) CreateSessionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		core.WriteJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	mpq := req.MinutesPerQuestion
	if mpq < 1 {
		mpq = 1
	}
	numQuestions := req.TotalTime / mpq
	if numQuestions < 1 {
		numQuestions = 1
	}

	meta := core.SessionMeta{
		SessionID:          uuid.NewString(),
		Name:               req.Name,
		JobDescription:     req.JobDescription,
		MinutesPerQuestion: req.MinutesPerQuestion,
		TotalTime:          req.TotalTime,
		NumQuestions:       numQuestions,
		Status:             core.StatusCreated,
		CreatedAt:          time.Now().UTC(),
	}
	h.registry.Create(meta)
	h.persistMeta(meta)

	core.WriteJSON(w, http.StatusOK, meta)
}

// GetSessionHandler 查询会话元数据
func (h *InterviewHandlers) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	state, ok := h.registry.Get(sessionID)
	if !ok {
		core.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "Session not found"})
		return
	}
	core.WriteJSON(w, http.StatusOK, state.Meta())
}

// StartSessionHandler 标记会话开始
func (h *InterviewHandlers) StartSessionHandler(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, core.StatusInProgress, "Interview session started")
}

// CompleteSessionHandler 标记会话完成
func (h *InterviewHandlers) CompleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, core.StatusCompleted, "Interview session completed")
}

func (h *InterviewHandlers) transition(w http.ResponseWriter, r *http.Request, status, message string) {
	if r.Method != http.MethodPost {
		core.WriteJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	sessionID := sessionIDFromRequest(r)
	state, ok := h.registry.Get(sessionID)
	if !ok {
		core.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "Session not found"})
		return
	}

	state.UpdateStatus(status)
	h.persistMeta(state.Meta())

	core.WriteJSON(w, http.StatusOK, map[string]string{
		"message":    message,
		"session_id": sessionID,
	})
}

// DeleteSessionHandler 删除会话及其内存状态，归档数据保留
func (h *InterviewHandlers) DeleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		core.WriteJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	sessionID := sessionIDFromRequest(r)
	if !h.registry.Delete(sessionID) {
		core.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "Session not found"})
		return
	}
	core.WriteJSON(w, http.StatusOK, map[string]string{"message": "Session deleted successfully"})
}

// ListSessionsHandler 列出全部会话元数据
func (h *InterviewHandlers) ListSessionsHandler(w http.ResponseWriter, r *http.Request) {
	core.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": h.registry.List(),
	})
}

// persistMeta 异步归档元数据，处理路径不等待存储
func (h *InterviewHandlers) persistMeta(meta core.SessionMeta) {
	if h.archive == nil {
		return
	}
	go func() {
		if err := h.archive.SaveMeta(meta); err != nil {
			log.Printf("[archive] save meta for %s failed: %v", meta.SessionID, err)
		}
	}()
}

// sessionIDFromRequest 先看查询参数，再看JSON体
func sessionIDFromRequest(r *http.Request) string {
	if id := r.URL.Query().Get("session_id"); id != "" {
		return id
	}
	var body struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
		return body.SessionID
	}
	return ""
}
