package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/Akashpatel2609/PrepWise/core"
	"github.com/Akashpatel2609/PrepWise/storage"
)

// SearchHandlers 历史回答语义检索的HTTP处理器
type SearchHandlers struct {
	index storage.AnswerIndex
}

// NewSearchHandlers 创建检索处理器实例
func NewSearchHandlers(index storage.AnswerIndex) *SearchHandlers {
	return &SearchHandlers{index: index}
}

type searchRequest struct {
	SessionID string `json:"session_id"`
	Query     string `json:"query"`
	TopK      int    `json:"top_k"`
}

type searchResponse struct {
	SessionID string           `json:"session_id"`
	Query     string           `json:"query"`
	Hits      []core.AnswerHit `json:"hits"`
}

// SearchAnswersHandler 在会话的历史回答中做语义检索
func (h *SearchHandlers) SearchAnswersHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		core.WriteJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.SessionID == "" || strings.TrimSpace(req.Query) == "" {
		core.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "session_id and query required"})
		return
	}

	hits := h.index.Search(req.SessionID, req.Query, req.TopK)
	if hits == nil {
		hits = []core.AnswerHit{}
	}
	core.WriteJSON(w, http.StatusOK, searchResponse{SessionID: req.SessionID, Query: req.Query, Hits: hits})
}
