package server

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/Akashpatel2609/PrepWise/core"
	"github.com/Akashpatel2609/PrepWise/processors"
	"github.com/Akashpatel2609/PrepWise/storage"
)

// AnalysisHandlers 实时分析相关的HTTP处理器
type AnalysisHandlers struct {
	registry *core.SessionRegistry
	speech   *processors.SpeechChunkProcessor
	video    *processors.VideoFrameProcessor
	coach    *processors.Coach
	archive  storage.SessionArchive
	index    storage.AnswerIndex
}

// NewAnalysisHandlers 创建分析处理器实例
func NewAnalysisHandlers(registry *core.SessionRegistry, speech *processors.SpeechChunkProcessor, video *processors.VideoFrameProcessor, coach *processors.Coach, archive storage.SessionArchive, index storage.AnswerIndex) *AnalysisHandlers {
	return &AnalysisHandlers{
		registry: registry,
		speech:   speech,
		video:    video,
		coach:    coach,
		archive:  archive,
		index:    index,
	}
}

// SpeechChunkHandler 接收一段音频并返回该分片的评分记录
func (h *AnalysisHandlers) SpeechChunkHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		core.WriteJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		core.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart form"})
		return
	}

	sessionID := r.FormValue("session_id")
	if sessionID == "" {
		core.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "session_id required"})
		return
	}

	questionNumber := 0
	if v := r.FormValue("question_number"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			core.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid question_number"})
			return
		}
		questionNumber = n
	}

	durationHint := 0.0
	if v := r.FormValue("duration_seconds"); v != "" {
		d, err := strconv.ParseFloat(v, 64)
		if err != nil {
			core.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid duration_seconds"})
			return
		}
		durationHint = d
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		core.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "audio file required"})
		return
	}
	defer file.Close()
	audio, err := io.ReadAll(file)
	if err != nil {
		core.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read audio"})
		return
	}

	rec, err := h.speech.Process(r.Context(), processors.ChunkInput{
		SessionID:      sessionID,
		QuestionNumber: questionNumber,
		QuestionText:   r.FormValue("question_text"),
		Filename:       header.Filename,
		Audio:          audio,
		DurationHint:   durationHint,
	})
	if err != nil {
		if errors.Is(err, core.ErrInvalidRecord) {
			core.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		core.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	h.persistChunk(rec)
	core.WriteJSON(w, http.StatusOK, rec)
}

// VideoFrameHandler 接收一帧画面并推进姿态平滑状态机
func (h *AnalysisHandlers) VideoFrameHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		core.WriteJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		core.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart form"})
		return
	}

	sessionID := r.FormValue("session_id")
	if sessionID == "" {
		core.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "session_id required"})
		return
	}

	file, _, err := r.FormFile("frame")
	if err != nil {
		core.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "frame file required"})
		return
	}
	defer file.Close()
	frame, err := io.ReadAll(file)
	if err != nil {
		core.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read frame"})
		return
	}

	res, err := h.video.Process(r.Context(), sessionID, frame)
	if err != nil {
		if errors.Is(err, core.ErrInvalidRecord) {
			core.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		core.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	core.WriteJSON(w, http.StatusOK, res)
}

// SummaryHandler 返回会话的实时汇总
func (h *AnalysisHandlers) SummaryHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	state, ok := h.registry.Get(sessionID)
	if !ok {
		core.WriteJSON(w, http.StatusNotFound, map[string]string{"error": core.ErrNoData.Error()})
		return
	}
	core.WriteJSON(w, http.StatusOK, state.Snapshot().BuildRealtimeSummary())
}

// ReportHandler 合成并返回会话报告。
// 已知但为空的会话也返回合法报告，404只给未知会话。
func (h *AnalysisHandlers) ReportHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	state, ok := h.registry.Get(sessionID)
	if !ok {
		core.WriteJSON(w, http.StatusNotFound, map[string]string{"error": core.ErrNoData.Error()})
		return
	}

	snap := state.Snapshot()
	report := processors.SynthesizeReport(snap)

	if h.coach != nil && h.coach.Enabled() {
		for i := range report.PerQuestionFeedback {
			h.coach.Enrich(r.Context(), &report.PerQuestionFeedback[i], snap.Meta.JobDescription)
		}
	}

	h.persistReport(report)
	core.WriteJSON(w, http.StatusOK, report)
}

// persistChunk 异步归档分片记录
func (h *AnalysisHandlers) persistChunk(rec core.SpeechChunkRecord) {
	if h.archive == nil {
		return
	}
	go func() {
		if err := h.archive.SaveChunk(rec); err != nil {
			log.Printf("[archive] save chunk %s failed: %v", rec.RecordID, err)
		}
	}()
}

// persistReport 异步归档报告并刷新语义索引
func (h *AnalysisHandlers) persistReport(report core.Report) {
	if h.archive != nil {
		go func() {
			if err := h.archive.SaveReport(report); err != nil {
				log.Printf("[archive] save report for %s failed: %v", report.SessionID, err)
			}
		}()
	}
	if h.index != nil && len(report.Transcript) > 0 {
		entries := make([]core.AnswerEntry, 0, len(report.Transcript))
		for _, t := range report.Transcript {
			entries = append(entries, core.AnswerEntry{
				ChunkID:        fmt.Sprintf("%s_q%d", report.SessionID, t.QuestionNumber),
				QuestionNumber: t.QuestionNumber,
				Text:           t.Response,
			})
		}
		go func() {
			h.index.Upsert(report.SessionID, entries)
		}()
	}
}
