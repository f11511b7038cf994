package core

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

// DefaultMaxChunks 单会话保留的原始语音块上限，运行总量计数不受影响
const DefaultMaxChunks = 512

// SessionState 单个会话的可变状态容器，持有自己的锁。
// 块列表、平滑缓冲、姿态计数只能通过本类型的方法修改。
type SessionState struct {
	mu sync.Mutex

	id        string
	meta      SessionMeta
	questions map[int]string

	chunks     []SpeechChunkRecord
	maxChunks  int
	chunkCount int // 含已被环形缓冲淘汰的块
	totalWords int
	totalDur   float64
	fillers    FillerBreakdown

	rateSum       float64
	claritySum    float64
	confidenceSum float64

	smoother   *ActionSmoother
	lastActive time.Time
}

func newSessionState(id string, maxChunks int) *SessionState {
	if maxChunks <= 0 {
		maxChunks = DefaultMaxChunks
	}
	return &SessionState{
		id:         id,
		meta:       SessionMeta{SessionID: id, Status: StatusCreated, CreatedAt: time.Now().UTC()},
		questions:  make(map[int]string),
		maxChunks:  maxChunks,
		smoother:   NewActionSmoother(DefaultWindowSize, DefaultRecentSize, DefaultMaxSentence),
		lastActive: time.Now().UTC(),
	}
}

func (s *SessionState) ID() string { return s.id }

func (s *SessionState) Meta() SessionMeta {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta
}

func (s *SessionState) setMeta(meta SessionMeta) {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta.SessionID = s.id
	if meta.Status == "" {
		meta.Status = StatusCreated
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}
	s.meta = meta
	s.lastActive = time.Now().UTC()
}

// UpdateStatus 推进会话生命周期状态并记录时间点
func (s *SessionState) UpdateStatus(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	s.meta.Status = status
	switch status {
	case StatusInProgress:
		s.meta.StartedAt = &now
	case StatusCompleted:
		s.meta.CompletedAt = &now
	}
	s.lastActive = now
}

// SetQuestion 登记某题号的题目文本，报告用它替代占位标题
func (s *SessionState) SetQuestion(number int, text string) {
	if number <= 0 || strings.TrimSpace(text) == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.questions[number] = text
	s.lastActive = time.Now().UTC()
}

// AddQuestion 追加一道生成的题目，返回其题号
func (s *SessionState) AddQuestion(text string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	number := len(s.questions) + 1
	s.questions[number] = text
	s.lastActive = time.Now().UTC()
	return number
}

// AppendChunk 追加一条语音块记录并更新运行总量。
// 违反不变量（负时长、负计数、置信度越界）的记录被拒绝，会话不受影响。
func (s *SessionState) AppendChunk(rec SpeechChunkRecord) error {
	if rec.DurationSeconds < 0 {
		return fmt.Errorf("%w: negative duration %.3f", ErrInvalidRecord, rec.DurationSeconds)
	}
	if rec.WordCount < 0 || rec.FillerCount < 0 ||
		rec.Fillers.Um < 0 || rec.Fillers.Uh < 0 || rec.Fillers.Like < 0 || rec.Fillers.Other < 0 {
		return fmt.Errorf("%w: negative count", ErrInvalidRecord)
	}
	if rec.Confidence < 0 || rec.Confidence > 1 {
		return fmt.Errorf("%w: confidence %v out of range [0,1]", ErrInvalidRecord, rec.Confidence)
	}
	if rec.SessionID != "" && rec.SessionID != s.id {
		return fmt.Errorf("%w: record session %q does not match %q", ErrInvalidRecord, rec.SessionID, s.id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec.SessionID = s.id
	if rec.RecordID == "" {
		rec.RecordID = NewID()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	if len(s.chunks) >= s.maxChunks {
		copy(s.chunks, s.chunks[1:])
		s.chunks[len(s.chunks)-1] = rec
	} else {
		s.chunks = append(s.chunks, rec)
	}

	s.chunkCount++
	s.totalWords += rec.WordCount
	s.totalDur += rec.DurationSeconds
	s.fillers.Add(rec.Fillers)
	s.rateSum += rec.SpeakingRateWPM
	s.claritySum += float64(rec.ClarityScore)
	s.confidenceSum += rec.Confidence
	s.lastActive = time.Now().UTC()
	return nil
}

// PushFeatures 推入一帧特征，窗口满时返回可在锁外安全读取的快照
func (s *SessionState) PushFeatures(features []float64) ([][]float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = time.Now().UTC()
	return s.smoother.PushFeatures(features)
}

// RecordPrediction 记录一次窗口分类结果
func (s *SessionState) RecordPrediction(probs []float64, threshold float64) (FramePrediction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = time.Now().UTC()
	return s.smoother.RecordPrediction(s.id, probs, threshold)
}

// BumpFallback 降级路径的姿态计数
func (s *SessionState) BumpFallback(label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = time.Now().UTC()
	s.smoother.BumpFallback(label)
}

// WindowLen 当前特征窗口帧数
func (s *SessionState) WindowLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.smoother.WindowLen()
}

func (s *SessionState) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// SessionSnapshot 会话状态的一致性只读快照，报告与摘要都从它派生
type SessionSnapshot struct {
	SessionID          string
	Meta               SessionMeta
	Questions          map[int]string
	Chunks             []SpeechChunkRecord
	TotalChunks        int
	TotalWords         int
	TotalDuration      float64
	FillerTotals       FillerBreakdown
	AvgSpeakingRate    float64
	AvgClarity         float64
	AvgConfidence      float64
	PostureTally       map[string]int
	StabilizedSentence []string
	CurrentLabel       string
}

// Snapshot 在锁内深拷贝当前状态
func (s *SessionState) Snapshot() SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	chunks := make([]SpeechChunkRecord, len(s.chunks))
	copy(chunks, s.chunks)
	questions := make(map[int]string, len(s.questions))
	for k, v := range s.questions {
		questions[k] = v
	}

	snap := SessionSnapshot{
		SessionID:          s.id,
		Meta:               s.meta,
		Questions:          questions,
		Chunks:             chunks,
		TotalChunks:        s.chunkCount,
		TotalWords:         s.totalWords,
		TotalDuration:      s.totalDur,
		FillerTotals:       s.fillers,
		PostureTally:       s.smoother.Tally(),
		StabilizedSentence: s.smoother.Sentence(),
		CurrentLabel:       s.smoother.CurrentLabel(),
	}
	if s.chunkCount > 0 {
		n := float64(s.chunkCount)
		snap.AvgSpeakingRate = s.rateSum / n
		snap.AvgClarity = s.claritySum / n
		snap.AvgConfidence = s.confidenceSum / n
	}
	return snap
}

// CombinedTranscript 按到达顺序拼接非空转写文本
func (s SessionSnapshot) CombinedTranscript() string {
	parts := make([]string, 0, len(s.Chunks))
	for _, c := range s.Chunks {
		if c.Text != "" {
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, " ")
}

// BuildRealtimeSummary 从快照派生实时摘要
func (s SessionSnapshot) BuildRealtimeSummary() RealtimeSummary {
	wpm := 0.0
	if s.TotalDuration > 0 {
		wpm = float64(s.TotalWords) / s.TotalDuration * 60.0
	}
	fr := 0.0
	if s.TotalWords > 0 {
		fr = float64(s.FillerTotals.Total()) / float64(s.TotalWords)
	}
	return RealtimeSummary{
		SessionID:          s.SessionID,
		Transcript:         s.CombinedTranscript(),
		TotalChunks:        s.TotalChunks,
		TotalWords:         s.TotalWords,
		TotalDuration:      s.TotalDuration,
		SpeakingRateWPM:    wpm,
		FillerCount:        s.FillerTotals.Total(),
		FillerRate:         fr,
		FillerBreakdown:    s.FillerTotals,
		AverageClarity:     s.AvgClarity,
		AverageConfidence:  s.AvgConfidence,
		PostureTally:       s.PostureTally,
		StabilizedSentence: s.StabilizedSentence,
		CurrentLabel:       s.CurrentLabel,
	}
}

// SessionRegistry 进程级会话注册表。条目懒创建，每个条目自带锁，
// 跨会话操作互不竞争；显式删除或空闲超时后淘汰。
type SessionRegistry struct {
	mu        sync.RWMutex
	sessions  map[string]*SessionState
	maxChunks int
	idleTTL   time.Duration
}

func NewSessionRegistry(maxChunksPerSession int, idleTTL time.Duration) *SessionRegistry {
	return &SessionRegistry{
		sessions:  make(map[string]*SessionState),
		maxChunks: maxChunksPerSession,
		idleTTL:   idleTTL,
	}
}

// Get 查找已知会话，不创建
func (r *SessionRegistry) Get(id string) (*SessionState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// GetOrCreate 返回会话状态，未见过的session_id懒创建
func (r *SessionRegistry) GetOrCreate(id string) *SessionState {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if ok {
		return s
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		return s
	}
	s = newSessionState(id, r.maxChunks)
	r.sessions[id] = s
	return s
}

// Create 以给定元数据登记会话，已存在时仅覆盖元数据
func (r *SessionRegistry) Create(meta SessionMeta) *SessionState {
	s := r.GetOrCreate(meta.SessionID)
	s.setMeta(meta)
	return s
}

// Delete 显式销毁会话状态
func (r *SessionRegistry) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	return true
}

func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// List 返回全部会话元数据
func (r *SessionRegistry) List() []SessionMeta {
	r.mu.RLock()
	states := make([]*SessionState, 0, len(r.sessions))
	for _, s := range r.sessions {
		states = append(states, s)
	}
	r.mu.RUnlock()

	metas := make([]SessionMeta, 0, len(states))
	for _, s := range states {
		metas = append(metas, s.Meta())
	}
	return metas
}

// EvictIdle 淘汰空闲超过olderThan的会话，返回淘汰数量
func (r *SessionRegistry) EvictIdle(olderThan time.Duration) int {
	if olderThan <= 0 {
		return 0
	}
	cutoff := time.Now().UTC().Add(-olderThan)

	r.mu.RLock()
	stale := make([]string, 0)
	for id, s := range r.sessions {
		if s.LastActive().Before(cutoff) {
			stale = append(stale, id)
		}
	}
	r.mu.RUnlock()

	evicted := 0
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range stale {
		if s, ok := r.sessions[id]; ok && s.LastActive().Before(cutoff) {
			delete(r.sessions, id)
			evicted++
		}
	}
	return evicted
}

// StartSweeper 启动空闲会话清理协程，ctx取消时退出；idleTTL为0表示不淘汰
func (r *SessionRegistry) StartSweeper(ctx context.Context, interval time.Duration) {
	if r.idleTTL <= 0 || interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := r.EvictIdle(r.idleTTL); n > 0 {
					log.Printf("[registry] evicted %d idle sessions", n)
				}
			}
		}
	}()
}
