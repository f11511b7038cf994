package core

import (
	"errors"
	"time"
)

// ========== 错误定义 ==========

var (
	// ErrNoData 会话未知，读取摘要或报告时返回
	ErrNoData = errors.New("no data for session")
	// ErrInvalidRecord 单条记录违反不变量，仅拒绝该记录，会话继续
	ErrInvalidRecord = errors.New("invalid record")
)

// ========== 语音分析数据结构 ==========

// 表现等级，由最终得分决定
const (
	LevelExcellent        = "Excellent"
	LevelGood             = "Good"
	LevelFair             = "Fair"
	LevelNeedsImprovement = "Needs Improvement"
)

// 零信息记录的哨兵等级，区别于真实低分
const (
	ReasonNoBytes         = "no-bytes"
	ReasonDecodeError     = "decode-error"
	ReasonTranscribeError = "transcribe-error"
	ReasonNoSpeech        = "no-speech"
)

type FillerBreakdown struct {
	Um    int `json:"um"`
	Uh    int `json:"uh"`
	Like  int `json:"like"`
	Other int `json:"other"`
}

func (f FillerBreakdown) Total() int { return f.Um + f.Uh + f.Like + f.Other }

func (f *FillerBreakdown) Add(o FillerBreakdown) {
	f.Um += o.Um
	f.Uh += o.Uh
	f.Like += o.Like
	f.Other += o.Other
}

type SpeechChunkRecord struct {
	RecordID         string          `json:"record_id"`
	SessionID        string          `json:"session_id"`
	QuestionNumber   int             `json:"question_number,omitempty"`
	Text             string          `json:"transcript_text"`
	WordCount        int             `json:"word_count"`
	DurationSeconds  float64         `json:"duration_seconds"`
	Fillers          FillerBreakdown `json:"filler_breakdown"`
	FillerCount      int             `json:"filler_count"`
	SpeakingRateWPM  float64         `json:"speaking_rate_wpm"`
	ClarityScore     int             `json:"clarity_score"`
	FinalScore       int             `json:"final_score"`
	PerformanceLevel string          `json:"performance_level"`
	Confidence       float64         `json:"confidence"`
	Timestamp        time.Time       `json:"timestamp"`
}

// ZeroInformation 该记录是否为零信息哨兵（无语音或解码失败）
func (r SpeechChunkRecord) ZeroInformation() bool {
	switch r.PerformanceLevel {
	case ReasonNoBytes, ReasonDecodeError, ReasonTranscribeError, ReasonNoSpeech:
		return true
	}
	return false
}

// ========== 视频姿态数据结构 ==========

// ActionLabels 分类器概率向量的固定类别顺序
var ActionLabels = []string{"Good Posture", "Nervous Expression", "Confident Expression", "Slouching"}

// LabelNeutral 降级模式下的回退标签
const LabelNeutral = "Neutral"

type FramePrediction struct {
	SessionID       string    `json:"session_id"`
	Probabilities   []float64 `json:"probabilities"`
	PredictedClass  int       `json:"predicted_class"`
	Label           string    `json:"label"`
	Confidence      float64   `json:"confidence"`
	StabilizedLabel string    `json:"stabilized_label,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// ========== 会话元数据 ==========

const (
	StatusCreated    = "created"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

type SessionMeta struct {
	SessionID          string     `json:"session_id"`
	Name               string     `json:"name"`
	JobDescription     string     `json:"job_description"`
	MinutesPerQuestion int        `json:"minutes_per_question"`
	TotalTime          int        `json:"total_time"`
	NumQuestions       int        `json:"num_questions"`
	Status             string     `json:"status"`
	CreatedAt          time.Time  `json:"created_at"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
}

// ========== 实时摘要 ==========

type RealtimeSummary struct {
	SessionID          string          `json:"session_id"`
	Transcript         string          `json:"transcript"`
	TotalChunks        int             `json:"total_chunks"`
	TotalWords         int             `json:"total_words"`
	TotalDuration      float64         `json:"total_duration_seconds"`
	SpeakingRateWPM    float64         `json:"speaking_rate_wpm"`
	FillerCount        int             `json:"filler_count"`
	FillerRate         float64         `json:"filler_rate"`
	FillerBreakdown    FillerBreakdown `json:"filler_breakdown"`
	AverageClarity     float64         `json:"average_clarity_score"`
	AverageConfidence  float64         `json:"average_confidence"`
	PostureTally       map[string]int  `json:"posture_tally"`
	StabilizedSentence []string        `json:"stabilized_sentence"`
	CurrentLabel       string          `json:"current_label,omitempty"`
}

// ========== 报告数据结构 ==========

type TranscriptEntry struct {
	QuestionNumber  int     `json:"question_number"`
	Question        string  `json:"question"`
	Response        string  `json:"response"`
	Timestamp       string  `json:"timestamp"`
	DurationSeconds float64 `json:"duration_seconds"`
	WordCount       int     `json:"word_count"`
	Confidence      float64 `json:"confidence"`
}

type SpeechSummary struct {
	Score        int             `json:"score"`
	SpeakingPace string          `json:"speaking_pace"`
	Clarity      int             `json:"clarity"`
	FillerWords  FillerBreakdown `json:"filler_words"`
}

type BodyLanguageSummary struct {
	PostureScore int    `json:"posture_score"`
	EyeContact   string `json:"eye_contact"`
	Gestures     string `json:"gestures"`
}

type PostureShare struct {
	Label   string  `json:"label"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

type CoachingEntry struct {
	QuestionNumber int            `json:"question_number"`
	Question       string         `json:"question"`
	Transcript     string         `json:"transcript"`
	FillerCounts   map[string]int `json:"filler_words"`
	Issues         []string       `json:"issues"`
	Improvements   []string       `json:"improvements"`
	ModelAnswer    string         `json:"model_answer,omitempty"`
}

type Report struct {
	SessionID            string              `json:"session_id"`
	OverallScore         int                 `json:"overall_score"`
	Speech               SpeechSummary       `json:"speech_analysis"`
	BodyLanguage         BodyLanguageSummary `json:"body_language"`
	ResponseTimeScore    int                 `json:"response_time_score"`
	ConfidenceScore      int                 `json:"confidence_score"`
	ContentScore         int                 `json:"content_score"`
	Transcript           []TranscriptEntry   `json:"transcript"`
	TotalWords           int                 `json:"total_words"`
	TotalDurationSeconds float64             `json:"total_duration_seconds"`
	FillerAggregate      FillerBreakdown     `json:"filler_aggregate"`
	PerQuestionFeedback  []CoachingEntry     `json:"per_question_feedback"`
	PostureDistribution  []PostureShare      `json:"posture_distribution"`
}

// ========== 语义检索数据结构 ==========

type AnswerEntry struct {
	ChunkID        string `json:"chunk_id"`
	QuestionNumber int    `json:"question_number"`
	Text           string `json:"text"`
}

type AnswerHit struct {
	Score          float64 `json:"score"`
	SessionID      string  `json:"session_id"`
	QuestionNumber int     `json:"question_number"`
	Text           string  `json:"text"`
}
