package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"

	"github.com/Akashpatel2609/PrepWise/config"
	"github.com/Akashpatel2609/PrepWise/core"
)

// SessionArchive persists session metadata, speech chunks and reports.
// 写入全部是尽力而为：处理热路径绝不等待归档。
type SessionArchive interface {
	SaveMeta(meta core.SessionMeta) error
	SaveChunk(rec core.SpeechChunkRecord) error
	SaveReport(report core.Report) error
}

// ---------------- Memory implementation (kept for fallback) ----------------

type MemoryArchive struct {
	mu      sync.RWMutex
	metas   map[string]core.SessionMeta
	chunks  map[string][]core.SpeechChunkRecord
	reports map[string]core.Report
}

func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{
		metas:   map[string]core.SessionMeta{},
		chunks:  map[string][]core.SpeechChunkRecord{},
		reports: map[string]core.Report{},
	}
}

func (a *MemoryArchive) SaveMeta(meta core.SessionMeta) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.metas[meta.SessionID] = meta
	return nil
}

func (a *MemoryArchive) SaveChunk(rec core.SpeechChunkRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.chunks[rec.SessionID] = append(a.chunks[rec.SessionID], rec)
	return nil
}

func (a *MemoryArchive) SaveReport(report core.Report) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reports[report.SessionID] = report
	return nil
}

func (a *MemoryArchive) Meta(sessionID string) (core.SessionMeta, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	m, ok := a.metas[sessionID]
	return m, ok
}

func (a *MemoryArchive) Chunks(sessionID string) []core.SpeechChunkRecord {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]core.SpeechChunkRecord, len(a.chunks[sessionID]))
	copy(out, a.chunks[sessionID])
	return out
}

func (a *MemoryArchive) Report(sessionID string) (core.Report, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	r, ok := a.reports[sessionID]
	return r, ok
}

// ---------------- Postgres implementation ----------------

type PostgresArchive struct {
	mu   sync.Mutex // pgx.Conn不是并发安全的，串行化访问
	conn *pgx.Conn
}

func newPostgresArchive(cfg *config.Config) (*PostgresArchive, error) {
	ctx := context.Background()
	conn, err := pgx.Connect(ctx, cfg.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	a := &PostgresArchive{conn: conn}
	if err := a.ensureSchema(); err != nil {
		conn.Close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *PostgresArchive) ensureSchema() error {
	ctx := context.Background()

	sessionsQuery := `
		CREATE TABLE IF NOT EXISTS interview_sessions (
			id SERIAL PRIMARY KEY,
			session_id VARCHAR(255) UNIQUE NOT NULL,
			name VARCHAR(500),
			job_description TEXT,
			minutes_per_question INT,
			total_time INT,
			num_questions INT,
			status VARCHAR(32),
			created_at TIMESTAMPTZ,
			started_at TIMESTAMPTZ,
			completed_at TIMESTAMPTZ
		);
	`
	if _, err := a.conn.Exec(ctx, sessionsQuery); err != nil {
		return fmt.Errorf("failed to create interview_sessions table: %w", err)
	}

	chunksQuery := `
		CREATE TABLE IF NOT EXISTS speech_chunks (
			id SERIAL PRIMARY KEY,
			record_id VARCHAR(255) UNIQUE NOT NULL,
			session_id VARCHAR(255) NOT NULL,
			question_number INT NOT NULL,
			text TEXT,
			word_count INT NOT NULL,
			duration_seconds FLOAT NOT NULL,
			um_count INT NOT NULL,
			uh_count INT NOT NULL,
			like_count INT NOT NULL,
			other_count INT NOT NULL,
			filler_count INT NOT NULL,
			speaking_rate_wpm FLOAT NOT NULL,
			clarity_score INT NOT NULL,
			final_score INT NOT NULL,
			performance_level VARCHAR(64),
			confidence FLOAT NOT NULL,
			created_at TIMESTAMPTZ
		);
	`
	if _, err := a.conn.Exec(ctx, chunksQuery); err != nil {
		return fmt.Errorf("failed to create speech_chunks table: %w", err)
	}

	reportsQuery := `
		CREATE TABLE IF NOT EXISTS interview_reports (
			id SERIAL PRIMARY KEY,
			session_id VARCHAR(255) UNIQUE NOT NULL,
			report JSONB NOT NULL,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		);
	`
	if _, err := a.conn.Exec(ctx, reportsQuery); err != nil {
		return fmt.Errorf("failed to create interview_reports table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_speech_chunks_session_id ON speech_chunks(session_id);",
		"CREATE INDEX IF NOT EXISTS idx_speech_chunks_session_question ON speech_chunks(session_id, question_number);",
	}
	for _, indexQuery := range indexes {
		if _, err := a.conn.Exec(ctx, indexQuery); err != nil {
			fmt.Printf("Warning: failed to create index: %v\n", err)
		}
	}
	return nil
}

func (a *PostgresArchive) SaveMeta(meta core.SessionMeta) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	ctx := context.Background()
	_, err := a.conn.Exec(ctx, `
		INSERT INTO interview_sessions (session_id, name, job_description, minutes_per_question, total_time, num_questions, status, created_at, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (session_id)
		DO UPDATE SET
			name = EXCLUDED.name,
			job_description = EXCLUDED.job_description,
			minutes_per_question = EXCLUDED.minutes_per_question,
			total_time = EXCLUDED.total_time,
			num_questions = EXCLUDED.num_questions,
			status = EXCLUDED.status,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at
	`, meta.SessionID, meta.Name, meta.JobDescription, meta.MinutesPerQuestion, meta.TotalTime, meta.NumQuestions, meta.Status, meta.CreatedAt, meta.StartedAt, meta.CompletedAt)
	if err != nil {
		return fmt.Errorf("save session meta: %w", err)
	}
	return nil
}

func (a *PostgresArchive) SaveChunk(rec core.SpeechChunkRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	ctx := context.Background()
	// 记录不可变，重复投递直接忽略
	_, err := a.conn.Exec(ctx, `
		INSERT INTO speech_chunks (record_id, session_id, question_number, text, word_count, duration_seconds,
			um_count, uh_count, like_count, other_count, filler_count,
			speaking_rate_wpm, clarity_score, final_score, performance_level, confidence, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (record_id) DO NOTHING
	`, rec.RecordID, rec.SessionID, rec.QuestionNumber, rec.Text, rec.WordCount, rec.DurationSeconds,
		rec.Fillers.Um, rec.Fillers.Uh, rec.Fillers.Like, rec.Fillers.Other, rec.FillerCount,
		rec.SpeakingRateWPM, rec.ClarityScore, rec.FinalScore, rec.PerformanceLevel, rec.Confidence, rec.Timestamp)
	if err != nil {
		return fmt.Errorf("save speech chunk: %w", err)
	}
	return nil
}

func (a *PostgresArchive) SaveReport(report core.Report) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	ctx := context.Background()
	_, err = a.conn.Exec(ctx, `
		INSERT INTO interview_reports (session_id, report)
		VALUES ($1, $2::jsonb)
		ON CONFLICT (session_id)
		DO UPDATE SET report = EXCLUDED.report
	`, report.SessionID, string(payload))
	if err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

// ---------------- 初始化 ----------------

// InitSessionArchive 按配置选择归档后端，失败时退回内存实现
func InitSessionArchive(cfg *config.Config) SessionArchive {
	kind := strings.ToLower(strings.TrimSpace(cfg.Store))
	if kind == "postgres" {
		a, err := newPostgresArchive(cfg)
		if err != nil {
			fmt.Printf("Warning: Failed to initialize Postgres archive (%v), falling back to memory archive\n", err)
			return NewMemoryArchive()
		}
		return a
	}
	// default to in-memory
	return NewMemoryArchive()
}
