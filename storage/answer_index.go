package storage

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/Akashpatel2609/PrepWise/config"
	"github.com/Akashpatel2609/PrepWise/core"
)

// AnswerIndex abstracts the semantic answer search backend
type AnswerIndex interface {
	Upsert(sessionID string, entries []core.AnswerEntry) int
	Search(sessionID string, query string, topK int) []core.AnswerHit
}

// ---------------- Memory implementation (kept for fallback) ----------------

type MemoryAnswerIndex struct {
	mu   sync.RWMutex
	docs map[string][]answerDoc // sessionID -> docs
}

type answerDoc struct {
	ChunkID        string
	QuestionNumber int
	Text           string
	Embed          map[string]float64 // term -> weight
}

func NewMemoryAnswerIndex() *MemoryAnswerIndex {
	return &MemoryAnswerIndex{docs: map[string][]answerDoc{}}
}

// 辅助函数
func tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

func embedText(text string) map[string]float64 {
	toks := tokenize(text)
	m := map[string]float64{}
	for _, t := range toks {
		m[t] += 1
	}
	// L2 normalize
	var sum float64
	for _, v := range m {
		sum += v * v
	}
	if sum == 0 {
		return m
	}
	norm := math.Sqrt(sum)
	for k, v := range m {
		m[k] = v / norm
	}
	return m
}

func cosine(a, b map[string]float64) float64 {
	var dot float64
	for k, va := range a {
		if vb, ok := b[k]; ok {
			dot += va * vb
		}
	}
	return dot
}

func (s *MemoryAnswerIndex) Upsert(sessionID string, entries []core.AnswerEntry) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	docs := make([]answerDoc, 0, len(entries))
	for _, e := range entries {
		vec := embedText(strings.ToLower(e.Text))
		docs = append(docs, answerDoc{ChunkID: e.ChunkID, QuestionNumber: e.QuestionNumber, Text: e.Text, Embed: vec})
	}
	s.docs[sessionID] = docs
	return len(docs)
}

func (s *MemoryAnswerIndex) Search(sessionID string, query string, topK int) []core.AnswerHit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := s.docs[sessionID]
	qv := embedText(strings.ToLower(query))
	type scored struct {
		i     int
		score float64
	}
	scores := make([]scored, 0, len(docs))
	for i, d := range docs {
		scores = append(scores, scored{i, cosine(qv, d.Embed)})
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	if topK <= 0 || topK > len(scores) {
		topK = min(len(scores), 5)
	}
	hits := make([]core.AnswerHit, 0, topK)
	for _, sc := range scores[:topK] {
		d := docs[sc.i]
		hits = append(hits, core.AnswerHit{Score: sc.score, SessionID: sessionID, QuestionNumber: d.QuestionNumber, Text: d.Text})
	}
	return hits
}

// ---------------- Milvus implementation ----------------

type MilvusAnswerIndex struct {
	mc   client.Client
	coll string
	dim  int
	oa   *openai.Client
}

func newMilvusAnswerIndex(cfg *config.Config) (*MilvusAnswerIndex, error) {
	addr := cfg.MilvusAddr
	if addr == "" {
		addr = "localhost:19530"
	}
	username := os.Getenv("MILVUS_USERNAME")
	password := os.Getenv("MILVUS_PASSWORD")
	apiKey := os.Getenv("MILVUS_API_KEY") // For Zilliz Cloud
	coll := os.Getenv("MILVUS_COLLECTION")
	if coll == "" {
		coll = "interview_answers"
	}

	mc, err := client.NewClient(context.Background(), client.Config{Address: addr, Username: username, Password: password, APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("connect milvus: %w", err)
	}

	s := &MilvusAnswerIndex{mc: mc, coll: coll, dim: 1536}
	if err := s.ensureSchemaAndIndex(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MilvusAnswerIndex) ensureSchemaAndIndex() error {
	ctx := context.Background()
	has, err := s.mc.HasCollection(ctx, s.coll)
	if err != nil {
		return err
	}
	if !has {
		schema := entity.NewSchema()
		// id (auto int64 primary)
		schema.WithField(entity.NewField().WithName("id").WithIsAutoID(true).WithIsPrimaryKey(true).WithDataType(entity.FieldTypeInt64))
		// scalar fields
		schema.WithField(entity.NewField().WithName("session_id").WithDataType(entity.FieldTypeVarChar).WithMaxLength(128))
		schema.WithField(entity.NewField().WithName("chunk_id").WithDataType(entity.FieldTypeVarChar).WithMaxLength(128))
		schema.WithField(entity.NewField().WithName("question_number").WithDataType(entity.FieldTypeInt64))
		schema.WithField(entity.NewField().WithName("text").WithDataType(entity.FieldTypeVarChar).WithMaxLength(4096))
		// vector field
		schema.WithField(entity.NewField().WithName("vector").WithDataType(entity.FieldTypeFloatVector).WithDim(int64(s.dim)))

		if err := s.mc.CreateCollection(ctx, schema, int32(2)); err != nil {
			return fmt.Errorf("create collection: %w", err)
		}
	}
	idx, err := entity.NewIndexHNSW(entity.COSINE, 8, 200)
	if err != nil {
		return fmt.Errorf("new hnsw index: %w", err)
	}
	if err := s.mc.CreateIndex(ctx, s.coll, "vector", idx, false, client.WithIndexName("idx_vector")); err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	if err := s.mc.LoadCollection(ctx, s.coll, false); err != nil {
		return fmt.Errorf("load collection: %w", err)
	}
	return nil
}

func (s *MilvusAnswerIndex) openaiClient() (*openai.Client, error) {
	if s.oa == nil {
		s.oa = openaiClient()
	}
	return s.oa, nil
}

func (s *MilvusAnswerIndex) embed(text string) ([]float32, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %v", err)
	}
	if !cfg.HasValidAPI() {
		return nil, fmt.Errorf("API configuration required for embeddings")
	}

	cli, err := s.openaiClient()
	if err != nil {
		return nil, err
	}
	ctx := context.Background()
	req := openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(cfg.EmbeddingModel),
		Input: []string{text},
	}
	resp, err := cli.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("embedding API failed: %v", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return resp.Data[0].Embedding, nil
}

func (s *MilvusAnswerIndex) Upsert(sessionID string, entries []core.AnswerEntry) int {
	if len(entries) == 0 {
		return 0
	}
	sessionIDs := make([]string, 0, len(entries))
	chunkIDs := make([]string, 0, len(entries))
	questionNumbers := make([]int64, 0, len(entries))
	texts := make([]string, 0, len(entries))
	vectors := make([][]float32, 0, len(entries))

	// 嵌入失败的条目整行跳过，保持各列等长
	for _, e := range entries {
		v, err := s.embed(strings.ToLower(e.Text))
		if err != nil {
			continue
		}
		sessionIDs = append(sessionIDs, sessionID)
		chunkIDs = append(chunkIDs, e.ChunkID)
		questionNumbers = append(questionNumbers, int64(e.QuestionNumber))
		texts = append(texts, e.Text)
		vectors = append(vectors, v)
	}
	if len(vectors) == 0 {
		return 0
	}

	ctx := context.Background()
	_, err := s.mc.Insert(ctx, s.coll, "",
		entity.NewColumnVarChar("session_id", sessionIDs),
		entity.NewColumnVarChar("chunk_id", chunkIDs),
		entity.NewColumnInt64("question_number", questionNumbers),
		entity.NewColumnVarChar("text", texts),
		entity.NewColumnFloatVector("vector", s.dim, vectors),
	)
	if err != nil {
		return 0
	}
	return len(vectors)
}

func (s *MilvusAnswerIndex) Search(sessionID string, query string, topK int) []core.AnswerHit {
	v, err := s.embed(strings.ToLower(query))
	if err != nil {
		return nil
	}
	if topK <= 0 {
		topK = 5
	}
	ctx := context.Background()
	sp, _ := entity.NewIndexHNSWSearchParam(74)
	filter := fmt.Sprintf("session_id == \"%s\"", strings.ReplaceAll(sessionID, "\"", "\\\""))
	res, err := s.mc.Search(ctx, s.coll, []string{}, filter, []string{"question_number", "text"}, []entity.Vector{entity.FloatVector(v)}, "vector", entity.COSINE, topK, sp)
	if err != nil {
		return nil
	}
	var hits []core.AnswerHit
	for _, r := range res {
		cols := map[string]entity.Column{}
		for _, c := range r.Fields {
			cols[c.Name()] = c
		}
		for i := 0; i < r.ResultCount; i++ {
			var questionNumber int64
			var text string
			if c, ok := cols["question_number"].(*entity.ColumnInt64); ok {
				data := c.Data()
				if i < len(data) {
					questionNumber = data[i]
				}
			}
			if c, ok := cols["text"].(*entity.ColumnVarChar); ok {
				data := c.Data()
				if i < len(data) {
					text = data[i]
				}
			}
			hits = append(hits, core.AnswerHit{Score: float64(r.Scores[i]), SessionID: sessionID, QuestionNumber: int(questionNumber), Text: text})
		}
	}
	return hits
}

// ---------------- PgVector implementation ----------------

type PgVectorAnswerIndex struct {
	mu   sync.Mutex // pgx.Conn不是并发安全的，串行化访问
	conn *pgx.Conn
	oa   *openai.Client
}

func newPgVectorAnswerIndex(cfg *config.Config) (*PgVectorAnswerIndex, error) {
	ctx := context.Background()
	conn, err := pgx.Connect(ctx, cfg.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PgVectorAnswerIndex{conn: conn}
	if err := s.ensureTable(); err != nil {
		conn.Close(ctx)
		return nil, err
	}
	return s, nil
}

func (s *PgVectorAnswerIndex) ensureTable() error {
	ctx := context.Background()

	if _, err := s.conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector;"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	tableQuery := `
		CREATE TABLE IF NOT EXISTS answer_segments (
			id SERIAL PRIMARY KEY,
			session_id VARCHAR(255) NOT NULL,
			chunk_id VARCHAR(255) NOT NULL,
			question_number INT NOT NULL,
			text TEXT NOT NULL,
			embedding vector(1536),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(session_id, chunk_id)
		);
	`
	if _, err := s.conn.Exec(ctx, tableQuery); err != nil {
		return fmt.Errorf("failed to create answer_segments table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_answer_segments_session_id ON answer_segments(session_id);",
		"CREATE INDEX IF NOT EXISTS idx_answer_segments_session_question ON answer_segments(session_id, question_number);",
	}
	for _, indexQuery := range indexes {
		if _, err := s.conn.Exec(ctx, indexQuery); err != nil {
			fmt.Printf("Warning: failed to create index: %v\n", err)
		}
	}

	if err := s.createVectorIndex(); err != nil {
		fmt.Printf("Warning: failed to create vector index: %v\n", err)
	}
	return nil
}

// createVectorIndex 按数据量动态调整ivfflat列表数
func (s *PgVectorAnswerIndex) createVectorIndex() error {
	ctx := context.Background()

	var count int
	if err := s.conn.QueryRow(ctx, "SELECT COUNT(*) FROM answer_segments WHERE embedding IS NOT NULL").Scan(&count); err != nil {
		return fmt.Errorf("failed to count segments: %w", err)
	}
	if count == 0 {
		fmt.Println("No embeddings found, skipping vector index creation")
		return nil
	}

	lists := 100
	if count > 10000 {
		lists = count / 100
		if lists > 1000 {
			lists = 1000
		}
	} else if count < 1000 {
		lists = 10
	}

	if _, err := s.conn.Exec(ctx, "DROP INDEX IF EXISTS idx_answer_segments_embedding;"); err != nil {
		fmt.Printf("Warning: failed to drop existing vector index: %v\n", err)
	}

	vectorIndexQuery := fmt.Sprintf(`
		CREATE INDEX idx_answer_segments_embedding
		ON answer_segments
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = %d);
	`, lists)
	if _, err := s.conn.Exec(ctx, vectorIndexQuery); err != nil {
		return fmt.Errorf("failed to create vector index: %w", err)
	}

	fmt.Printf("Created vector index with %d lists for %d embeddings\n", lists, count)
	return nil
}

func (s *PgVectorAnswerIndex) openaiClient() (*openai.Client, error) {
	if s.oa == nil {
		s.oa = openaiClient()
	}
	return s.oa, nil
}

func (s *PgVectorAnswerIndex) embed(text string) ([]float32, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %v", err)
	}
	if !cfg.HasValidAPI() {
		return nil, fmt.Errorf("API configuration required for embeddings")
	}

	cli, err := s.openaiClient()
	if err != nil {
		return nil, err
	}
	ctx := context.Background()
	req := openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(cfg.EmbeddingModel),
		Input: []string{text},
	}
	resp, err := cli.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("embedding API failed: %v", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return resp.Data[0].Embedding, nil
}

func (s *PgVectorAnswerIndex) Upsert(sessionID string, entries []core.AnswerEntry) int {
	if len(entries) == 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := context.Background()
	successCount := 0
	for _, e := range entries {
		embedding, err := s.embed(strings.ToLower(e.Text))
		if err != nil {
			continue
		}
		vec := pgvector.NewVector(embedding)

		_, err = s.conn.Exec(ctx, `
			INSERT INTO answer_segments (session_id, chunk_id, question_number, text, embedding)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (session_id, chunk_id)
			DO UPDATE SET
				question_number = EXCLUDED.question_number,
				text = EXCLUDED.text,
				embedding = EXCLUDED.embedding
		`, sessionID, e.ChunkID, e.QuestionNumber, e.Text, vec)
		if err != nil {
			continue
		}
		successCount++
	}
	return successCount
}

func (s *PgVectorAnswerIndex) Search(sessionID string, query string, topK int) []core.AnswerHit {
	if topK <= 0 {
		topK = 5
	}
	queryEmbedding, err := s.embed(strings.ToLower(query))
	if err != nil {
		return nil
	}
	vec := pgvector.NewVector(queryEmbedding)

	s.mu.Lock()
	defer s.mu.Unlock()
	ctx := context.Background()
	rows, err := s.conn.Query(ctx, `
		SELECT question_number, text,
			   1 - (embedding <=> $1) as similarity
		FROM answer_segments
		WHERE session_id = $2
		ORDER BY embedding <=> $1
		LIMIT $3
	`, vec, sessionID, topK)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var hits []core.AnswerHit
	for rows.Next() {
		var questionNumber int
		var text string
		var similarity float64
		if err := rows.Scan(&questionNumber, &text, &similarity); err != nil {
			continue
		}
		hits = append(hits, core.AnswerHit{Score: similarity, SessionID: sessionID, QuestionNumber: questionNumber, Text: text})
	}
	return hits
}

// ---------------- 初始化 ----------------

// InitAnswerIndex 按配置选择检索后端，失败时退回内存实现
func InitAnswerIndex(cfg *config.Config) AnswerIndex {
	kind := strings.ToLower(strings.TrimSpace(cfg.Index))
	if kind == "milvus" {
		if !cfg.HasValidAPI() {
			config.PrintConfigInstructions()
			fmt.Println("Warning: API configuration required for Milvus index, falling back to memory index")
			return NewMemoryAnswerIndex()
		}
		s, err := newMilvusAnswerIndex(cfg)
		if err != nil {
			fmt.Printf("Warning: Failed to initialize Milvus index (%v), falling back to memory index\n", err)
			return NewMemoryAnswerIndex()
		}
		return s
	}
	if kind == "pgvector" {
		if !cfg.HasValidAPI() {
			config.PrintConfigInstructions()
			fmt.Println("Warning: API configuration required for PgVector index, falling back to memory index")
			return NewMemoryAnswerIndex()
		}
		s, err := newPgVectorAnswerIndex(cfg)
		if err != nil {
			fmt.Printf("Warning: Failed to initialize PgVector index (%v), falling back to memory index\n", err)
			return NewMemoryAnswerIndex()
		}
		return s
	}
	// default to in-memory
	return NewMemoryAnswerIndex()
}

func openaiClient() *openai.Client {
	cfg, err := config.LoadConfig()
	if err != nil {
		// Fallback to environment variable
		return openai.NewClient(os.Getenv("API_KEY"))
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(clientConfig)
}
