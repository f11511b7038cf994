package storage

import (
	"math"
	"testing"

	"github.com/Akashpatel2609/PrepWise/config"
	"github.com/Akashpatel2609/PrepWise/core"
)

func TestMemoryIndexUpsertSearch(t *testing.T) {
	idx := NewMemoryAnswerIndex()

	entries := []core.AnswerEntry{
		{ChunkID: "c1", QuestionNumber: 1, Text: "I sharded the postgres database to fix write latency"},
		{ChunkID: "c2", QuestionNumber: 2, Text: "We rewrote the frontend in react with code splitting"},
		{ChunkID: "c3", QuestionNumber: 3, Text: "Managed a team of five engineers through a migration"},
	}
	n := idx.Upsert("sess-a", entries)
	if n != 3 {
		t.Fatalf("Expected 3 upserted, got %d", n)
	}

	hits := idx.Search("sess-a", "postgres database sharding", 2)
	if len(hits) != 2 {
		t.Fatalf("Expected 2 hits, got %d", len(hits))
	}
	// 共有词项最多的回答排第一
	if hits[0].QuestionNumber != 1 {
		t.Errorf("Expected question 1 as top hit, got %d", hits[0].QuestionNumber)
	}
	if hits[0].Score <= hits[1].Score {
		t.Errorf("Expected descending scores, got %f then %f", hits[0].Score, hits[1].Score)
	}
	if hits[0].SessionID != "sess-a" {
		t.Errorf("Expected session sess-a on hit, got %s", hits[0].SessionID)
	}
}

func TestMemoryIndexSessionIsolation(t *testing.T) {
	idx := NewMemoryAnswerIndex()
	idx.Upsert("sess-a", []core.AnswerEntry{{ChunkID: "a1", QuestionNumber: 1, Text: "kubernetes cluster autoscaling"}})
	idx.Upsert("sess-b", []core.AnswerEntry{{ChunkID: "b1", QuestionNumber: 1, Text: "watercolor painting techniques"}})

	hits := idx.Search("sess-b", "kubernetes autoscaling", 5)
	for _, h := range hits {
		if h.Text != "watercolor painting techniques" {
			t.Errorf("Expected only sess-b answers, got %q", h.Text)
		}
	}

	// 未知会话返回空结果而不是报错
	hits = idx.Search("sess-missing", "anything", 5)
	if len(hits) != 0 {
		t.Errorf("Expected no hits for unknown session, got %d", len(hits))
	}
}

func TestMemoryIndexUpsertReplaces(t *testing.T) {
	idx := NewMemoryAnswerIndex()
	idx.Upsert("sess-a", []core.AnswerEntry{
		{ChunkID: "c1", QuestionNumber: 1, Text: "first version"},
		{ChunkID: "c2", QuestionNumber: 2, Text: "second version"},
	})
	n := idx.Upsert("sess-a", []core.AnswerEntry{{ChunkID: "c9", QuestionNumber: 1, Text: "replacement answer"}})
	if n != 1 {
		t.Fatalf("Expected 1 upserted, got %d", n)
	}

	hits := idx.Search("sess-a", "version answer", 10)
	if len(hits) != 1 {
		t.Fatalf("Expected replacement to drop old docs, got %d hits", len(hits))
	}
	if hits[0].Text != "replacement answer" {
		t.Errorf("Expected replacement answer, got %q", hits[0].Text)
	}
}

func TestMemoryIndexTopKDefault(t *testing.T) {
	idx := NewMemoryAnswerIndex()
	entries := make([]core.AnswerEntry, 0, 7)
	texts := []string{"alpha", "beta", "gamma", "delta", "epsilon", "zeta", "eta"}
	for i, text := range texts {
		entries = append(entries, core.AnswerEntry{ChunkID: text, QuestionNumber: i + 1, Text: text})
	}
	idx.Upsert("sess-a", entries)

	// topK<=0走默认5条
	if hits := idx.Search("sess-a", "alpha", 0); len(hits) != 5 {
		t.Errorf("Expected default 5 hits, got %d", len(hits))
	}
	if hits := idx.Search("sess-a", "alpha", 3); len(hits) != 3 {
		t.Errorf("Expected 3 hits, got %d", len(hits))
	}
	// topK超过文档数时取全部
	if hits := idx.Search("sess-a", "alpha", 50); len(hits) != 5 {
		t.Errorf("Expected clamped default hits, got %d", len(hits))
	}
}

func TestEmbedTextNormalized(t *testing.T) {
	vec := embedText("shard the database shard")
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	if math.Abs(sum-1.0) > 1e-9 {
		t.Errorf("Expected unit L2 norm, got %f", sum)
	}

	if len(embedText("")) != 0 {
		t.Error("Expected empty embedding for empty text")
	}
}

func TestCosineScores(t *testing.T) {
	a := embedText("postgres sharding latency")
	b := embedText("postgres sharding latency")
	c := embedText("watercolor painting")

	if same := cosine(a, b); math.Abs(same-1.0) > 1e-9 {
		t.Errorf("Expected cosine 1.0 for identical text, got %f", same)
	}
	if ortho := cosine(a, c); ortho != 0 {
		t.Errorf("Expected cosine 0 for disjoint text, got %f", ortho)
	}
}

func TestInitAnswerIndexMemory(t *testing.T) {
	cfg := &config.Config{Index: "memory"}
	if _, ok := InitAnswerIndex(cfg).(*MemoryAnswerIndex); !ok {
		t.Error("Expected memory index for INDEX=memory")
	}

	// 未知取值同样落在内存实现
	cfg = &config.Config{Index: ""}
	if _, ok := InitAnswerIndex(cfg).(*MemoryAnswerIndex); !ok {
		t.Error("Expected memory index for empty INDEX")
	}
}
