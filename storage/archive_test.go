package storage

import (
	"testing"
	"time"

	"github.com/Akashpatel2609/PrepWise/config"
	"github.com/Akashpatel2609/PrepWise/core"
)

func TestMemoryArchiveRoundTrip(t *testing.T) {
	archive := NewMemoryArchive()

	meta := core.SessionMeta{
		SessionID:      "sess-arc",
		Name:           "Priya",
		JobDescription: "Backend engineer",
		NumQuestions:   3,
		Status:         core.StatusCreated,
		CreatedAt:      time.Now().UTC(),
	}
	if err := archive.SaveMeta(meta); err != nil {
		t.Fatalf("Expected meta save to succeed, got %v", err)
	}

	first := core.SpeechChunkRecord{RecordID: "r1", SessionID: "sess-arc", Text: "first answer", WordCount: 2}
	second := core.SpeechChunkRecord{RecordID: "r2", SessionID: "sess-arc", Text: "second answer", WordCount: 2}
	if err := archive.SaveChunk(first); err != nil {
		t.Fatalf("Expected chunk save to succeed, got %v", err)
	}
	if err := archive.SaveChunk(second); err != nil {
		t.Fatalf("Expected chunk save to succeed, got %v", err)
	}

	report := core.Report{SessionID: "sess-arc", OverallScore: 72}
	if err := archive.SaveReport(report); err != nil {
		t.Fatalf("Expected report save to succeed, got %v", err)
	}

	got, ok := archive.Meta("sess-arc")
	if !ok || got.Name != "Priya" {
		t.Errorf("Expected stored meta, got %+v ok=%v", got, ok)
	}

	chunks := archive.Chunks("sess-arc")
	if len(chunks) != 2 {
		t.Fatalf("Expected 2 chunks, got %d", len(chunks))
	}
	// 到达顺序保持
	if chunks[0].RecordID != "r1" || chunks[1].RecordID != "r2" {
		t.Errorf("Expected arrival order r1,r2, got %s,%s", chunks[0].RecordID, chunks[1].RecordID)
	}

	stored, ok := archive.Report("sess-arc")
	if !ok || stored.OverallScore != 72 {
		t.Errorf("Expected stored report, got %+v ok=%v", stored, ok)
	}

	// 未知会话
	if _, ok := archive.Meta("sess-missing"); ok {
		t.Error("Expected no meta for unknown session")
	}
	if got := archive.Chunks("sess-missing"); len(got) != 0 {
		t.Errorf("Expected no chunks for unknown session, got %d", len(got))
	}
	if _, ok := archive.Report("sess-missing"); ok {
		t.Error("Expected no report for unknown session")
	}
}

func TestMemoryArchiveChunksIsolated(t *testing.T) {
	archive := NewMemoryArchive()
	archive.SaveChunk(core.SpeechChunkRecord{RecordID: "r1", SessionID: "sess-arc", Text: "original"})

	chunks := archive.Chunks("sess-arc")
	chunks[0].Text = "mutated"

	// 返回的是副本，改动不能写回归档
	again := archive.Chunks("sess-arc")
	if again[0].Text != "original" {
		t.Errorf("Expected stored chunk unchanged, got %q", again[0].Text)
	}
}

func TestInitSessionArchiveMemory(t *testing.T) {
	cfg := &config.Config{Store: "memory"}
	if _, ok := InitSessionArchive(cfg).(*MemoryArchive); !ok {
		t.Error("Expected memory archive for STORE=memory")
	}

	cfg = &config.Config{Store: ""}
	if _, ok := InitSessionArchive(cfg).(*MemoryArchive); !ok {
		t.Error("Expected memory archive for empty STORE")
	}
}
