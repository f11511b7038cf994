package core

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func makeChunk(text string, words int, duration float64, rate float64, clarity int, conf float64) SpeechChunkRecord {
	return SpeechChunkRecord{
		Text:            text,
		WordCount:       words,
		DurationSeconds: duration,
		SpeakingRateWPM: rate,
		ClarityScore:    clarity,
		Confidence:      conf,
	}
}

func TestAppendChunkAccumulates(t *testing.T) {
	registry := NewSessionRegistry(DefaultMaxChunks, 0)
	state := registry.GetOrCreate("s1")

	// 两条正常块，运行总量逐条累加
	if err := state.AppendChunk(makeChunk("I led the migration project", 5, 2.0, 150, 15, 0.9)); err != nil {
		t.Fatalf("AppendChunk failed: %v", err)
	}
	if err := state.AppendChunk(makeChunk("It reduced latency by forty percent", 6, 3.0, 120, 15, 0.9)); err != nil {
		t.Fatalf("AppendChunk failed: %v", err)
	}

	snap := state.Snapshot()
	if snap.TotalChunks != 2 {
		t.Errorf("Expected 2 chunks, got %d", snap.TotalChunks)
	}
	if snap.TotalWords != 11 {
		t.Errorf("Expected 11 words, got %d", snap.TotalWords)
	}
	if snap.TotalDuration != 5.0 {
		t.Errorf("Expected duration 5.0, got %v", snap.TotalDuration)
	}
	if snap.AvgSpeakingRate != 135 {
		t.Errorf("Expected average rate 135, got %v", snap.AvgSpeakingRate)
	}
	if snap.AvgClarity != 15 {
		t.Errorf("Expected average clarity 15, got %v", snap.AvgClarity)
	}
	if snap.AvgConfidence != 0.9 {
		t.Errorf("Expected average confidence 0.9, got %v", snap.AvgConfidence)
	}

	// 记录补全了ID和时间戳
	if snap.Chunks[0].RecordID == "" || snap.Chunks[0].SessionID != "s1" {
		t.Errorf("Chunk identity not filled: %+v", snap.Chunks[0])
	}
	if snap.Chunks[0].Timestamp.IsZero() {
		t.Error("Chunk timestamp not filled")
	}
}

func TestAppendChunkRejectsInvalid(t *testing.T) {
	registry := NewSessionRegistry(DefaultMaxChunks, 0)
	state := registry.GetOrCreate("s1")
	if err := state.AppendChunk(makeChunk("baseline", 1, 1.0, 60, 15, 1.0)); err != nil {
		t.Fatalf("Baseline append failed: %v", err)
	}

	// 负时长
	bad := makeChunk("x", 1, -0.5, 60, 15, 1.0)
	if err := state.AppendChunk(bad); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("Expected ErrInvalidRecord for negative duration, got %v", err)
	}

	// 负词数
	bad = makeChunk("x", -1, 1.0, 60, 15, 1.0)
	if err := state.AppendChunk(bad); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("Expected ErrInvalidRecord for negative word count, got %v", err)
	}

	// 置信度越界
	bad = makeChunk("x", 1, 1.0, 60, 15, 1.5)
	if err := state.AppendChunk(bad); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("Expected ErrInvalidRecord for confidence 1.5, got %v", err)
	}

	// 会话ID不匹配
	bad = makeChunk("x", 1, 1.0, 60, 15, 1.0)
	bad.SessionID = "someone-else"
	if err := state.AppendChunk(bad); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("Expected ErrInvalidRecord for session mismatch, got %v", err)
	}

	// 被拒绝的记录不影响会话状态
	snap := state.Snapshot()
	if snap.TotalChunks != 1 || snap.TotalWords != 1 {
		t.Errorf("Rejected chunks mutated state: chunks=%d words=%d", snap.TotalChunks, snap.TotalWords)
	}
}

func TestChunkRingEviction(t *testing.T) {
	// 上限4，写入6条，只保留最近4条但总量记6条
	registry := NewSessionRegistry(4, 0)
	state := registry.GetOrCreate("s1")

	texts := []string{"one", "two", "three", "four", "five", "six"}
	for _, text := range texts {
		if err := state.AppendChunk(makeChunk(text, 1, 1.0, 60, 15, 1.0)); err != nil {
			t.Fatalf("AppendChunk(%q) failed: %v", text, err)
		}
	}

	snap := state.Snapshot()
	if len(snap.Chunks) != 4 {
		t.Fatalf("Expected 4 retained chunks, got %d", len(snap.Chunks))
	}
	if snap.Chunks[0].Text != "three" || snap.Chunks[3].Text != "six" {
		t.Errorf("Eviction kept wrong chunks: first=%q last=%q", snap.Chunks[0].Text, snap.Chunks[3].Text)
	}
	if snap.TotalChunks != 6 || snap.TotalWords != 6 || snap.TotalDuration != 6.0 {
		t.Errorf("Lifetime totals wrong after eviction: chunks=%d words=%d duration=%v",
			snap.TotalChunks, snap.TotalWords, snap.TotalDuration)
	}
}

func TestCombinedTranscriptSkipsEmpty(t *testing.T) {
	registry := NewSessionRegistry(DefaultMaxChunks, 0)
	state := registry.GetOrCreate("s1")

	state.AppendChunk(makeChunk("first part", 2, 1.0, 120, 15, 0.9))
	state.AppendChunk(makeChunk("", 0, 1.0, 0, 0, 1.0)) // 静音块
	state.AppendChunk(makeChunk("second part", 2, 1.0, 120, 15, 0.9))

	transcript := state.Snapshot().CombinedTranscript()
	if transcript != "first part second part" {
		t.Errorf("Expected joined transcript without empty chunks, got %q", transcript)
	}
}

func TestBuildRealtimeSummary(t *testing.T) {
	registry := NewSessionRegistry(DefaultMaxChunks, 0)
	state := registry.GetOrCreate("s1")

	chunk := makeChunk("um I think we delivered the feature on time", 9, 4.0, 135, 15, 0.9)
	chunk.Fillers = FillerBreakdown{Um: 1, Other: 1}
	chunk.FillerCount = 2
	if err := state.AppendChunk(chunk); err != nil {
		t.Fatalf("AppendChunk failed: %v", err)
	}

	summary := state.Snapshot().BuildRealtimeSummary()
	if summary.SessionID != "s1" {
		t.Errorf("Expected session s1, got %q", summary.SessionID)
	}
	// 9词4秒 -> 135 WPM
	if summary.SpeakingRateWPM != 135 {
		t.Errorf("Expected 135 WPM, got %v", summary.SpeakingRateWPM)
	}
	if summary.FillerCount != 2 {
		t.Errorf("Expected 2 fillers, got %d", summary.FillerCount)
	}
	// 2/9
	if summary.FillerRate < 0.22 || summary.FillerRate > 0.23 {
		t.Errorf("Expected filler rate ~0.222, got %v", summary.FillerRate)
	}
	if summary.Transcript == "" {
		t.Error("Expected non-empty transcript")
	}
}

func TestRealtimeSummaryZeroDuration(t *testing.T) {
	registry := NewSessionRegistry(DefaultMaxChunks, 0)
	state := registry.GetOrCreate("s1")
	state.AppendChunk(makeChunk("", 0, 0, 0, 0, 1.0))

	summary := state.Snapshot().BuildRealtimeSummary()
	if summary.SpeakingRateWPM != 0 {
		t.Errorf("Expected 0 WPM for zero duration, got %v", summary.SpeakingRateWPM)
	}
	if summary.FillerRate != 0 {
		t.Errorf("Expected 0 filler rate for zero words, got %v", summary.FillerRate)
	}
}

func TestRegistryLifecycle(t *testing.T) {
	registry := NewSessionRegistry(DefaultMaxChunks, 0)

	// 未知会话不创建
	if _, ok := registry.Get("missing"); ok {
		t.Error("Get should not create sessions")
	}

	// 懒创建返回同一实例
	a := registry.GetOrCreate("s1")
	b := registry.GetOrCreate("s1")
	if a != b {
		t.Error("GetOrCreate returned different instances for same id")
	}
	if registry.Len() != 1 {
		t.Errorf("Expected 1 session, got %d", registry.Len())
	}

	// Create登记元数据
	meta := SessionMeta{
		SessionID:          "s2",
		Name:               "Backend practice",
		JobDescription:     "Go backend engineer",
		MinutesPerQuestion: 5,
		TotalTime:          15,
		NumQuestions:       3,
	}
	state := registry.Create(meta)
	got := state.Meta()
	if got.Name != "Backend practice" || got.NumQuestions != 3 {
		t.Errorf("Create did not persist meta: %+v", got)
	}
	if got.Status != StatusCreated {
		t.Errorf("Expected status %q, got %q", StatusCreated, got.Status)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt not filled")
	}

	// List包含两个会话
	if len(registry.List()) != 2 {
		t.Errorf("Expected 2 sessions in list, got %d", len(registry.List()))
	}

	// Delete销毁状态
	if !registry.Delete("s1") {
		t.Error("Delete existing session returned false")
	}
	if registry.Delete("s1") {
		t.Error("Delete missing session returned true")
	}
	if registry.Len() != 1 {
		t.Errorf("Expected 1 session after delete, got %d", registry.Len())
	}
}

func TestStatusTransitions(t *testing.T) {
	registry := NewSessionRegistry(DefaultMaxChunks, 0)
	state := registry.Create(SessionMeta{SessionID: "s1"})

	state.UpdateStatus(StatusInProgress)
	meta := state.Meta()
	if meta.Status != StatusInProgress {
		t.Errorf("Expected status %q, got %q", StatusInProgress, meta.Status)
	}
	if meta.StartedAt == nil {
		t.Fatal("StartedAt not set on start")
	}

	state.UpdateStatus(StatusCompleted)
	meta = state.Meta()
	if meta.Status != StatusCompleted {
		t.Errorf("Expected status %q, got %q", StatusCompleted, meta.Status)
	}
	if meta.CompletedAt == nil {
		t.Fatal("CompletedAt not set on complete")
	}
	if meta.CompletedAt.Before(*meta.StartedAt) {
		t.Error("CompletedAt earlier than StartedAt")
	}
}

func TestQuestionNumbering(t *testing.T) {
	registry := NewSessionRegistry(DefaultMaxChunks, 0)
	state := registry.GetOrCreate("s1")

	first := state.AddQuestion("Tell me about a project you are proud of.")
	second := state.AddQuestion("How do you handle production incidents?")
	if first != 1 || second != 2 {
		t.Errorf("Expected question numbers 1 and 2, got %d and %d", first, second)
	}

	state.SetQuestion(2, "How do you debug a memory leak?")
	snap := state.Snapshot()
	if snap.Questions[2] != "How do you debug a memory leak?" {
		t.Errorf("SetQuestion did not overwrite: %q", snap.Questions[2])
	}

	// 空文本与非法题号被忽略
	state.SetQuestion(0, "ignored")
	state.SetQuestion(3, "   ")
	snap = state.Snapshot()
	if len(snap.Questions) != 2 {
		t.Errorf("Expected 2 questions, got %d", len(snap.Questions))
	}
}

func TestEvictIdle(t *testing.T) {
	registry := NewSessionRegistry(DefaultMaxChunks, time.Hour)
	registry.GetOrCreate("stale")
	time.Sleep(20 * time.Millisecond)
	registry.GetOrCreate("fresh")

	// 只有超过空闲阈值的会话被淘汰
	evicted := registry.EvictIdle(10 * time.Millisecond)
	if evicted != 1 {
		t.Fatalf("Expected 1 evicted session, got %d", evicted)
	}
	if _, ok := registry.Get("stale"); ok {
		t.Error("Stale session should have been evicted")
	}
	if _, ok := registry.Get("fresh"); !ok {
		t.Error("Fresh session should have survived")
	}

	// 零阈值表示不淘汰
	if n := registry.EvictIdle(0); n != 0 {
		t.Errorf("Expected no eviction with zero TTL, got %d", n)
	}
}

func TestSnapshotIsolation(t *testing.T) {
	registry := NewSessionRegistry(DefaultMaxChunks, 0)
	state := registry.GetOrCreate("s1")
	state.AppendChunk(makeChunk("hello world", 2, 1.0, 120, 15, 0.9))

	snap := state.Snapshot()
	snap.Questions[9] = "injected"
	snap.Chunks[0].Text = "mutated"
	snap.PostureTally["Slouching"] = 99

	fresh := state.Snapshot()
	if len(fresh.Questions) != 0 {
		t.Error("Snapshot question map aliases session state")
	}
	if fresh.Chunks[0].Text != "hello world" {
		t.Error("Snapshot chunk slice aliases session state")
	}
	if fresh.PostureTally["Slouching"] != 0 {
		t.Error("Snapshot tally aliases session state")
	}
}

func TestConcurrentAppendChunk(t *testing.T) {
	registry := NewSessionRegistry(DefaultMaxChunks, 0)
	state := registry.GetOrCreate("s1")

	var wg sync.WaitGroup
	workers := 8
	perWorker := 25
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if err := state.AppendChunk(makeChunk("word", 1, 0.5, 120, 15, 0.9)); err != nil {
					t.Errorf("AppendChunk failed: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	snap := state.Snapshot()
	if snap.TotalChunks != workers*perWorker {
		t.Errorf("Expected %d chunks, got %d", workers*perWorker, snap.TotalChunks)
	}
	if snap.TotalWords != workers*perWorker {
		t.Errorf("Expected %d words, got %d", workers*perWorker, snap.TotalWords)
	}
}
