package processors

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/Akashpatel2609/PrepWise/core"
)

// ========== 语音块处理 ==========

// ChunkInput 一段待处理的回答音频
type ChunkInput struct {
	SessionID      string
	QuestionNumber int
	QuestionText   string
	Filename       string
	Audio          []byte
	DurationHint   float64 // 解码失败时的时长兜底，秒
}

// SpeechChunkProcessor 解码、转写并评分一段回答音频，把结果挂到会话上。
// 任何降级路径都会产出一条零信息记录而不是丢弃，保证块序号连续。
type SpeechChunkProcessor struct {
	registry          *core.SessionRegistry
	decoder           AudioDecoder
	transcriber       Transcriber
	decodeTimeout     time.Duration
	transcribeTimeout time.Duration
}

func NewSpeechChunkProcessor(registry *core.SessionRegistry, decoder AudioDecoder, transcriber Transcriber, decodeTimeout, transcribeTimeout time.Duration) *SpeechChunkProcessor {
	if decodeTimeout <= 0 {
		decodeTimeout = 30 * time.Second
	}
	if transcribeTimeout <= 0 {
		transcribeTimeout = 2 * time.Minute
	}
	return &SpeechChunkProcessor{
		registry:          registry,
		decoder:           decoder,
		transcriber:       transcriber,
		decodeTimeout:     decodeTimeout,
		transcribeTimeout: transcribeTimeout,
	}
}

// Process 处理一段音频并返回落账的记录。
// 解码和转写都在会话锁外执行，只有最终追加持锁。
func (p *SpeechChunkProcessor) Process(ctx context.Context, in ChunkInput) (core.SpeechChunkRecord, error) {
	if in.SessionID == "" {
		return core.SpeechChunkRecord{}, fmt.Errorf("%w: session_id required", core.ErrInvalidRecord)
	}
	if in.DurationHint < 0 {
		return core.SpeechChunkRecord{}, fmt.Errorf("%w: negative duration hint %.3f", core.ErrInvalidRecord, in.DurationHint)
	}

	state := p.registry.GetOrCreate(in.SessionID)
	if in.QuestionNumber > 0 && in.QuestionText != "" {
		state.SetQuestion(in.QuestionNumber, in.QuestionText)
	}

	// 空载荷：记零信息块，置信度1（确定没有内容）
	if len(in.Audio) == 0 {
		rec := p.zeroInfoRecord(in, core.ReasonNoBytes, 0, 1.0)
		return rec, state.AppendChunk(rec)
	}

	// 解码。失败不终止：原始字节直接送转写，时长用调用方兜底值
	var audio []byte
	var filename string
	var duration float64
	decodeCtx, cancel := context.WithTimeout(ctx, p.decodeTimeout)
	decoded, decodeErr := p.decoder.Decode(decodeCtx, in.Audio)
	cancel()
	if decodeErr == nil {
		audio = PCMToWAV(decoded.PCM, decoded.SampleRate)
		filename = "audio.wav"
		duration = decoded.DurationSeconds
	} else {
		fmt.Printf("Warning: audio decode failed (%v), sending raw bytes to transcription\n", decodeErr)
		audio = in.Audio
		filename = in.Filename
		duration = in.DurationHint
	}

	transcribeCtx, cancel := context.WithTimeout(ctx, p.transcribeTimeout)
	text, transcribeErr := p.transcriber.Transcribe(transcribeCtx, audio, filename)
	cancel()
	if transcribeErr != nil {
		log.Printf("[speech] transcription failed for session %s: %v", in.SessionID, transcribeErr)
		reason := core.ReasonTranscribeError
		if decodeErr != nil {
			reason = core.ReasonDecodeError
		}
		rec := p.zeroInfoRecord(in, reason, duration, 0.0)
		return rec, state.AppendChunk(rec)
	}

	// 没有转写出内容：解码失败时归为解码错误，否则确定是静音
	if text == "" {
		if decodeErr != nil {
			rec := p.zeroInfoRecord(in, core.ReasonDecodeError, duration, 0.0)
			return rec, state.AppendChunk(rec)
		}
		rec := p.zeroInfoRecord(in, core.ReasonNoSpeech, duration, 1.0)
		return rec, state.AppendChunk(rec)
	}

	analysis := AnalyzeTranscript(text, duration)
	rec := core.SpeechChunkRecord{
		RecordID:         core.NewID(),
		SessionID:        in.SessionID,
		QuestionNumber:   in.QuestionNumber,
		Text:             text,
		WordCount:        analysis.WordCount,
		DurationSeconds:  duration,
		Fillers:          analysis.Fillers,
		FillerCount:      analysis.FillerCount,
		SpeakingRateWPM:  analysis.SpeakingRateWPM,
		ClarityScore:     analysis.ClarityScore,
		FinalScore:       analysis.FinalScore,
		PerformanceLevel: analysis.PerformanceLevel,
		Confidence:       0.9,
		Timestamp:        time.Now().UTC(),
	}
	return rec, state.AppendChunk(rec)
}

// zeroInfoRecord 构造一条零信息记录，等级字段携带降级原因
func (p *SpeechChunkProcessor) zeroInfoRecord(in ChunkInput, reason string, duration, confidence float64) core.SpeechChunkRecord {
	return core.SpeechChunkRecord{
		RecordID:         core.NewID(),
		SessionID:        in.SessionID,
		QuestionNumber:   in.QuestionNumber,
		Text:             "",
		WordCount:        0,
		DurationSeconds:  duration,
		SpeakingRateWPM:  0,
		ClarityScore:     0,
		FinalScore:       0,
		PerformanceLevel: reason,
		Confidence:       confidence,
		Timestamp:        time.Now().UTC(),
	}
}
