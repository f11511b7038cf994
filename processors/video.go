package processors

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/Akashpatel2609/PrepWise/core"
)

// ========== 视频帧处理 ==========

// 帧处理结果状态
const (
	FrameStateFilling    = "filling"
	FrameStateClassified = "classified"
	FrameStateDegraded   = "degraded"
)

// 降级置信度，按退化程度区分：依赖缺失、帧不可用、分类失败
const (
	degradedConfMissingDeps = 0.3
	degradedConfBadFrame    = 0.2
	degradedConfClassify    = 0.4
)

// FrameResult 一帧视频的处理结果
type FrameResult struct {
	SessionID  string                `json:"session_id"`
	State      string                `json:"state"`
	WindowLen  int                   `json:"window_len"`
	Label      string                `json:"label,omitempty"`
	Confidence float64               `json:"confidence,omitempty"`
	Prediction *core.FramePrediction `json:"prediction,omitempty"`
}

// VideoFrameProcessor 特征提取、窗口分类与时间平滑的编排。
// 提取和分类都在会话锁外执行；窗口快照保证分类读到的一致数据。
// 降级路径只累加回退计数，不会让一帧悄悄消失。
type VideoFrameProcessor struct {
	registry   *core.SessionRegistry
	extractor  FeatureExtractor
	classifier WindowClassifier
	stats      *NormStats
	threshold  float64
	timeout    time.Duration
}

func NewVideoFrameProcessor(registry *core.SessionRegistry, extractor FeatureExtractor, classifier WindowClassifier, stats *NormStats, threshold float64, timeout time.Duration) *VideoFrameProcessor {
	if threshold <= 0 {
		threshold = core.DefaultConfidenceThreshold
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &VideoFrameProcessor{
		registry:   registry,
		extractor:  extractor,
		classifier: classifier,
		stats:      stats,
		threshold:  threshold,
		timeout:    timeout,
	}
}

// Process 处理一帧视频
func (p *VideoFrameProcessor) Process(ctx context.Context, sessionID string, frame []byte) (FrameResult, error) {
	if sessionID == "" {
		return FrameResult{}, fmt.Errorf("%w: session_id required", core.ErrInvalidRecord)
	}
	state := p.registry.GetOrCreate(sessionID)

	// 依赖缺失：整条视频链路不可用
	if p.extractor == nil || p.classifier == nil {
		return p.degraded(state, sessionID, degradedConfMissingDeps), nil
	}

	// 帧不可用
	if len(frame) == 0 {
		return p.degraded(state, sessionID, degradedConfBadFrame), nil
	}

	extractCtx, cancel := context.WithTimeout(ctx, p.timeout)
	features, err := p.extractor.Extract(extractCtx, frame)
	cancel()
	if err != nil {
		log.Printf("[video] feature extraction failed for session %s: %v", sessionID, err)
		return p.degraded(state, sessionID, degradedConfBadFrame), nil
	}

	window, ready := state.PushFeatures(features)
	if !ready {
		// 窗口未满是健康状态，不计入姿态统计
		return FrameResult{
			SessionID: sessionID,
			State:     FrameStateFilling,
			WindowLen: state.WindowLen(),
		}, nil
	}

	normalized := normalizeWindow(window, p.stats)

	classifyCtx, cancel := context.WithTimeout(ctx, p.timeout)
	probs, err := p.classifier.Classify(classifyCtx, normalized)
	cancel()
	if err != nil {
		log.Printf("[video] classification failed for session %s: %v", sessionID, err)
		return p.degraded(state, sessionID, degradedConfClassify), nil
	}

	pred, err := state.RecordPrediction(probs, p.threshold)
	if err != nil {
		return FrameResult{}, err
	}

	return FrameResult{
		SessionID:  sessionID,
		State:      FrameStateClassified,
		WindowLen:  state.WindowLen(),
		Label:      pred.Label,
		Confidence: pred.Confidence,
		Prediction: &pred,
	}, nil
}

// degraded 记一次回退计数并构造降级结果
func (p *VideoFrameProcessor) degraded(state *core.SessionState, sessionID string, confidence float64) FrameResult {
	state.BumpFallback(core.LabelNeutral)
	return FrameResult{
		SessionID:  sessionID,
		State:      FrameStateDegraded,
		WindowLen:  state.WindowLen(),
		Label:      core.LabelNeutral,
		Confidence: confidence,
	}
}
