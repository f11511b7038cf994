package core

import (
	"fmt"
	"time"
)

// 平滑状态机默认参数
const (
	DefaultWindowSize          = 30
	DefaultRecentSize          = 10
	DefaultMaxSentence         = 5
	DefaultConfidenceThreshold = 0.6
)

// ActionSmoother 滑动窗口分类的时间平滑状态机。
// 特征缓冲满W帧后才产生预测，最近K次原始预测完全一致且当前置信度
// 超过阈值时才接受稳定标签，用于抑制单帧抖动。
// 非并发安全，由所属SessionState的锁保护。
type ActionSmoother struct {
	windowSize  int
	recentSize  int
	maxSentence int

	window   [][]float64
	recent   []int
	sentence []string
	tally    map[string]int
}

func NewActionSmoother(windowSize, recentSize, maxSentence int) *ActionSmoother {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	if recentSize <= 0 {
		recentSize = DefaultRecentSize
	}
	if maxSentence <= 0 {
		maxSentence = DefaultMaxSentence
	}
	return &ActionSmoother{
		windowSize:  windowSize,
		recentSize:  recentSize,
		maxSentence: maxSentence,
		tally:       make(map[string]int),
	}
}

// PushFeatures 推入一帧特征向量，缓冲满时返回整窗快照。
// 快照的外层切片是拷贝，后续推入不会影响已返回的窗口。
func (a *ActionSmoother) PushFeatures(features []float64) ([][]float64, bool) {
	a.window = append(a.window, features)
	if len(a.window) > a.windowSize {
		copy(a.window, a.window[1:])
		a.window = a.window[:a.windowSize]
	}
	if len(a.window) < a.windowSize {
		return nil, false
	}
	snap := make([][]float64, len(a.window))
	copy(snap, a.window)
	return snap, true
}

// RecordPrediction 记录一次分类结果：推入原始预测、执行投票、
// 更新去重句子和姿态计数。概率向量非法时拒绝该记录。
func (a *ActionSmoother) RecordPrediction(sessionID string, probs []float64, threshold float64) (FramePrediction, error) {
	if err := ValidateProbabilities(probs); err != nil {
		return FramePrediction{}, err
	}
	idx := argmax(probs)
	conf := probs[idx]
	label := ActionLabels[idx]

	a.recent = append(a.recent, idx)
	if len(a.recent) > a.recentSize {
		copy(a.recent, a.recent[1:])
		a.recent = a.recent[:a.recentSize]
	}

	pred := FramePrediction{
		SessionID:      sessionID,
		Probabilities:  probs,
		PredictedClass: idx,
		Label:          label,
		Confidence:     conf,
		Timestamp:      time.Now().UTC(),
	}

	if len(a.recent) >= a.recentSize && allSame(a.recent) && conf > threshold {
		pred.StabilizedLabel = label
		if n := len(a.sentence); n == 0 || a.sentence[n-1] != label {
			a.sentence = append(a.sentence, label)
		}
		if len(a.sentence) > a.maxSentence {
			copy(a.sentence, a.sentence[1:])
			a.sentence = a.sentence[:a.maxSentence]
		}
	}

	a.tally[label]++
	return pred, nil
}

// BumpFallback 降级路径：分类器不可用时仅累加回退标签计数
func (a *ActionSmoother) BumpFallback(label string) {
	if label == "" {
		label = LabelNeutral
	}
	a.tally[label]++
}

func (a *ActionSmoother) WindowLen() int { return len(a.window) }

func (a *ActionSmoother) RecentCount() int { return len(a.recent) }

// Sentence 返回去重后稳定标签序列的拷贝
func (a *ActionSmoother) Sentence() []string {
	out := make([]string, len(a.sentence))
	copy(out, a.sentence)
	return out
}

// CurrentLabel 最近一次接受的稳定标签，尚未接受过则为空
func (a *ActionSmoother) CurrentLabel() string {
	if len(a.sentence) == 0 {
		return ""
	}
	return a.sentence[len(a.sentence)-1]
}

// Tally 返回姿态计数的拷贝
func (a *ActionSmoother) Tally() map[string]int {
	out := make(map[string]int, len(a.tally))
	for k, v := range a.tally {
		out[k] = v
	}
	return out
}

// ValidateProbabilities 校验概率向量：长度等于类别数，各项在[0,1]内，总和约等于1
func ValidateProbabilities(probs []float64) error {
	if len(probs) != len(ActionLabels) {
		return fmt.Errorf("%w: probability vector has %d entries, want %d", ErrInvalidRecord, len(probs), len(ActionLabels))
	}
	sum := 0.0
	for _, p := range probs {
		if p < 0 || p > 1 {
			return fmt.Errorf("%w: probability %v out of range [0,1]", ErrInvalidRecord, p)
		}
		sum += p
	}
	if sum < 0.99 || sum > 1.01 {
		return fmt.Errorf("%w: probabilities sum to %.3f, want 1", ErrInvalidRecord, sum)
	}
	return nil
}

func argmax(v []float64) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}

func allSame(v []int) bool {
	for i := 1; i < len(v); i++ {
		if v[i] != v[0] {
			return false
		}
	}
	return true
}
