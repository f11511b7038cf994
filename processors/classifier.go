package processors

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/Akashpatel2609/PrepWise/config"
	"github.com/Akashpatel2609/PrepWise/core"
)

// ========== 姿态特征提取与窗口分类 ==========

// FeatureExtractor 从单帧图像提取特征向量
type FeatureExtractor interface {
	Extract(ctx context.Context, frame []byte) ([]float64, error)
}

// WindowClassifier 对整窗特征做动作分类，返回各类别概率
type WindowClassifier interface {
	Classify(ctx context.Context, window [][]float64) ([]float64, error)
}

// NormStats 特征标准化参数，维度与特征向量一致时才生效
type NormStats struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

// LoadNormStats 从JSON文件读取标准化参数
func LoadNormStats(path string) (*NormStats, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var stats NormStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("parse norm stats: %v", err)
	}
	if len(stats.Mean) != len(stats.Std) {
		return nil, fmt.Errorf("norm stats shape mismatch: mean %d, std %d", len(stats.Mean), len(stats.Std))
	}
	return &stats, nil
}

// normalizeWindow 对窗口做z-score标准化。
// 永远返回新分配的内层切片，绝不改写共享的特征缓冲。
// 参数缺失或维度不符时原样拷贝。
func normalizeWindow(window [][]float64, stats *NormStats) [][]float64 {
	out := make([][]float64, len(window))
	for i, row := range window {
		normalized := make([]float64, len(row))
		if stats != nil && len(stats.Mean) == len(row) {
			for j, v := range row {
				std := stats.Std[j]
				if std == 0 {
					std = 1
				}
				normalized[j] = (v - stats.Mean[j]) / std
			}
		} else {
			copy(normalized, row)
		}
		out[i] = normalized
	}
	return out
}

// --- HTTP collaborators ---

type extractRequest struct {
	Image string `json:"image"` // base64编码的帧
}

type extractResponse struct {
	Features []float64 `json:"features"`
}

type classifyRequest struct {
	Window [][]float64 `json:"window"`
}

type classifyResponse struct {
	Probabilities []float64 `json:"probabilities"`
}

// HTTPFeatureExtractor 调用外部关键点服务提特征
type HTTPFeatureExtractor struct {
	c   *http.Client
	url string
}

func NewHTTPFeatureExtractor(url string, timeout time.Duration) *HTTPFeatureExtractor {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPFeatureExtractor{c: &http.Client{Timeout: timeout}, url: url}
}

func (h *HTTPFeatureExtractor) Extract(ctx context.Context, frame []byte) ([]float64, error) {
	b, _ := json.Marshal(extractRequest{Image: base64.StdEncoding.EncodeToString(frame)})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url+"/extract", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("extract %s: %s", resp.Status, string(body))
	}

	var out extractResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("extract decode: %w", err)
	}
	if len(out.Features) == 0 {
		return nil, fmt.Errorf("extract returned empty features")
	}
	return out.Features, nil
}

// HTTPWindowClassifier 调用外部模型服务做窗口分类
type HTTPWindowClassifier struct {
	c   *http.Client
	url string
}

func NewHTTPWindowClassifier(url string, timeout time.Duration) *HTTPWindowClassifier {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPWindowClassifier{c: &http.Client{Timeout: timeout}, url: url}
}

func (h *HTTPWindowClassifier) Classify(ctx context.Context, window [][]float64) ([]float64, error) {
	b, _ := json.Marshal(classifyRequest{Window: window})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url+"/classify", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("classify %s: %s", resp.Status, string(body))
	}

	var out classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("classify decode: %w", err)
	}
	return out.Probabilities, nil
}

// --- Mock collaborators ---

// MockFeatureExtractor 无外部服务时的特征降级：由帧字节折算确定性向量
type MockFeatureExtractor struct{}

func (m MockFeatureExtractor) Extract(ctx context.Context, frame []byte) ([]float64, error) {
	if len(frame) == 0 {
		return nil, fmt.Errorf("empty frame")
	}
	sum := 0
	for _, b := range frame {
		sum += int(b)
	}
	mean := float64(sum) / float64(len(frame)) / 255.0
	return []float64{
		mean,
		float64(len(frame)%97) / 97.0,
		float64(frame[0]) / 255.0,
		float64(frame[len(frame)-1]) / 255.0,
	}, nil
}

// MockWindowClassifier 确定性的占位分类：同一窗口永远同一概率
type MockWindowClassifier struct{}

func (m MockWindowClassifier) Classify(ctx context.Context, window [][]float64) ([]float64, error) {
	if len(window) == 0 {
		return nil, fmt.Errorf("empty window")
	}
	sum := 0.0
	for _, row := range window {
		for _, v := range row {
			sum += v
		}
	}
	if sum < 0 {
		sum = -sum
	}
	idx := int(sum*10) % len(core.ActionLabels)
	probs := make([]float64, len(core.ActionLabels))
	for i := range probs {
		probs[i] = 0.1
	}
	probs[idx] = 1.0 - 0.1*float64(len(core.ActionLabels)-1)
	return probs, nil
}

// PickFeatureExtractor 配置了EXTRACTOR_URL则走HTTP服务，否则Mock
func PickFeatureExtractor(cfg *config.Config) FeatureExtractor {
	if cfg != nil && cfg.ExtractorURL != "" {
		return NewHTTPFeatureExtractor(cfg.ExtractorURL, cfg.ClassifyTimeout())
	}
	fmt.Println("Warning: EXTRACTOR_URL not configured, falling back to mock feature extractor")
	return MockFeatureExtractor{}
}

// PickWindowClassifier 配置了CLASSIFIER_URL则走HTTP服务，否则Mock
func PickWindowClassifier(cfg *config.Config) WindowClassifier {
	if cfg != nil && cfg.ClassifierURL != "" {
		return NewHTTPWindowClassifier(cfg.ClassifierURL, cfg.ClassifyTimeout())
	}
	fmt.Println("Warning: CLASSIFIER_URL not configured, falling back to mock window classifier")
	return MockWindowClassifier{}
}
