package processors

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/Akashpatel2609/PrepWise/config"
)

// ========== 语音转写 ==========

// Transcriber 把音频字节转写为文本。
// 空转写结果不是错误，由调用方决定如何归类。
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

// MockTranscriber 无API配置时的降级实现，产出确定性的占位文本
type MockTranscriber struct{}

func (m MockTranscriber) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if len(audio) == 0 {
		return "", nil
	}
	return fmt.Sprintf("Placeholder transcription of %d bytes of audio", len(audio)), nil
}

// WhisperTranscriber 调用OpenAI兼容的语音转写接口
type WhisperTranscriber struct {
	cli   *openai.Client
	model string
}

func NewWhisperTranscriber(cli *openai.Client, model string) WhisperTranscriber {
	if model == "" {
		model = "whisper-1"
	}
	return WhisperTranscriber{cli: cli, model: model}
}

func (w WhisperTranscriber) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if filename == "" {
		filename = "audio.wav"
	}
	resp, err := w.cli.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: filename,
		Reader:   bytes.NewReader(audio),
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text), nil
}

// openaiClient 创建OpenAI客户端
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

// PickTranscriber 按ASR环境变量选择转写实现，无API配置时回退Mock
func PickTranscriber(cfg *config.Config) Transcriber {
	asr := strings.ToLower(strings.TrimSpace(os.Getenv("ASR")))

	// 明确指定使用Mock实现
	if asr == "mock" {
		return MockTranscriber{}
	}

	if cfg == nil || !cfg.HasValidAPI() {
		fmt.Println("Warning: API configuration not found for Whisper, falling back to mock transcription")
		return MockTranscriber{}
	}
	return NewWhisperTranscriber(openaiClient(), cfg.WhisperModel)
}
