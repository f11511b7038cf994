package processors

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"os/exec"
)

// ========== 音频解码 ==========

// 解码目标格式：16kHz单声道s16le。时长由字节数直接折算，不信任容器头。
const (
	pcmSampleRate     = 16000
	pcmBytesPerSample = 2
)

// DecodedAudio 解码产物
type DecodedAudio struct {
	PCM             []byte
	SampleRate      int
	DurationSeconds float64
}

// AudioDecoder 把任意容器格式的音频字节解码为统一PCM
type AudioDecoder interface {
	Decode(ctx context.Context, audio []byte) (DecodedAudio, error)
}

// FFmpegDecoder 通过ffmpeg标准输入输出管道解码，不落盘。
// slots限制同时运行的解码进程数。
type FFmpegDecoder struct {
	slots chan struct{}
}

func NewFFmpegDecoder(maxParallel int) *FFmpegDecoder {
	if maxParallel <= 0 {
		maxParallel = 4
	}
	return &FFmpegDecoder{slots: make(chan struct{}, maxParallel)}
}

func (d *FFmpegDecoder) Decode(ctx context.Context, audio []byte) (DecodedAudio, error) {
	if len(audio) == 0 {
		return DecodedAudio{}, fmt.Errorf("empty audio payload")
	}

	select {
	case d.slots <- struct{}{}:
		defer func() { <-d.slots }()
	case <-ctx.Done():
		return DecodedAudio{}, ctx.Err()
	}

	// 检查FFmpeg是否可用
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return DecodedAudio{}, fmt.Errorf("FFmpeg未找到，请确保已安装并在PATH中: %v", err)
	}

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-i", "pipe:0",
		"-ac", "1",
		"-ar", fmt.Sprintf("%d", pcmSampleRate),
		"-f", "s16le",
		"pipe:1",
	}
	cmd := exec.CommandContext(ctx, ffmpegPath, args...)
	cmd.Env = os.Environ()
	cmd.Stdin = bytes.NewReader(audio)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return DecodedAudio{}, fmt.Errorf("FFmpeg解码失败: %v\n输出: %s", err, stderr.String())
	}

	pcm := stdout.Bytes()
	if len(pcm) == 0 {
		return DecodedAudio{}, fmt.Errorf("decoded stream is empty")
	}
	return DecodedAudio{
		PCM:             pcm,
		SampleRate:      pcmSampleRate,
		DurationSeconds: PCMDuration(len(pcm)),
	}, nil
}

// PCMDuration s16le字节数折算秒数
func PCMDuration(byteLen int) float64 {
	return float64(byteLen) / float64(pcmSampleRate*pcmBytesPerSample)
}

// PCMToWAV 给裸PCM加44字节RIFF头。转写接口只收带容器的音频。
func PCMToWAV(pcm []byte, sampleRate int) []byte {
	if sampleRate <= 0 {
		sampleRate = pcmSampleRate
	}
	dataLen := len(pcm)
	buf := bytes.NewBuffer(make([]byte, 0, 44+dataLen))

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, uint16(1)) // 单声道
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*pcmBytesPerSample))
	binary.Write(buf, binary.LittleEndian, uint16(pcmBytesPerSample))
	binary.Write(buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(dataLen))
	buf.Write(pcm)

	return buf.Bytes()
}
