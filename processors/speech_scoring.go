package processors

import (
	"strings"

	"github.com/Akashpatel2609/PrepWise/core"
)

// ========== 语音转写评分 ==========

// 填充词词表。小写子串计数，固定顺序，同一文本永远得到同一结果。
// um/uh/like单独计数，其余归入Other。
var fillerTerms = []string{
	"um", "uh", "er", "ah", "like",
	"you know", "i mean", "sort of", "kind of", "i think",
	"maybe", "well", "so",
}

// TranscriptAnalysis 一段转写文本的完整评分结果
type TranscriptAnalysis struct {
	WordCount        int
	DurationSeconds  float64
	SpeakingRateWPM  float64
	Fillers          core.FillerBreakdown
	FillerCount      int
	FillerRate       float64
	ContentScore     int
	RateScore        int
	ClarityScore     int
	FillerPenalty    int
	FinalScore       int
	PerformanceLevel string
}

// CountFillers 统计填充词。大小写不敏感的子串计数，不做分词
func CountFillers(text string) core.FillerBreakdown {
	lower := strings.ToLower(text)
	var fb core.FillerBreakdown
	for _, term := range fillerTerms {
		n := strings.Count(lower, term)
		if n == 0 {
			continue
		}
		switch term {
		case "um":
			fb.Um += n
		case "uh":
			fb.Uh += n
		case "like":
			fb.Like += n
		default:
			fb.Other += n
		}
	}
	return fb
}

// CountWords 按空白切分计数
func CountWords(text string) int {
	return len(strings.Fields(text))
}

// SpeakingRate 词数换算每分钟语速，时长非正时为0
func SpeakingRate(wordCount int, durationSeconds float64) float64 {
	if durationSeconds <= 0 {
		return 0
	}
	return float64(wordCount) / durationSeconds * 60.0
}

// AnalyzeTranscript 对一段转写文本评分。
// 纯函数：同样的文本和时长永远产出同样的分数。
func AnalyzeTranscript(text string, durationSeconds float64) TranscriptAnalysis {
	wc := CountWords(text)
	wpm := SpeakingRate(wc, durationSeconds)
	fillers := CountFillers(text)
	fillerCount := fillers.Total()

	fillerRate := 0.0
	if wc > 0 {
		fillerRate = float64(fillerCount) / float64(wc)
	}

	content := contentScore(wc)
	rate := rateScore(wpm)
	clarity := 0
	if wc > 0 {
		clarity = 15
	}
	penalty := fillerPenalty(fillerRate, fillerCount)

	final := core.ClampInt(content+rate+clarity-penalty, 5, 100)

	return TranscriptAnalysis{
		WordCount:        wc,
		DurationSeconds:  durationSeconds,
		SpeakingRateWPM:  wpm,
		Fillers:          fillers,
		FillerCount:      fillerCount,
		FillerRate:       fillerRate,
		ContentScore:     content,
		RateScore:        rate,
		ClarityScore:     clarity,
		FillerPenalty:    penalty,
		FinalScore:       final,
		PerformanceLevel: PerformanceLevelFor(final),
	}
}

// contentScore 按词数阶梯给内容分
func contentScore(wordCount int) int {
	switch {
	case wordCount < 15:
		score := wordCount * 2
		if score < 10 {
			score = 10
		}
		return score
	case wordCount < 25:
		return 30
	case wordCount < 40:
		return 40
	case wordCount < 60:
		return 50
	default:
		return 60
	}
}

// rateScore 语速档位，130-170 WPM为最佳区间
func rateScore(wpm float64) int {
	switch {
	case wpm >= 130 && wpm <= 170:
		return 25
	case (wpm >= 110 && wpm < 130) || (wpm > 170 && wpm <= 190):
		return 20
	case (wpm >= 90 && wpm < 110) || (wpm > 190 && wpm <= 210):
		return 15
	default:
		return 10
	}
}

// fillerPenalty 填充词扣分，比例优先，重度按条数翻倍封顶20
func fillerPenalty(fillerRate float64, fillerCount int) int {
	switch {
	case fillerRate <= 0.02:
		return 0
	case fillerRate <= 0.05:
		return 5
	case fillerRate <= 0.10:
		return 10
	default:
		penalty := fillerCount * 2
		if penalty > 20 {
			penalty = 20
		}
		return penalty
	}
}

// PerformanceLevelFor 分数到等级
func PerformanceLevelFor(score int) string {
	switch {
	case score >= 80:
		return core.LevelExcellent
	case score >= 65:
		return core.LevelGood
	case score >= 50:
		return core.LevelFair
	default:
		return core.LevelNeedsImprovement
	}
}

// PaceLabel 平均语速的口头描述，报告层用它换算响应时间分
func PaceLabel(wpm float64) string {
	switch {
	case wpm <= 110:
		return "Too slow"
	case wpm <= 160:
		return "Good pace"
	default:
		return "Too fast"
	}
}
