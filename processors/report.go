package processors

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/Akashpatel2609/PrepWise/core"
)

// ========== 报告合成 ==========

// 正向姿态标签，身体语言分由它们的占比折算
var positivePostureLabels = map[string]bool{
	"Good Posture":         true,
	"Confident Expression": true,
}

// 会话没有任何姿态数据时的展示用占位分布
var placeholderPostureTally = map[string]int{
	"Good Posture":         3,
	"Confident Expression": 2,
	"Neutral":              1,
	"Slouching":            1,
}

const defaultBodyScore = 78

// SynthesizeReport 从会话快照合成面试报告。
// 纯函数：同一快照永远产出字节相同的报告，不触网、不读钟。
func SynthesizeReport(snap core.SessionSnapshot) core.Report {
	transcript := buildTranscript(snap)

	avgConf := snap.AvgConfidence
	if snap.TotalChunks == 0 {
		avgConf = 0.5
	}

	speechScore := core.ClampInt(int(snap.AvgClarity), 0, 100)
	bodyScore, distribution := postureScore(snap.PostureTally)
	overall := (speechScore + bodyScore) / 2

	pace := PaceLabel(snap.AvgSpeakingRate)
	responseTime := 60
	switch pace {
	case "Good pace":
		responseTime = 80
	case "Too slow":
		responseTime = 40
	}

	feedback := make([]core.CoachingEntry, 0, len(transcript))
	for _, entry := range transcript {
		feedback = append(feedback, BuildCoachingEntry(entry.QuestionNumber, entry.Question, entry.Response, snap.Meta.JobDescription))
	}

	return core.Report{
		SessionID:    snap.SessionID,
		OverallScore: overall,
		Speech: core.SpeechSummary{
			Score:        speechScore,
			SpeakingPace: pace,
			Clarity:      int(snap.AvgClarity),
			FillerWords:  snap.FillerTotals,
		},
		BodyLanguage: core.BodyLanguageSummary{
			PostureScore: bodyScore,
			EyeContact:   "Good",
			Gestures:     "Appropriate",
		},
		ResponseTimeScore:    responseTime,
		ConfidenceScore:      int(math.Round(avgConf * 100)),
		ContentScore:         70,
		Transcript:           transcript,
		TotalWords:           snap.TotalWords,
		TotalDurationSeconds: snap.TotalDuration,
		FillerAggregate:      snap.FillerTotals,
		PerQuestionFeedback:  feedback,
		PostureDistribution:  distribution,
	}
}

// buildTranscript 按题号分组拼接回答，过滤幽灵条目
func buildTranscript(snap core.SessionSnapshot) []core.TranscriptEntry {
	groups := make(map[int][]core.SpeechChunkRecord)
	for _, chunk := range snap.Chunks {
		qn := chunk.QuestionNumber
		if qn <= 0 {
			qn = 1
		}
		groups[qn] = append(groups[qn], chunk)
	}

	numbers := make([]int, 0, len(groups))
	for qn := range groups {
		numbers = append(numbers, qn)
	}
	sort.Ints(numbers)

	transcript := make([]core.TranscriptEntry, 0, len(numbers))
	for _, qn := range numbers {
		items := groups[qn]

		parts := make([]string, 0, len(items))
		words := 0
		duration := 0.0
		confidence := 0.0
		for _, item := range items {
			if item.Text != "" {
				parts = append(parts, item.Text)
			}
			words += item.WordCount
			duration += item.DurationSeconds
			confidence += item.Confidence
		}
		text := strings.Join(parts, " ")
		if words == 0 {
			words = len(strings.Fields(text))
		}
		if len(items) > 0 {
			confidence /= float64(len(items))
		}

		// 幽灵条目：几乎没有内容的题目不进报告
		if words < 5 && duration < 1.0 && len(strings.TrimSpace(text)) < 12 {
			continue
		}

		question, ok := snap.Questions[qn]
		if !ok {
			question = fmt.Sprintf("Response to Question %d", qn)
		}

		timestamp := ""
		if len(items) > 0 && !items[0].Timestamp.IsZero() {
			timestamp = items[0].Timestamp.Format("15:04:05")
		}

		transcript = append(transcript, core.TranscriptEntry{
			QuestionNumber:  qn,
			Question:        question,
			Response:        text,
			Timestamp:       timestamp,
			DurationSeconds: duration,
			WordCount:       words,
			Confidence:      confidence,
		})
	}
	return transcript
}

// postureScore 由姿态计数折算身体语言分和排序后的分布。
// 没有任何计数时给基线分和占位分布。
func postureScore(tally map[string]int) (int, []core.PostureShare) {
	score := defaultBodyScore
	source := tally
	if len(source) == 0 {
		source = placeholderPostureTally
	} else {
		total := 0
		positive := 0
		for label, count := range source {
			total += count
			if positivePostureLabels[label] {
				positive += count
			}
		}
		if total > 0 {
			share := float64(positive) / float64(total)
			score = core.ClampInt(int(math.Round(40+55*share)), 0, 100)
		}
	}

	total := 0
	for _, count := range source {
		total += count
	}

	distribution := make([]core.PostureShare, 0, len(source))
	for label, count := range source {
		percent := 0.0
		if total > 0 {
			percent = math.Round(float64(count)/float64(total)*1000) / 10
		}
		distribution = append(distribution, core.PostureShare{Label: label, Count: count, Percent: percent})
	}
	// 计数降序、标签升序，保证同一快照产出同一份JSON
	sort.Slice(distribution, func(i, j int) bool {
		if distribution[i].Count != distribution[j].Count {
			return distribution[i].Count > distribution[j].Count
		}
		return distribution[i].Label < distribution[j].Label
	})

	return score, distribution
}
