package processors

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/Akashpatel2609/PrepWise/config"
	"github.com/Akashpatel2609/PrepWise/core"
)

// ========== 回答质量反馈 ==========

var (
	metricsRe       = regexp.MustCompile(`(?i)(\d+%|\$\d+|\d+\s?(ms|s|sec|minutes?|hours?)|users?|latency|throughput|revenue|cost|error rate|NPS)`)
	starSituationRe = regexp.MustCompile(`(?i)\b(situation|context|background)\b`)
	starTaskRe      = regexp.MustCompile(`(?i)\b(task|goal|objective)\b`)
	starActionRe    = regexp.MustCompile(`(?i)\b(action|implemented|built|designed|led|debugged|optimized)\b`)
	starResultRe    = regexp.MustCompile(`(?i)\b(result|impact|outcome|improv|reduce|increase)\b`)
)

// 职位描述的技术方向。顺序固定，命中第一个即停。
var jdBuckets = []struct {
	name string
	re   *regexp.Regexp
}{
	{"frontend", regexp.MustCompile(`(react|typescript|css|ui|accessibility|bundle|webpack|vite|component)`)},
	{"backend", regexp.MustCompile(`(api|microservice|scal(e|ing)|database|queue|kafka|redis|auth|caching)`)},
	{"data", regexp.MustCompile(`(sql|etl|tableau|bi|analytics|warehouse|snowflake|bigquery|look(er)?)`)},
	{"ml", regexp.MustCompile(`(ml|machine learning|model|pytorch|tensorflow|sklearn|inference|drift)`)},
}

// countAnswerFillers 逐词精确匹配的填充词计数，用于每题反馈。
// 与块级评分的子串词表口径不同，只认剥掉首尾标点后的独立词。
func countAnswerFillers(text string) map[string]int {
	counts := map[string]int{"um": 0, "uh": 0, "like": 0}
	for _, w := range strings.Fields(text) {
		w = strings.ToLower(strings.Trim(w, `.,?!;:()[]"'`))
		if _, ok := counts[w]; ok {
			counts[w]++
		}
	}
	counts["total"] = counts["um"] + counts["uh"] + counts["like"]
	return counts
}

// HeuristicFeedback 纯规则反馈：长度、量化指标、STAR结构、与职位的关联度
func HeuristicFeedback(question, answer, jobDesc string) (issues, improvements []string) {
	wordCount := len(strings.Fields(answer))
	if wordCount < 60 {
		issues = append(issues, "Answer is brief—aim for ~45–90 seconds with concrete detail.")
	}
	if wordCount > 280 {
		issues = append(issues, "Answer is long—tighten to the core story and impact.")
	}

	if !metricsRe.MatchString(answer) {
		issues = append(issues, "No measurable impact—add numbers (%, $, time, users) to quantify results.")
	}

	if !starSituationRe.MatchString(answer) {
		improvements = append(improvements, "Add a 1–2 sentence Situation for context.")
	}
	if !starTaskRe.MatchString(answer) {
		improvements = append(improvements, "State the Task/Goal explicitly so the listener knows the target.")
	}
	if !starActionRe.MatchString(answer) {
		improvements = append(improvements, "Describe your Actions with strong verbs—what *you* did.")
	}
	if !starResultRe.MatchString(answer) {
		improvements = append(improvements, "Close with Results/Impact and a specific metric.")
	}

	jd := strings.ToLower(jobDesc)
	for _, bucket := range jdBuckets {
		if !bucket.re.MatchString(jd) {
			continue
		}
		if !bucket.re.MatchString(strings.ToLower(answer)) {
			issues = append(issues, "Answer doesn’t tie clearly to the role—reference role-relevant tools/techniques.")
		}
		break
	}

	improvements = append(improvements,
		"Start with a 1-sentence headline of the achievement before details.",
		"Weave in trade-offs and your decision rationale briefly.",
		"End with what you learned or how you’d do it better next time.",
	)
	return issues, improvements
}

// BuildCoachingEntry 为一条回答构造反馈条目，不触网
func BuildCoachingEntry(questionNumber int, question, answer, jobDesc string) core.CoachingEntry {
	issues, improvements := HeuristicFeedback(question, answer, jobDesc)
	return core.CoachingEntry{
		QuestionNumber: questionNumber,
		Question:       question,
		Transcript:     answer,
		FillerCounts:   countAnswerFillers(answer),
		Issues:         issues,
		Improvements:   improvements,
	}
}

// Coach 可选的LLM增强反馈。Enrich失败时保留启发式结果，绝不让报告生成失败。
type Coach struct {
	cli     *openai.Client
	model   string
	enabled bool
}

func NewCoach(cfg *config.Config) *Coach {
	if cfg == nil || !cfg.HasValidAPI() {
		fmt.Println("Warning: API configuration not found for coaching, using heuristic feedback only")
		return &Coach{}
	}
	return &Coach{cli: openaiClient(), model: cfg.ChatModel, enabled: true}
}

func (c *Coach) Enabled() bool { return c.enabled }

type coachResponse struct {
	Issues       []string `json:"issues"`
	Improvements []string `json:"improvements"`
	ModelAnswer  string   `json:"model_answer"`
}

// Enrich 用LLM补充一条反馈。返回的列表按启发式在前、LLM在后的顺序去重合并。
func (c *Coach) Enrich(ctx context.Context, entry *core.CoachingEntry, jobDesc string) {
	if !c.enabled || entry == nil || strings.TrimSpace(entry.Transcript) == "" {
		return
	}

	prompt := fmt.Sprintf(`Return strict JSON with keys: issues (string[]), improvements (string[]), model_answer (string). Be specific to the question and concise.

Job Description:
%s

Question:
%s

Candidate Answer:
%s

JSON only, no prose.`, jobDesc, entry.Question, entry.Transcript)

	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
	}

	resp, err := c.cli.CreateChatCompletion(ctx, req)
	if err != nil {
		fmt.Printf("Warning: coaching enrichment failed (%v), keeping heuristic feedback\n", err)
		return
	}
	if len(resp.Choices) == 0 {
		return
	}

	var parsed coachResponse
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		fmt.Printf("Warning: coaching response is not valid JSON, keeping heuristic feedback\n")
		return
	}

	if len(parsed.Issues) > 0 {
		entry.Issues = mergeUnique(entry.Issues, parsed.Issues)
	}
	if len(parsed.Improvements) > 0 {
		entry.Improvements = mergeUnique(entry.Improvements, parsed.Improvements)
	}
	if answer := strings.TrimSpace(parsed.ModelAnswer); answer != "" {
		entry.ModelAnswer = answer
	}
}

// mergeUnique 顺序保持的去重合并，空白条目丢弃
func mergeUnique(base, extra []string) []string {
	seen := make(map[string]struct{}, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, s := range list {
			if strings.TrimSpace(s) == "" {
				continue
			}
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}
