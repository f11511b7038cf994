package processors

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/Akashpatel2609/PrepWise/config"
	"github.com/Akashpatel2609/PrepWise/core"
)

// ========== 面试问题生成 ==========

// GeneratedQuestion 问题生成结果
type GeneratedQuestion struct {
	OK        bool   `json:"ok"`
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
	Hint      string `json:"hint"`
	Type      string `json:"type"`
	Source    string `json:"source"`
	Index     int    `json:"index"`
}

// QuestionTypeInfo 支持的问题类型及说明
type QuestionTypeInfo struct {
	Types        []string          `json:"types"`
	Descriptions map[string]string `json:"descriptions"`
}

type fallbackQuestion struct {
	text string
	hint string
}

// 内置问题库，API不可用时按岗位描述分桶选取
var fallbackBank = map[string][]fallbackQuestion{
	"general": {
		{"Tell me about yourself.", "Give a concise overview and connect it to this role."},
		{"Describe a project you’re proud of and the concrete impact it had.", "Use STAR: Situation, Task, Action, Result."},
	},
	"frontend": {
		{"How would you improve performance in a large React view that feels janky?", "Discuss profiling, memoization, virtualization, and lazy-loading."},
	},
	"backend": {
		{"Design a resilient API endpoint that handles traffic spikes gracefully.", "Talk through rate-limiting, retries, backoff, and caching."},
	},
	"data": {
		{"Walk me through your process to clean a messy dataset and validate correctness.", "Mention missing values, outliers, validation, and reproducibility."},
	},
	"ml": {
		{"Design an end-to-end ML pipeline and explain how you’d monitor drift.", "Cover data/versioning, training, eval, serving, and monitoring."},
	},
}

// 分桶关键词按顺序匹配，先命中先得
var bucketKeywords = []struct {
	name     string
	keywords []string
}{
	{"frontend", []string{"react", "frontend", "ui", "css", "typescript"}},
	{"backend", []string{"api", "backend", "django", "flask", "node", "microservice"}},
	{"data", []string{"data analyst", "sql", "tableau", "analytics"}},
	{"ml", []string{"ml", "machine learning", "pytorch", "tensorflow"}},
}

// pickFallback 从内置问题库按岗位描述选一道题
func pickFallback(jobDescription string) (string, string, string) {
	jd := strings.ToLower(jobDescription)
	bucket := "general"
	for _, b := range bucketKeywords {
		for _, k := range b.keywords {
			if strings.Contains(jd, k) {
				bucket = b.name
				break
			}
		}
		if bucket != "general" {
			break
		}
	}

	pool := fallbackBank[bucket]
	picked := pool[rand.Intn(len(pool))]
	qtype := "behavioral"
	if bucket != "general" {
		qtype = "technical"
	}
	return picked.text, picked.hint, qtype
}

// QuestionGenerator 生成面试问题，优先走聊天模型，失败时退回内置问题库
type QuestionGenerator struct {
	cli     *openai.Client
	model   string
	enabled bool
}

// NewQuestionGenerator 创建问题生成器
func NewQuestionGenerator(cfg *config.Config) *QuestionGenerator {
	if cfg == nil || !cfg.HasValidAPI() {
		fmt.Println("Warning: API configuration not found for question generation, falling back to curated bank")
		return &QuestionGenerator{enabled: false}
	}
	return &QuestionGenerator{cli: openaiClient(), model: cfg.ChatModel, enabled: true}
}

// Generate 为会话生成一道问题并登记到会话状态
func (g *QuestionGenerator) Generate(ctx context.Context, state *core.SessionState, jobDescription string) GeneratedQuestion {
	text := g.tryChat(ctx, jobDescription)
	source := "openai"

	var hint, qtype string
	if text == "" {
		text, hint, qtype = pickFallback(jobDescription)
		source = "fallback"
	} else {
		hint = "Answer with STAR: Situation, Task, Action, Result."
		qtype = "technical"
		if strings.Contains(strings.ToLower(text), "experience") {
			qtype = "behavioral"
		}
	}

	index := state.AddQuestion(text)
	return GeneratedQuestion{
		OK:        true,
		SessionID: state.ID(),
		Question:  text,
		Hint:      hint,
		Type:      qtype,
		Source:    source,
		Index:     index,
	}
}

// tryChat 调用聊天模型生成一道题，失败返回空串
func (g *QuestionGenerator) tryChat(ctx context.Context, jobDescription string) string {
	if !g.enabled || g.cli == nil {
		return ""
	}

	prompt := fmt.Sprintf(`You are an interview coach. Create ONE concise, specific, role-relevant interview question for this job description. Return ONLY the question text, nothing else.

Job description:
%s
`, jobDescription)

	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	resp, err := g.cli.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		log.Printf("[questions] generation failed, using fallback bank: %v", err)
		return ""
	}
	if len(resp.Choices) == 0 {
		return ""
	}

	// 去掉可能的引号和列表符号
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	text = strings.TrimSpace(strings.Trim(text, `"'-•`))
	return text
}

// QuestionTypes 返回支持的问题类型列表
func QuestionTypes() QuestionTypeInfo {
	return QuestionTypeInfo{
		Types: []string{"behavioral", "technical", "situational"},
		Descriptions: map[string]string{
			"behavioral":  "Past experiences and behavior",
			"technical":   "Skills and knowledge",
			"situational": "Hypothetical scenarios",
		},
	}
}
