package processors

import (
	"strings"
	"testing"
)

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

func TestCountAnswerFillers(t *testing.T) {
	counts := countAnswerFillers("Um, I uh like like the plan.")
	if counts["um"] != 1 {
		t.Errorf("Expected um=1, got %d", counts["um"])
	}
	if counts["uh"] != 1 {
		t.Errorf("Expected uh=1, got %d", counts["uh"])
	}
	if counts["like"] != 2 {
		t.Errorf("Expected like=2, got %d", counts["like"])
	}
	if counts["total"] != 4 {
		t.Errorf("Expected total=4, got %d", counts["total"])
	}

	// 回答里出现单词total不应影响合计
	counts = countAnswerFillers("The total was great")
	if counts["total"] != 0 {
		t.Errorf("Expected total=0, got %d", counts["total"])
	}

	counts = countAnswerFillers("")
	if counts["total"] != 0 {
		t.Errorf("Expected total=0 for empty answer, got %d", counts["total"])
	}
}

func TestHeuristicFeedbackBriefAnswer(t *testing.T) {
	issues, improvements := HeuristicFeedback("Tell me about a project.", "We fixed it quickly.", "")

	if !containsString(issues, "Answer is brief—aim for ~45–90 seconds with concrete detail.") {
		t.Errorf("Expected brief-answer issue, got %v", issues)
	}
	if !containsString(issues, "No measurable impact—add numbers (%, $, time, users) to quantify results.") {
		t.Errorf("Expected missing-metrics issue, got %v", issues)
	}
	if len(issues) != 2 {
		t.Errorf("Expected 2 issues, got %d: %v", len(issues), issues)
	}

	// 四个STAR缺口加三条通用建议
	if len(improvements) != 7 {
		t.Errorf("Expected 7 improvements, got %d: %v", len(improvements), improvements)
	}
	if !containsString(improvements, "Add a 1–2 sentence Situation for context.") {
		t.Errorf("Expected situation improvement, got %v", improvements)
	}
	if improvements[len(improvements)-1] != "End with what you learned or how you’d do it better next time." {
		t.Errorf("Expected generic improvements appended last, got %v", improvements)
	}
}

func TestHeuristicFeedbackStrongAnswer(t *testing.T) {
	answer := "The situation was that our checkout API was slowing down under Black Friday load and customers were dropping out of the funnel. " +
		"My task was to cut p99 latency in half without adding infrastructure cost. " +
		"I implemented request caching, optimized the slowest database queries, and led the gradual rollout behind a feature flag. " +
		"The result was a 40% latency reduction, a measurable revenue lift, and a playbook the team still uses today."

	issues, improvements := HeuristicFeedback("Tell me about a scaling challenge.", answer, "Backend role working on APIs and caching")

	// 长度合适、有量化指标、覆盖STAR、贴合岗位 -> 无问题
	if len(issues) != 0 {
		t.Errorf("Expected no issues for a strong answer, got %v", issues)
	}
	// 只剩三条通用建议
	if len(improvements) != 3 {
		t.Errorf("Expected 3 generic improvements, got %d: %v", len(improvements), improvements)
	}
}

func TestHeuristicFeedbackRoleMismatch(t *testing.T) {
	issues, _ := HeuristicFeedback("Walk me through a recent project.",
		"I worked on spreadsheets all day and archived the results somewhere safe for the whole team to study later on request.",
		"Frontend engineer with React and TypeScript")

	if !containsString(issues, "Answer doesn’t tie clearly to the role—reference role-relevant tools/techniques.") {
		t.Errorf("Expected role-mismatch issue, got %v", issues)
	}
}

func TestHeuristicFeedbackLongAnswer(t *testing.T) {
	long := strings.TrimSpace(strings.Repeat("word ", 281))
	issues, _ := HeuristicFeedback("Q", long, "")

	if !containsString(issues, "Answer is long—tighten to the core story and impact.") {
		t.Errorf("Expected long-answer issue, got %v", issues)
	}
	if containsString(issues, "Answer is brief—aim for ~45–90 seconds with concrete detail.") {
		t.Errorf("Did not expect brief-answer issue for %d words", 281)
	}
}

func TestBuildCoachingEntry(t *testing.T) {
	entry := BuildCoachingEntry(2, "Describe a conflict.", "Um we just talked it out.", "")

	if entry.QuestionNumber != 2 {
		t.Errorf("Expected question number 2, got %d", entry.QuestionNumber)
	}
	if entry.Question != "Describe a conflict." {
		t.Errorf("Expected question text, got %q", entry.Question)
	}
	if entry.Transcript != "Um we just talked it out." {
		t.Errorf("Expected transcript preserved, got %q", entry.Transcript)
	}
	if entry.FillerCounts["um"] != 1 || entry.FillerCounts["total"] != 1 {
		t.Errorf("Expected um=1 total=1, got %v", entry.FillerCounts)
	}
	if len(entry.Issues) == 0 || len(entry.Improvements) == 0 {
		t.Error("Expected heuristic issues and improvements to be populated")
	}
	if entry.ModelAnswer != "" {
		t.Errorf("Expected empty model answer without enrichment, got %q", entry.ModelAnswer)
	}
}

func TestMergeUnique(t *testing.T) {
	merged := mergeUnique([]string{"a", "b"}, []string{"b", "c", "", "a", "d"})
	want := []string{"a", "b", "c", "d"}
	if len(merged) != len(want) {
		t.Fatalf("Expected %d entries, got %d: %v", len(want), len(merged), merged)
	}
	for i, s := range want {
		if merged[i] != s {
			t.Errorf("Expected %s at index %d, got %s", s, i, merged[i])
		}
	}
}
