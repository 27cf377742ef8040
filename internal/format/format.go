// Package format classifies how a question wants its answer rendered.
//
// Two modes exist: the default house style (one of the rotating answer
// templates) and a custom mode where the user dictated the output format
// inside the question. Detection is keyword and pattern based; the rules
// are ordered and the first hit wins.
package format

import (
	"regexp"
	"strings"
)

// Mode is the detected answer-format mode for a question.
type Mode string

const (
	// ModeDefault renders the answer in one of the service's own styles.
	ModeDefault Mode = "default"

	// ModeCustom replicates a format the user specified in the question.
	ModeCustom Mode = "custom"
)

// cjkTriggerKeywords are phrases that directly request a specific output
// shape. Chinese has no word separators, so these match as substrings in
// running text (請用表格說明... triggers on 表格).
var cjkTriggerKeywords = []string{
	"請用一段話", "摘要", "表格", "表列", "條列式", "清單形式", "一句話", "說明就好",
	"格式", "指定的格式", "指定格式", "以下格式", "下列格式", "這個格式", "這種格式",
	"我要的格式", "請用格式", "請用以下", "用以下格式",
}

// asciiTriggerKeywords match case-insensitively as whole words only, so
// "summarized" does not trigger on "summarize".
var asciiTriggerKeywords = []string{
	"summarize", "as a table", "one paragraph", "bullet points", "list format",
}

var (
	cjkKeywordPattern   = regexp.MustCompile(joinQuoted(cjkTriggerKeywords))
	asciiKeywordPattern = regexp.MustCompile(`(?i)\b(?:` + joinQuoted(asciiTriggerKeywords) + `)\b`)
	instructionPattern  = regexp.MustCompile(`(?i)(請用|使用|採用|依照|依據|照著|給我|我要).*格式`)
	questionLabel       = regexp.MustCompile(`(?i)Question\s*:`)
	answerLabel         = regexp.MustCompile(`(?i)Answers?\s*:`)
)

// instructiveMarkers accompany a Question:/Answers: scaffold when the user
// is prescribing the shape rather than quoting one.
var instructiveMarkers = []string{"格式", "請用", "幫我", "給我", "我要的是"}

func joinQuoted(keywords []string) string {
	quoted := make([]string, len(keywords))
	for i, kw := range keywords {
		quoted[i] = regexp.QuoteMeta(kw)
	}
	return strings.Join(quoted, "|")
}

// Detect classifies a question into a format mode. Rules are checked in
// order; any hit yields ModeCustom, otherwise ModeDefault.
func Detect(question string) Mode {
	if cjkKeywordPattern.MatchString(question) || asciiKeywordPattern.MatchString(question) {
		return ModeCustom
	}

	if instructionPattern.MatchString(question) {
		return ModeCustom
	}

	if questionLabel.MatchString(question) && answerLabel.MatchString(question) {
		for _, marker := range instructiveMarkers {
			if strings.Contains(question, marker) {
				return ModeCustom
			}
		}
	}

	if strings.Contains(question, "簡單說明") {
		return ModeCustom
	}

	return ModeDefault
}
