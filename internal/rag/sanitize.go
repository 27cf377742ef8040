package rag

import (
	"regexp"
	"strings"

	"github.com/kmu-usr/airqa/internal/format"
)

// preamblePatterns match explanatory lead-ins the models prepend despite
// instructions ("根據提供的資訊，..."). Anchored at the start; stripping
// one may uncover another, so Sanitize applies them iteratively.
var preamblePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\s*根據提供的資訊(?:內容)?(?:，|：|,|:)?\s*`),
	regexp.MustCompile(`^\s*根據你提供的資訊(?:，|：|,|:)?\s*`),
	regexp.MustCompile(`^\s*根據提供的文本(?:內容)?(?:，|：|,|:)?\s*`),
	regexp.MustCompile(`^\s*根據提供的上下文(?:，|：|,|:)?\s*`),
	regexp.MustCompile(`^\s*根據文檔(?:內容)?(?:，|：|,|:)?\s*`),
	regexp.MustCompile(`^\s*根據以上資訊(?:，|：|,|:)?\s*`),
	regexp.MustCompile(`^\s*從提供的資料來看(?:，|：|,|:)?\s*`),
	regexp.MustCompile(`^\s*資料顯示(?:，|：|,|:)?\s*`),
	regexp.MustCompile(`^\s*文本中提到(?:，|：|,|:)?\s*`),
	regexp.MustCompile(`^\s*文件中說明(?:，|：|,|:)?\s*`),
	regexp.MustCompile(`^\s*雖然資訊(?:中)?(?:並未|沒有)(?:明確)?(?:列出|指出|提及)(?:，|：|,|:)?\s*`),
	regexp.MustCompile(`^\s*雖然提供的資料顯示(?:，|：|,|:)?\s*`),
	regexp.MustCompile(`^\s*是的，根據資料(?:，|：|,|:)?\s*`),
	regexp.MustCompile(`^\s*好的，根據您的問題和提供的資料(?:，|：|,|:)?\s*`),
	regexp.MustCompile(`^\s*在提供的資料中(?:，|：|,|:)?\s*`),
	regexp.MustCompile(`^\s*從上下文中我們可以得知(?:，|：|,|:)?\s*`),
	regexp.MustCompile(`^\s*根據上下文(?:，|：|,|:)?\s*`),
	regexp.MustCompile(`^\s*文中(?:並未|沒有)明確提及(?:，|：|,|:)?\s*`),
	regexp.MustCompile(`^\s*以下是.*?的回答：\s*`),
	regexp.MustCompile(`^\s*針對您的問題(?:，|：|,|:)?\s*`),
	regexp.MustCompile(`^\s*回答如下(?:，|：|,|:)?\s*`),
}

// residualPunct is trimmed after a preamble removal so a leftover comma or
// colon does not open the answer.
const residualPunct = " ，。、；：:,."

// customGreetings are polite openers the custom-format template forbids
// but models still emit.
var customGreetings = regexp.MustCompile(
	`(?m)^\s*(?:好的，這是您要求的格式：|好的，這就為您提供：|根據您的要求，格式如下：|好的，這就為您呈現：|以下是符合您要求的格式：)\s*`)

// questionLabel finds a Question: scaffold inside a custom-format answer.
var questionLabel = regexp.MustCompile(`(?i)Question\s*:`)

// markersToRemove are template fragments that leak into default-mode
// answers; everything from the first occurrence on is dropped.
var markersToRemove = []string{
	"📘 Conversation History:", "📄 Retrieved Context:", "❓ User Question:",
	"👇 Please write your answer", "📝 EXAMPLE OUTPUT FORMAT",
	"You are a helpful assistant", "You are a policy analyst",
	"📌 **Format Mode:**",
}

var (
	excessNewlines = regexp.MustCompile(`\n{3,}`)
	runawayBold    = regexp.MustCompile(`\*{3,}(.+?)\*{3,}`)
	orphanStars    = regexp.MustCompile(`\*{3,}`)
	paddedBold     = regexp.MustCompile(`\*\*\s*(.*?)\s*\*\*`)
)

// Sanitize cleans a raw model answer for delivery. It never fails: any
// internal panic or an empty result falls back to the trimmed raw answer,
// because a cosmetically imperfect answer beats no answer.
func Sanitize(raw string, mode format.Mode) (out string) {
	trimmedRaw := strings.TrimSpace(raw)

	defer func() {
		if recover() != nil {
			out = trimmedRaw
		}
	}()

	answer := stripPreambles(trimmedRaw)

	if mode == format.ModeCustom {
		answer = sanitizeCustom(answer, trimmedRaw)
	} else {
		answer = sanitizeDefault(answer)
	}

	if answer == "" {
		return trimmedRaw
	}
	return answer
}

// stripPreambles removes explanatory lead-ins, looping a few times since
// one removal can expose the next.
func stripPreambles(answer string) string {
	for range 3 {
		cleaned := false
		for _, pattern := range preamblePatterns {
			loc := pattern.FindStringIndex(answer)
			if loc == nil {
				continue
			}
			next := strings.TrimLeft(answer[loc[1]:], residualPunct)
			if next != answer {
				answer = next
				cleaned = true
			}
		}
		if !cleaned {
			break
		}
	}
	return answer
}

// sanitizeCustom keeps the user-dictated format intact and only removes
// text around it: greeting lines, a short preamble before a Question:
// scaffold, and excess blank lines.
func sanitizeCustom(answer, rawAnswer string) string {
	answer = strings.TrimSpace(customGreetings.ReplaceAllString(answer, ""))

	// When the raw answer carried a Question:/Answers: scaffold, anything
	// before the first Question: is preamble, provided it is short and not
	// itself part of the requested format (no 以下, no trailing colon).
	if strings.Contains(rawAnswer, "Question:") && strings.Contains(rawAnswer, "Answers:") {
		if loc := questionLabel.FindStringIndex(answer); loc != nil && loc[0] > 0 {
			preamble := answer[:loc[0]]
			if len([]rune(preamble)) < 100 && !strings.Contains(preamble, "以下") && !tailContainsColon(preamble) {
				answer = answer[loc[0]:]
			}
		}
	}

	return strings.TrimSpace(excessNewlines.ReplaceAllString(answer, "\n\n"))
}

// tailContainsColon reports whether the last 5 runes contain a full-width
// colon, which signals the text introduces the format rather than noise.
func tailContainsColon(s string) bool {
	runes := []rune(s)
	if len(runes) > 5 {
		runes = runes[len(runes)-5:]
	}
	return strings.ContainsRune(string(runes), '：')
}

// sanitizeDefault conservatively cleans house-style answers: template
// leakage, newline runs, and Markdown bold normalization.
func sanitizeDefault(answer string) string {
	for _, marker := range markersToRemove {
		if idx := strings.Index(answer, marker); idx >= 0 {
			answer = strings.TrimSpace(answer[:idx])
		}
	}

	answer = excessNewlines.ReplaceAllString(answer, "\n\n")

	answer = runawayBold.ReplaceAllString(answer, "**$1**")
	answer = orphanStars.ReplaceAllString(answer, "**")
	answer = paddedBold.ReplaceAllString(answer, "**$1**")

	lines := strings.Split(answer, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
