// Package history renders past conversation turns into the prompt's
// history block.
package history

import (
	"strings"

	"github.com/kmu-usr/airqa/internal/session"
)

// MaxTurns caps how many past question/answer pairs enter the prompt.
const MaxTurns = 10

// NoHistoryPlaceholder stands in when the session has no completed turns.
const NoHistoryPlaceholder = "無歷史對話紀錄。"

// turn is one completed user question plus its assistant answer.
type turn struct {
	question string
	answer   string
}

// Assemble pairs messages into turns and renders the most recent MaxTurns
// of them. A user message with no assistant reply after it (an in-flight
// or failed turn) is dropped. Non-user/assistant roles are ignored.
func Assemble(messages []session.Message) string {
	var turns []turn
	var pending *string

	for i := range messages {
		switch messages[i].Role {
		case session.RoleUser:
			pending = &messages[i].Content
		case session.RoleAssistant:
			if pending != nil {
				turns = append(turns, turn{question: *pending, answer: messages[i].Content})
				pending = nil
			}
		}
	}

	if len(turns) == 0 {
		return NoHistoryPlaceholder
	}
	if len(turns) > MaxTurns {
		turns = turns[len(turns)-MaxTurns:]
	}

	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		lines = append(lines, "使用者: "+t.question+"\n助理: "+t.answer)
	}
	return strings.Join(lines, "\n")
}
