package chat

import (
	"strings"

	"github.com/jinford/ninenotes/internal/core/note"
)

// personaPreamble はグラウンディングターンの冒頭に置く人格・能力の説明文
const personaPreamble = `I am nineAI, an AI-powered note-taking assistant. I help you organize, retrieve, and expand your personal knowledge base.

My capabilities:
- Answer questions by referencing your existing notes
- Summarize information concisely while retaining key points
- Make logical inferences to connect related pieces of information
- Acknowledge limitations and clearly state when information is uncertain

When responding, I primarily reference the following relevant notes from your knowledge base:
`

// personaClosing はノート一覧の後に置く締めの文
const personaClosing = `
If your query requires information beyond the scope of your notes, I will say so explicitly instead of guessing.

How may I assist you today?`

// BuildGroundingPrompt は取得済みノートからグラウンディングターンの本文を構築する。
// counter が nil でなければ budget トークンを超えるノートは後方から切り捨てる。
// ノート本文の途中で切ることはしない
func BuildGroundingPrompt(notes []*note.Note, counter TokenCounter, budget int) string {
	var sb strings.Builder
	sb.WriteString(personaPreamble)

	used := 0
	if counter != nil {
		used = counter.Count(personaPreamble) + counter.Count(personaClosing)
	}

	for _, n := range notes {
		section := formatNoteSection(n)
		if counter != nil && budget > 0 {
			cost := counter.Count(section)
			if used+cost > budget {
				break
			}
			used += cost
		}
		sb.WriteString(section)
	}

	sb.WriteString(personaClosing)
	return sb.String()
}

func formatNoteSection(n *note.Note) string {
	var sb strings.Builder
	sb.WriteString("\nTitle: ")
	sb.WriteString(n.Title)
	sb.WriteString("\n\nContent:\n")
	if n.Content != nil {
		sb.WriteString(*n.Content)
	}
	sb.WriteString("\n")
	return sb.String()
}
