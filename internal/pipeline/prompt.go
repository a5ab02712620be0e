package pipeline

import (
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/newspulse/models"
	"github.com/mohammad-safakhou/newspulse/provider"
)

const systemPrompt = `You are a crypto news assistant. Answer using only the provided article context and the conversation history. Cite articles as [Article N] when you use them. If the context does not cover the question, say you do not have recent news on it instead of guessing.`

const multiSourceInstruction = `The articles come from multiple sources. When they disagree, say so and attribute each claim to its source.`

const previewLength = 500

// buildMessages assembles the chat transcript: system prompt, article
// context when retrieval ran, prior turns, then the question. scores runs
// parallel to articles and may be nil.
func buildMessages(question string, history []models.Turn, articles []models.Article, scores []float64) []provider.Message {
	msgs := make([]provider.Message, 0, len(history)+3)
	msgs = append(msgs, provider.Message{Role: "system", Content: systemPrompt})

	if len(articles) > 0 {
		msgs = append(msgs, provider.Message{Role: "system", Content: articleContext(articles, scores)})
	}

	for _, t := range history {
		msgs = append(msgs, provider.Message{Role: t.Role, Content: t.Content})
	}
	msgs = append(msgs, provider.Message{Role: models.RoleUser, Content: question})
	return msgs
}

func articleContext(articles []models.Article, scores []float64) string {
	var b strings.Builder
	b.WriteString("Relevant articles:\n\n")
	for i, a := range articles {
		fmt.Fprintf(&b, "[Article %d] %s (%s, %s)\n", i+1, a.Title, a.Source, a.PublishedAt.Format("Jan 2, 2006"))
		if i < len(scores) {
			fmt.Fprintf(&b, "Relevance: %.2f\n", scores[i])
		}
		fmt.Fprintf(&b, "URL: %s\n%s\n\n", a.URL, preview(a.Content))
	}
	if len(articles) > 1 {
		b.WriteString(multiSourceInstruction)
		b.WriteString("\n")
	}
	return b.String()
}

// preview truncates on a rune boundary so multi-byte text never splits.
func preview(content string) string {
	runes := []rune(content)
	if len(runes) <= previewLength {
		return content
	}
	return string(runes[:previewLength]) + "..."
}
