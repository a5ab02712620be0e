package agent

import (
	"regexp"
	"strings"

	"github.com/mohammad-safakhou/newspulse/models"
)

// Decision is the outcome of routing one question.
type Decision struct {
	NeedRetrieval bool
	Query         string // retrieval query, expanded; empty when no retrieval
	Reason        string // which rule fired, for logging
}

// Engine routes questions with an ordered rule list; the first matching
// rule wins. Greetings and conversation meta-questions skip retrieval,
// short follow-ups that reuse terms from the previous user turn skip it
// too, and everything else retrieves with abbreviations expanded.
type Engine struct {
	rules []rule
}

type rule struct {
	name  string
	match func(q string, history []models.Turn) (Decision, bool)
}

func NewEngine() *Engine {
	return &Engine{rules: []rule{
		{name: "greeting", match: matchGreeting},
		{name: "meta", match: matchMeta},
		{name: "followup", match: matchFollowup},
	}}
}

// Decide routes a question given the session history (oldest first).
func (e *Engine) Decide(question string, history []models.Turn) Decision {
	q := strings.TrimSpace(question)
	for _, r := range e.rules {
		if d, ok := r.match(q, history); ok {
			d.Reason = r.name
			return d
		}
	}
	return Decision{NeedRetrieval: true, Query: ExpandAbbreviations(q), Reason: "retrieve"}
}

var greetings = map[string]bool{
	"hi": true, "hello": true, "hey": true, "yo": true, "sup": true,
	"good morning": true, "good afternoon": true, "good evening": true,
	"thanks": true, "thank you": true, "bye": true, "goodbye": true,
}

func matchGreeting(q string, _ []models.Turn) (Decision, bool) {
	norm := strings.ToLower(strings.TrimRight(q, "!.?, "))
	if greetings[norm] {
		return Decision{NeedRetrieval: false}, true
	}
	return Decision{}, false
}

var metaPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bwhat (did|have) (i|we|you) (just |previously )?(ask|say|said|asked|discuss|discussed|talk)`),
	regexp.MustCompile(`(?i)\b(summarize|recap|repeat) (our|this|the) (conversation|chat|discussion)\b`),
	regexp.MustCompile(`(?i)\bmy (last|previous|first) (question|message)\b`),
}

// matchMeta catches questions about the conversation itself; they are
// answered from history alone.
func matchMeta(q string, history []models.Turn) (Decision, bool) {
	if len(history) == 0 {
		return Decision{}, false
	}
	for _, p := range metaPatterns {
		if p.MatchString(q) {
			return Decision{NeedRetrieval: false}, true
		}
	}
	return Decision{}, false
}

// matchFollowup treats a short question that shares a content word with the
// previous user turn as a follow-up that the history already covers.
func matchFollowup(q string, history []models.Turn) (Decision, bool) {
	words := contentWords(q)
	if len(words) == 0 || len(words) > 4 {
		return Decision{}, false
	}
	var prev string
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == models.RoleUser {
			prev = history[i].Content
			break
		}
	}
	if prev == "" {
		return Decision{}, false
	}
	prevWords := map[string]bool{}
	for _, w := range contentWords(prev) {
		prevWords[w] = true
	}
	for _, w := range words {
		if prevWords[w] {
			return Decision{NeedRetrieval: false}, true
		}
	}
	return Decision{}, false
}

var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true, "was": true,
	"it": true, "its": true, "of": true, "on": true, "in": true, "and": true,
	"or": true, "to": true, "about": true, "what": true, "how": true,
	"why": true, "when": true, "who": true, "more": true, "me": true,
	"tell": true, "that": true, "this": true, "do": true, "does": true,
}

func contentWords(s string) []string {
	fields := strings.Fields(strings.ToLower(s))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, "?!.,;:\"'")
		if f != "" && !stopwords[f] {
			out = append(out, f)
		}
	}
	return out
}

// abbreviations maps common crypto shorthand to full names. Expansion keeps
// the original term alongside where the full name differs in kind.
var abbreviations = []struct {
	re   *regexp.Regexp
	full string
}{
	{regexp.MustCompile(`(?i)\bbtc\b`), "Bitcoin"},
	{regexp.MustCompile(`(?i)\beth\b`), "Ethereum"},
	{regexp.MustCompile(`(?i)\bsol\b`), "Solana"},
	{regexp.MustCompile(`(?i)\bdefi\b`), "decentralized finance"},
	{regexp.MustCompile(`(?i)\bnft\b`), "non-fungible token"},
	{regexp.MustCompile(`(?i)\bnfts\b`), "non-fungible tokens"},
	{regexp.MustCompile(`(?i)\bcrypto\b`), "cryptocurrency"},
}

// ExpandAbbreviations rewrites known shorthand so keyword search matches
// article text, which mostly spells names out.
func ExpandAbbreviations(q string) string {
	for _, a := range abbreviations {
		q = a.re.ReplaceAllString(q, a.full)
	}
	return q
}
