package moderation

import (
	"context"
	"fmt"
	"log"
	"strings"
	"unicode"
)

// Moderator is the optional remote classification layer. The OpenAI
// provider implements it; backends without moderation report nothing
// flagged.
type Moderator interface {
	Moderate(ctx context.Context, text string) (bool, []string, error)
}

// RejectionError describes why a question was refused. Handlers map it to a
// client error before any streaming starts.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string { return "question rejected: " + e.Reason }

// Gate validates questions before they reach the pipeline: cheap local
// heuristics first, then the remote moderator when one is configured.
// Remote failures are logged and ignored so moderation outages never block
// the service.
type Gate struct {
	Remote Moderator
}

const (
	minLength        = 5
	maxLength        = 500
	repeatedRunLimit = 10
)

// Check returns a *RejectionError when the question should be refused.
func (g *Gate) Check(ctx context.Context, question string) error {
	q := strings.TrimSpace(question)
	if q == "" {
		return &RejectionError{Reason: "question is empty"}
	}
	if len(q) < minLength {
		return &RejectionError{Reason: fmt.Sprintf("question too short (minimum %d characters)", minLength)}
	}
	if len(q) > maxLength {
		return &RejectionError{Reason: fmt.Sprintf("question too long (maximum %d characters)", maxLength)}
	}
	if hasRepeatedRun(q, repeatedRunLimit) {
		return &RejectionError{Reason: "question looks like spam"}
	}
	if specialRatio(q) > 0.5 {
		return &RejectionError{Reason: "question is mostly special characters"}
	}

	if g.Remote != nil {
		flagged, categories, err := g.Remote.Moderate(ctx, q)
		if err != nil {
			log.Printf("[MOD] remote moderation unavailable, allowing: %v", err)
			return nil
		}
		if flagged {
			return &RejectionError{Reason: "question flagged by content policy: " + strings.Join(categories, ", ")}
		}
	}
	return nil
}

// hasRepeatedRun reports whether s contains n or more identical runes in a
// row.
func hasRepeatedRun(s string, n int) bool {
	var prev rune
	run := 0
	for _, r := range s {
		if r == prev {
			run++
		} else {
			prev = r
			run = 1
		}
		if run >= n {
			return true
		}
	}
	return false
}

func specialRatio(s string) float64 {
	var special, total int
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if !unicode.IsLetter(r) && !unicode.IsNumber(r) {
			special++
		}
	}
	if total == 0 {
		return 1
	}
	return float64(special) / float64(total)
}
