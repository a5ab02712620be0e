package moderation

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeModerator struct {
	flagged    bool
	categories []string
	err        error
}

func (f fakeModerator) Moderate(ctx context.Context, text string) (bool, []string, error) {
	return f.flagged, f.categories, f.err
}

func TestCheckHeuristics(t *testing.T) {
	g := &Gate{}
	cases := []struct {
		name     string
		question string
		rejected bool
	}{
		{"empty", "", true},
		{"whitespace only", "   ", true},
		{"too short", "hi", true},
		{"too long", strings.Repeat("a", 501), true},
		{"repeated run", "aaaaaaaaaaaa pump", true},
		{"run of exactly ten", "aaaaaaaaaa pump", true},
		{"run of nine allowed", "aaaaaaaaa pump", false},
		{"mostly special characters", "!!!! #### $$$$ %%", true},
		{"normal question", "what happened with bitcoin today?", false},
		{"exactly minimum length", "btc??", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := g.Check(context.Background(), tc.question)
			if tc.rejected && err == nil {
				t.Fatalf("expected rejection for %q", tc.question)
			}
			if !tc.rejected && err != nil {
				t.Fatalf("unexpected rejection for %q: %v", tc.question, err)
			}
			if err != nil {
				var rej *RejectionError
				if !errors.As(err, &rej) {
					t.Fatalf("expected *RejectionError, got %T", err)
				}
			}
		})
	}
}

func TestCheckRemoteFlagged(t *testing.T) {
	g := &Gate{Remote: fakeModerator{flagged: true, categories: []string{"hate"}}}
	err := g.Check(context.Background(), "a perfectly valid looking question")
	var rej *RejectionError
	if !errors.As(err, &rej) {
		t.Fatalf("expected rejection, got %v", err)
	}
	if !strings.Contains(rej.Reason, "hate") {
		t.Fatalf("expected flagged category in reason, got %q", rej.Reason)
	}
}

func TestCheckRemoteFailureAllows(t *testing.T) {
	g := &Gate{Remote: fakeModerator{err: errors.New("api down")}}
	if err := g.Check(context.Background(), "a perfectly valid looking question"); err != nil {
		t.Fatalf("remote failures must not block questions, got %v", err)
	}
}
