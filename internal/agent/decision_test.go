package agent

import (
	"strings"
	"testing"

	"github.com/mohammad-safakhou/newspulse/models"
)

func TestDecideGreetingSkipsRetrieval(t *testing.T) {
	e := NewEngine()
	for _, q := range []string{"hi", "Hello!", "thanks", "Good morning"} {
		d := e.Decide(q, nil)
		if d.NeedRetrieval {
			t.Errorf("%q should not trigger retrieval", q)
		}
	}
}

func TestDecideMetaQuestionUsesHistoryOnly(t *testing.T) {
	e := NewEngine()
	history := []models.Turn{
		{Role: models.RoleUser, Content: "what is happening with Bitcoin ETFs"},
		{Role: models.RoleAssistant, Content: "Several ETF filings moved forward."},
	}
	d := e.Decide("what did I just ask?", history)
	if d.NeedRetrieval {
		t.Fatal("conversation meta-question should not trigger retrieval")
	}

	// Without history the same wording is a real question.
	d = e.Decide("what did I just ask?", nil)
	if !d.NeedRetrieval {
		t.Fatal("meta wording with no history should still retrieve")
	}
}

func TestDecideShortFollowupSkipsRetrieval(t *testing.T) {
	e := NewEngine()
	history := []models.Turn{
		{Role: models.RoleUser, Content: "tell me about the Solana outage"},
		{Role: models.RoleAssistant, Content: "The network halted for five hours."},
	}
	d := e.Decide("why the outage?", history)
	if d.NeedRetrieval {
		t.Fatal("short follow-up sharing terms with the previous turn should not retrieve")
	}
}

func TestDecideFreshQuestionRetrievesWithExpansion(t *testing.T) {
	e := NewEngine()
	d := e.Decide("what is the latest BTC price action?", nil)
	if !d.NeedRetrieval {
		t.Fatal("fresh question should retrieve")
	}
	if !strings.Contains(d.Query, "Bitcoin") {
		t.Fatalf("expected btc expanded to Bitcoin, got %q", d.Query)
	}
	if strings.Contains(strings.ToLower(d.Query), "btc") {
		t.Fatalf("expected btc replaced, got %q", d.Query)
	}
}

func TestExpandAbbreviations(t *testing.T) {
	cases := map[string]string{
		"eth and sol news":     "Ethereum and Solana news",
		"is defi dead":         "is decentralized finance dead",
		"NFT floor prices":     "non-fungible token floor prices",
		"crypto market update": "cryptocurrency market update",
		"ethereal songs":       "ethereal songs", // no word-boundary match
	}
	for in, want := range cases {
		if got := ExpandAbbreviations(in); got != want {
			t.Errorf("ExpandAbbreviations(%q) = %q, want %q", in, got, want)
		}
	}
}
