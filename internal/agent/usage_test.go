package agent

import (
	"math"
	"strings"
	"testing"

	"github.com/apexion-ai/parley/internal/provider"
)

func TestKnownPricesPositive(t *testing.T) {
	for model, p := range knownPrices {
		if p.Input <= 0 || p.Output <= 0 {
			t.Errorf("model %q has non-positive price: in=%f out=%f", model, p.Input, p.Output)
		}
	}
}

func TestPriceFor(t *testing.T) {
	tests := []struct {
		model string
		want  string // key in knownPrices, "" for unpriced
	}{
		{"gpt-4o", "gpt-4o"},
		{"openai/gpt-4o-mini", "gpt-4o-mini"},
		{"gpt-4o-mini-2024-07-18", "gpt-4o-mini"},
		{"gpt-4o-2024-08-06", "gpt-4o"},
		{"deepseek/deepseek-chat", "deepseek-chat"},
		{"some-local-model", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			got, ok := priceFor(tt.model)
			if tt.want == "" {
				if ok {
					t.Fatalf("priceFor(%q) = %v, want no price", tt.model, got)
				}
				return
			}
			if !ok || got != knownPrices[tt.want] {
				t.Fatalf("priceFor(%q) = %v, %v; want %v", tt.model, got, ok, knownPrices[tt.want])
			}
		})
	}
}

func TestUsageLedger(t *testing.T) {
	var l UsageLedger
	if got := l.String(); got != "No usage recorded." {
		t.Fatalf("empty ledger: %q", got)
	}

	l.Record("deepseek-chat", &provider.Usage{InputTokens: 1000, OutputTokens: 500})
	l.Record("deepseek-chat", nil)
	if l.Tokens() != 1500 {
		t.Fatalf("tokens = %d, want 1500", l.Tokens())
	}
	want := (1000.0*0.27 + 500.0*1.10) / 1_000_000
	if math.Abs(l.cost-want) > 1e-12 {
		t.Fatalf("cost = %f, want %f", l.cost, want)
	}
	s := l.String()
	if !strings.HasPrefix(s, "2 turns: 1000 input + 500 output = 1500 tokens") || !strings.Contains(s, "$") {
		t.Fatalf("unexpected summary %q", s)
	}
}

func TestUsageLedgerUnpriced(t *testing.T) {
	var l UsageLedger
	l.Record("mystery", &provider.Usage{InputTokens: 10, OutputTokens: 1})
	if strings.Contains(l.String(), "$") {
		t.Fatalf("unpriced model should not show a cost: %q", l.String())
	}
}
