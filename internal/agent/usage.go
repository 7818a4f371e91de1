package agent

import (
	"fmt"
	"strings"

	"github.com/apexion-ai/parley/internal/provider"
)

// Price is the cost in dollars per million tokens.
type Price struct {
	Input  float64
	Output float64
}

// knownPrices covers common chat models. OpenRouter names such as
// "openai/gpt-4o-mini" are matched on the part after the vendor slash.
var knownPrices = map[string]Price{
	"claude-sonnet-4-20250514":  {3.0, 15.0},
	"claude-opus-4-20250514":    {15.0, 75.0},
	"claude-haiku-4-5-20251001": {0.80, 4.0},
	"gpt-4o":                    {2.50, 10.0},
	"gpt-4o-mini":               {0.15, 0.60},
	"gpt-4.1":                   {2.0, 8.0},
	"gpt-4.1-mini":              {0.40, 1.60},
	"deepseek-chat":             {0.27, 1.10},
	"gemini-2.5-flash":          {0.15, 0.60},
	"llama-3.3-70b-versatile":   {0.59, 0.79},
}

// UsageLedger totals token usage for the lifetime of a REPL.
type UsageLedger struct {
	turns  int
	input  int
	output int
	cost   float64
	priced bool
}

// Record adds one reply's usage. A nil usage counts the turn only.
func (l *UsageLedger) Record(model string, u *provider.Usage) {
	l.turns++
	if u == nil {
		return
	}
	l.input += u.InputTokens
	l.output += u.OutputTokens
	if p, ok := priceFor(model); ok {
		l.priced = true
		l.cost += float64(u.InputTokens)*p.Input/1_000_000 + float64(u.OutputTokens)*p.Output/1_000_000
	}
}

// Tokens returns the total of input and output tokens.
func (l *UsageLedger) Tokens() int { return l.input + l.output }

func (l *UsageLedger) String() string {
	if l.turns == 0 {
		return "No usage recorded."
	}
	s := fmt.Sprintf("%s: %d input + %d output = %d tokens",
		plural(l.turns, "turn"), l.input, l.output, l.Tokens())
	if l.priced {
		s += fmt.Sprintf(" (about $%.4f)", l.cost)
	}
	return s
}

func priceFor(model string) (Price, bool) {
	if i := strings.LastIndex(model, "/"); i >= 0 {
		model = model[i+1:]
	}
	if p, ok := knownPrices[model]; ok {
		return p, true
	}
	// Dated snapshots, e.g. "gpt-4o-2024-08-06". Longest prefix wins.
	var best string
	for name := range knownPrices {
		if strings.HasPrefix(model, name+"-") && len(name) > len(best) {
			best = name
		}
	}
	if best == "" {
		return Price{}, false
	}
	return knownPrices[best], true
}
