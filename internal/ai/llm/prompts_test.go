package llm

import (
	"strings"
	"testing"
)

func TestBuildSignalPrompt(t *testing.T) {
	prompt := BuildSignalPrompt(testPayload())

	for _, want := range []string{
		"Instrument: EURUSD (forex)",
		"Primary timeframe: H4",
		"Current price: 1.10000",
		"Score: 78  Grade: A  Direction: BULLISH",
		"technical: rsi=61.2, trend=STRONG_BULLISH",
		"- ema200: 1.08500",
		"Respond with the JSON object only.",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestBuildSignalPromptIsDeterministic(t *testing.T) {
	p := testPayload()
	p.Levels["pdh"] = 1.1050
	p.Levels["pdl"] = 1.0950
	first := BuildSignalPrompt(p)
	for i := 0; i < 20; i++ {
		if BuildSignalPrompt(p) != first {
			t.Fatal("prompt differs between runs")
		}
	}
}

func TestFormatDetails(t *testing.T) {
	got := formatDetails(map[string]interface{}{"trend": "BULLISH", "rsi": 61.25, "bos": 2})
	want := "bos=2, rsi=61.25, trend=BULLISH"
	if got != want {
		t.Errorf("formatDetails = %q, want %q", got, want)
	}
}
