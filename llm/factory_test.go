package llm

import (
	"errors"
	"testing"
)

func TestParseProviderType(t *testing.T) {
	cases := []struct {
		in   string
		want ProviderType
	}{
		{"", ProviderLocal},
		{"local", ProviderLocal},
		{"lmstudio", ProviderLocal},
		{"openai", ProviderOpenAI},
		{"anthropic", ProviderAnthropic},
		{"gemini", ProviderGemini},
	}
	for _, tc := range cases {
		got, err := ParseProviderType(tc.in)
		if err != nil {
			t.Errorf("ParseProviderType(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseProviderType(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}

	if _, err := ParseProviderType("mainframe"); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestLocalProviderBuildsWithoutAPIKey(t *testing.T) {
	provider, err := NewProviderBuilder(ProviderLocal).
		BaseURL("http://localhost:1234/v1").
		FromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.Model() != ProviderLocal.DefaultModel() {
		t.Errorf("model = %q, want default %q", provider.Model(), ProviderLocal.DefaultModel())
	}
}

func TestErrorTaxonomy(t *testing.T) {
	transient := TransientError(errors.New("dial tcp: connection refused"))
	if !IsTransient(transient) {
		t.Error("wrapped transient error not recognized")
	}
	if IsMalformed(transient) {
		t.Error("transient error misclassified as malformed")
	}

	malformed := MalformedError(errors.New("no JSON object found"))
	if !IsMalformed(malformed) {
		t.Error("wrapped malformed error not recognized")
	}
	if IsTransient(malformed) {
		t.Error("malformed error misclassified as transient")
	}
}

func TestRequestTemperatureDefault(t *testing.T) {
	req := NewRequest(UserMessage("hi"))
	if req.Temperature >= 0 {
		t.Errorf("fresh request temperature = %v, want provider default (< 0)", req.Temperature)
	}
	if got := req.WithTemperature(0).Temperature; got != 0 {
		t.Errorf("explicit zero temperature = %v, want 0", got)
	}
}
