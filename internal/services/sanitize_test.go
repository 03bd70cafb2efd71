package services

import (
	"strings"
	"testing"
)

func TestSanitizeAssistantReply(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "plain reply untouched",
			in:   "Great, a subscription model can work well for a coffee service.",
			want: "Great, a subscription model can work well for a coffee service.",
		},
		{
			name: "fenced block stripped",
			in:   "Here is what I captured so far.\n```json\n{\"summary\": \"coffee\"}\n```\nShall we move on to your target market?",
			want: "Here is what I captured so far.\n\nShall we move on to your target market?",
		},
		{
			name: "unterminated fence stripped to end",
			in:   "That sounds like a strong start for your bakery business.\n```json\n{\"summary\":",
			want: "That sounds like a strong start for your bakery business.",
		},
		{
			name: "json lines dropped",
			in:   "Noted, thanks for sharing those details about your pricing.\n{\n\"pricingStrategy\": \"premium\",\n}\nWhat discount policy are you considering?",
			want: "Noted, thanks for sharing those details about your pricing.\nWhat discount policy are you considering?",
		},
		{
			name: "inline backticks removed",
			in:   "I've recorded `premium pricing` as your strategy, which positions you well.",
			want: "I've recorded premium pricing as your strategy, which positions you well.",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := SanitizeAssistantReply(tc.in)
			if got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestSanitizeAssistantReplyFloor(t *testing.T) {
	// Stripping would leave almost nothing, so the original survives.
	in := "Ok.\n```json\n{\"a\": 1}\n```"
	got := SanitizeAssistantReply(in)
	if got != in {
		t.Fatalf("expected original reply back, got %q", got)
	}
	if !strings.Contains(got, "```") {
		t.Fatalf("floor guard should preserve the raw text")
	}
}
