package services

import (
	"testing"

	"github.com/venturely/venturely-backend/internal/platform/apierr"
)

func testTopic() TopicConfig {
	return newTopic("markets", "Markets", []TopicField{
		{Key: "targetMarket", Label: "Target Market", Kind: FieldText},
		{Key: "competitors", Label: "Competitors", Kind: FieldList},
	})
}

func TestNormalizeTurnRequest(t *testing.T) {
	topic := testTopic()
	cases := []struct {
		name     string
		body     string
		wantText string
		wantHelp bool
	}{
		{
			name:     "single message",
			body:     `{"message": "We sell to small restaurants."}`,
			wantText: "We sell to small restaurants.",
		},
		{
			name:     "messages array takes last user entry",
			body:     `{"messages": [{"role": "user", "content": "first"}, {"role": "assistant", "content": "ok"}, {"role": "user", "content": "We target home cooks."}]}`,
			wantText: "We target home cooks.",
		},
		{
			name:     "system help marker",
			body:     `{"messages": [{"role": "system", "content": "[HELP_REQUEST]"}, {"role": "user", "content": "Who buys things like this?"}]}`,
			wantText: "Who buys things like this?",
			wantHelp: true,
		},
		{
			name:     "explicit help flag",
			body:     `{"message": "Our customers are local gyms.", "isHelpRequest": true}`,
			wantText: "Our customers are local gyms.",
			wantHelp: true,
		},
		{
			name:     "keyword heuristic",
			body:     `{"message": "I'm not sure what to put here."}`,
			wantText: "I'm not sure what to put here.",
			wantHelp: true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizeTurnRequest(topic, []byte(tc.body))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Text != tc.wantText {
				t.Fatalf("text = %q, want %q", got.Text, tc.wantText)
			}
			if got.IsHelpRequest != tc.wantHelp {
				t.Fatalf("help = %v, want %v", got.IsHelpRequest, tc.wantHelp)
			}
			if got.DirectUpdate {
				t.Fatalf("unexpected direct update")
			}
		})
	}
}

func TestNormalizeTurnRequestDirectUpdate(t *testing.T) {
	topic := testTopic()
	got, err := NormalizeTurnRequest(topic, []byte(`{"markets.targetMarket": "Independent coffee shops"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.DirectUpdate {
		t.Fatalf("expected direct update")
	}
	if got.SectionID != "targetMarket" || got.Text != "Independent coffee shops" {
		t.Fatalf("got %+v", got)
	}
}

func TestNormalizeTurnRequestErrors(t *testing.T) {
	topic := testTopic()
	cases := []struct {
		name string
		body string
		code string
	}{
		{name: "empty body", body: "", code: "empty_body"},
		{name: "invalid json", body: "{not json", code: "invalid_json"},
		{name: "no message", body: `{"sectionId": "targetMarket"}`, code: "missing_message"},
		{name: "wrong topic direct update", body: `{"pricing.pricePoints": "cheap"}`, code: "missing_message"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NormalizeTurnRequest(topic, []byte(tc.body))
			if err == nil {
				t.Fatalf("expected error")
			}
			if apierr.StatusOf(err) != 400 {
				t.Fatalf("status = %d, want 400", apierr.StatusOf(err))
			}
			if apierr.CodeOf(err) != tc.code {
				t.Fatalf("code = %q, want %q", apierr.CodeOf(err), tc.code)
			}
		})
	}
}
