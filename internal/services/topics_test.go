package services

import "testing"

func TestDefaultTopicsRegistry(t *testing.T) {
	topics := defaultTopics()
	if len(topics) != 15 {
		t.Fatalf("expected 15 topics, got %d", len(topics))
	}

	seenKeys := map[string]bool{}
	seenSlugs := map[string]bool{}
	for _, topic := range topics {
		if topic.Key == "" || topic.Slug == "" || topic.Title == "" {
			t.Fatalf("incomplete topic: %+v", topic)
		}
		if seenKeys[topic.Key] {
			t.Fatalf("duplicate key %q", topic.Key)
		}
		if seenSlugs[topic.Slug] {
			t.Fatalf("duplicate slug %q", topic.Slug)
		}
		seenKeys[topic.Key] = true
		seenSlugs[topic.Slug] = true
		if len(topic.Fields) == 0 {
			t.Fatalf("topic %q has no fields", topic.Key)
		}
		if topic.Instructions == "" || topic.HelpInstructions == "" || topic.ExtractionPrompt == "" {
			t.Fatalf("topic %q missing prompts", topic.Key)
		}
		if topic.Apology == "" {
			t.Fatalf("topic %q missing apology", topic.Key)
		}
	}

	for _, slug := range []string{"production", "inventory", "technology"} {
		found := false
		for _, topic := range topics {
			if topic.Slug == slug {
				found = true
				if !topic.Operations {
					t.Fatalf("topic %q should be an operations topic", slug)
				}
			}
		}
		if !found {
			t.Fatalf("missing topic %q", slug)
		}
	}
}

func TestCamelFromSlug(t *testing.T) {
	cases := []struct{ in, want string }{
		{"vision", "vision"},
		{"business-description", "businessDescription"},
		{"revenue-projections", "revenueProjections"},
		{"legal-structure", "legalStructure"},
	}
	for _, tc := range cases {
		if got := camelFromSlug(tc.in); got != tc.want {
			t.Fatalf("camelFromSlug(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestTopicDataKey(t *testing.T) {
	topic := newTopic("startup-costs", "Startup Costs", []TopicField{
		{Key: "totalEstimate", Label: "Total Estimate", Kind: FieldText},
	})
	if topic.Key != "startupCosts" {
		t.Fatalf("key = %q", topic.Key)
	}
	if topic.DataKey() != "startupCostsData" {
		t.Fatalf("data key = %q", topic.DataKey())
	}
	if topic.AssistantEnv != "ASSISTANT_ID_STARTUP_COSTS" {
		t.Fatalf("assistant env = %q", topic.AssistantEnv)
	}
}
