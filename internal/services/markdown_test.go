package services

import (
	"strings"
	"testing"
)

func TestRenderTopicMarkdownOmitsAbsentFields(t *testing.T) {
	topic := testTopic()
	got := RenderTopicMarkdown(topic, map[string]any{
		"targetMarket": "Independent coffee shops",
	})
	if !strings.Contains(got, "## Markets") {
		t.Fatalf("missing topic heading: %q", got)
	}
	if !strings.Contains(got, "### Target Market") {
		t.Fatalf("missing field heading: %q", got)
	}
	if strings.Contains(got, "Competitors") {
		t.Fatalf("absent field should not render: %q", got)
	}
}

func TestRenderTopicMarkdownEmpty(t *testing.T) {
	topic := testTopic()
	if got := RenderTopicMarkdown(topic, map[string]any{}); got != "" {
		t.Fatalf("expected empty render, got %q", got)
	}
}

func TestRenderTopicMarkdownBullets(t *testing.T) {
	topic := testTopic()
	got := RenderTopicMarkdown(topic, map[string]any{
		"competitors": []any{"Big Bean Co", "Corner Brew"},
	})
	if !strings.Contains(got, "- Big Bean Co\n- Corner Brew") {
		t.Fatalf("bullets missing: %q", got)
	}
}

func TestRenderTopicMarkdownTable(t *testing.T) {
	topic := newTopic("pricing", "Pricing", []TopicField{
		{Key: "pricePoints", Label: "Price Points", Kind: FieldTable},
	})
	got := RenderTopicMarkdown(topic, map[string]any{
		"pricePoints": []any{
			map[string]any{"product": "Latte", "price": "4.50"},
			map[string]any{"product": "Espresso", "price": "3.00"},
		},
	})
	// Columns render sorted, upper-cased.
	if !strings.Contains(got, "| Price | Product |") {
		t.Fatalf("header missing: %q", got)
	}
	if !strings.Contains(got, "| --- | --- |") {
		t.Fatalf("separator missing: %q", got)
	}
	if !strings.Contains(got, "| 4.50 | Latte |") {
		t.Fatalf("row missing: %q", got)
	}
}

func TestRenderTopicMarkdownTableOfStringsFallsBackToBullets(t *testing.T) {
	topic := newTopic("pricing", "Pricing", []TopicField{
		{Key: "pricePoints", Label: "Price Points", Kind: FieldTable},
	})
	got := RenderTopicMarkdown(topic, map[string]any{
		"pricePoints": []any{"Latte 4.50", "Espresso 3.00"},
	})
	if !strings.Contains(got, "- Latte 4.50") {
		t.Fatalf("bullet fallback missing: %q", got)
	}
}
