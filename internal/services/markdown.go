package services

import (
	"fmt"
	"sort"
	"strings"
)

// RenderTopicMarkdown renders a topic's structured object as the markdown
// summary stored alongside it. Fields render in registry order; absent fields
// are omitted. Returns "" when nothing renders.
func RenderTopicMarkdown(topic TopicConfig, data map[string]any) string {
	sections := make([]string, 0, len(topic.Fields))
	for _, field := range topic.Fields {
		value, ok := data[field.Key]
		if !ok || value == nil {
			continue
		}
		var body string
		switch field.Kind {
		case FieldList:
			body = renderBullets(value)
		case FieldTable:
			body = renderTable(value)
		default:
			body = renderScalar(value)
		}
		if body == "" {
			continue
		}
		sections = append(sections, fmt.Sprintf("### %s\n\n%s", field.Label, body))
	}
	if len(sections) == 0 {
		return ""
	}
	return fmt.Sprintf("## %s\n\n%s\n", topic.Title, strings.Join(sections, "\n\n"))
}

func renderScalar(value any) string {
	if text, ok := value.(string); ok {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(fmt.Sprintf("%v", value))
}

func renderBullets(value any) string {
	items, ok := value.([]any)
	if !ok || len(items) == 0 {
		return ""
	}
	lines := make([]string, 0, len(items))
	for _, item := range items {
		text := renderScalar(item)
		if text == "" {
			continue
		}
		lines = append(lines, "- "+text)
	}
	return strings.Join(lines, "\n")
}

func renderTable(value any) string {
	rows, ok := value.([]any)
	if !ok || len(rows) == 0 {
		return ""
	}
	first, ok := rows[0].(map[string]any)
	if !ok {
		// Not tabular after all; a bullet list still reads fine.
		return renderBullets(value)
	}

	columns := make([]string, 0, len(first))
	for col := range first {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	var b strings.Builder
	b.WriteString("| " + strings.Join(titleCased(columns), " | ") + " |\n")
	b.WriteString("|" + strings.Repeat(" --- |", len(columns)) + "\n")
	for _, raw := range rows {
		row, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		cells := make([]string, 0, len(columns))
		for _, col := range columns {
			cells = append(cells, renderScalar(row[col]))
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func titleCased(columns []string) []string {
	out := make([]string, len(columns))
	for i, col := range columns {
		if col == "" {
			continue
		}
		out[i] = strings.ToUpper(col[:1]) + col[1:]
	}
	return out
}
