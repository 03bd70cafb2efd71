package services

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/venturely/venturely-backend/internal/logger"
	"github.com/venturely/venturely-backend/internal/utils"
)

type FieldKind string

const (
	FieldText  FieldKind = "text"
	FieldList  FieldKind = "list"
	FieldTable FieldKind = "table"
)

type TopicField struct {
	Key   string
	Label string
	Kind  FieldKind
}

// TopicConfig is the per-topic configuration record: one of these replaces a
// whole copy-pasted route handler. Key is the camel-case content key; Slug is
// the route segment.
type TopicConfig struct {
	Key              string
	Slug             string
	Title            string
	AssistantEnv     string
	AssistantID      string
	Instructions     string
	HelpInstructions string
	ExtractionPrompt string
	Fields           []TopicField
	ExtractInThread  bool
	Operations       bool
	Apology          string
}

// DataKey is the content key holding the extracted structured object.
func (t TopicConfig) DataKey() string { return t.Key + "Data" }

// FallbackObject is the deterministic shape returned when extraction fails:
// callers always receive a well-formed object.
func (t TopicConfig) FallbackObject() map[string]any {
	obj := make(map[string]any, len(t.Fields))
	for _, f := range t.Fields {
		switch f.Kind {
		case FieldList, FieldTable:
			obj[f.Key] = []any{}
		default:
			obj[f.Key] = "Information not available"
		}
	}
	return obj
}

func (t TopicConfig) Field(key string) (TopicField, bool) {
	for _, f := range t.Fields {
		if f.Key == key {
			return f, true
		}
	}
	return TopicField{}, false
}

func newTopic(slug, title string, fields []TopicField) TopicConfig {
	key := camelFromSlug(slug)
	fieldLines := make([]string, 0, len(fields))
	for _, f := range fields {
		switch f.Kind {
		case FieldList:
			fieldLines = append(fieldLines, fmt.Sprintf("  %q: array of short strings (%s)", f.Key, strings.ToLower(f.Label)))
		case FieldTable:
			fieldLines = append(fieldLines, fmt.Sprintf("  %q: array of objects (%s), each object mapping column names to values", f.Key, strings.ToLower(f.Label)))
		default:
			fieldLines = append(fieldLines, fmt.Sprintf("  %q: string (%s)", f.Key, strings.ToLower(f.Label)))
		}
	}

	return TopicConfig{
		Key:          key,
		Slug:         slug,
		Title:        title,
		AssistantEnv: "ASSISTANT_ID_" + strings.ToUpper(strings.ReplaceAll(slug, "-", "_")),
		Instructions: fmt.Sprintf(
			"You are a business-planning coach working through the %s section of the user's business plan. "+
				"Ask one focused question at a time, acknowledge what the user just told you, and keep replies short and conversational. "+
				"Never include JSON, code blocks, or any structured data in your replies.",
			title),
		HelpInstructions: fmt.Sprintf(
			"The user is asking for guidance on the %s section rather than answering. "+
				"Give a concrete example of a strong answer, explain briefly what makes it strong, and invite them to try. "+
				"Do not treat anything in this exchange as a decision the user has made. "+
				"Never include JSON, code blocks, or any structured data in your replies.",
			title),
		ExtractionPrompt: fmt.Sprintf(
			"Summarize everything established in this conversation about the %s section into a single JSON object. "+
				"Use only these fields, all optional; omit any field that was not actually discussed:\n%s\n"+
				"Respond with the JSON object only, no prose and no code fences.",
			title, strings.Join(fieldLines, "\n")),
		Fields: fields,
		Apology: fmt.Sprintf(
			"I'm sorry — I'm having trouble responding about your %s right now. Please try again in a moment; nothing you've shared has been lost.",
			strings.ToLower(title)),
	}
}

func camelFromSlug(slug string) string {
	parts := strings.Split(slug, "-")
	for i := 1; i < len(parts); i++ {
		if parts[i] == "" {
			continue
		}
		parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
	}
	return strings.Join(parts, "")
}

type TopicRegistry struct {
	log    *logger.Logger
	topics []TopicConfig
	bySlug map[string]TopicConfig
}

// NewTopicRegistry builds the registry, resolves assistant ids from the
// environment and applies the optional YAML override file.
func NewTopicRegistry(log *logger.Logger) (*TopicRegistry, error) {
	topics := defaultTopics()

	defaultAssistant := utils.GetEnv("ASSISTANT_ID_DEFAULT", "", log)
	for i := range topics {
		topics[i].AssistantID = utils.GetEnv(topics[i].AssistantEnv, defaultAssistant, log)
	}

	if path := strings.TrimSpace(os.Getenv("ASSISTANT_TOPICS_FILE")); path != "" {
		if err := applyTopicOverrides(path, topics); err != nil {
			return nil, fmt.Errorf("load topic overrides: %w", err)
		}
		log.Info("Applied assistant topic overrides", "path", path)
	}

	bySlug := make(map[string]TopicConfig, len(topics))
	for _, t := range topics {
		bySlug[t.Slug] = t
	}
	return &TopicRegistry{log: log.With("service", "TopicRegistry"), topics: topics, bySlug: bySlug}, nil
}

func (r *TopicRegistry) Topics() []TopicConfig {
	out := make([]TopicConfig, len(r.topics))
	copy(out, r.topics)
	return out
}

func (r *TopicRegistry) BySlug(slug string) (TopicConfig, bool) {
	t, ok := r.bySlug[slug]
	return t, ok
}

type topicOverrideFile struct {
	Topics map[string]struct {
		AssistantID     string `yaml:"assistant_id"`
		ExtractInThread *bool  `yaml:"extract_in_thread"`
	} `yaml:"topics"`
}

func applyTopicOverrides(path string, topics []TopicConfig) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var file topicOverrideFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return err
	}
	for slug, override := range file.Topics {
		found := false
		for i := range topics {
			if topics[i].Slug != slug {
				continue
			}
			found = true
			if strings.TrimSpace(override.AssistantID) != "" {
				topics[i].AssistantID = strings.TrimSpace(override.AssistantID)
			}
			if override.ExtractInThread != nil {
				topics[i].ExtractInThread = *override.ExtractInThread
			}
		}
		if !found {
			known := make([]string, 0, len(topics))
			for _, t := range topics {
				known = append(known, t.Slug)
			}
			sort.Strings(known)
			return fmt.Errorf("unknown topic %q (known: %s)", slug, strings.Join(known, ", "))
		}
	}
	return nil
}

func defaultTopics() []TopicConfig {
	topics := []TopicConfig{
		newTopic("vision", "Vision", []TopicField{
			{Key: "visionStatement", Label: "Vision Statement", Kind: FieldText},
			{Key: "missionStatement", Label: "Mission Statement", Kind: FieldText},
			{Key: "coreValues", Label: "Core Values", Kind: FieldList},
			{Key: "longTermGoals", Label: "Long-Term Goals", Kind: FieldList},
		}),
		newTopic("business-description", "Business Description", []TopicField{
			{Key: "summary", Label: "Summary", Kind: FieldText},
			{Key: "industry", Label: "Industry", Kind: FieldText},
			{Key: "businessModel", Label: "Business Model", Kind: FieldText},
			{Key: "stageOfDevelopment", Label: "Stage of Development", Kind: FieldText},
		}),
		newTopic("products", "Products & Services", []TopicField{
			{Key: "offerings", Label: "Offerings", Kind: FieldList},
			{Key: "uniqueSellingPoints", Label: "Unique Selling Points", Kind: FieldList},
			{Key: "developmentRoadmap", Label: "Development Roadmap", Kind: FieldText},
		}),
		newTopic("markets", "Markets", []TopicField{
			{Key: "targetMarket", Label: "Target Market", Kind: FieldText},
			{Key: "marketSize", Label: "Market Size", Kind: FieldText},
			{Key: "customerSegments", Label: "Customer Segments", Kind: FieldList},
			{Key: "competitors", Label: "Competitors", Kind: FieldList},
			{Key: "marketTrends", Label: "Market Trends", Kind: FieldList},
		}),
		newTopic("distribution", "Distribution", []TopicField{
			{Key: "channels", Label: "Channels", Kind: FieldList},
			{Key: "logistics", Label: "Logistics", Kind: FieldText},
			{Key: "partnerships", Label: "Partnerships", Kind: FieldList},
		}),
		newTopic("pricing", "Pricing", []TopicField{
			{Key: "pricingStrategy", Label: "Pricing Strategy", Kind: FieldText},
			{Key: "pricePoints", Label: "Price Points", Kind: FieldTable},
			{Key: "discountPolicy", Label: "Discount Policy", Kind: FieldText},
		}),
		newTopic("promotional", "Promotional Strategy", []TopicField{
			{Key: "marketingChannels", Label: "Marketing Channels", Kind: FieldList},
			{Key: "advertisingBudget", Label: "Advertising Budget", Kind: FieldText},
			{Key: "brandMessage", Label: "Brand Message", Kind: FieldText},
			{Key: "campaigns", Label: "Campaigns", Kind: FieldList},
		}),
		newTopic("sales", "Sales", []TopicField{
			{Key: "salesProcess", Label: "Sales Process", Kind: FieldText},
			{Key: "salesTeam", Label: "Sales Team", Kind: FieldText},
			{Key: "salesTargets", Label: "Sales Targets", Kind: FieldTable},
		}),
		newTopic("legal-structure", "Legal Structure", []TopicField{
			{Key: "entityType", Label: "Entity Type", Kind: FieldText},
			{Key: "ownership", Label: "Ownership", Kind: FieldList},
			{Key: "licenses", Label: "Licenses", Kind: FieldList},
			{Key: "regulatoryRequirements", Label: "Regulatory Requirements", Kind: FieldList},
		}),
		newTopic("production", "Production", []TopicField{
			{Key: "productionProcess", Label: "Production Process", Kind: FieldText},
			{Key: "facilities", Label: "Facilities", Kind: FieldText},
			{Key: "capacity", Label: "Capacity", Kind: FieldText},
			{Key: "qualityControl", Label: "Quality Control", Kind: FieldText},
		}),
		newTopic("inventory", "Inventory", []TopicField{
			{Key: "inventoryManagement", Label: "Inventory Management", Kind: FieldText},
			{Key: "suppliers", Label: "Suppliers", Kind: FieldList},
			{Key: "storageRequirements", Label: "Storage Requirements", Kind: FieldText},
			{Key: "reorderPolicy", Label: "Reorder Policy", Kind: FieldText},
		}),
		newTopic("technology", "Technology", []TopicField{
			{Key: "systems", Label: "Systems", Kind: FieldList},
			{Key: "infrastructure", Label: "Infrastructure", Kind: FieldText},
			{Key: "securityMeasures", Label: "Security Measures", Kind: FieldList},
		}),
		newTopic("kpis", "Key Performance Indicators", []TopicField{
			{Key: "metrics", Label: "Metrics", Kind: FieldTable},
			{Key: "reviewCadence", Label: "Review Cadence", Kind: FieldText},
		}),
		newTopic("revenue-projections", "Revenue Projections", []TopicField{
			{Key: "revenueStreams", Label: "Revenue Streams", Kind: FieldList},
			{Key: "pricingStrategy", Label: "Pricing Strategy", Kind: FieldText},
			{Key: "salesForecast", Label: "Sales Forecast", Kind: FieldTable},
			{Key: "growthAssumptions", Label: "Growth Assumptions", Kind: FieldList},
		}),
		newTopic("startup-costs", "Startup Costs", []TopicField{
			{Key: "oneTimeCosts", Label: "One-Time Costs", Kind: FieldTable},
			{Key: "monthlyExpenses", Label: "Monthly Expenses", Kind: FieldTable},
			{Key: "fundingSources", Label: "Funding Sources", Kind: FieldList},
			{Key: "totalEstimate", Label: "Total Estimate", Kind: FieldText},
		}),
	}
	for i := range topics {
		switch topics[i].Slug {
		case "production", "inventory", "technology":
			topics[i].Operations = true
		}
	}
	return topics
}
