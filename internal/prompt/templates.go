package prompt

import _ "embed"

// Template bodies are Traditional Chinese instruction blocks tuned against
// the deployed Ollama models. They are embedded rather than inlined
// because the instruction text is full of Markdown backticks.
var (
	//go:embed templates/structured_list.tmpl
	structuredListBody string

	//go:embed templates/hierarchical_bullets.tmpl
	hierarchicalBulletsBody string

	//go:embed templates/paragraph_emoji_lead.tmpl
	paragraphEmojiLeadBody string

	//go:embed templates/custom_format.tmpl
	customFormatBody string

	//go:embed templates/research_report.tmpl
	researchReportBody string
)

// Slot names shared by all templates.
const (
	SlotQuestion   = "question"
	SlotContext    = "context"
	SlotHistory    = "history"
	SlotFormatMode = "format_mode"
)

var (
	// StructuredList answers with bold numbered section headers separated
	// by 100-dot rules.
	StructuredList = mustTemplate("Structured List", structuredListBody,
		SlotQuestion, SlotContext, SlotHistory)

	// HierarchicalBullets answers as a Markdown report with headings and
	// nested lists.
	HierarchicalBullets = mustTemplate("Hierarchical Bullets", hierarchicalBulletsBody,
		SlotQuestion, SlotContext, SlotHistory)

	// ParagraphEmojiLead answers in plain paragraphs, each opened by a
	// topic emoji.
	ParagraphEmojiLead = mustTemplate("Paragraph Emoji Lead", paragraphEmojiLeadBody,
		SlotQuestion, SlotContext, SlotHistory)

	// CustomFormat replicates the literal output format the user embedded
	// in the question.
	CustomFormat = mustTemplate("Custom Format", customFormatBody,
		SlotQuestion, SlotContext, SlotHistory)

	// ResearchReport writes a formal policy-analysis report and adapts to
	// the detected format mode.
	ResearchReport = mustTemplate("Research Report", researchReportBody,
		SlotQuestion, SlotContext, SlotHistory, SlotFormatMode)
)

// DefaultOptions is the rotation pool for the default answer style.
var DefaultOptions = []Template{StructuredList, HierarchicalBullets, ParagraphEmojiLead}
