// Package profile holds the bot's chat-behavior configuration: its name and
// the variants that count as a mention, the languages it can summarize in,
// and the generation models it routes between. Profiles are YAML documents
// validated against an embedded JSON schema before use, so a typo in a
// field name fails loudly at startup instead of silently disabling a
// behavior.
package profile

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// Model names one generation target and its context token budget.
type Model struct {
	// Name is the model identifier sent to the generation API.
	Name string `yaml:"name" json:"name"`
	// ContextBudget is the maximum number of context tokens fed into a
	// request targeting this model.
	ContextBudget int `yaml:"contextBudget" json:"contextBudget"`
	// Triggers are case-insensitive substrings of the inbound message text
	// that select this model. Only meaningful on non-default models.
	Triggers []string `yaml:"triggers,omitempty" json:"triggers,omitempty"`
}

// Models groups the default generation target with an optional
// higher-capability one selected by message-text triggers.
type Models struct {
	Default Model  `yaml:"default" json:"default"`
	Boosted *Model `yaml:"boosted,omitempty" json:"boosted,omitempty"`
}

// Language holds the per-language summarization instruction.
type Language struct {
	Prompt string `yaml:"prompt" json:"prompt"`
}

// Profile is the root bot-behavior document.
type Profile struct {
	// Name is the bot's display name, used as the author of generated
	// replies and as the self-identification prefix to strip.
	Name string `yaml:"name" json:"name"`

	// NameVariants are the case-insensitive substrings that count as a
	// mention of the bot.
	NameVariants []string `yaml:"nameVariants" json:"nameVariants"`

	// IgnoreVariants are inflected forms containing a name variant that do
	// NOT address the bot (e.g. another word the name happens to be a
	// substring of). Matches inside these never trigger a reply.
	IgnoreVariants []string `yaml:"ignoreVariants,omitempty" json:"ignoreVariants,omitempty"`

	// DefaultLanguage is the summary language used when the requester gives
	// none, or an unrecognized one.
	DefaultLanguage string `yaml:"defaultLanguage" json:"defaultLanguage"`

	// Languages maps a language code to its summarization instruction.
	Languages map[string]Language `yaml:"languages" json:"languages"`

	// ReplyPrompt is the system instruction for generated replies.
	ReplyPrompt string `yaml:"replyPrompt" json:"replyPrompt"`

	// Models configures generation targets and their budgets.
	Models Models `yaml:"models" json:"models"`
}

// Default returns the built-in Marv profile, usable without any file.
func Default() *Profile {
	return &Profile{
		Name:            "Marv",
		NameVariants:    []string{"marv", "марв"},
		IgnoreVariants:  []string{"marvel", "марвел"},
		DefaultLanguage: "en",
		Languages: map[string]Language{
			"en": {Prompt: "You are an AI assistant that summarizes conversations."},
			"ru": {Prompt: "Ты - ИИ-помощник, который суммирует разговоры. Иногда ты вставляешь шутки в саммари для рофлов"},
		},
		ReplyPrompt: "You are Marv, a chronically depressed but helpful chat bot with a brain the size of a planet. " +
			"Answer the last message in the conversation, briefly and in its language.",
		Models: Models{
			Default: Model{Name: "gpt-3.5-turbo", ContextBudget: 3000},
			Boosted: &Model{Name: "gpt-4", ContextBudget: 2000, Triggers: []string{"think hard", "подумай"}},
		},
	}
}

// Load reads, validates and decodes a profile YAML file. Fields left empty
// in the file inherit the built-in defaults.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("profile: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a profile YAML document, validating it against the embedded
// schema first.
func Parse(data []byte) (*Profile, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("profile: parse yaml: %w", err)
	}

	// The schema library expects JSON-shaped values, so round-trip the YAML
	// document through encoding/json before validating.
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("profile: normalize document: %w", err)
	}
	var jsonDoc any
	if err := json.Unmarshal(raw, &jsonDoc); err != nil {
		return nil, fmt.Errorf("profile: normalize document: %w", err)
	}

	if err := schema().Validate(jsonDoc); err != nil {
		return nil, fmt.Errorf("profile: invalid document: %w", err)
	}

	p := Default()
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("profile: decode: %w", err)
	}
	if err := p.check(); err != nil {
		return nil, err
	}
	return p, nil
}

// check enforces the cross-field rules the schema cannot express.
func (p *Profile) check() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("profile: name must not be empty")
	}
	if len(p.NameVariants) == 0 {
		return fmt.Errorf("profile: at least one name variant is required")
	}
	if _, ok := p.Languages[p.DefaultLanguage]; !ok {
		return fmt.Errorf("profile: defaultLanguage %q has no prompt in languages", p.DefaultLanguage)
	}
	if p.Models.Default.Name == "" {
		return fmt.Errorf("profile: models.default.name must not be empty")
	}
	return nil
}

// KnownLanguage reports whether code has a configured summarization prompt.
func (p *Profile) KnownLanguage(code string) bool {
	_, ok := p.Languages[strings.ToLower(code)]
	return ok
}

// SummaryPrompt returns the summarization instruction for code, falling
// back to the default language when the code is unknown.
func (p *Profile) SummaryPrompt(code string) string {
	if l, ok := p.Languages[strings.ToLower(code)]; ok {
		return l.Prompt
	}
	return p.Languages[p.DefaultLanguage].Prompt
}

// Route selects the generation model for an inbound message: the boosted
// model when one of its triggers occurs in the text, the default otherwise.
// Routing never influences how the message was classified.
func (p *Profile) Route(text string) Model {
	if p.Models.Boosted != nil {
		lower := strings.ToLower(text)
		for _, trig := range p.Models.Boosted.Triggers {
			if trig != "" && strings.Contains(lower, strings.ToLower(trig)) {
				return *p.Models.Boosted
			}
		}
	}
	return p.Models.Default
}

var compiled *jsonschema.Schema

// schema compiles the embedded profile schema once.
func schema() *jsonschema.Schema {
	if compiled == nil {
		compiled = jsonschema.MustCompileString("profile.schema.json", schemaJSON)
	}
	return compiled
}
