// internal/prompts/prompts.go
package prompts

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/Corphon/LectureCompanion/internal/llm"
)

//go:embed prompts.yaml
var defaultCatalogue []byte

// Prompt is one named entry of the catalogue.
type Prompt struct {
	Name        string  `yaml:"-"`
	System      string  `yaml:"system"`
	User        string  `yaml:"user"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	JSON        bool    `yaml:"json"`

	tmpl *template.Template
}

// Render executes the user template against data.
func (p *Prompt) Render(data any) (string, error) {
	var buf bytes.Buffer
	if err := p.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", p.Name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// Request renders the prompt into a completion request.
func (p *Prompt) Request(data any) (llm.CompletionRequest, error) {
	text, err := p.Render(data)
	if err != nil {
		return llm.CompletionRequest{}, err
	}
	return llm.CompletionRequest{
		Prompt:       text,
		SystemPrompt: strings.TrimSpace(p.System),
		Temperature:  p.Temperature,
		MaxTokens:    p.MaxTokens,
		JSONMode:     p.JSON,
	}, nil
}

// Catalogue holds parsed prompts by name.
type Catalogue struct {
	prompts map[string]*Prompt
}

// Load parses the embedded catalogue.
func Load() (*Catalogue, error) {
	return Parse(defaultCatalogue)
}

// LoadFile parses a catalogue from disk, falling back to the embedded
// entries for names the file does not define.
func LoadFile(path string) (*Catalogue, error) {
	base, err := Load()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompts %s: %w", path, err)
	}
	override, err := Parse(data)
	if err != nil {
		return nil, err
	}
	for name, p := range override.prompts {
		base.prompts[name] = p
	}
	return base, nil
}

// Parse reads a YAML catalogue and compiles every template.
func Parse(data []byte) (*Catalogue, error) {
	raw := map[string]*Prompt{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse prompts: %w", err)
	}

	c := &Catalogue{prompts: make(map[string]*Prompt, len(raw))}
	for name, p := range raw {
		if p == nil || strings.TrimSpace(p.User) == "" {
			return nil, fmt.Errorf("prompt %s has no user template", name)
		}
		tmpl, err := template.New(name).Option("missingkey=error").Parse(p.User)
		if err != nil {
			return nil, fmt.Errorf("compile prompt %s: %w", name, err)
		}
		p.Name = name
		p.tmpl = tmpl
		c.prompts[name] = p
	}
	return c, nil
}

// Get returns the named prompt.
func (c *Catalogue) Get(name string) (*Prompt, error) {
	p, ok := c.prompts[name]
	if !ok {
		return nil, fmt.Errorf("prompt %q not found", name)
	}
	return p, nil
}

// Names lists the catalogue entries in sorted order.
func (c *Catalogue) Names() []string {
	names := make([]string, 0, len(c.prompts))
	for name := range c.prompts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
