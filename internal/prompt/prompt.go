// Package prompt renders the text blocks the orchestration loop feeds to the
// decision and output stages. The loop treats everything produced here as
// opaque strings.
package prompt

import (
	"embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Service renders prompt text from the embedded templates.
type Service struct {
	templates *template.Template
}

// NewService parses the embedded templates.
func NewService() (*Service, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse prompt templates: %w", err)
	}
	return &Service{templates: tmpl}, nil
}

// CatalogParam mirrors one capability parameter line in the decision prompt.
type CatalogParam struct {
	Name        string
	Type        string
	Description string
	Required    bool
}

// CatalogEntry mirrors one capability in the decision prompt.
type CatalogEntry struct {
	Name        string
	Description string
	Params      []CatalogParam
}

// ResultSummary is one prior capability result folded into the decision
// prompt as context for the next iteration.
type ResultSummary struct {
	Name    string
	Success bool
	Payload string
	Error   string
}

// DecisionData feeds the decision prompt.
type DecisionData struct {
	Persona      string
	UserName     string
	Date         string
	Locale       string
	Catalog      []CatalogEntry
	PriorResults []ResultSummary
}

// DecisionPrompt renders the decision-stage system prompt.
func (s *Service) DecisionPrompt(data DecisionData) (string, error) {
	if data.Persona == "" {
		data.Persona = "a helpful assistant"
	}
	return s.render("decision.tmpl", data)
}

// OutputData feeds the output-stage instructions.
type OutputData struct {
	Format       string
	TraceSummary string
}

// OutputInstructions renders the output-stage system prompt for a response
// format.
func (s *Service) OutputInstructions(data OutputData) (string, error) {
	return s.render("output.tmpl", data)
}

// ContextData feeds the user-context block.
type ContextData struct {
	UserName    string
	Locale      string
	Timezone    string
	LocalTime   string
	Preferences map[string]string
}

// Context renders the user-context block appended to conversations.
func (s *Service) Context(data ContextData) (string, error) {
	return s.render("context.tmpl", data)
}

func (s *Service) render(name string, data any) (string, error) {
	var sb strings.Builder
	if err := s.templates.ExecuteTemplate(&sb, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return strings.TrimSpace(sb.String()) + "\n", nil
}
