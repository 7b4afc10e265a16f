// Package template renders action text, such as email subjects and bodies, against run data.
package template

import (
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/dukex/flows/pkg/models"
)

var funcs = template.FuncMap{
	"now": func() string {
		return time.Now().UTC().Format(time.RFC3339)
	},
	"default": func(fallback, value any) any {
		if value == nil {
			return fallback
		}

		if s, ok := value.(string); ok && s == "" {
			return fallback
		}

		return value
	},
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"title": func(s string) string {
		if s == "" {
			return s
		}

		return strings.ToUpper(s[:1]) + s[1:]
	},
}

// Parse checks that text is a valid template.
func Parse(name, text string) error {
	_, err := template.New(name).Funcs(funcs).Option("missingkey=zero").Parse(text)
	if err != nil {
		return fmt.Errorf("failed to parse template '%s': %w", name, err)
	}

	return nil
}

// Render executes text against data.
func Render(name, text string, data any) (string, error) {
	tmpl, err := template.New(name).Funcs(funcs).Option("missingkey=zero").Parse(text)
	if err != nil {
		return "", fmt.Errorf("failed to parse template '%s': %w", name, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return "", fmt.Errorf("failed to execute template '%s': %w", name, err)
	}

	return buf.String(), nil
}

// RunData is the data templates and branch conditions are evaluated against.
func RunData(workflow *models.Workflow, run *models.WorkflowRun, fan *models.Fan) map[string]any {
	data := map[string]any{
		"trigger": run.TriggerData,
		"workflow": map[string]any{
			"id":   workflow.ID,
			"name": workflow.Name,
		},
		"run": map[string]any{
			"id":         run.ID,
			"created_at": run.CreatedAt,
		},
	}

	if fan == nil {
		fan = &models.Fan{}
	}

	data["fan"] = map[string]any{
		"id":                     fan.ID,
		"email":                  fan.Email,
		"first_name":             fan.FirstName,
		"last_name":              fan.LastName,
		"email_marketing_opt_in": fan.EmailMarketingOptIn,
		"attributes":             fan.Attributes,
	}

	return data
}
