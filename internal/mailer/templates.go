package mailer

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
)

// TemplateID names an email template.
type TemplateID string

// Templates.
const (
	InitialSingle TemplateID = "initial_single"
	InitialMulti  TemplateID = "initial_multi"
	FollowUp1     TemplateID = "followup_1"
	FollowUp2     TemplateID = "followup_2"
)

// Company is one opportunity referenced by an email.
type Company struct {
	Name     string
	Number   string
	Category string
}

// Vars are the values available to the templates.
type Vars struct {
	RecipientName string
	Firm          string
	Companies     []Company

	SenderName    string
	SenderCompany string
	SenderPhone   string
	SenderEmail   string
}

//go:embed templates/*.txt
var templateFS embed.FS

// Templates renders the embedded email templates.
type Templates struct {
	tmpl *template.Template
}

// NewTemplates parses the embedded templates.
func NewTemplates() (*Templates, error) {
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"firstName": firstName,
	}).ParseFS(templateFS, "templates/*.txt")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Templates{tmpl: tmpl}, nil
}

// Render returns the subject and body of template id filled with v.
func (t *Templates) Render(id TemplateID, v Vars) (string, string, error) {
	if len(v.Companies) == 0 {
		return "", "", fmt.Errorf("render %s: no companies", id)
	}

	var subject string
	switch id {
	case InitialSingle, InitialMulti:
		subject = Subject(v.Companies)
	case FollowUp1, FollowUp2:
		subject = "Re: " + Subject(v.Companies)
	default:
		return "", "", fmt.Errorf("unknown template %q", id)
	}

	var buf bytes.Buffer
	if err := t.tmpl.ExecuteTemplate(&buf, string(id)+".txt", v); err != nil {
		return "", "", fmt.Errorf("render %s: %w", id, err)
	}
	return subject, strings.TrimSpace(buf.String()) + "\n", nil
}

// Subject is the initial subject line for the given companies.
func Subject(companies []Company) string {
	switch len(companies) {
	case 0:
		return "Expression of Interest"
	case 1:
		return "Expression of Interest - " + companies[0].Name
	case 2:
		return fmt.Sprintf("Expression of Interest - %s & %s", companies[0].Name, companies[1].Name)
	}
	return fmt.Sprintf("Expression of Interest - %s & %d others", companies[0].Name, len(companies)-1)
}

func firstName(full string) string {
	fields := strings.Fields(full)
	if len(fields) == 0 {
		return "Sir or Madam"
	}
	switch strings.ToLower(strings.TrimSuffix(fields[0], ".")) {
	case "mr", "mrs", "ms", "miss", "dr":
		if len(fields) > 1 {
			return strings.Join(fields[:2], " ")
		}
	}
	return fields[0]
}
