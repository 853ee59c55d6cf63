package notify

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/bobuk/opscal/internal/models"
)

// Data is everything a customer message may refer to.
type Data struct {
	CustomerName string
	Title        string
	Start        time.Time
	End          time.Time
	// Previous window of a shifted event.
	OldStart     time.Time
	OldEnd       time.Time
	ShiftMinutes int
	Reason       string
	ConfirmLink  string
	RebookLink   string
	// NeedsConfirmation marks a shift that only takes effect once confirmed.
	NeedsConfirmation bool
}

// Renderer turns a message kind and its data into subject and body.
type Renderer interface {
	Render(kind models.EmailType, data Data) (subject, content string, err error)
}

type message struct {
	subject *template.Template
	body    *template.Template
}

// TemplateRenderer renders plain-text messages with text/template, formatting
// times in the business timezone.
type TemplateRenderer struct {
	messages map[models.EmailType]message
}

var defaultTemplates = map[models.EmailType][2]string{
	models.EmailBookingConfirmation: {
		`Your booking on {{day .Start}} is confirmed`,
		`Hello {{.CustomerName}},

your booking "{{.Title}}" is confirmed for {{day .Start}}, {{clock .Start}} to {{clock .End}}.

See you soon!
`,
	},
	models.EmailBookingCancelled: {
		`Your booking on {{day .Start}} was cancelled`,
		`Hello {{.CustomerName}},

unfortunately your booking "{{.Title}}" on {{day .Start}} at {{clock .Start}} had to be cancelled {{.Reason}}.

We apologise for the inconvenience.
`,
	},
	models.EmailMaydayShift: {
		`Your booking on {{day .OldStart}} has been moved`,
		`Hello {{.CustomerName}},

{{.Reason | sentence}} we have to move your booking "{{.Title}}" by {{.ShiftMinutes}} minutes.

Previously: {{day .OldStart}}, {{clock .OldStart}} to {{clock .OldEnd}}
New time:   {{day .Start}}, {{clock .Start}} to {{clock .End}}
{{if .ConfirmLink}}
{{if .NeedsConfirmation}}Please confirm the new time here: {{.ConfirmLink}}{{else}}Please let us know you have seen this change: {{.ConfirmLink}}{{end}}
{{end}}
We apologise for the inconvenience.
`,
	},
	models.EmailMaydayCancel: {
		`Your booking on {{day .Start}} was cancelled`,
		`Hello {{.CustomerName}},

{{.Reason | sentence}} we have to cancel your booking "{{.Title}}" on {{day .Start}} at {{clock .Start}}.
{{if .RebookLink}}
You can pick a new slot here: {{.RebookLink}}
{{end}}{{if .ConfirmLink}}
Please acknowledge this notice: {{.ConfirmLink}}
{{end}}
We apologise for the inconvenience.
`,
	},
}

func NewTemplateRenderer(loc *time.Location) (*TemplateRenderer, error) {
	if loc == nil {
		loc = time.Local
	}
	funcs := template.FuncMap{
		"day":   func(t time.Time) string { return t.In(loc).Format("Monday, 2 January 2006") },
		"clock": func(t time.Time) string { return t.In(loc).Format(models.ClockLayout) },
		"sentence": func(s string) string {
			if s == "" {
				return s
			}
			return strings.ToUpper(s[:1]) + s[1:] + ","
		},
	}

	r := &TemplateRenderer{messages: make(map[models.EmailType]message)}
	for kind, src := range defaultTemplates {
		subject, err := template.New(string(kind) + "_subject").Funcs(funcs).Parse(src[0])
		if err != nil {
			return nil, fmt.Errorf("parse %s subject: %w", kind, err)
		}
		body, err := template.New(string(kind)).Funcs(funcs).Parse(src[1])
		if err != nil {
			return nil, fmt.Errorf("parse %s body: %w", kind, err)
		}
		r.messages[kind] = message{subject: subject, body: body}
	}
	return r, nil
}

func (r *TemplateRenderer) Render(kind models.EmailType, data Data) (string, string, error) {
	m, ok := r.messages[kind]
	if !ok {
		return "", "", fmt.Errorf("no template for %s messages", kind)
	}
	if data.CustomerName == "" {
		data.CustomerName = "there"
	}

	var subject, body bytes.Buffer
	if err := m.subject.Execute(&subject, data); err != nil {
		return "", "", fmt.Errorf("render %s subject: %w", kind, err)
	}
	if err := m.body.Execute(&body, data); err != nil {
		return "", "", fmt.Errorf("render %s body: %w", kind, err)
	}
	return subject.String(), body.String(), nil
}
