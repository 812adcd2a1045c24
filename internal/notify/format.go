// Package notify renders review emails and hands them to a mail sink.
//
// Rendering has two layers: the user-editable body snippet, where $Name
// tokens are replaced by template variables, is nested inside a fixed HTML
// wrapper that lists the recipient's pages.
package notify

import (
	"bytes"
	"embed"
	"fmt"
	"html"
	"html/template"
	"regexp"
	"strconv"

	"content_review/internal/config"
	"content_review/internal/datemath"
	"content_review/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

// Template variable names available to body snippets and wrappers.
const (
	VarReminderSubject = "ReminderSubject"
	VarReviewSubject   = "ReviewSubject"
	VarPagesCount      = "PagesCount"
	VarFromEmail       = "FromEmail"
	VarToFirstName     = "ToFirstName"
	VarToSurname       = "ToSurname"
	VarToEmail         = "ToEmail"
)

// Message is a fully rendered email ready for delivery.
type Message struct {
	To        string
	From      string
	Subject   string
	HTMLBody  string
	Variables map[string]string
	Items     []model.DueItem
}

// Page is one row of the wrapper's page list.
type Page struct {
	ID             int64
	Title          string
	Link           string
	NextReviewDate string
	DaysUntilDue   int
}

type wrapperData struct {
	Subject     string
	EmailBody   template.HTML
	Recipient   model.Member
	Pages       []Page
	PagesCount  int
	FromEmail   string
	ToFirstName string
	ToSurname   string
	ToEmail     string
}

// Renderer builds review and reminder emails.
type Renderer struct {
	review   *template.Template
	reminder *template.Template
}

// NewRenderer loads the wrapper templates named in t. Unknown names fail.
func NewRenderer(t config.Templates) (*Renderer, error) {
	review, err := loadWrapper(t.Review)
	if err != nil {
		return nil, err
	}
	reminder, err := loadWrapper(t.Reminder)
	if err != nil {
		return nil, err
	}
	return &Renderer{review: review, reminder: reminder}, nil
}

func loadWrapper(name string) (*template.Template, error) {
	tpl, err := template.New(name+".html").Funcs(template.FuncMap{
		"abs":    abs,
		"plural": plural,
	}).ParseFS(templateFS, "templates/"+name+".html")
	if err != nil {
		return nil, &config.ConfigurationError{Field: "templates", Reason: fmt.Sprintf("load wrapper %q: %v", name, err)}
	}
	return tpl, nil
}

// Variables returns the template variables for one owner batch. The subject
// variable is named after the path: ReminderSubject or ReviewSubject.
func Variables(path model.Path, settings model.ReviewSettings, recipient model.Member, pages int) map[string]string {
	vars := map[string]string{
		VarPagesCount:  strconv.Itoa(pages),
		VarFromEmail:   settings.ReviewFromAddress,
		VarToFirstName: recipient.FirstName,
		VarToSurname:   recipient.Surname,
		VarToEmail:     recipient.Email,
	}
	if path == model.PathOverdue {
		vars[VarReviewSubject] = settings.ReviewSubject
	} else {
		vars[VarReminderSubject] = settings.ReminderSubject
	}
	return vars
}

// Render builds the message for one owner batch. settings must already have
// defaults applied.
func (r *Renderer) Render(path model.Path, settings model.ReviewSettings, recipient model.Member, items []model.DueItem) (Message, error) {
	vars := Variables(path, settings, recipient, len(items))

	subject, body, wrapper := settings.ReminderSubject, settings.ReminderBody, r.reminder
	if path == model.PathOverdue {
		subject, body, wrapper = settings.ReviewSubject, settings.ReviewBody, r.review
	}

	data := wrapperData{
		Subject:     subject,
		EmailBody:   template.HTML(RenderSnippet(body, vars)),
		Recipient:   recipient,
		Pages:       pages(items),
		PagesCount:  len(items),
		FromEmail:   settings.ReviewFromAddress,
		ToFirstName: recipient.FirstName,
		ToSurname:   recipient.Surname,
		ToEmail:     recipient.Email,
	}

	var buf bytes.Buffer
	if err := wrapper.Execute(&buf, data); err != nil {
		return Message{}, fmt.Errorf("render %s email: %w", path, err)
	}

	return Message{
		To:        recipient.Email,
		From:      settings.ReviewFromAddress,
		Subject:   subject,
		HTMLBody:  buf.String(),
		Variables: vars,
		Items:     items,
	}, nil
}

var tokenRe = regexp.MustCompile(`\{\$([A-Za-z][A-Za-z0-9]*)\}|\$([A-Za-z][A-Za-z0-9]*)`)

// RenderSnippet replaces $Name and {$Name} tokens in an HTML snippet with the
// HTML-escaped variable values. Unknown tokens are left untouched.
func RenderSnippet(snippet string, vars map[string]string) string {
	return tokenRe.ReplaceAllStringFunc(snippet, func(tok string) string {
		m := tokenRe.FindStringSubmatch(tok)
		name := m[1]
		if name == "" {
			name = m[2]
		}
		v, ok := vars[name]
		if !ok {
			return tok
		}
		return html.EscapeString(v)
	})
}

func pages(items []model.DueItem) []Page {
	out := make([]Page, 0, len(items))
	for _, it := range items {
		p := Page{
			ID:           it.Item.ID,
			Title:        it.Item.Title,
			Link:         it.Item.Link,
			DaysUntilDue: it.DaysUntilDue,
		}
		if p.Title == "" {
			p.Title = "#" + strconv.FormatInt(it.Item.ID, 10)
		}
		if !it.NextReviewDate.IsZero() {
			p.NextReviewDate = datemath.Format(it.NextReviewDate)
		}
		out = append(out, p)
	}
	return out
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
