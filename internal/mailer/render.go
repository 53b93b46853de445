package mailer

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/toolhub/digest-engine/internal/domain"
)

// maxRenderedItems caps how many items one digest email shows; runs that
// collect more still list every item in the ledger row.
const maxRenderedItems = 10

// Renderer turns a digest window's items into a subject line and HTML body
// for one recipient.
type Renderer interface {
	Render(kind domain.DigestKind, items []domain.ItemSummary, unsubscribeURL string) (subject string, html string, err error)
}

type digestTemplateData struct {
	Heading        string
	Intro          string
	Items          []domain.ItemSummary
	OverflowCount  int
	UnsubscribeURL string
}

var digestTemplate = template.Must(template.New("digest").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
  <h1 style="color: #1a1a2e;">{{.Heading}}</h1>
  <p>{{.Intro}}</p>
  {{range .Items}}
  <div style="border: 1px solid #e0e0e0; border-radius: 8px; padding: 16px; margin-bottom: 12px;">
    <h2 style="margin: 0 0 8px 0; font-size: 18px;"><a href="{{.URL}}" style="color: #16213e;">{{.Name}}</a></h2>
    <p style="margin: 0; color: #555;">{{.Description}}</p>
  </div>
  {{end}}
  {{if gt .OverflowCount 0}}
  <p style="color: #555;">...and {{.OverflowCount}} more.</p>
  {{end}}
  <hr style="border: none; border-top: 1px solid #e0e0e0; margin: 24px 0;">
  <p style="font-size: 12px; color: #999;">
    You are receiving this because you subscribed to updates.
    <a href="{{.UnsubscribeURL}}" style="color: #999;">Unsubscribe</a>
  </p>
</body>
</html>
`))

// HTMLRenderer is the built-in digest renderer.
type HTMLRenderer struct{}

func NewHTMLRenderer() *HTMLRenderer {
	return &HTMLRenderer{}
}

func (r *HTMLRenderer) Render(kind domain.DigestKind, items []domain.ItemSummary, unsubscribeURL string) (string, string, error) {
	if len(items) == 0 {
		return "", "", fmt.Errorf("cannot render digest without items")
	}

	shown := items
	overflow := 0
	if len(shown) > maxRenderedItems {
		overflow = len(shown) - maxRenderedItems
		shown = shown[:maxRenderedItems]
	}

	subject, heading, intro := digestCopy(kind, len(items))

	var buf bytes.Buffer
	err := digestTemplate.Execute(&buf, digestTemplateData{
		Heading:        heading,
		Intro:          intro,
		Items:          shown,
		OverflowCount:  overflow,
		UnsubscribeURL: unsubscribeURL,
	})
	if err != nil {
		return "", "", fmt.Errorf("render digest template: %w", err)
	}

	return subject, buf.String(), nil
}

func digestCopy(kind domain.DigestKind, itemCount int) (subject, heading, intro string) {
	noun := "tools"
	if itemCount == 1 {
		noun = "tool"
	}

	switch kind {
	case domain.KindWeekly:
		subject = fmt.Sprintf("Weekly Digest: %d New AI %s", itemCount, titleNoun(itemCount))
		heading = "Your Weekly AI Tools Digest"
		intro = fmt.Sprintf("Here are the %d %s added this week.", itemCount, noun)
	default:
		subject = fmt.Sprintf("%d Fresh AI %s for You", itemCount, titleNoun(itemCount))
		heading = "Fresh AI Tools for You"
		intro = fmt.Sprintf("%d new %s just went live today.", itemCount, noun)
	}

	return subject, heading, intro
}

func titleNoun(itemCount int) string {
	if itemCount == 1 {
		return "Tool"
	}
	return "Tools"
}
