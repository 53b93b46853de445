package mailer

import (
	"fmt"
	"strings"
	"testing"

	"github.com/toolhub/digest-engine/internal/domain"
)

func summaries(n int) []domain.ItemSummary {
	items := make([]domain.ItemSummary, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, domain.ItemSummary{
			ID:          fmt.Sprintf("id-%d", i),
			Name:        fmt.Sprintf("Tool %d", i),
			Description: fmt.Sprintf("Description %d", i),
			URL:         fmt.Sprintf("https://example.com/tools/%d", i),
		})
	}
	return items
}

func TestHTMLRendererDaily(t *testing.T) {
	t.Parallel()

	r := NewHTMLRenderer()

	subject, html, err := r.Render(domain.KindDaily, summaries(3), "https://toolhub.example.com/api/newsletter/unsubscribe/tok-1")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if subject != "3 Fresh AI Tools for You" {
		t.Errorf("unexpected subject %q", subject)
	}
	if !strings.Contains(html, "Fresh AI Tools for You") {
		t.Error("expected daily heading in body")
	}
	for i := 0; i < 3; i++ {
		if !strings.Contains(html, fmt.Sprintf("Tool %d", i)) {
			t.Errorf("expected item %d in body", i)
		}
	}
	if !strings.Contains(html, "https://toolhub.example.com/api/newsletter/unsubscribe/tok-1") {
		t.Error("expected unsubscribe link in body")
	}
}

func TestHTMLRendererWeekly(t *testing.T) {
	t.Parallel()

	r := NewHTMLRenderer()

	subject, html, err := r.Render(domain.KindWeekly, summaries(1), "https://toolhub.example.com/account/settings")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if subject != "Weekly Digest: 1 New AI Tool" {
		t.Errorf("unexpected subject %q", subject)
	}
	if !strings.Contains(html, "Your Weekly AI Tools Digest") {
		t.Error("expected weekly heading in body")
	}
}

func TestHTMLRendererCapsItems(t *testing.T) {
	t.Parallel()

	r := NewHTMLRenderer()

	subject, html, err := r.Render(domain.KindDaily, summaries(14), "https://toolhub.example.com/account/settings")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	// Subject still reflects the full count even when the body is capped.
	if subject != "14 Fresh AI Tools for You" {
		t.Errorf("unexpected subject %q", subject)
	}
	if !strings.Contains(html, "Tool 9") {
		t.Error("expected tenth item in body")
	}
	if strings.Contains(html, "Tool 10") {
		t.Error("expected eleventh item to be cut")
	}
	if !strings.Contains(html, "and 4 more") {
		t.Error("expected overflow note in body")
	}
}

func TestHTMLRendererEscapesContent(t *testing.T) {
	t.Parallel()

	r := NewHTMLRenderer()

	items := []domain.ItemSummary{{
		ID:          "id-1",
		Name:        "<script>alert(1)</script>",
		Description: "desc",
		URL:         "https://example.com",
	}}

	_, html, err := r.Render(domain.KindDaily, items, "https://example.com/u")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if strings.Contains(html, "<script>") {
		t.Error("expected item name to be escaped")
	}
}

func TestHTMLRendererNoItems(t *testing.T) {
	t.Parallel()

	r := NewHTMLRenderer()

	if _, _, err := r.Render(domain.KindDaily, nil, "https://example.com/u"); err == nil {
		t.Fatal("expected error for empty item list, got nil")
	}
}
