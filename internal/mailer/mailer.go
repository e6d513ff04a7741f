package mailer

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tokenpad/presale-core/internal/config"
	"github.com/tokenpad/presale-core/internal/domain"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Subject lines per template id; the verb lives here, the body in the HTML
// templates.
var subjects = map[string]string{
	domain.TemplatePaymentSubmitted: "Payment confirmation received for invoice %s",
	domain.TemplateInvoiceApproved:  "Invoice %s approved",
	domain.TemplateInvoiceRejected:  "Invoice %s needs attention",
	domain.TemplateInvoiceExpired:   "Invoice %s expired",
	domain.TemplateInvoiceCancelled: "Invoice %s cancelled",
}

// Mailer delivers notification jobs through the transactional mail
// provider's HTTP API.
type Mailer struct {
	cfg        *config.Config
	httpClient *http.Client
	templates  *template.Template
}

func New(cfg *config.Config) (*Mailer, error) {
	t, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse mail templates: %w", err)
	}
	return &Mailer{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: config.MailerTimeout},
		templates:  t,
	}, nil
}

func (m *Mailer) Send(ctx context.Context, job *domain.NotificationJob) error {
	name := job.TemplateID + ".html"
	if m.templates.Lookup(name) == nil {
		return fmt.Errorf("unknown template %q", job.TemplateID)
	}

	var buf bytes.Buffer
	if err := m.templates.ExecuteTemplate(&buf, name, job.Vars); err != nil {
		return fmt.Errorf("render template %q: %w", job.TemplateID, err)
	}
	html := buf.String()

	text, err := htmlToText(html)
	if err != nil {
		return fmt.Errorf("derive text part: %w", err)
	}

	subject, ok := subjects[job.TemplateID]
	if !ok {
		return fmt.Errorf("no subject for template %q", job.TemplateID)
	}

	payload := map[string]any{
		"from":      map[string]string{"email": m.cfg.MailFrom, "name": m.cfg.MailerName},
		"to":        []map[string]string{{"email": job.Recipient}},
		"subject":   fmt.Sprintf(subject, job.Vars["invoice_no"]),
		"html_body": html,
		"text_body": text,
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", m.cfg.MailerURL+"/messages", bytes.NewReader(payloadJSON))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.cfg.MailerKey)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("mail provider status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// htmlToText derives the text/plain alternative from the rendered HTML.
func htmlToText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	var parts []string
	doc.Find("h1, h2, p, li, td").Each(func(_ int, sel *goquery.Selection) {
		line := strings.Join(strings.Fields(sel.Text()), " ")
		if line != "" {
			parts = append(parts, line)
		}
	})
	return strings.Join(parts, "\n"), nil
}
