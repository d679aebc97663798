package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/riverqueue/river"
)

// SendEmailArgs is the River job payload for one outbound email.
type SendEmailArgs struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

func (SendEmailArgs) Kind() string { return "send_email" }

// Mailer delivers one email. Best-effort: callers never gate business
// state on delivery.
type Mailer interface {
	Send(ctx context.Context, to, subject, html string) error
}

// HTTPMailer posts to a mail-provider REST API.
type HTTPMailer struct {
	BaseURL string
	APIKey  string
	From    string
	client  *http.Client
}

func NewHTTPMailer(baseURL, apiKey, from string) *HTTPMailer {
	return &HTTPMailer{
		BaseURL: baseURL,
		APIKey:  apiKey,
		From:    from,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (m *HTTPMailer) Send(ctx context.Context, to, subject, html string) error {
	body, err := json.Marshal(map[string]string{
		"from":    m.From,
		"to":      to,
		"subject": subject,
		"html":    html,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.BaseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.APIKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("mail provider unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("mail provider returned status %d", resp.StatusCode)
	}
	return nil
}

// SendEmailWorker delivers queued emails. Returning an error lets River
// retry with backoff; settlement has already committed either way.
type SendEmailWorker struct {
	river.WorkerDefaults[SendEmailArgs]
	mailer Mailer
	log    *slog.Logger
}

func NewSendEmailWorker(mailer Mailer, log *slog.Logger) *SendEmailWorker {
	if log == nil {
		log = slog.Default()
	}
	return &SendEmailWorker{mailer: mailer, log: log}
}

func (w *SendEmailWorker) Work(ctx context.Context, job *river.Job[SendEmailArgs]) error {
	args := job.Args
	if err := w.mailer.Send(ctx, args.To, args.Subject, args.HTML); err != nil {
		w.log.Warn("email delivery failed", "to", args.To, "subject", args.Subject, "error", err)
		return err
	}
	return nil
}
