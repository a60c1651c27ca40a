// pkg/email/smtp.go
package email

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	htmltemplate "html/template"
	"net/smtp"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/gurkanbulca/taskassign/internal/models"
)

// SMTPEmailService implements EmailService using SMTP
type SMTPEmailService struct {
	config    *Config
	templates *Templates
	auth      smtp.Auth
}

// NewSMTPEmailService creates a new SMTP email service
func NewSMTPEmailService(config *Config) *SMTPEmailService {
	var auth smtp.Auth
	if config.SMTPUsername != "" {
		auth = smtp.PlainAuth("", config.SMTPUsername, config.SMTPPassword, config.SMTPHost)
	}

	return &SMTPEmailService{
		config:    config,
		templates: NewTemplates(),
		auth:      auth,
	}
}

// SendTaskAssigned tells the assignee about a new task.
func (s *SMTPEmailService) SendTaskAssigned(ctx context.Context, assignee *models.User, task *models.Task) error {
	data := s.buildEmailData(assignee, task)
	return s.sendEmail(ctx, assignee.Email, s.templates.TaskAssigned, data)
}

// SendTaskStatusChanged tells recipient that task moved away from previous.
func (s *SMTPEmailService) SendTaskStatusChanged(ctx context.Context, recipient *models.User, task *models.Task, previous models.Status) error {
	data := s.buildEmailData(recipient, task)
	data.PreviousStatus = previous
	return s.sendEmail(ctx, recipient.Email, s.templates.StatusChanged, data)
}

// buildEmailData creates EmailData for template rendering
func (s *SMTPEmailService) buildEmailData(recipient *models.User, task *models.Task) *EmailData {
	return &EmailData{
		Recipient:    recipient,
		Task:         task,
		SupportEmail: s.config.SupportEmail,
		AppName:      s.config.AppName,
		BaseURL:      s.config.BaseURL,
		TaskURL:      fmt.Sprintf("%s/tasks/%s", s.config.BaseURL, task.ID),
	}
}

// sendEmail sends an email using SMTP
func (s *SMTPEmailService) sendEmail(ctx context.Context, to string, tmpl EmailTemplate, data *EmailData) error {
	subject, text, html, err := Render(tmpl, data)
	if err != nil {
		return err
	}

	boundary, err := generateBoundary()
	if err != nil {
		return err
	}

	message := buildMIMEMessage(
		s.config.FromEmail,
		s.config.FromName,
		to,
		subject,
		text,
		html,
		boundary,
	)

	// net/smtp has no context support; honor cancellation before dialing
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", s.config.SMTPHost, s.config.SMTPPort)
	if err := smtp.SendMail(addr, s.auth, s.config.FromEmail, []string{to}, message); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	return nil
}

// Render executes the subject, text and HTML parts of tmpl. The HTML part is
// escaped for its context and the subject is flattened to one line.
func Render(tmpl EmailTemplate, data *EmailData) (subject, text, html string, err error) {
	if subject, err = renderText("subject", tmpl.Subject, data); err != nil {
		return "", "", "", err
	}
	if text, err = renderText("text", tmpl.TextBody, data); err != nil {
		return "", "", "", err
	}

	t, err := htmltemplate.New("html").Parse(tmpl.HTMLBody)
	if err != nil {
		return "", "", "", fmt.Errorf("parse html template: %w", err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", "", "", fmt.Errorf("execute html template: %w", err)
	}

	return headerSafe(subject), text, buf.String(), nil
}

func renderText(name, src string, data *EmailData) (string, error) {
	t, err := template.New(name).Parse(src)
	if err != nil {
		return "", fmt.Errorf("parse %s template: %w", name, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute %s template: %w", name, err)
	}
	return buf.String(), nil
}

// headerSafe collapses line breaks so a value cannot start a new header.
func headerSafe(v string) string {
	return strings.Join(strings.Fields(v), " ")
}

// generateBoundary generates a random boundary for MIME messages
func generateBoundary() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate mime boundary: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// buildMIMEMessage builds a MIME email message with both text and HTML parts
func buildMIMEMessage(from, fromName, to, subject, textBody, htmlBody, boundary string) []byte {
	message := fmt.Sprintf(`From: %s <%s>
To: %s
Subject: %s
MIME-Version: 1.0
Content-Type: multipart/alternative; boundary="%s"

--%s
Content-Type: text/plain; charset=UTF-8
Content-Transfer-Encoding: 7bit

%s

--%s
Content-Type: text/html; charset=UTF-8
Content-Transfer-Encoding: 7bit

%s

--%s--
`, headerSafe(fromName), from, headerSafe(to), headerSafe(subject), boundary, boundary, textBody, boundary, htmlBody, boundary)

	return []byte(message)
}

// MockEmailService implements EmailService for testing and EMAIL_TESTING_MODE
type MockEmailService struct {
	mu         sync.Mutex
	sentEmails []SentEmail
	// Err, when set, is returned from every send.
	Err error
}

// SentEmail represents an email that was sent via MockEmailService
type SentEmail struct {
	To       string
	Template string
	Data     *EmailData
	SentAt   time.Time
}

// NewMockEmailService creates a new mock email service
func NewMockEmailService() *MockEmailService {
	return &MockEmailService{}
}

func (m *MockEmailService) record(to, name string, data *EmailData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.sentEmails = append(m.sentEmails, SentEmail{To: to, Template: name, Data: data, SentAt: time.Now()})
	return nil
}

// SendTaskAssigned mock implementation
func (m *MockEmailService) SendTaskAssigned(ctx context.Context, assignee *models.User, task *models.Task) error {
	return m.record(assignee.Email, "task_assigned", &EmailData{Recipient: assignee, Task: task})
}

// SendTaskStatusChanged mock implementation
func (m *MockEmailService) SendTaskStatusChanged(ctx context.Context, recipient *models.User, task *models.Task, previous models.Status) error {
	return m.record(recipient.Email, "status_changed", &EmailData{Recipient: recipient, Task: task, PreviousStatus: previous})
}

// GetSentEmails returns all sent emails (for testing)
func (m *MockEmailService) GetSentEmails() []SentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentEmail, len(m.sentEmails))
	copy(out, m.sentEmails)
	return out
}

// GetLastSentEmail returns the last sent email (for testing)
func (m *MockEmailService) GetLastSentEmail() *SentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sentEmails) == 0 {
		return nil
	}
	last := m.sentEmails[len(m.sentEmails)-1]
	return &last
}

// Clear clears all sent emails (for testing)
func (m *MockEmailService) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sentEmails = nil
}
