// pkg/email/service.go
package email

import (
	"context"

	"github.com/gurkanbulca/taskassign/internal/models"
)

// EmailService defines the interface for sending emails
type EmailService interface {
	SendTaskAssigned(ctx context.Context, assignee *models.User, task *models.Task) error
	SendTaskStatusChanged(ctx context.Context, recipient *models.User, task *models.Task, previous models.Status) error
}

// EmailTemplate represents an email template
type EmailTemplate struct {
	Subject  string
	HTMLBody string
	TextBody string
}

// EmailData contains data for template rendering
type EmailData struct {
	Recipient      *models.User
	Task           *models.Task
	PreviousStatus models.Status
	SupportEmail   string
	AppName        string
	BaseURL        string
	TaskURL        string
}

// Config holds email service configuration
type Config struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	FromEmail    string
	FromName     string
	BaseURL      string
	AppName      string
	SupportEmail string
}

// Templates holds all email templates
type Templates struct {
	TaskAssigned  EmailTemplate
	StatusChanged EmailTemplate
}

// NewTemplates creates default email templates
func NewTemplates() *Templates {
	return &Templates{
		TaskAssigned: EmailTemplate{
			Subject: "[{{.AppName}}] New task: {{.Task.Title}}",
			HTMLBody: `
<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title>New task assigned</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .task { margin: 20px 0; padding: 15px; background-color: #f8f9fa; border-radius: 5px; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 14px; color: #666; }
    </style>
</head>
<body>
    <div class="container">
        <p>Hi {{.Recipient.Email}},</p>

        <p>A new task has been assigned to you.</p>

        <div class="task">
            <h3>{{.Task.Title}}</h3>
            <p>{{.Task.Description}}</p>
            <p><strong>Priority:</strong> {{.Task.Priority}}<br>
            <strong>Category:</strong> {{.Task.Category}}{{if .Task.DueDate}}<br>
            <strong>Due:</strong> {{.Task.DueDate.Format "January 2, 2006"}}{{end}}</p>
        </div>

        <p><a href="{{.TaskURL}}">Open the task</a></p>

        <div class="footer">
            <p>The {{.AppName}} Team</p>
            <p>Questions? Contact <a href="mailto:{{.SupportEmail}}">{{.SupportEmail}}</a></p>
        </div>
    </div>
</body>
</html>`,
			TextBody: `Hi {{.Recipient.Email}},

A new task has been assigned to you.

{{.Task.Title}}
{{.Task.Description}}

Priority: {{.Task.Priority}}
Category: {{.Task.Category}}{{if .Task.DueDate}}
Due: {{.Task.DueDate.Format "January 2, 2006"}}{{end}}

Open the task: {{.TaskURL}}

The {{.AppName}} Team`,
		},

		StatusChanged: EmailTemplate{
			Subject: "[{{.AppName}}] {{.Task.Title}} is now {{.Task.Status}}",
			HTMLBody: `
<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title>Task status changed</title>
</head>
<body>
    <p>Hi {{.Recipient.Email}},</p>
    <p>The status of <strong>{{.Task.Title}}</strong> changed from <em>{{.PreviousStatus}}</em> to <em>{{.Task.Status}}</em>.</p>
    <p><a href="{{.TaskURL}}">Open the task</a></p>
    <p>The {{.AppName}} Team</p>
</body>
</html>`,
			TextBody: `Hi {{.Recipient.Email}},

The status of "{{.Task.Title}}" changed from {{.PreviousStatus}} to {{.Task.Status}}.

Open the task: {{.TaskURL}}

The {{.AppName}} Team`,
		},
	}
}
