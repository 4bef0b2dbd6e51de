package service

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"go.uber.org/zap"

	"carecircle/internal/repository"
)

// sesClient is the part of the SES API the service uses
type sesClient interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// EmailService handles sending emails via Amazon SES
type EmailService struct {
	client    sesClient
	fromEmail string
	fromName  string
	enabled   bool
	logger    *zap.Logger
}

// NewEmailService creates a new email service. An empty fromEmail gives a
// disabled service that drops every message.
func NewEmailService(ctx context.Context, awsRegion, fromEmail, fromName string, logger *zap.Logger) (*EmailService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if fromEmail == "" {
		logger.Info("email service disabled: SES_FROM_EMAIL not configured")
		return &EmailService{logger: logger}, nil
	}

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(awsRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	logger.Info("email service enabled", zap.String("from", fromEmail), zap.String("region", awsRegion))
	return &EmailService{
		client:    sesv2.NewFromConfig(cfg),
		fromEmail: fromEmail,
		fromName:  fromName,
		enabled:   true,
		logger:    logger,
	}, nil
}

// IsEnabled returns whether the email service is enabled
func (s *EmailService) IsEnabled() bool {
	return s.enabled
}

var alertDigestHTML = template.Must(template.New("alerts").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; color: #333;">
	<p>Hi {{.Name}},</p>
	<p>{{len .Alerts}} new alert{{if gt (len .Alerts) 1}}s{{end}} need your attention:</p>
	<ul>
	{{- range .Alerts}}
		<li><strong>{{.SeniorName}}</strong>: {{.Description}}{{with .CreatedAt}} ({{.Format "Jan 2 15:04 MST"}}){{end}}</li>
	{{- end}}
	</ul>
	<p style="font-size: 12px; color: #666;">This is an automated email from CareCircle. Please do not reply.</p>
</body>
</html>
`))

// SendAlertDigest sends one email listing alerts
func (s *EmailService) SendAlertDigest(ctx context.Context, toEmail, toName string, alerts []ItemView) error {
	if !s.enabled {
		s.logger.Debug("skipping alert digest (service disabled)", zap.String("to", toEmail))
		return nil
	}
	if len(alerts) == 0 {
		return nil
	}

	subject := fmt.Sprintf("CareCircle: %d new alert", len(alerts))
	if len(alerts) > 1 {
		subject += "s"
	}

	var html bytes.Buffer
	if err := alertDigestHTML.Execute(&html, struct {
		Name   string
		Alerts []ItemView
	}{toName, alerts}); err != nil {
		return fmt.Errorf("failed to render alert digest: %w", err)
	}

	var text strings.Builder
	fmt.Fprintf(&text, "Hi %s,\n\n", toName)
	for _, a := range alerts {
		fmt.Fprintf(&text, "- %s: %s", a.SeniorName, a.Description)
		if a.CreatedAt != nil {
			fmt.Fprintf(&text, " (%s)", a.CreatedAt.Format(time.RFC1123))
		}
		text.WriteString("\n")
	}
	text.WriteString("\n---\nThis is an automated email from CareCircle. Please do not reply.\n")

	return s.sendEmail(ctx, toEmail, subject, html.String(), text.String())
}

// sendEmail sends an email using Amazon SES
func (s *EmailService) sendEmail(ctx context.Context, toEmail, subject, htmlBody, textBody string) error {
	fromAddress := s.fromEmail
	if s.fromName != "" {
		fromAddress = fmt.Sprintf("%s <%s>", s.fromName, s.fromEmail)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{toEmail},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(subject),
					Charset: aws.String("UTF-8"),
				},
				Body: &types.Body{
					Html: &types.Content{
						Data:    aws.String(htmlBody),
						Charset: aws.String("UTF-8"),
					},
					Text: &types.Content{
						Data:    aws.String(textBody),
						Charset: aws.String("UTF-8"),
					},
				},
			},
		},
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send email to %s: %w", toEmail, err)
	}

	fields := []zap.Field{zap.String("to", toEmail), zap.String("subject", subject)}
	if result.MessageId != nil {
		fields = append(fields, zap.String("message_id", *result.MessageId))
	}
	s.logger.Info("email sent", fields...)
	return nil
}

// EmailAlertNotifier mails new alerts to the care manager who owns the
// session
type EmailAlertNotifier struct {
	users *repository.UserRepository
	email *EmailService
}

// NewEmailAlertNotifier creates a notifier. It returns nil when email is
// disabled, so sessions skip alert tracking altogether.
func NewEmailAlertNotifier(users *repository.UserRepository, email *EmailService) AlertNotifier {
	if email == nil || !email.IsEnabled() {
		return nil
	}
	return &EmailAlertNotifier{users: users, email: email}
}

// NotifyAlerts implements AlertNotifier
func (n *EmailAlertNotifier) NotifyAlerts(ctx context.Context, userID int64, alerts []ItemView) error {
	user, err := n.users.GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return ErrUserNotFound
	}
	return n.email.SendAlertDigest(ctx, user.Email, user.Name, alerts)
}
