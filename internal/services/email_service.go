package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SESEmailService sends account security notifications through AWS SES.
type SESEmailService struct {
	sesClient   *ses.Client
	fromAddress string
	logger      *slog.Logger
}

// NewSESEmailService creates a new SESEmailService.
func NewSESEmailService(region, fromAddress string, logger *slog.Logger) (*SESEmailService, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &SESEmailService{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		logger:      logger,
	}, nil
}

// SendPasswordChangedEmail notifies an account that its password changed.
func (s *SESEmailService) SendPasswordChangedEmail(ctx context.Context, email string) error {
	textBody := `Your account password was changed.

If you made this change, no action is needed.

If you did not change your password, contact your panel administrator
immediately: someone else may have access to your account.

This is an automated message. Please do not reply to this email.
`

	return s.send(ctx, email, "Your password was changed", textBody)
}

// SendAccountCreatedEmail delivers the generated password for a newly
// provisioned account.
func (s *SESEmailService) SendAccountCreatedEmail(ctx context.Context, email, username, temporaryPassword string) error {
	textBody := fmt.Sprintf(`An account has been created for you.

Username: %s
Password: %s

Please log in and change this password right away.

This is an automated message. Please do not reply to this email.
`, username, temporaryPassword)

	return s.send(ctx, email, "Your new account", textBody)
}

func (s *SESEmailService) send(ctx context.Context, email, subject, textBody string) error {
	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{email},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(subject),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	result, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send email via SES", slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("email sent",
		slog.String("subject", subject),
		slog.String("message_id", *result.MessageId))
	return nil
}

// NoopEmailService discards all notifications. Used when email delivery is
// disabled.
type NoopEmailService struct{}

func (NoopEmailService) SendPasswordChangedEmail(ctx context.Context, email string) error {
	return nil
}

func (NoopEmailService) SendAccountCreatedEmail(ctx context.Context, email, username, temporaryPassword string) error {
	return nil
}
