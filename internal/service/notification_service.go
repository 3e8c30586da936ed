package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/resend/resend-go/v2"
)

// ResultNotification данные письма о результате теста
type ResultNotification struct {
	ResultID       uint
	StudentName    string
	TestName       string
	Company        string
	Score          int
	Verdict        string
	CorrectAnswers int
	TotalQuestions int
	SubmittedAt    time.Time
}

// NotificationService отправляет уведомления студентам
type NotificationService interface {
	SendResultNotification(ctx context.Context, toEmail string, n ResultNotification) error
}

// NoopNotificationService используется, когда уведомления выключены
type NoopNotificationService struct{}

func (s *NoopNotificationService) SendResultNotification(ctx context.Context, toEmail string, n ResultNotification) error {
	log.Printf("[NotificationService] noop result notification to=%s result=%d", toEmail, n.ResultID)
	return nil
}

// ResendNotificationService отправляет письма через Resend REST API
type ResendNotificationService struct {
	from   string
	client *resend.Client
}

func NewResendNotificationService(apiKey, from string) (*ResendNotificationService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("resend api key is required")
	}
	if from == "" {
		return nil, fmt.Errorf("email from is required")
	}
	return &ResendNotificationService{
		from:   from,
		client: resend.NewClient(apiKey),
	}, nil
}

func (s *ResendNotificationService) SendResultNotification(ctx context.Context, toEmail string, n ResultNotification) error {
	if strings.TrimSpace(toEmail) == "" {
		return fmt.Errorf("toEmail is required")
	}

	verdict := "not passed"
	if n.Verdict == "passed" {
		verdict = "passed"
	}
	subject := fmt.Sprintf("Your result: %s", n.TestName)
	text := fmt.Sprintf("Hello %s,\n\nYou %s \"%s\" (%s) with a score of %d%% (%d of %d correct).\nSubmitted at %s.",
		n.StudentName, verdict, n.TestName, n.Company, n.Score, n.CorrectAnswers, n.TotalQuestions,
		n.SubmittedAt.UTC().Format("2006-01-02 15:04 MST"))
	body := fmt.Sprintf("<p>Hello %s,</p><p>You <strong>%s</strong> &laquo;%s&raquo; (%s) with a score of <strong>%d%%</strong> (%d of %d correct).</p>",
		html.EscapeString(n.StudentName), verdict, html.EscapeString(n.TestName), html.EscapeString(n.Company),
		n.Score, n.CorrectAnswers, n.TotalQuestions)

	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{toEmail},
		Subject: subject,
		Text:    text,
		Html:    body,
	}
	// Один результат дает не больше одного письма даже при повторах
	options := &resend.SendEmailOptions{
		IdempotencyKey: fmt.Sprintf("result-%d", n.ResultID),
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		_, err := s.client.Emails.SendWithOptions(ctx, params, options)
		if err == nil {
			return nil
		}
		lastErr = err

		if wait, ok := resendRetryDelay(err, attempt); ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
				continue
			}
		}

		return fmt.Errorf("resend send failed: %w", err)
	}

	return fmt.Errorf("resend send failed after retries: %w", lastErr)
}

func resendRetryDelay(err error, attempt int) (time.Duration, bool) {
	var rateLimitErr *resend.RateLimitError
	if errors.As(err, &rateLimitErr) {
		if seconds, convErr := strconv.Atoi(strings.TrimSpace(rateLimitErr.RetryAfter)); convErr == nil && seconds > 0 {
			if seconds > 30 {
				seconds = 30
			}
			return time.Duration(seconds) * time.Second, true
		}
		return time.Duration(attempt+1) * time.Second, true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return time.Duration(attempt+1) * 500 * time.Millisecond, true
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "temporar") {
		return time.Duration(attempt+1) * 500 * time.Millisecond, true
	}

	return 0, false
}
