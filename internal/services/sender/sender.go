// Package sender формирует и отправляет письма пользователям.
package sender

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/magabrotheeeer/vortextv/internal/lib/sl"
	"github.com/magabrotheeeer/vortextv/internal/lib/smtp"
	"github.com/magabrotheeeer/vortextv/internal/models"
	"github.com/magabrotheeeer/vortextv/internal/rabbitmq"
)

// Service отправляет письма через SMTP.
type Service struct {
	transport smtp.Dialer
	log       *slog.Logger
}

// New создает Service.
func New(log *slog.Logger, transport smtp.Dialer) *Service {
	return &Service{
		transport: transport,
		log:       log,
	}
}

// SendPasswordReset отправляет ссылку на сброс пароля. Сообщение, которое
// не удалось разобрать, отбрасывается: повторная доставка его не исправит.
func (s *Service) SendPasswordReset(_ context.Context, body []byte) error {
	const op = "sender.SendPasswordReset"
	log := s.log.With(slog.String("op", op))

	var message rabbitmq.PasswordResetMail
	if err := json.Unmarshal(body, &message); err != nil {
		log.Error("dropping malformed message", sl.Err(err))
		return nil
	}
	if message.Email == "" {
		log.Error("dropping message without recipient")
		return nil
	}

	subject := "VortexTV: восстановление пароля"
	bodyText := fmt.Sprintf(`Здравствуйте, %s!

Мы получили запрос на сброс пароля вашей учетной записи VortexTV.
Чтобы задать новый пароль, перейдите по ссылке:

%s

Ссылка действительна %s. Если вы не запрашивали сброс, просто проигнорируйте это письмо.
`, message.Username, message.ResetLink, message.ExpiresIn)

	if err := s.sendEmail([]string{message.Email}, subject, bodyText); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// LogAuditEvent выводит событие аудита из брокера в журнал воркера.
func (s *Service) LogAuditEvent(_ context.Context, body []byte) error {
	var rec models.AuditRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		s.log.Warn("dropping malformed audit event", sl.Err(err))
		return nil
	}
	attrs := []any{
		slog.String("action", rec.Action),
		slog.String("details", rec.Details),
		slog.String("ip", rec.IPAddress),
	}
	if rec.UserID != nil {
		attrs = append(attrs, slog.Int64("user_id", *rec.UserID))
	}
	s.log.Info("audit event", attrs...)
	return nil
}

func (s *Service) sendEmail(to []string, subject, bodyText string) error {
	from := s.transport.From()
	msg := strings.Join([]string{
		"From: " + from,
		"To: " + strings.Join(to, ", "),
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"",
		bodyText,
	}, "\r\n")

	client, err := s.transport.Connect()
	if err != nil {
		s.log.Error("failed to connect to SMTP server", sl.Err(err))
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.Mail(from); err != nil {
		s.log.Error("failed to set MAIL FROM", slog.String("from", from), sl.Err(err))
		return err
	}
	for _, addr := range to {
		if err := client.Rcpt(addr); err != nil {
			s.log.Error("failed to set RCPT TO", slog.String("recipient", addr), sl.Err(err))
			return err
		}
	}

	wc, err := client.Data()
	if err != nil {
		s.log.Error("failed to get data writer", sl.Err(err))
		return err
	}
	if _, err = wc.Write([]byte(msg)); err != nil {
		s.log.Error("failed to write email body", sl.Err(err))
		return err
	}
	if err = wc.Close(); err != nil {
		s.log.Error("failed to close data writer", sl.Err(err))
		return err
	}
	if err = client.Quit(); err != nil {
		s.log.Error("failed to quit SMTP client", sl.Err(err))
		return err
	}

	s.log.Info("email sent", slog.Any("to", to))
	return nil
}
