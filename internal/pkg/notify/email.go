package notify

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"todolist/internal/config"
	"todolist/internal/store"

	"gopkg.in/gomail.v2"
)

// EmailNotifier 通过 SMTP 发送提醒邮件。
type EmailNotifier struct {
	cfg    config.EmailConfig
	logger *slog.Logger
	send   func(m *gomail.Message) error
}

// NewEmailNotifier 创建邮件通知器。
func NewEmailNotifier(cfg config.EmailConfig, logger *slog.Logger) *EmailNotifier {
	n := &EmailNotifier{cfg: cfg, logger: logger}
	n.send = func(m *gomail.Message) error {
		d := gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass)
		return d.DialAndSend(m)
	}
	return n
}

// SendReminder 发送到期提醒邮件。
func (n *EmailNotifier) SendReminder(ctx context.Context, toEmail string, r store.DueReminder) error {
	if !n.cfg.Enabled() {
		n.logger.Warn("email config missing, skip reminder")
		return nil
	}
	if strings.TrimSpace(toEmail) == "" {
		return fmt.Errorf("empty recipient")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := n.send(n.buildMessage(toEmail, r)); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	n.logger.Info("reminder email sent",
		slog.String("to", toEmail),
		slog.Uint64("goal_id", uint64(r.GoalID)))
	return nil
}

func (n *EmailNotifier) buildMessage(toEmail string, r store.DueReminder) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.FromEmail)
	m.SetHeader("To", toEmail)
	m.SetHeader("Subject", fmt.Sprintf("[todolist] Goal #%d is due soon", r.GoalID))
	m.SetBody("text/plain", fmt.Sprintf("Goal #%d %q is due %s.", r.GoalID, r.Title, r.DueDate.Format("2006-01-02 15:04")))
	m.AddAlternative("text/html", buildHTMLBody(r))
	return m
}

func buildHTMLBody(r store.DueReminder) string {
	const template = `<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif;">
  <div style="max-width: 520px; margin: 0 auto; padding: 16px;">
    <h2>Goal due soon</h2>
    <p style="font-size: 18px;"><b>#%d</b> %s</p>
    <p>Due: %s</p>
  </div>
</body>
</html>`
	return fmt.Sprintf(template, r.GoalID, html.EscapeString(r.Title), r.DueDate.Format("2006-01-02 15:04"))
}
