package notify

import (
	"context"
	"html"
	"strings"

	"go.uber.org/zap"
	gomail "gopkg.in/gomail.v2"

	"github.com/d60-Lab/food-order/config"
	"github.com/d60-Lab/food-order/pkg/logger"
)

// SMTPMailer 通过 SMTP(SSL) 发送纯文本 + HTML 邮件
type SMTPMailer struct {
	cfg  config.SMTPConfig
	dial func(m *gomail.Message) error
}

func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password)
	d.SSL = cfg.Port == 465
	return &SMTPMailer{cfg: cfg, dial: func(m *gomail.Message) error { return d.DialAndSend(m) }}
}

func (s *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.dial(buildMessage(s.cfg.From, to, subject, body))
}

func buildMessage(from, to, subject, body string) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)
	m.AddAlternative("text/html", "<p>"+strings.ReplaceAll(html.EscapeString(body), "\n", "<br>")+"</p>")
	return m
}

// LogMailer SMTP 未启用时使用，只记录日志
type LogMailer struct{}

func (LogMailer) Send(_ context.Context, to, subject, _ string) error {
	logger.Info("mail skipped, smtp disabled", zap.String("to", to), zap.String("subject", subject))
	return nil
}
