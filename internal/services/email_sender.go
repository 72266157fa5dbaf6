package services

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/donkeyideas/Construction-sub000/pkg/config"
)

// EmailSender 邮件发送接口，便于测试时替换
type EmailSender interface {
	Send(to []string, subject, body string) error
}

// SMTPEmailSender 基于SMTP的默认实现
type SMTPEmailSender struct {
	cfg config.SMTPConfig
}

// NewSMTPEmailSender 创建SMTP发送器
func NewSMTPEmailSender(cfg config.SMTPConfig) *SMTPEmailSender {
	return &SMTPEmailSender{cfg: cfg}
}

// Send 发送纯文本邮件
func (s *SMTPEmailSender) Send(to []string, subject, body string) error {
	if len(to) == 0 {
		return fmt.Errorf("收件人为空")
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	msg := strings.Join([]string{
		"From: " + s.cfg.From,
		"To: " + strings.Join(to, ", "),
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
		"",
		body,
	}, "\r\n")

	// 未配置用户名时按匿名中继发送（内网SMTP网关场景）
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	return smtp.SendMail(addr, auth, s.cfg.From, to, []byte(msg))
}
