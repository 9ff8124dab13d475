package datapush

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"
)

// sendFunc 便于测试替换实际发送
type sendFunc func(e *email.Email, addr string, auth smtp.Auth, cfg *tls.Config) error

// MailPusher 通过 SMTP(隐式 TLS) 发送告警邮件
type MailPusher struct {
	Server   string // host 或 host:port, 默认端口 465
	Username string
	Password string
	To       []string
	send     sendFunc
}

// NewMailPusher 创建邮件推送, 没有服务器或收件人时返回 nil
func NewMailPusher(server, username, password string, to []string) *MailPusher {
	if server == "" || len(to) == 0 {
		return nil
	}
	return &MailPusher{
		Server:   server,
		Username: username,
		Password: password,
		To:       to,
		send: func(e *email.Email, addr string, auth smtp.Auth, cfg *tls.Config) error {
			return e.SendWithTLS(addr, auth, cfg)
		},
	}
}

func (m *MailPusher) Name() string { return "mail" }

// addr 确保服务器地址包含端口
func (m *MailPusher) addr() (string, string) {
	addr := m.Server
	if !strings.Contains(addr, ":") {
		addr += ":465" // 默认 SSL 端口
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = strings.Split(addr, ":")[0]
	}
	return addr, host
}

// Push 发送告警邮件
func (m *MailPusher) Push(ctx context.Context, alert Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e := email.NewEmail()
	e.From = fmt.Sprintf("Dashboard SKM <%s>", m.Username)
	e.To = m.To
	e.Subject = alert.Title()
	e.Text = []byte(alert.Text())

	addr, host := m.addr()
	err := m.send(e, addr,
		smtp.PlainAuth("", m.Username, m.Password, host),
		&tls.Config{ServerName: host},
	)
	if err != nil {
		return fmt.Errorf("邮件发送失败: %w (Server: %s)", err, addr)
	}
	return nil
}
