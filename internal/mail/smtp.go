package mail

import (
	"context"
	"fmt"
	"mime"
	"net/smtp"
	"strings"
)

// SMTPConfig はSMTP送信の設定を保持する。
// Hostが空の場合、メール送信は未設定として扱われる。
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

// Configured はメール送信が設定済みかを返す。
func (c SMTPConfig) Configured() bool {
	return c.Host != "" && c.From != ""
}

// SMTPClient はnet/smtpを使用したClientの実装。
type SMTPClient struct {
	config SMTPConfig
}

// NewSMTPClient はSMTPClientの新しいインスタンスを生成する。
func NewSMTPClient(config SMTPConfig) *SMTPClient {
	return &SMTPClient{config: config}
}

// Send はメールを1通送信する。
// net/smtpはコンテキストを受け取らないため、キャンセルは送信前にのみ確認する。
func (c *SMTPClient) Send(ctx context.Context, msg *Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !c.config.Configured() {
		return fmt.Errorf("SMTP is not configured")
	}
	if len(msg.To) == 0 {
		return fmt.Errorf("no recipients")
	}

	from := msg.From
	if from == "" {
		from = c.config.From
	}

	// エンベロープ受信者にはCCも含める
	recipients := make([]string, 0, len(msg.To)+1)
	recipients = append(recipients, msg.To...)
	if msg.CC != "" {
		recipients = append(recipients, msg.CC)
	}

	var auth smtp.Auth
	if c.config.Username != "" {
		auth = smtp.PlainAuth("", c.config.Username, c.config.Password, c.config.Host)
	}

	addr := c.config.Host + ":" + c.config.Port
	body := BuildMIME(from, msg)

	if err := smtp.SendMail(addr, auth, from, recipients, body); err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}

	return nil
}

// BuildMIME はメッセージからMIMEエンコード済みのメール本文を構築する。
// 件名は非ASCII文字を含む場合に備えてQエンコードする。
// 本文はHTML（UTF-8）として送信する。
func BuildMIME(from string, msg *Message) []byte {
	var b strings.Builder

	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + strings.Join(msg.To, ", ") + "\r\n")
	if msg.CC != "" {
		b.WriteString("Cc: " + msg.CC + "\r\n")
	}
	if msg.ReplyTo != "" {
		b.WriteString("Reply-To: " + msg.ReplyTo + "\r\n")
	}
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", msg.Subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.HTML)

	return []byte(b.String())
}

// compile-time interface check
var _ Client = (*SMTPClient)(nil)
