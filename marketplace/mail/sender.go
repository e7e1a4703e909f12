// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package mail

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strings"
	"sync"
)

// NewSender creates the sender selected by config.AuthType.
func NewSender(config Config) (Sender, error) {
	switch config.AuthType {
	case "simulate", "":
		return &SimulatedSender{From: config.From}, nil
	case "plain", "none":
		if config.SMTPServerAddress == "" {
			return nil, Error.New("smtp server address is required for auth type %q", config.AuthType)
		}
		sender := &SMTPSender{ServerAddress: config.SMTPServerAddress, From: config.From}
		if config.AuthType == "plain" {
			host, _, err := net.SplitHostPort(config.SMTPServerAddress)
			if err != nil {
				return nil, Error.Wrap(err)
			}
			sender.Auth = smtp.PlainAuth("", config.Login, config.Password, host)
		}
		return sender, nil
	default:
		return nil, Error.New("unknown auth type %q", config.AuthType)
	}
}

// SMTPSender sends mail through an SMTP server.
type SMTPSender struct {
	ServerAddress string
	From          string
	Auth          smtp.Auth
}

// FromAddress implements Sender.
func (sender *SMTPSender) FromAddress() string { return sender.From }

// SendEmail implements Sender.
func (sender *SMTPSender) SendEmail(ctx context.Context, msg *Message) (err error) {
	defer mon.Task()(&ctx)(&err)

	return Error.Wrap(smtp.SendMail(sender.ServerAddress, sender.Auth, msg.From, msg.To, msg.Bytes()))
}

// Bytes renders the message with CRLF line endings. Header values are
// folded onto a single line and the subject is encoded as UTF-8 when it
// is not plain ASCII.
func (msg *Message) Bytes() []byte {
	var data bytes.Buffer
	fmt.Fprintf(&data, "From: %s\r\n", headerValue(msg.From))
	fmt.Fprintf(&data, "To: %s\r\n", headerValue(strings.Join(msg.To, ", ")))
	fmt.Fprintf(&data, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", headerValue(msg.Subject)))
	data.WriteString("MIME-Version: 1.0\r\n")
	data.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	body := strings.ReplaceAll(msg.Body, "\r\n", "\n")
	data.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return data.Bytes()
}

// headerValue joins the lines of value with spaces.
func headerValue(value string) string {
	return strings.Join(strings.FieldsFunc(value, func(r rune) bool {
		return r == '\r' || r == '\n'
	}), " ")
}

// SimulatedSender keeps messages in memory instead of sending them.
type SimulatedSender struct {
	From string

	mu   sync.Mutex
	sent []Message
}

// FromAddress implements Sender.
func (sender *SimulatedSender) FromAddress() string { return sender.From }

// SendEmail implements Sender.
func (sender *SimulatedSender) SendEmail(ctx context.Context, msg *Message) (err error) {
	defer mon.Task()(&ctx)(&err)
	sender.mu.Lock()
	defer sender.mu.Unlock()
	sender.sent = append(sender.sent, *msg)
	return nil
}

// Sent returns the messages sent so far.
func (sender *SimulatedSender) Sent() []Message {
	sender.mu.Lock()
	defer sender.mu.Unlock()
	return append([]Message(nil), sender.sent...)
}
