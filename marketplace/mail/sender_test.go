// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package mail_test

import (
	"bufio"
	"net"
	"net/textproto"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"storj.io/common/testcontext"

	"github.com/mozilla/marketplace/marketplace/mail"
)

// smtpServer accepts a single message and sends its data on received.
func smtpServer(ctx *testcontext.Context, t *testing.T) (addr string, received chan string) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	received = make(chan string, 1)

	ctx.Go(func() error {
		defer func() { _ = listener.Close() }()

		conn, err := listener.Accept()
		if err != nil {
			return err
		}
		defer func() { _ = conn.Close() }()

		text := textproto.NewConn(conn)
		if err := text.PrintfLine("220 localhost ready"); err != nil {
			return err
		}
		for {
			line, err := text.ReadLine()
			if err != nil {
				return err
			}
			command := strings.ToUpper(strings.SplitN(line, " ", 2)[0])
			switch command {
			case "DATA":
				if err := text.PrintfLine("354 go ahead"); err != nil {
					return err
				}
				data, err := text.ReadDotBytes()
				if err != nil {
					return err
				}
				received <- string(data)
				err = text.PrintfLine("250 queued")
			case "QUIT":
				return text.PrintfLine("221 bye")
			default:
				err = text.PrintfLine("250 ok")
			}
			if err != nil {
				return err
			}
		}
	})
	return listener.Addr().String(), received
}

func TestSMTPSenderHeaders(t *testing.T) {
	ctx := testcontext.New(t)

	addr, received := smtpServer(ctx, t)
	sender, err := mail.NewSender(mail.Config{AuthType: "none", SMTPServerAddress: addr, From: "market@example.com"})
	require.NoError(t, err)
	service, err := mail.New(zaptest.NewLogger(t), sender)
	require.NoError(t, err)

	err = service.SendRendered(ctx, []string{"dev@example.com"}, &mail.ManifestFailure{
		App:          "Evil\r\nX-Injected: yes\r\nReply-To: attacker@evil.test",
		ErrorMessage: "broken",
	})
	require.NoError(t, err)

	data := <-received
	header, _, found := strings.Cut(data, "\n\n")
	require.True(t, found, data)

	reader := textproto.NewReader(bufio.NewReader(strings.NewReader(header + "\n\n")))
	fields, err := reader.ReadMIMEHeader()
	require.NoError(t, err)

	assert.Empty(t, fields.Get("X-Injected"))
	assert.Empty(t, fields.Get("Reply-To"))
	assert.Equal(t, `Issue with your app "Evil X-Injected: yes Reply-To: attacker@evil.test" on the Firefox Marketplace`, fields.Get("Subject"))
	assert.Equal(t, "dev@example.com", fields.Get("To"))
}

func TestMessageBytes(t *testing.T) {
	msg := &mail.Message{
		From:    "market@example.com",
		To:      []string{"a@example.com", "b@example.com"},
		Subject: "Überprüfung\nBcc: x@example.com",
		Body:    "line one\nline two\r\n",
	}
	data := string(msg.Bytes())

	assert.Contains(t, data, "From: market@example.com\r\n")
	assert.Contains(t, data, "To: a@example.com, b@example.com\r\n")
	assert.Contains(t, data, "Subject: =?utf-8?q?")
	assert.NotContains(t, data, "\r\nBcc:")
	assert.True(t, strings.HasSuffix(data, "\r\n\r\nline one\r\nline two\r\n"), data)
	assert.NotContains(t, strings.ReplaceAll(data, "\r\n", ""), "\n")
}
