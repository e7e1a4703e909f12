// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package mail renders and sends developer notifications.
package mail

import (
	"bytes"
	"context"
	"embed"
	"text/template"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
)

var (
	mon = monkit.Package()

	// Error is the default mail errs class.
	Error = errs.Class("mail")
)

//go:embed templates/*.txt
var templateFS embed.FS

// Config defines the values needed to send mail.
type Config struct {
	SMTPServerAddress string `help:"smtp server address" default:""`
	From              string `help:"sender email address" default:"nobody@marketplace.firefox.com"`
	AuthType          string `help:"smtp authentication type (simulate, plain, none)" default:"simulate"`
	Login             string `help:"plain auth user login" default:""`
	Password          string `help:"plain auth user password" default:""`
	SiteURL           string `help:"public site url used in messages" default:"https://marketplace.firefox.com"`
	SupportEmail      string `help:"support address used in messages" default:"app-reviewers@mozilla.org"`
}

// Message is a rendered email.
type Message struct {
	From    string
	To      []string
	Subject string
	Body    string
}

// Sender delivers messages.
type Sender interface {
	SendEmail(ctx context.Context, msg *Message) error
	FromAddress() string
}

// Template is a message rendered from a named template.
type Template interface {
	Template() string
	Subject() string
}

// Service renders templates and sends them.
type Service struct {
	log       *zap.Logger
	sender    Sender
	templates *template.Template
}

// New creates a new mail service.
func New(log *zap.Logger, sender Sender) (*Service, error) {
	templates, err := template.ParseFS(templateFS, "templates/*.txt")
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return &Service{log: log, sender: sender, templates: templates}, nil
}

// SendRendered renders msg and sends it to every recipient.
func (service *Service) SendRendered(ctx context.Context, to []string, msg Template) (err error) {
	defer mon.Task()(&ctx)(&err)

	if len(to) == 0 {
		return nil
	}

	var body bytes.Buffer
	if err := service.templates.ExecuteTemplate(&body, msg.Template()+".txt", msg); err != nil {
		return Error.Wrap(err)
	}

	err = service.sender.SendEmail(ctx, &Message{
		From:    service.sender.FromAddress(),
		To:      to,
		Subject: headerValue(msg.Subject()),
		Body:    body.String(),
	})
	if err != nil {
		service.log.Error("fail sending email", zap.Error(err), zap.Strings("recipients", to))
		return Error.Wrap(err)
	}
	service.log.Info("email sent successfully", zap.Strings("recipients", to))
	return nil
}
