// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package mail_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"storj.io/common/testcontext"

	"github.com/mozilla/marketplace/marketplace/mail"
)

func TestSendRendered(t *testing.T) {
	ctx := testcontext.New(t)

	sender, err := mail.NewSender(mail.Config{AuthType: "simulate", From: "market@example.com"})
	require.NoError(t, err)
	service, err := mail.New(zaptest.NewLogger(t), sender)
	require.NoError(t, err)

	err = service.SendRendered(ctx, []string{"dev@example.com"}, &mail.ManifestFailure{
		App:          "Cool App",
		ErrorMessage: "Validation errors:\nbroken",
		SiteURL:      "https://marketplace.example.com",
	})
	require.NoError(t, err)

	sent := sender.(*mail.SimulatedSender).Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "market@example.com", sent[0].From)
	assert.Equal(t, `Issue with your app "Cool App" on the Firefox Marketplace`, sent[0].Subject)
	assert.Contains(t, sent[0].Body, "Validation errors:\nbroken")

	require.NoError(t, service.SendRendered(ctx, nil, &mail.ManifestFailure{}))
	assert.Len(t, sender.(*mail.SimulatedSender).Sent(), 1)
}

func TestNewRegions(t *testing.T) {
	assert.Equal(t, "", mail.JoinNames(nil))
	assert.Equal(t, "Brazil", mail.JoinNames([]string{"Brazil"}))
	assert.Equal(t, "Brazil and Spain", mail.JoinNames([]string{"Brazil", "Spain"}))
	assert.Equal(t, "Brazil, Peru, and Spain", mail.JoinNames([]string{"Brazil", "Peru", "Spain"}))

	msg := mail.NewNewRegions("App", []string{"Spain"}, "https://x/edit#details")
	assert.Equal(t, "App: Spain region added to the Firefox Marketplace", msg.Subject())
	msg = mail.NewNewRegions("App", []string{"Spain", "Brazil"}, "")
	assert.Equal(t, "App: New regions added to the Firefox Marketplace", msg.Subject())
	assert.Equal(t, "Brazil and Spain", msg.Regions)
}

func TestNewSender(t *testing.T) {
	_, err := mail.NewSender(mail.Config{AuthType: "plain"})
	require.Error(t, err)
	_, err = mail.NewSender(mail.Config{AuthType: "bogus"})
	require.Error(t, err)
	sender, err := mail.NewSender(mail.Config{AuthType: "plain", SMTPServerAddress: "localhost:25"})
	require.NoError(t, err)
	assert.IsType(t, &mail.SMTPSender{}, sender)
}
