// Package sendemail implements the SEND_EMAIL action.
package sendemail

import (
	"context"
	"fmt"

	"github.com/dukex/flows/pkg/mailer"
	"github.com/dukex/flows/pkg/models"
	"github.com/dukex/flows/pkg/protocol"
	"github.com/dukex/flows/pkg/template"
)

const (
	SkipReasonNotOptedIn = "fan has not opted in to email marketing"
	SkipReasonNoEmail    = "fan has no email address"
)

type Action struct {
	fans   protocol.FanReader
	sender mailer.Mailer
}

func NewAction(fans protocol.FanReader, sender mailer.Mailer) *Action {
	return &Action{
		fans:   fans,
		sender: sender,
	}
}

func (a *Action) Execute(ctx context.Context, input protocol.ActionInput, payload *models.SendEmailAction) (protocol.Outcome, error) {
	fan, err := a.fans.GetFan(ctx, input.Run.WorkspaceID, input.Run.TriggerFanID)
	if err != nil {
		return protocol.Outcome{}, err
	}

	if !fan.EmailMarketingOptIn {
		return protocol.Skipped(SkipReasonNotOptedIn), nil
	}

	if fan.Email == "" {
		return protocol.Skipped(SkipReasonNoEmail), nil
	}

	data := template.RunData(input.Workflow, input.Run, fan)

	subject, err := template.Render("subject", payload.Subject, data)
	if err != nil {
		return protocol.Failed(err), nil
	}

	body, err := template.Render("body", payload.Body, data)
	if err != nil {
		return protocol.Failed(err), nil
	}

	err = a.sender.Send(ctx, mailer.Message{
		From:    payload.From,
		To:      fan.Email,
		Subject: subject,
		Body:    body,
	})
	if err != nil {
		return protocol.Failed(fmt.Errorf("failed to send email to fan %s: %w", fan.ID, err)), nil
	}

	return protocol.Success(), nil
}
