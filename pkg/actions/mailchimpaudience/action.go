// Package mailchimpaudience implements the ADD_TO_MAILCHIMP_AUDIENCE action.
package mailchimpaudience

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/flows/pkg/mailchimp"
	"github.com/dukex/flows/pkg/models"
	"github.com/dukex/flows/pkg/persistence"
	"github.com/dukex/flows/pkg/protocol"
)

const (
	SkipReasonNotOptedIn = "fan has not opted in to email marketing"
	SkipReasonNoEmail    = "fan has no email address"
)

// AudienceClient adds members to Mailchimp audiences.
type AudienceClient interface {
	AddListMember(ctx context.Context, account *models.ProviderAccount, listID string, member mailchimp.Member) error
}

type Action struct {
	fans     protocol.FanReader
	accounts protocol.ProviderAccountReader
	client   AudienceClient
}

func NewAction(fans protocol.FanReader, accounts protocol.ProviderAccountReader, client AudienceClient) *Action {
	return &Action{
		fans:     fans,
		accounts: accounts,
		client:   client,
	}
}

func (a *Action) Execute(ctx context.Context, input protocol.ActionInput, payload *models.AddToMailchimpAudienceAction) (protocol.Outcome, error) {
	fan, err := a.fans.GetFan(ctx, input.Run.WorkspaceID, input.Run.TriggerFanID)
	if err != nil {
		return protocol.Outcome{}, err
	}

	account, err := a.accounts.GetProviderAccount(ctx, input.Run.WorkspaceID, models.ProviderMailchimp)
	if errors.Is(err, persistence.ErrProviderAccountNotFound) {
		return protocol.Outcome{}, fmt.Errorf("%w for workspace %s", models.ErrMailchimpNotConfigured, input.Run.WorkspaceID)
	}

	if err != nil {
		return protocol.Outcome{}, err
	}

	if !fan.EmailMarketingOptIn {
		return protocol.Skipped(SkipReasonNotOptedIn), nil
	}

	if fan.Email == "" {
		return protocol.Skipped(SkipReasonNoEmail), nil
	}

	member := mailchimp.Member{
		EmailAddress: fan.Email,
		StatusIfNew:  mailchimp.StatusSubscribed,
		MergeFields: map[string]any{
			"FNAME": fan.FirstName,
			"LNAME": fan.LastName,
		},
	}

	err = a.client.AddListMember(ctx, account, payload.MailchimpAudienceID, member)
	if err != nil {
		return protocol.Failed(fmt.Errorf("failed to add fan %s to audience %s: %w", fan.ID, payload.MailchimpAudienceID, err)), nil
	}

	if input.Logger != nil {
		input.Logger.InfoContext(ctx, "Fan added to mailchimp audience", "fan_id", fan.ID, "audience_id", payload.MailchimpAudienceID)
	}

	return protocol.Success(), nil
}
