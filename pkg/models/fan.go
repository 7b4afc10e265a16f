package models

// ProviderMailchimp is the provider name of Mailchimp accounts.
const ProviderMailchimp = "mailchimp"

// Fan is the end customer that triggers workflow runs.
type Fan struct {
	ID                  string         `json:"id"`
	WorkspaceID         string         `json:"workspace_id"`
	Email               string         `json:"email"`
	FirstName           string         `json:"first_name"`
	LastName            string         `json:"last_name"`
	EmailMarketingOptIn bool           `json:"email_marketing_opt_in"`
	Attributes          map[string]any `json:"attributes,omitempty"`
}

// ProviderAccount holds a workspace's credentials for a third-party provider.
type ProviderAccount struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id"`
	Provider    string `json:"provider"`
	AccessToken string `json:"-"`
	Server      string `json:"server"`
}
