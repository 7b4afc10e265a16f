package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ActionKind identifies the kind of a workflow action.
type ActionKind string

const (
	ActionKindWait                   ActionKind = "WAIT"
	ActionKindAddToMailchimpAudience ActionKind = "ADD_TO_MAILCHIMP_AUDIENCE"
	ActionKindSendEmail              ActionKind = "SEND_EMAIL"
	ActionKindBooleanBranch          ActionKind = "BOOLEAN_BRANCH"
)

// ActionKinds lists every kind the engine can execute.
func ActionKinds() []ActionKind {
	return []ActionKind{
		ActionKindWait,
		ActionKindAddToMailchimpAudience,
		ActionKindSendEmail,
		ActionKindBooleanBranch,
	}
}

// SkipPolicy decides what a run does after an action was skipped.
type SkipPolicy string

const (
	// SkipContinue advances the run as if the action succeeded.
	SkipContinue SkipPolicy = "continue"

	// SkipStop completes the run after recording the skip.
	SkipStop SkipPolicy = "stop"
)

// WorkflowAction is one step of a workflow. Steps are ordered by Lexorank.
type WorkflowAction struct {
	ID             string        `json:"id"`
	WorkflowID     string        `json:"workflow_id"`
	Lexorank       string        `json:"lexorank"                 validate:"required"`
	Action         ActionKind    `json:"action"                   validate:"required,oneof=WAIT ADD_TO_MAILCHIMP_AUDIENCE SEND_EMAIL BOOLEAN_BRANCH"`
	WaitForSeconds int64         `json:"wait_for_seconds"         validate:"min=0"`
	OnSkip         SkipPolicy    `json:"on_skip,omitempty"        validate:"omitempty,oneof=continue stop"`
	Payload        ActionPayload `json:"-"`
}

// WaitFor is the delay applied when a run enters this action.
func (a *WorkflowAction) WaitFor() time.Duration {
	return time.Duration(a.WaitForSeconds) * time.Second
}

// SkipPolicy returns the configured skip policy, defaulting to SkipContinue.
func (a *WorkflowAction) SkipPolicy() SkipPolicy {
	if a.OnSkip == "" {
		return SkipContinue
	}

	return a.OnSkip
}

type workflowActionJSON struct {
	ID             string          `json:"id"`
	WorkflowID     string          `json:"workflow_id"`
	Lexorank       string          `json:"lexorank"`
	Action         ActionKind      `json:"action"`
	WaitForSeconds int64           `json:"wait_for_seconds"`
	OnSkip         SkipPolicy      `json:"on_skip,omitempty"`
	Config         json.RawMessage `json:"config,omitempty"`
}

// MarshalJSON encodes the payload under "config".
func (a WorkflowAction) MarshalJSON() ([]byte, error) {
	config, err := MarshalPayload(a.Payload)
	if err != nil {
		return nil, err
	}

	return json.Marshal(workflowActionJSON{
		ID:             a.ID,
		WorkflowID:     a.WorkflowID,
		Lexorank:       a.Lexorank,
		Action:         a.Action,
		WaitForSeconds: a.WaitForSeconds,
		OnSkip:         a.OnSkip,
		Config:         config,
	})
}

// UnmarshalJSON decodes "config" into the payload variant selected by "action".
func (a *WorkflowAction) UnmarshalJSON(data []byte) error {
	var raw workflowActionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	a.ID = raw.ID
	a.WorkflowID = raw.WorkflowID
	a.Lexorank = raw.Lexorank
	a.Action = raw.Action
	a.WaitForSeconds = raw.WaitForSeconds
	a.OnSkip = raw.OnSkip
	a.Payload = nil

	if raw.Action == "" {
		return nil
	}

	payload, err := DecodePayload(raw.Action, raw.Config)
	if err != nil {
		return err
	}

	a.Payload = payload

	return nil
}

// ActionVisitor dispatches on the payload variant. Adding a kind adds a method here,
// so every dispatcher must handle it before the module compiles again.
type ActionVisitor interface {
	VisitWait(payload *WaitAction) error
	VisitAddToMailchimpAudience(payload *AddToMailchimpAudienceAction) error
	VisitSendEmail(payload *SendEmailAction) error
	VisitBooleanBranch(payload *BooleanBranchAction) error
}

// ActionPayload is the kind-specific part of a WorkflowAction.
type ActionPayload interface {
	Kind() ActionKind
	Accept(visitor ActionVisitor) error
}

// WaitAction has no side effect; the delay lives on WorkflowAction.WaitForSeconds.
type WaitAction struct{}

func (*WaitAction) Kind() ActionKind { return ActionKindWait }

func (p *WaitAction) Accept(v ActionVisitor) error { return v.VisitWait(p) }

// AddToMailchimpAudienceAction subscribes the triggering fan to a Mailchimp audience.
type AddToMailchimpAudienceAction struct {
	MailchimpAudienceID string `json:"mailchimp_audience_id" validate:"required"`
}

func (*AddToMailchimpAudienceAction) Kind() ActionKind { return ActionKindAddToMailchimpAudience }

func (p *AddToMailchimpAudienceAction) Accept(v ActionVisitor) error {
	return v.VisitAddToMailchimpAudience(p)
}

// SendEmailAction sends a templated email to the triggering fan.
type SendEmailAction struct {
	From    string `json:"from,omitempty" validate:"omitempty,email"`
	Subject string `json:"subject"        validate:"required"`
	Body    string `json:"body"           validate:"required"`
}

func (*SendEmailAction) Kind() ActionKind { return ActionKindSendEmail }

func (p *SendEmailAction) Accept(v ActionVisitor) error { return v.VisitSendEmail(p) }

// BooleanBranchAction evaluates Condition and jumps to one of two later actions.
// An empty target continues with the next action by lexorank.
type BooleanBranchAction struct {
	Condition       string `json:"condition"                    validate:"required"`
	IfTrueActionID  string `json:"if_true_action_id,omitempty"`
	IfFalseActionID string `json:"if_false_action_id,omitempty"`
}

func (*BooleanBranchAction) Kind() ActionKind { return ActionKindBooleanBranch }

func (p *BooleanBranchAction) Accept(v ActionVisitor) error { return v.VisitBooleanBranch(p) }

// Targets returns the non-empty jump targets.
func (p *BooleanBranchAction) Targets() []string {
	targets := make([]string, 0, 2)

	if p.IfTrueActionID != "" {
		targets = append(targets, p.IfTrueActionID)
	}

	if p.IfFalseActionID != "" {
		targets = append(targets, p.IfFalseActionID)
	}

	return targets
}

// NewPayload returns an empty payload for kind.
func NewPayload(kind ActionKind) (ActionPayload, error) {
	switch kind {
	case ActionKindWait:
		return &WaitAction{}, nil
	case ActionKindAddToMailchimpAudience:
		return &AddToMailchimpAudienceAction{}, nil
	case ActionKindSendEmail:
		return &SendEmailAction{}, nil
	case ActionKindBooleanBranch:
		return &BooleanBranchAction{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAction, kind)
	}
}

// DecodePayload decodes raw into the payload variant for kind. Empty raw yields the zero payload.
func DecodePayload(kind ActionKind, raw []byte) (ActionPayload, error) {
	payload, err := NewPayload(kind)
	if err != nil {
		return nil, err
	}

	if len(raw) == 0 || string(raw) == "null" {
		return payload, nil
	}

	if err := json.Unmarshal(raw, payload); err != nil {
		return nil, fmt.Errorf("%w: %s config: %w", ErrInvalidPayload, kind, err)
	}

	return payload, nil
}

// MarshalPayload encodes payload; a nil payload encodes as an empty object.
func MarshalPayload(payload ActionPayload) ([]byte, error) {
	if payload == nil {
		return []byte("{}"), nil
	}

	return json.Marshal(payload)
}
