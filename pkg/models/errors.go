package models

import "errors"

var (
	// ErrUnsupportedAction is returned for action kinds the engine cannot execute.
	ErrUnsupportedAction = errors.New("unsupported action kind")

	// ErrInvalidPayload is returned when an action config does not match its kind.
	ErrInvalidPayload = errors.New("invalid action payload")

	// ErrFanNotFound is returned when the triggering fan does not exist.
	ErrFanNotFound = errors.New("fan not found")

	// ErrMailchimpNotConfigured is returned when the workspace has no Mailchimp account.
	ErrMailchimpNotConfigured = errors.New("mailchimp account not configured")

	// ErrDuplicateLexorank is returned when two actions of a workflow share a lexorank.
	ErrDuplicateLexorank = errors.New("duplicate action lexorank")

	// ErrDuplicateActionID is returned when two actions of a workflow share an ID.
	ErrDuplicateActionID = errors.New("duplicate action id")

	// ErrDuplicateTriggerID is returned when two triggers of a workflow share an ID.
	ErrDuplicateTriggerID = errors.New("duplicate trigger id")

	// ErrInvalidBranchTarget is returned when a branch jumps to a missing or earlier action.
	ErrInvalidBranchTarget = errors.New("invalid branch target")

	// ErrPayloadMismatch is returned when the payload variant does not match the action kind.
	ErrPayloadMismatch = errors.New("action payload does not match action kind")
)
