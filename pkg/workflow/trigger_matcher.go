package workflow

import (
	"log/slog"

	"github.com/dukex/flows/pkg/events"
	"github.com/dukex/flows/pkg/models"
)

// MatchResult is a workflow that an event should start, with the trigger that matched.
type MatchResult struct {
	Workflow       *models.Workflow
	MatchedTrigger *models.WorkflowTrigger
}

// TriggerMatcher decides which workflows an incoming event starts.
type TriggerMatcher struct {
	logger *slog.Logger
}

func NewTriggerMatcher(logger *slog.Logger) *TriggerMatcher {
	return &TriggerMatcher{
		logger: logger.With("module", "trigger_matcher"),
	}
}

// MatchCartOrder returns, once per workflow, the workflows of the event's workspace with a
// NEW_CART_ORDER trigger for the event's funnel. A trigger without a funnel matches any funnel.
// Archived workflows never match.
func (tm *TriggerMatcher) MatchCartOrder(event *events.CartOrderCreated, workflows []*models.Workflow) []MatchResult {
	var results []MatchResult

	for _, workflow := range workflows {
		if workflow.IsArchived() || workflow.WorkspaceID != event.WorkspaceID {
			continue
		}

		for _, trigger := range workflow.Triggers {
			if !matchesCartOrder(trigger, event) {
				continue
			}

			results = append(results, MatchResult{Workflow: workflow, MatchedTrigger: trigger})

			tm.logger.Debug("Found matching workflow",
				"workflow_id", workflow.ID,
				"trigger_id", trigger.ID,
				"cart_funnel_id", event.CartFunnelID)

			break
		}
	}

	tm.logger.Info("Completed trigger matching",
		"event_type", event.GetType(),
		"workspace_id", event.WorkspaceID,
		"matches_found", len(results))

	return results
}

func matchesCartOrder(trigger *models.WorkflowTrigger, event *events.CartOrderCreated) bool {
	if trigger.Trigger != models.TriggerNewCartOrder {
		return false
	}

	if trigger.CartFunnelID == nil || *trigger.CartFunnelID == "" {
		return true
	}

	return *trigger.CartFunnelID == event.CartFunnelID
}
