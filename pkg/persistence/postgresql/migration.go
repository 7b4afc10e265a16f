package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflows (
				id TEXT PRIMARY KEY,
				workspace_id TEXT NOT NULL,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				archived_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_workflows_workspace_id ON workflows(workspace_id);
			CREATE INDEX idx_workflows_archived_at ON workflows(archived_at);

			CREATE TABLE workflow_triggers (
				id TEXT PRIMARY KEY,
				workflow_id TEXT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				trigger VARCHAR(50) NOT NULL,
				cart_funnel_id TEXT
			);

			CREATE INDEX idx_workflow_triggers_workflow_id ON workflow_triggers(workflow_id);
			CREATE INDEX idx_workflow_triggers_trigger ON workflow_triggers(trigger);

			-- Deferred so a full-replace update can swap the ranks of two actions.
			CREATE TABLE workflow_actions (
				id TEXT PRIMARY KEY,
				workflow_id TEXT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				lexorank VARCHAR(255) NOT NULL,
				action VARCHAR(50) NOT NULL,
				wait_for_seconds BIGINT NOT NULL DEFAULT 0 CHECK (wait_for_seconds >= 0),
				on_skip VARCHAR(20) NOT NULL DEFAULT 'continue' CHECK (on_skip IN ('continue', 'stop')),
				config JSONB NOT NULL DEFAULT '{}',
				CONSTRAINT workflow_actions_lexorank_unique UNIQUE (workflow_id, lexorank) DEFERRABLE INITIALLY DEFERRED
			);

			CREATE INDEX idx_workflow_actions_workflow_id ON workflow_actions(workflow_id);
		`,
		2: `
			CREATE TABLE IF NOT EXISTS fans (
				id TEXT PRIMARY KEY,
				workspace_id TEXT NOT NULL,
				email TEXT NOT NULL DEFAULT '',
				first_name TEXT NOT NULL DEFAULT '',
				last_name TEXT NOT NULL DEFAULT '',
				email_marketing_opt_in BOOLEAN NOT NULL DEFAULT FALSE,
				attributes JSONB NOT NULL DEFAULT '{}'
			);

			CREATE TABLE IF NOT EXISTS provider_accounts (
				id TEXT PRIMARY KEY,
				workspace_id TEXT NOT NULL,
				provider VARCHAR(50) NOT NULL,
				access_token TEXT NOT NULL,
				server VARCHAR(50) NOT NULL DEFAULT '',
				UNIQUE (workspace_id, provider)
			);

			CREATE TABLE workflow_runs (
				id TEXT PRIMARY KEY,
				workflow_id TEXT NOT NULL REFERENCES workflows(id),
				workspace_id TEXT NOT NULL,
				trigger_fan_id TEXT NOT NULL,
				trigger_data JSONB NOT NULL DEFAULT '{}',
				current_action_id TEXT,
				run_current_action_at TIMESTAMP WITH TIME ZONE NOT NULL,
				status VARCHAR(20) NOT NULL CHECK (status IN ('pending', 'in_progress', 'complete', 'failed', 'cancelled')),
				attempts INT NOT NULL DEFAULT 0,
				lease_owner TEXT,
				lease_expires_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE,
				CHECK (status <> 'complete' OR completed_at IS NOT NULL)
			);

			CREATE INDEX idx_workflow_runs_due ON workflow_runs(run_current_action_at)
				WHERE status IN ('pending', 'in_progress');
			CREATE INDEX idx_workflow_runs_workflow_id ON workflow_runs(workflow_id, created_at);

			CREATE TABLE workflow_run_actions (
				id TEXT PRIMARY KEY,
				workflow_run_id TEXT NOT NULL REFERENCES workflow_runs(id),
				workflow_action_id TEXT NOT NULL,
				status VARCHAR(20) NOT NULL CHECK (status IN ('success', 'skipped', 'failed')),
				skipped_reason TEXT,
				error TEXT,
				attempt INT NOT NULL DEFAULT 1,
				completed_at TIMESTAMP WITH TIME ZONE,
				failed_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflow_run_actions_run ON workflow_run_actions(workflow_run_id, workflow_action_id, created_at);
		`,
	}
}
