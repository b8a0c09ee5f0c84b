package postgresql

// migrations returns the schema keyed by version. The partial unique index
// on (workflow_id, idempotency_key) is the canonical at-most-once guard for
// run creation under concurrent event redelivery.
func migrations() map[int]string {
	return map[int]string{
		1: `
		CREATE TABLE IF NOT EXISTS workflow_definitions (
			id UUID PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			status VARCHAR(50) NOT NULL DEFAULT 'draft',
			district_id UUID,
			school_id UUID,
			trigger_type VARCHAR(50) NOT NULL DEFAULT 'event',
			trigger_event VARCHAR(64) NOT NULL,
			version INTEGER NOT NULL DEFAULT 1,
			pinned_version INTEGER,
			published_version INTEGER,
			definition JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_workflow_definitions_trigger
			ON workflow_definitions (trigger_event) WHERE status = 'published';

		CREATE TABLE IF NOT EXISTS workflow_definition_versions (
			workflow_id UUID NOT NULL REFERENCES workflow_definitions(id),
			version INTEGER NOT NULL,
			definition JSONB NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			PRIMARY KEY (workflow_id, version)
		);

		CREATE TABLE IF NOT EXISTS workflow_runs (
			id UUID PRIMARY KEY,
			workflow_id UUID NOT NULL REFERENCES workflow_definitions(id),
			version INTEGER NOT NULL,
			district_id UUID,
			school_id UUID,
			actor_id UUID NOT NULL,
			event_id UUID,
			idempotency_key VARCHAR(255),
			status VARCHAR(50) NOT NULL DEFAULT 'running',
			input JSONB,
			output JSONB,
			started_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			finished_at TIMESTAMP WITH TIME ZONE
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_workflow_runs_idempotency
			ON workflow_runs (workflow_id, idempotency_key)
			WHERE idempotency_key IS NOT NULL;

		CREATE TABLE IF NOT EXISTS workflow_run_steps (
			id UUID PRIMARY KEY,
			run_id UUID NOT NULL REFERENCES workflow_runs(id),
			step_key VARCHAR(255) NOT NULL,
			status VARCHAR(50) NOT NULL,
			input JSONB,
			output JSONB,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_workflow_run_steps_run
			ON workflow_run_steps (run_id);

		CREATE TABLE IF NOT EXISTS dead_letters (
			id UUID PRIMARY KEY,
			workflow_id UUID NOT NULL,
			run_id UUID NOT NULL,
			step_key VARCHAR(255) NOT NULL,
			actor_id UUID NOT NULL,
			district_id UUID,
			school_id UUID,
			input JSONB,
			error TEXT NOT NULL,
			metadata JSONB,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS events (
			id UUID PRIMARY KEY,
			name VARCHAR(64) NOT NULL,
			entity_type VARCHAR(255),
			entity_id VARCHAR(255),
			metadata JSONB,
			actor_id UUID NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS actors (
			id UUID PRIMARY KEY,
			role VARCHAR(50) NOT NULL,
			district_id UUID,
			school_id UUID
		);

		CREATE TABLE IF NOT EXISTS notifications (
			id UUID PRIMARY KEY,
			user_id UUID,
			type VARCHAR(100),
			severity VARCHAR(50),
			title TEXT,
			body TEXT,
			entity_type VARCHAR(255),
			entity_id VARCHAR(255),
			metadata JSONB,
			district_id UUID,
			school_id UUID,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS tasks (
			id UUID PRIMARY KEY,
			title TEXT,
			description TEXT,
			assignee_id UUID,
			status VARCHAR(50),
			due_date TIMESTAMP WITH TIME ZONE,
			entity_type VARCHAR(255),
			entity_id VARCHAR(255),
			metadata JSONB,
			district_id UUID,
			school_id UUID,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS student_flags (
			id UUID PRIMARY KEY,
			student_id VARCHAR(255),
			flag_type VARCHAR(100),
			level VARCHAR(50),
			reason TEXT,
			metadata JSONB,
			district_id UUID,
			school_id UUID,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);
		`,
	}
}
