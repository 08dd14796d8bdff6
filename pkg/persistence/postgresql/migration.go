package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflows (
				id VARCHAR(64) PRIMARY KEY,
				org_id VARCHAR(64) NOT NULL,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				trigger VARCHAR(64) NOT NULL,
				priority INTEGER NOT NULL DEFAULT 0,
				conditions JSONB NOT NULL DEFAULT '{}',
				blocks JSONB NOT NULL DEFAULT '[]',
				connections JSONB NOT NULL DEFAULT '[]',
				status VARCHAR(32) NOT NULL CHECK (status IN ('draft', 'active', 'inactive', 'archived')),
				prevent_duplicates BOOLEAN NOT NULL DEFAULT FALSE,
				duplicate_prevention_days INTEGER NOT NULL DEFAULT 0,
				total_runs BIGINT NOT NULL DEFAULT 0,
				successful_runs BIGINT NOT NULL DEFAULT 0,
				failed_runs BIGINT NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflows_org_trigger ON workflows(org_id, trigger, status);
			CREATE INDEX idx_workflows_created_at ON workflows(created_at);

			CREATE TABLE workflow_enrollments (
				id VARCHAR(64) PRIMARY KEY,
				org_id VARCHAR(64) NOT NULL,
				workflow_id VARCHAR(64) NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				client_id VARCHAR(64) NOT NULL,
				current_status VARCHAR(32) NOT NULL,
				current_step VARCHAR(255) NOT NULL,
				enrolled_at TIMESTAMP WITH TIME ZONE NOT NULL,
				paused_at TIMESTAMP WITH TIME ZONE,
				resumed_at TIMESTAMP WITH TIME ZONE,
				completed_at TIMESTAMP WITH TIME ZONE,
				next_execution_at TIMESTAMP WITH TIME ZONE,
				enrollment_reason TEXT NOT NULL DEFAULT '',
				context JSONB NOT NULL DEFAULT '{}',
				attempts INTEGER NOT NULL DEFAULT 0,
				version BIGINT NOT NULL DEFAULT 0
			);

			CREATE INDEX idx_enrollments_workflow_client ON workflow_enrollments(workflow_id, client_id, enrolled_at);
			CREATE INDEX idx_enrollments_due ON workflow_enrollments(current_status, next_execution_at);

			CREATE TABLE execution_logs (
				seq BIGSERIAL PRIMARY KEY,
				id VARCHAR(64) NOT NULL UNIQUE,
				org_id VARCHAR(64) NOT NULL,
				workflow_id VARCHAR(64) NOT NULL,
				enrollment_id VARCHAR(64),
				client_id VARCHAR(64) NOT NULL,
				step_id VARCHAR(255) NOT NULL,
				action VARCHAR(64) NOT NULL,
				status VARCHAR(32) NOT NULL,
				message TEXT NOT NULL DEFAULT '',
				executed_at TIMESTAMP WITH TIME ZONE NOT NULL,
				execution_time_ms BIGINT
			);

			CREATE INDEX idx_execution_logs_workflow ON execution_logs(workflow_id, seq);
			CREATE INDEX idx_execution_logs_enrollment ON execution_logs(enrollment_id, seq);
		`,
	}
}
