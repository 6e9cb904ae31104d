package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflow_specs (
				id TEXT PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				version VARCHAR(64) NOT NULL,
				content TEXT NOT NULL,
				inputs JSONB NOT NULL DEFAULT '{}',
				username VARCHAR(255) NOT NULL,
				group_name VARCHAR(255) NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflow_specs_group ON workflow_specs(group_name);

			CREATE TABLE executions (
				id TEXT PRIMARY KEY,
				spec_id TEXT NOT NULL,
				remote_id TEXT NOT NULL,
				remote_name VARCHAR(255) NOT NULL,
				run_number INT NOT NULL DEFAULT 0,
				start_time TIMESTAMP WITH TIME ZONE NOT NULL,
				end_time TIMESTAMP WITH TIME ZONE,
				status VARCHAR(20) NOT NULL CHECK (status IN ('queued', 'running', 'finished', 'failed')),
				username VARCHAR(255) NOT NULL,
				group_name VARCHAR(255) NOT NULL
			);

			CREATE INDEX idx_executions_group ON executions(group_name);
			CREATE INDEX idx_executions_unfinished ON executions(start_time) WHERE end_time IS NULL;

			CREATE TABLE execution_steps (
				id TEXT PRIMARY KEY,
				execution_id TEXT NOT NULL REFERENCES executions(id) ON DELETE CASCADE,
				name VARCHAR(255) NOT NULL,
				status VARCHAR(20) NOT NULL CHECK (status IN ('running', 'finished', 'failed')),
				start_time TIMESTAMP WITH TIME ZONE NOT NULL,
				end_time TIMESTAMP WITH TIME ZONE,
				CHECK (end_time IS NULL OR end_time >= start_time)
			);

			CREATE INDEX idx_execution_steps_execution ON execution_steps(execution_id, start_time);
		`,
		2: `
			CREATE TABLE provenance_captures (
				execution_id TEXT PRIMARY KEY REFERENCES executions(id) ON DELETE CASCADE,
				captured_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE TABLE entities (
				execution_id TEXT NOT NULL REFERENCES provenance_captures(execution_id) ON DELETE CASCADE,
				id TEXT NOT NULL,
				position INT NOT NULL,
				type VARCHAR(32) NOT NULL CHECK (type IN ('workflow', 'intermediate_result', 'final_result', 'external_input')),
				path TEXT NOT NULL,
				name VARCHAR(512) NOT NULL,
				size VARCHAR(64),
				last_modified TIMESTAMP WITH TIME ZONE,
				PRIMARY KEY (execution_id, id),
				UNIQUE (execution_id, name)
			);

			CREATE INDEX idx_entities_id ON entities(id);

			CREATE TABLE activities (
				execution_id TEXT NOT NULL REFERENCES provenance_captures(execution_id) ON DELETE CASCADE,
				id TEXT NOT NULL,
				position INT NOT NULL,
				type VARCHAR(32) NOT NULL CHECK (type IN ('step_execution', 'workflow_execution')),
				name VARCHAR(512) NOT NULL,
				start_time TIMESTAMP WITH TIME ZONE NOT NULL,
				end_time TIMESTAMP WITH TIME ZONE NOT NULL,
				PRIMARY KEY (execution_id, id),
				UNIQUE (execution_id, name)
			);

			CREATE TABLE entity_used_by (
				execution_id TEXT NOT NULL,
				activity_id TEXT NOT NULL,
				entity_id TEXT NOT NULL,
				position INT NOT NULL,
				PRIMARY KEY (execution_id, activity_id, entity_id),
				FOREIGN KEY (execution_id, activity_id) REFERENCES activities(execution_id, id) ON DELETE CASCADE,
				FOREIGN KEY (execution_id, entity_id) REFERENCES entities(execution_id, id) ON DELETE CASCADE
			);

			CREATE TABLE entity_generated_by (
				execution_id TEXT NOT NULL,
				activity_id TEXT NOT NULL,
				entity_id TEXT NOT NULL,
				position INT NOT NULL,
				PRIMARY KEY (execution_id, activity_id, entity_id),
				FOREIGN KEY (execution_id, activity_id) REFERENCES activities(execution_id, id) ON DELETE CASCADE,
				FOREIGN KEY (execution_id, entity_id) REFERENCES entities(execution_id, id) ON DELETE CASCADE
			);

			CREATE TABLE agents (
				execution_id TEXT NOT NULL REFERENCES provenance_captures(execution_id) ON DELETE CASCADE,
				id TEXT NOT NULL,
				position INT NOT NULL,
				type VARCHAR(16) NOT NULL CHECK (type IN ('person', 'software')),
				name VARCHAR(255) NOT NULL,
				PRIMARY KEY (execution_id, id)
			);
		`,
	}
}
