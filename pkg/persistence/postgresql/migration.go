package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflow_templates (
				id VARCHAR(255) PRIMARY KEY,
				label VARCHAR(255) NOT NULL,
				internal_name VARCHAR(255) NOT NULL UNIQUE,
				auto_launch BOOLEAN NOT NULL DEFAULT false,
				ignore_completed BOOLEAN NOT NULL DEFAULT false,
				document_type_ids JSONB NOT NULL DEFAULT '[]',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE TABLE workflow_states (
				template_id VARCHAR(255) NOT NULL REFERENCES workflow_templates(id) ON DELETE CASCADE,
				id VARCHAR(255) NOT NULL,
				position INT NOT NULL,
				label VARCHAR(255) NOT NULL,
				initial BOOLEAN NOT NULL DEFAULT false,
				final BOOLEAN NOT NULL DEFAULT false,
				completion INT NOT NULL DEFAULT 0 CHECK (completion BETWEEN 0 AND 100),
				actions JSONB NOT NULL DEFAULT '[]',
				escalations JSONB NOT NULL DEFAULT '[]',
				PRIMARY KEY (template_id, id)
			);

			-- A template has at most one initial state
			CREATE UNIQUE INDEX idx_workflow_states_initial ON workflow_states(template_id) WHERE initial;

			CREATE TABLE workflow_transitions (
				template_id VARCHAR(255) NOT NULL REFERENCES workflow_templates(id) ON DELETE CASCADE,
				id VARCHAR(255) NOT NULL,
				position INT NOT NULL,
				label VARCHAR(255) NOT NULL,
				origin_state_id VARCHAR(255) NOT NULL,
				destination_state_id VARCHAR(255) NOT NULL,
				condition JSONB,
				permission VARCHAR(255) NOT NULL,
				fields JSONB NOT NULL DEFAULT '[]',
				PRIMARY KEY (template_id, id),
				FOREIGN KEY (template_id, origin_state_id) REFERENCES workflow_states(template_id, id) ON DELETE CASCADE,
				FOREIGN KEY (template_id, destination_state_id) REFERENCES workflow_states(template_id, id) ON DELETE CASCADE
			);

			CREATE TABLE documents (
				id VARCHAR(255) PRIMARY KEY,
				label VARCHAR(255) NOT NULL,
				document_type_id VARCHAR(255) NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE TABLE workflow_instances (
				id VARCHAR(255) PRIMARY KEY,
				document_id VARCHAR(255) NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
				template_id VARCHAR(255) NOT NULL REFERENCES workflow_templates(id) ON DELETE RESTRICT,
				current_state_id VARCHAR(255),
				context JSONB NOT NULL DEFAULT '{}',
				version BIGINT NOT NULL DEFAULT 1,
				state_changed_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				UNIQUE (document_id, template_id)
			);

			CREATE INDEX idx_workflow_instances_state ON workflow_instances(template_id, current_state_id);

			CREATE TABLE workflow_instance_log_entries (
				sequence BIGSERIAL PRIMARY KEY,
				id VARCHAR(255) NOT NULL UNIQUE,
				instance_id VARCHAR(255) NOT NULL REFERENCES workflow_instances(id) ON DELETE CASCADE,
				transition_id VARCHAR(255) NOT NULL,
				user_id VARCHAR(255),
				datetime TIMESTAMP WITH TIME ZONE NOT NULL,
				comment TEXT NOT NULL DEFAULT '',
				extra_data JSONB
			);

			CREATE INDEX idx_workflow_instance_log_entries_instance
				ON workflow_instance_log_entries(instance_id, datetime, sequence);

			CREATE TABLE error_log_entries (
				id VARCHAR(255) PRIMARY KEY,
				document_id VARCHAR(255) NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
				domain VARCHAR(255) NOT NULL,
				text TEXT NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_error_log_entries_document ON error_log_entries(document_id, domain);
		`,
	}
}
