package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Every entity table lives in one JSONB-backed records table
			CREATE TABLE records (
				entity_type VARCHAR(255) NOT NULL,
				id VARCHAR(255) NOT NULL,
				tenant_id VARCHAR(255) NOT NULL,
				data JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				PRIMARY KEY (entity_type, id)
			);

			CREATE INDEX idx_records_tenant ON records(tenant_id, entity_type, created_at);
			CREATE INDEX idx_records_data ON records USING GIN (data);
		`,
		2: `
			-- Publish row changes on a per-tenant channel for LISTEN clients.
			-- Payloads above the NOTIFY limit are sent without the record bodies.
			CREATE OR REPLACE FUNCTION wardflow_notify_change() RETURNS trigger AS $$
			DECLARE
				payload JSONB;
				channel TEXT;
			BEGIN
				IF TG_OP = 'DELETE' THEN
					channel := 'wardflow_changes_' || md5(OLD.tenant_id);
					payload := jsonb_build_object(
						'tenant_id', OLD.tenant_id,
						'entity_type', OLD.entity_type,
						'operation', 'delete',
						'record_id', OLD.id,
						'old_record', OLD.data
					);
				ELSE
					channel := 'wardflow_changes_' || md5(NEW.tenant_id);
					payload := jsonb_build_object(
						'tenant_id', NEW.tenant_id,
						'entity_type', NEW.entity_type,
						'operation', lower(TG_OP),
						'record_id', NEW.id,
						'record', NEW.data
					);
					IF TG_OP = 'UPDATE' THEN
						payload := payload || jsonb_build_object('old_record', OLD.data);
					END IF;
				END IF;

				IF octet_length(payload::text) > 7900 THEN
					payload := payload - 'record' - 'old_record' || jsonb_build_object('truncated', true);
				END IF;

				PERFORM pg_notify(channel, payload::text);

				IF TG_OP = 'DELETE' THEN
					RETURN OLD;
				END IF;
				RETURN NEW;
			END;
			$$ LANGUAGE plpgsql;

			CREATE TRIGGER records_notify_change
				AFTER INSERT OR UPDATE OR DELETE ON records
				FOR EACH ROW EXECUTE FUNCTION wardflow_notify_change();
		`,
	}
}
