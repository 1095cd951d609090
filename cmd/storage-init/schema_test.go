package main

import (
	"strings"
	"testing"
)

// The HTTP gateway calls these procedures by name.
func TestSchemaDefinesRemoteProcedures(t *testing.T) {
	for _, fn := range []string{
		"get_tasks_by_status(",
		"count_tasks_by_status(",
		"update_task_status(",
		"get_distinct_values(",
		"get_subcategory_map(",
		"get_task_details(",
	} {
		if !strings.Contains(schema, "CREATE OR REPLACE FUNCTION "+fn) {
			t.Fatalf("schema does not define %s", strings.TrimSuffix(fn, "("))
		}
	}
}

func TestSchemaNotifiesOnTaskChanges(t *testing.T) {
	for _, want := range []string{
		"pg_notify('realtime:' || TG_TABLE_NAME",
		"'old_record'",
		"'commit_timestamp'",
		"AFTER INSERT OR UPDATE OR DELETE ON projects",
		"projects (status, created_at DESC, id DESC)",
	} {
		if !strings.Contains(schema, want) {
			t.Fatalf("schema missing %q", want)
		}
	}
}
