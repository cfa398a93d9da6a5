package shared

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type execRecorder struct {
	sql  string
	args []any
}

func (e *execRecorder) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	e.sql = sql
	e.args = args
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func TestAuditLoggerRecord(t *testing.T) {
	db := &execRecorder{}
	logger := NewAuditLogger(db)

	err := logger.Record(context.Background(), AuditLog{
		ActorID:  "admin-1",
		Action:   "role.set",
		Entity:   "user",
		EntityID: "user-2",
		Meta:     map[string]any{"role": "admin"},
	})
	require.NoError(t, err)
	assert.Contains(t, db.sql, "INSERT INTO audit_logs")
	require.Len(t, db.args, 6)
	assert.Equal(t, "admin-1", db.args[0])
	assert.JSONEq(t, `{"role":"admin"}`, string(db.args[4].([]byte)))
	assert.Nil(t, db.args[5].(*time.Time))
}

func TestAuditLoggerRejectsIncompleteEntries(t *testing.T) {
	logger := NewAuditLogger(&execRecorder{})
	assert.Error(t, logger.Record(context.Background(), AuditLog{Action: "role.set", Entity: "user"}))

	var nilLogger *AuditLogger
	assert.Error(t, nilLogger.Record(context.Background(), AuditLog{Action: "a", Entity: "b", EntityID: "c"}))
}
