package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenlabs/scopewatch/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_InsertMessage(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO client_messages`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "Can you add a blog?", "api", false, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	msg, err := s.InsertMessage(context.Background(), model.Message{Text: "Can you add a blog?", Source: "api"})
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetMessage_Absent(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, project_id, message_text, source, reviewed, created_at FROM client_messages WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	msg, err := s.GetMessage(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, msg)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetMessage_Found(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()
	pid := "p1"

	mock.ExpectQuery(`SELECT id, project_id, message_text, source, reviewed, created_at FROM client_messages`).
		WithArgs("m1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "project_id", "message_text", "source", "reviewed", "created_at"}).
			AddRow("m1", &pid, "hello", "email", false, now))

	msg, err := s.GetMessage(context.Background(), "m1")
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "hello", msg.Text)
	require.NotNil(t, msg.ProjectID)
	assert.Equal(t, "p1", *msg.ProjectID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetMessageProject_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	pid := "p1"

	mock.ExpectExec(`UPDATE client_messages SET project_id`).
		WithArgs(pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.SetMessageProject(context.Background(), "missing", &pid)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MarkMessageReviewed(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE client_messages SET reviewed = true`).
		WithArgs("m1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.MarkMessageReviewed(context.Background(), "m1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertAnalysis(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO scope_analysis`).
		WithArgs(pgxmock.AnyArg(), "m1", pgxmock.AnyArg(), true, "extra work", 8.0, "1500", false, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	a, err := s.InsertAnalysis(context.Background(), model.ScopeAnalysis{
		MessageID:              "m1",
		IsOutOfScope:           true,
		Summary:                "extra work",
		EstimatedImpactHours:   8,
		SuggestedPriceIncrease: "1500",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AdmitSeenKey_New(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO seen_messages .+ ON CONFLICT \(external_id\) DO NOTHING`).
		WithArgs("g1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	admitted, err := s.AdmitSeenKey(context.Background(), "g1")
	require.NoError(t, err)
	assert.True(t, admitted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AdmitSeenKey_Duplicate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO seen_messages .+ ON CONFLICT \(external_id\) DO NOTHING`).
		WithArgs("g1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	admitted, err := s.AdmitSeenKey(context.Background(), "g1")
	require.NoError(t, err)
	assert.False(t, admitted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertGmailToken(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO gmail_tokens .+ ON CONFLICT \(account\) DO UPDATE`).
		WithArgs("freelancer@example.com", "rt-1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.UpsertGmailToken(context.Background(), model.GmailToken{
		Account:      "freelancer@example.com",
		RefreshToken: "rt-1",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListAnalysesByMessage(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT .+ FROM scope_analysis WHERE message_id = \$1 ORDER BY created_at ASC`).
		WithArgs("m1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "message_id", "project_id", "is_out_of_scope", "summary",
			"estimated_impact_hours", "suggested_price_increase", "low_confidence", "created_at",
		}).
			AddRow("a1", "m1", (*string)(nil), true, "first", 8.0, "1500", false, now).
			AddRow("a2", "m1", (*string)(nil), false, "second", 0.0, "0", true, now.Add(time.Second)))

	rows, err := s.ListAnalysesByMessage(context.Background(), "m1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "a1", rows[0].ID)
	assert.Equal(t, model.PriceIncrease("1500"), rows[0].SuggestedPriceIncrease)
	assert.True(t, rows[1].LowConfidence)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetInvoiceDraftByMessage_Absent(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .+ FROM invoice_drafts WHERE message_id = \$1`).
		WithArgs("m1").
		WillReturnError(pgx.ErrNoRows)

	draft, err := s.GetInvoiceDraftByMessage(context.Background(), "m1")
	require.NoError(t, err)
	assert.Nil(t, draft)
	assert.NoError(t, mock.ExpectationsWereMet())
}
