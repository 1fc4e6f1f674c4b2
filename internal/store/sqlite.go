package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/lumenlabs/scopewatch/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Suitable for
// single-instance deployments and tests.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given DSN and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS projects (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	scope_text TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS client_messages (
	id           TEXT PRIMARY KEY,
	project_id   TEXT REFERENCES projects(id),
	message_text TEXT NOT NULL,
	source       TEXT NOT NULL DEFAULT '',
	reviewed     INTEGER NOT NULL DEFAULT 0,
	created_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS scope_analysis (
	id                       TEXT PRIMARY KEY,
	message_id               TEXT NOT NULL REFERENCES client_messages(id),
	project_id               TEXT REFERENCES projects(id),
	is_out_of_scope          INTEGER NOT NULL,
	summary                  TEXT NOT NULL DEFAULT '',
	estimated_impact_hours   REAL NOT NULL DEFAULT 0,
	suggested_price_increase TEXT NOT NULL DEFAULT '',
	low_confidence           INTEGER NOT NULL DEFAULT 0,
	created_at               DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS proposals (
	id             TEXT PRIMARY KEY,
	message_id     TEXT NOT NULL REFERENCES client_messages(id),
	project_id     TEXT NOT NULL REFERENCES projects(id),
	generated_text TEXT NOT NULL,
	created_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS invoice_drafts (
	id           TEXT PRIMARY KEY,
	message_id   TEXT NOT NULL REFERENCES client_messages(id),
	project_id   TEXT NOT NULL REFERENCES projects(id),
	description  TEXT NOT NULL,
	amount       REAL NOT NULL,
	currency     TEXT NOT NULL,
	external_id  TEXT NOT NULL DEFAULT '',
	external_url TEXT NOT NULL DEFAULT '',
	created_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS gmail_tokens (
	account       TEXT PRIMARY KEY,
	refresh_token TEXT NOT NULL,
	updated_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS seen_messages (
	external_id TEXT PRIMARY KEY,
	seen_at     DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_client_messages_project_id ON client_messages(project_id);
CREATE INDEX IF NOT EXISTS idx_scope_analysis_message_id ON scope_analysis(message_id, created_at);
CREATE INDEX IF NOT EXISTS idx_invoice_drafts_message_id ON invoice_drafts(message_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) InsertMessage(ctx context.Context, draft model.Message) (*model.Message, error) {
	msg := draft
	msg.ID = uuid.New().String()
	msg.Reviewed = false
	msg.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO client_messages (id, project_id, message_text, source, reviewed, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ProjectID, msg.Text, msg.Source, msg.Reviewed, msg.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert message")
	}
	return &msg, nil
}

func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*model.Message, error) {
	var msg model.Message
	err := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, message_text, source, reviewed, created_at FROM client_messages WHERE id = ?`,
		id,
	).Scan(&msg.ID, &msg.ProjectID, &msg.Text, &msg.Source, &msg.Reviewed, &msg.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get message")
	}
	return &msg, nil
}

func (s *SQLiteStore) ListMessages(ctx context.Context, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, message_text, source, reviewed, created_at FROM client_messages ORDER BY created_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list messages")
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		var msg model.Message
		if err := rows.Scan(&msg.ID, &msg.ProjectID, &msg.Text, &msg.Source, &msg.Reviewed, &msg.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan message")
		}
		out = append(out, msg)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list messages")
}

func (s *SQLiteStore) SetMessageProject(ctx context.Context, messageID string, projectID *string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE client_messages SET project_id = ? WHERE id = ?`,
		projectID, messageID,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: set message project")
	}
	return affectedOrNotFound(res)
}

func (s *SQLiteStore) MarkMessageReviewed(ctx context.Context, messageID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE client_messages SET reviewed = 1 WHERE id = ?`,
		messageID,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: mark message reviewed")
	}
	return affectedOrNotFound(res)
}

func (s *SQLiteStore) CreateProject(ctx context.Context, name, scopeText string) (*model.Project, error) {
	p := model.Project{
		ID:        uuid.New().String(),
		Name:      name,
		ScopeText: scopeText,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, scope_text, created_at) VALUES (?, ?, ?, ?)`,
		p.ID, p.Name, p.ScopeText, p.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: create project")
	}
	return &p, nil
}

func (s *SQLiteStore) GetProject(ctx context.Context, id string) (*model.Project, error) {
	var p model.Project
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, scope_text, created_at FROM projects WHERE id = ?`,
		id,
	).Scan(&p.ID, &p.Name, &p.ScopeText, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get project")
	}
	return &p, nil
}

func (s *SQLiteStore) ListProjects(ctx context.Context) ([]model.Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, scope_text, created_at FROM projects ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list projects")
	}
	defer rows.Close()

	var out []model.Project
	for rows.Next() {
		var p model.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.ScopeText, &p.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan project")
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list projects")
}

func (s *SQLiteStore) InsertAnalysis(ctx context.Context, a model.ScopeAnalysis) (*model.ScopeAnalysis, error) {
	a.ID = uuid.New().String()
	a.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scope_analysis (id, message_id, project_id, is_out_of_scope, summary, estimated_impact_hours, suggested_price_increase, low_confidence, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.MessageID, a.ProjectID, a.IsOutOfScope, a.Summary, a.EstimatedImpactHours, string(a.SuggestedPriceIncrease), a.LowConfidence, a.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert analysis")
	}
	return &a, nil
}

func (s *SQLiteStore) ListAnalysesByMessage(ctx context.Context, messageID string) ([]model.ScopeAnalysis, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, message_id, project_id, is_out_of_scope, summary, estimated_impact_hours, suggested_price_increase, low_confidence, created_at FROM scope_analysis WHERE message_id = ? ORDER BY created_at ASC, rowid ASC`,
		messageID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list analyses")
	}
	defer rows.Close()

	var out []model.ScopeAnalysis
	for rows.Next() {
		var a model.ScopeAnalysis
		var price string
		if err := rows.Scan(&a.ID, &a.MessageID, &a.ProjectID, &a.IsOutOfScope, &a.Summary, &a.EstimatedImpactHours, &price, &a.LowConfidence, &a.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan analysis")
		}
		a.SuggestedPriceIncrease = model.PriceIncrease(price)
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list analyses")
}

func (s *SQLiteStore) InsertProposal(ctx context.Context, p model.Proposal) (*model.Proposal, error) {
	p.ID = uuid.New().String()
	p.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO proposals (id, message_id, project_id, generated_text, created_at) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.MessageID, p.ProjectID, p.Text, p.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert proposal")
	}
	return &p, nil
}

func (s *SQLiteStore) InsertInvoiceDraft(ctx context.Context, d model.InvoiceDraft) (*model.InvoiceDraft, error) {
	d.ID = uuid.New().String()
	d.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO invoice_drafts (id, message_id, project_id, description, amount, currency, external_id, external_url, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.MessageID, d.ProjectID, d.Description, d.Amount, d.Currency, d.ExternalID, d.ExternalURL, d.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert invoice draft")
	}
	return &d, nil
}

func (s *SQLiteStore) GetInvoiceDraftByMessage(ctx context.Context, messageID string) (*model.InvoiceDraft, error) {
	var d model.InvoiceDraft
	err := s.db.QueryRowContext(ctx,
		`SELECT id, message_id, project_id, description, amount, currency, external_id, external_url, created_at FROM invoice_drafts WHERE message_id = ? ORDER BY created_at DESC LIMIT 1`,
		messageID,
	).Scan(&d.ID, &d.MessageID, &d.ProjectID, &d.Description, &d.Amount, &d.Currency, &d.ExternalID, &d.ExternalURL, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get invoice draft")
	}
	return &d, nil
}

func (s *SQLiteStore) UpsertGmailToken(ctx context.Context, tok model.GmailToken) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO gmail_tokens (account, refresh_token, updated_at) VALUES (?, ?, ?) ON CONFLICT (account) DO UPDATE SET refresh_token = excluded.refresh_token, updated_at = excluded.updated_at`,
		tok.Account, tok.RefreshToken, time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: upsert gmail token")
}

func (s *SQLiteStore) GetGmailToken(ctx context.Context, account string) (*model.GmailToken, error) {
	var tok model.GmailToken
	err := s.db.QueryRowContext(ctx,
		`SELECT account, refresh_token, updated_at FROM gmail_tokens WHERE account = ?`,
		account,
	).Scan(&tok.Account, &tok.RefreshToken, &tok.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get gmail token")
	}
	return &tok, nil
}

// AdmitSeenKey relies on the primary key to make the check-and-set atomic;
// SQLite serializes writers, so concurrent cycles cannot double-admit.
func (s *SQLiteStore) AdmitSeenKey(ctx context.Context, externalID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO seen_messages (external_id, seen_at) VALUES (?, ?)`,
		externalID, time.Now().UTC(),
	)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: admit seen key")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: admit seen key")
	}
	return n == 1, nil
}

func affectedOrNotFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
