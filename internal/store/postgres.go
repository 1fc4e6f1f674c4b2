package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/lumenlabs/scopewatch/internal/model"
)

// Pool is the subset of pgxpool.Pool used by the store. pgxmock satisfies it.
type Pool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// preparedStatements lists queries prepared on each new connection for the
// hottest pipeline operations.
var preparedStatements = map[string]string{
	"insert_message":  `INSERT INTO client_messages (id, project_id, message_text, source, reviewed, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
	"get_message":     `SELECT id, project_id, message_text, source, reviewed, created_at FROM client_messages WHERE id = $1`,
	"insert_analysis": `INSERT INTO scope_analysis (id, message_id, project_id, is_out_of_scope, summary, estimated_impact_hours, suggested_price_increase, low_confidence, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
	"admit_seen_key":  `INSERT INTO seen_messages (external_id, seen_at) VALUES ($1, $2) ON CONFLICT (external_id) DO NOTHING`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS projects (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	scope_text TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS client_messages (
	id           TEXT PRIMARY KEY,
	project_id   TEXT REFERENCES projects(id),
	message_text TEXT NOT NULL,
	source       TEXT NOT NULL DEFAULT '',
	reviewed     BOOLEAN NOT NULL DEFAULT false,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS scope_analysis (
	id                       TEXT PRIMARY KEY,
	message_id               TEXT NOT NULL REFERENCES client_messages(id),
	project_id               TEXT REFERENCES projects(id),
	is_out_of_scope          BOOLEAN NOT NULL,
	summary                  TEXT NOT NULL DEFAULT '',
	estimated_impact_hours   DOUBLE PRECISION NOT NULL DEFAULT 0,
	suggested_price_increase TEXT NOT NULL DEFAULT '',
	low_confidence           BOOLEAN NOT NULL DEFAULT false,
	created_at               TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS proposals (
	id             TEXT PRIMARY KEY,
	message_id     TEXT NOT NULL REFERENCES client_messages(id),
	project_id     TEXT NOT NULL REFERENCES projects(id),
	generated_text TEXT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS invoice_drafts (
	id           TEXT PRIMARY KEY,
	message_id   TEXT NOT NULL REFERENCES client_messages(id),
	project_id   TEXT NOT NULL REFERENCES projects(id),
	description  TEXT NOT NULL,
	amount       DOUBLE PRECISION NOT NULL,
	currency     TEXT NOT NULL,
	external_id  TEXT NOT NULL DEFAULT '',
	external_url TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS gmail_tokens (
	account       TEXT PRIMARY KEY,
	refresh_token TEXT NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS seen_messages (
	external_id TEXT PRIMARY KEY,
	seen_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_client_messages_project_id ON client_messages(project_id);
CREATE INDEX IF NOT EXISTS idx_client_messages_created_at ON client_messages(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_scope_analysis_message_id ON scope_analysis(message_id, created_at);
CREATE INDEX IF NOT EXISTS idx_invoice_drafts_message_id ON invoice_drafts(message_id);
`

// Migrate creates the schema if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresMigration); err != nil {
		return eris.Wrap(err, "postgres: migrate")
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) InsertMessage(ctx context.Context, draft model.Message) (*model.Message, error) {
	msg := draft
	msg.ID = uuid.New().String()
	msg.Reviewed = false
	msg.CreatedAt = time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO client_messages (id, project_id, message_text, source, reviewed, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID, msg.ProjectID, msg.Text, msg.Source, msg.Reviewed, msg.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert message")
	}
	return &msg, nil
}

func (s *PostgresStore) GetMessage(ctx context.Context, id string) (*model.Message, error) {
	var msg model.Message
	err := s.pool.QueryRow(ctx,
		`SELECT id, project_id, message_text, source, reviewed, created_at FROM client_messages WHERE id = $1`,
		id,
	).Scan(&msg.ID, &msg.ProjectID, &msg.Text, &msg.Source, &msg.Reviewed, &msg.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get message")
	}
	return &msg, nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, project_id, message_text, source, reviewed, created_at FROM client_messages ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list messages")
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		var msg model.Message
		if err := rows.Scan(&msg.ID, &msg.ProjectID, &msg.Text, &msg.Source, &msg.Reviewed, &msg.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan message")
		}
		out = append(out, msg)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list messages")
}

func (s *PostgresStore) SetMessageProject(ctx context.Context, messageID string, projectID *string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE client_messages SET project_id = $1 WHERE id = $2`,
		projectID, messageID,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: set message project")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) MarkMessageReviewed(ctx context.Context, messageID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE client_messages SET reviewed = true WHERE id = $1`,
		messageID,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: mark message reviewed")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CreateProject(ctx context.Context, name, scopeText string) (*model.Project, error) {
	p := model.Project{
		ID:        uuid.New().String(),
		Name:      name,
		ScopeText: scopeText,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO projects (id, name, scope_text, created_at) VALUES ($1, $2, $3, $4)`,
		p.ID, p.Name, p.ScopeText, p.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create project")
	}
	return &p, nil
}

func (s *PostgresStore) GetProject(ctx context.Context, id string) (*model.Project, error) {
	var p model.Project
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, scope_text, created_at FROM projects WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.Name, &p.ScopeText, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get project")
	}
	return &p, nil
}

func (s *PostgresStore) ListProjects(ctx context.Context) ([]model.Project, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, scope_text, created_at FROM projects ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list projects")
	}
	defer rows.Close()

	var out []model.Project
	for rows.Next() {
		var p model.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.ScopeText, &p.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan project")
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list projects")
}

func (s *PostgresStore) InsertAnalysis(ctx context.Context, a model.ScopeAnalysis) (*model.ScopeAnalysis, error) {
	a.ID = uuid.New().String()
	a.CreatedAt = time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO scope_analysis (id, message_id, project_id, is_out_of_scope, summary, estimated_impact_hours, suggested_price_increase, low_confidence, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.MessageID, a.ProjectID, a.IsOutOfScope, a.Summary, a.EstimatedImpactHours, string(a.SuggestedPriceIncrease), a.LowConfidence, a.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert analysis")
	}
	return &a, nil
}

func (s *PostgresStore) ListAnalysesByMessage(ctx context.Context, messageID string) ([]model.ScopeAnalysis, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, message_id, project_id, is_out_of_scope, summary, estimated_impact_hours, suggested_price_increase, low_confidence, created_at FROM scope_analysis WHERE message_id = $1 ORDER BY created_at ASC`,
		messageID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list analyses")
	}
	defer rows.Close()

	var out []model.ScopeAnalysis
	for rows.Next() {
		var a model.ScopeAnalysis
		var price string
		if err := rows.Scan(&a.ID, &a.MessageID, &a.ProjectID, &a.IsOutOfScope, &a.Summary, &a.EstimatedImpactHours, &price, &a.LowConfidence, &a.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan analysis")
		}
		a.SuggestedPriceIncrease = model.PriceIncrease(price)
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list analyses")
}

func (s *PostgresStore) InsertProposal(ctx context.Context, p model.Proposal) (*model.Proposal, error) {
	p.ID = uuid.New().String()
	p.CreatedAt = time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO proposals (id, message_id, project_id, generated_text, created_at) VALUES ($1, $2, $3, $4, $5)`,
		p.ID, p.MessageID, p.ProjectID, p.Text, p.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert proposal")
	}
	return &p, nil
}

func (s *PostgresStore) InsertInvoiceDraft(ctx context.Context, d model.InvoiceDraft) (*model.InvoiceDraft, error) {
	d.ID = uuid.New().String()
	d.CreatedAt = time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO invoice_drafts (id, message_id, project_id, description, amount, currency, external_id, external_url, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		d.ID, d.MessageID, d.ProjectID, d.Description, d.Amount, d.Currency, d.ExternalID, d.ExternalURL, d.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert invoice draft")
	}
	return &d, nil
}

func (s *PostgresStore) GetInvoiceDraftByMessage(ctx context.Context, messageID string) (*model.InvoiceDraft, error) {
	var d model.InvoiceDraft
	err := s.pool.QueryRow(ctx,
		`SELECT id, message_id, project_id, description, amount, currency, external_id, external_url, created_at FROM invoice_drafts WHERE message_id = $1 ORDER BY created_at DESC LIMIT 1`,
		messageID,
	).Scan(&d.ID, &d.MessageID, &d.ProjectID, &d.Description, &d.Amount, &d.Currency, &d.ExternalID, &d.ExternalURL, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get invoice draft")
	}
	return &d, nil
}

// UpsertGmailToken stores the refresh token for an account, replacing any
// prior grant. Single idempotent upsert; the uniqueness constraint on
// account is part of the schema.
func (s *PostgresStore) UpsertGmailToken(ctx context.Context, tok model.GmailToken) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO gmail_tokens (account, refresh_token, updated_at) VALUES ($1, $2, $3) ON CONFLICT (account) DO UPDATE SET refresh_token = EXCLUDED.refresh_token, updated_at = EXCLUDED.updated_at`,
		tok.Account, tok.RefreshToken, time.Now().UTC(),
	)
	return eris.Wrap(err, "postgres: upsert gmail token")
}

func (s *PostgresStore) GetGmailToken(ctx context.Context, account string) (*model.GmailToken, error) {
	var tok model.GmailToken
	err := s.pool.QueryRow(ctx,
		`SELECT account, refresh_token, updated_at FROM gmail_tokens WHERE account = $1`,
		account,
	).Scan(&tok.Account, &tok.RefreshToken, &tok.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get gmail token")
	}
	return &tok, nil
}

// AdmitSeenKey records the external id if unseen. The primary key on
// external_id makes the check-and-set a single atomic statement, so two
// concurrent poll cycles cannot both admit the same id.
func (s *PostgresStore) AdmitSeenKey(ctx context.Context, externalID string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO seen_messages (external_id, seen_at) VALUES ($1, $2) ON CONFLICT (external_id) DO NOTHING`,
		externalID, time.Now().UTC(),
	)
	if err != nil {
		return false, eris.Wrap(err, "postgres: admit seen key")
	}
	return tag.RowsAffected() == 1, nil
}
