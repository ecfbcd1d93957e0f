package repo

import (
	"context"
	"database/sql"
	"errors"

	"missioncontrol/internal/domain"
)

const agentColumns = `id,name,role,soul,created_at,updated_at`

func scanAgent(row rowScanner) (domain.Agent, error) {
	var a domain.Agent
	var created, updated string
	if err := row.Scan(&a.ID, &a.Name, &a.Role, &a.Soul, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return a, ErrNotFound
		}
		return a, err
	}
	if err := parseStamp(&a.CreatedAt, created, "agents.created_at"); err != nil {
		return a, err
	}
	return a, parseStamp(&a.UpdatedAt, updated, "agents.updated_at")
}

func (r Repo) InsertAgentTx(ctx context.Context, tx *sql.Tx, a domain.Agent) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO agents(`+agentColumns+`) VALUES (?,?,?,?,?,?)`,
		a.ID, a.Name, a.Role, a.Soul, domain.FormatTimestamp(a.CreatedAt), domain.FormatTimestamp(a.UpdatedAt))
	return err
}

func (r Repo) GetAgent(ctx context.Context, id string) (domain.Agent, error) {
	return getAgent(ctx, r.DB, id)
}

func (r Repo) GetAgentTx(ctx context.Context, tx *sql.Tx, id string) (domain.Agent, error) {
	return getAgent(ctx, tx, id)
}

func getAgent(ctx context.Context, q queryer, id string) (domain.Agent, error) {
	return scanAgent(q.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE id=?`, id))
}

// FindAgentByNameTx matches names case-insensitively.
func (r Repo) FindAgentByNameTx(ctx context.Context, tx *sql.Tx, name string) (domain.Agent, error) {
	return scanAgent(tx.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE lower(name)=lower(?) ORDER BY created_at LIMIT 1`, name))
}

// ListAgents returns agents ordered by name.
func (r Repo) ListAgents(ctx context.Context) ([]domain.Agent, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+agentColumns+` FROM agents ORDER BY name, created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}
