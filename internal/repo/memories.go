package repo

import (
	"context"
	"database/sql"

	"missioncontrol/internal/domain"
)

func scanMemory(row rowScanner) (domain.Memory, error) {
	var m domain.Memory
	var created string
	if err := row.Scan(&m.ID, &m.AgentID, &m.Content, &created); err != nil {
		return m, err
	}
	return m, parseStamp(&m.CreatedAt, created, "memories.created_at")
}

func (r Repo) InsertMemoryTx(ctx context.Context, tx *sql.Tx, m domain.Memory) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO memories(id,agent_id,content,created_at) VALUES (?,?,?,?)`,
		m.ID, m.AgentID, m.Content, domain.FormatTimestamp(m.CreatedAt))
	return err
}

// ListMemories returns an agent's memories newest first.
func (r Repo) ListMemories(ctx context.Context, agentID string, limit int) ([]domain.Memory, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,agent_id,content,created_at FROM memories WHERE agent_id=? ORDER BY created_at DESC, id LIMIT ?`,
		agentID, normalizeLimit(limit, 20, 500))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// LatestMemories maps each agent that has memories to its newest one.
func (r Repo) LatestMemories(ctx context.Context) (map[string]domain.Memory, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT m.id,m.agent_id,m.content,m.created_at FROM memories m
WHERE m.id = (SELECT id FROM memories x WHERE x.agent_id=m.agent_id ORDER BY x.created_at DESC, x.id LIMIT 1)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]domain.Memory{}
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		res[m.AgentID] = m
	}
	return res, rows.Err()
}
