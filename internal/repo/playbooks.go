package repo

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"missioncontrol/internal/domain"
)

const playbookColumns = `id,title,scenario,impact_level,owner,communication_template,created_at,updated_at`

func scanPlaybook(row rowScanner) (domain.Playbook, error) {
	var p domain.Playbook
	var created, updated string
	if err := row.Scan(&p.ID, &p.Title, &p.Scenario, &p.ImpactLevel, &p.Owner, &p.CommunicationTemplate, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p, ErrNotFound
		}
		return p, err
	}
	if err := parseStamp(&p.CreatedAt, created, "escalation_playbooks.created_at"); err != nil {
		return p, err
	}
	return p, parseStamp(&p.UpdatedAt, updated, "escalation_playbooks.updated_at")
}

// InsertPlaybookTx writes the playbook and its steps.
func (r Repo) InsertPlaybookTx(ctx context.Context, tx *sql.Tx, p domain.Playbook) error {
	if _, err := tx.ExecContext(ctx, `INSERT INTO escalation_playbooks(`+playbookColumns+`) VALUES (?,?,?,?,?,?,?,?)`,
		p.ID, p.Title, p.Scenario, p.ImpactLevel, p.Owner, p.CommunicationTemplate,
		domain.FormatTimestamp(p.CreatedAt), domain.FormatTimestamp(p.UpdatedAt)); err != nil {
		return err
	}
	return insertSteps(ctx, tx, p.ID, p.Steps)
}

// ReplacePlaybookTx overwrites fields and the full step list.
func (r Repo) ReplacePlaybookTx(ctx context.Context, tx *sql.Tx, p domain.Playbook) error {
	res, err := tx.ExecContext(ctx, `UPDATE escalation_playbooks SET title=?,scenario=?,impact_level=?,owner=?,communication_template=?,updated_at=? WHERE id=?`,
		p.Title, p.Scenario, p.ImpactLevel, p.Owner, p.CommunicationTemplate, domain.FormatTimestamp(p.UpdatedAt), p.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM escalation_steps WHERE playbook_id=?`, p.ID); err != nil {
		return err
	}
	return insertSteps(ctx, tx, p.ID, p.Steps)
}

func (r Repo) DeletePlaybookTx(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM escalation_playbooks WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func insertSteps(ctx context.Context, tx *sql.Tx, playbookID string, steps []domain.PlaybookStep) error {
	for _, s := range steps {
		if _, err := tx.ExecContext(ctx, `INSERT INTO escalation_steps(id,playbook_id,position,instruction) VALUES (?,?,?,?)`,
			s.ID, playbookID, s.Position, s.Instruction); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) GetPlaybook(ctx context.Context, id string) (domain.Playbook, error) {
	return getPlaybook(ctx, r.DB, id)
}

func (r Repo) GetPlaybookTx(ctx context.Context, tx *sql.Tx, id string) (domain.Playbook, error) {
	return getPlaybook(ctx, tx, id)
}

func getPlaybook(ctx context.Context, q queryer, id string) (domain.Playbook, error) {
	p, err := scanPlaybook(q.QueryRowContext(ctx, `SELECT `+playbookColumns+` FROM escalation_playbooks WHERE id=?`, id))
	if err != nil {
		return p, err
	}
	steps, err := listSteps(ctx, q, id)
	p.Steps = steps
	return p, err
}

// PlaybookExistsTx reports whether a playbook with this title is stored.
func (r Repo) PlaybookExistsTx(ctx context.Context, tx *sql.Tx, title string) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM escalation_playbooks WHERE title=?`, title).Scan(&n)
	return n > 0, err
}

// ListPlaybooks orders by impact (Critical first) then title.
func (r Repo) ListPlaybooks(ctx context.Context) ([]domain.Playbook, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+playbookColumns+` FROM escalation_playbooks`)
	if err != nil {
		return nil, err
	}
	var res []domain.Playbook
	for rows.Next() {
		p, err := scanPlaybook(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		res = append(res, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		if res[i].Steps, err = listSteps(ctx, r.DB, res[i].ID); err != nil {
			return nil, err
		}
	}
	sort.SliceStable(res, func(i, j int) bool {
		ri, rj := domain.ImpactRank(res[i].ImpactLevel), domain.ImpactRank(res[j].ImpactLevel)
		if ri != rj {
			return ri < rj
		}
		return res[i].Title < res[j].Title
	})
	return res, nil
}

func listSteps(ctx context.Context, q queryer, playbookID string) ([]domain.PlaybookStep, error) {
	rows, err := q.QueryContext(ctx, `SELECT id,position,instruction FROM escalation_steps WHERE playbook_id=? ORDER BY position`, playbookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	steps := []domain.PlaybookStep{}
	for rows.Next() {
		var s domain.PlaybookStep
		if err := rows.Scan(&s.ID, &s.Position, &s.Instruction); err != nil {
			return nil, err
		}
		steps = append(steps, s)
	}
	return steps, rows.Err()
}
