package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"missioncontrol/internal/domain"
	"missioncontrol/internal/repo"
)

type SeedResult struct {
	AgentsCreated    int `json:"agents_created"`
	PlaybooksCreated int `json:"playbooks_created"`
}

// EnsureSeeds creates the configured core agents and default playbooks that
// are not yet present. Agents match by name, playbooks by title. Seeding is
// not audited.
func (e Engine) EnsureSeeds(ctx context.Context) (SeedResult, error) {
	var res SeedResult
	if e.Config == nil {
		return res, nil
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return res, err
	}
	defer tx.Rollback()
	now := e.now()
	for _, seed := range e.Config.Seed.Agents {
		_, err := e.Repo.FindAgentByNameTx(ctx, tx, seed.Name)
		if err == nil {
			continue
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return res, err
		}
		a := domain.Agent{ID: uuid.NewString(), Name: seed.Name, Role: seed.Role, Soul: seed.Soul, CreatedAt: now, UpdatedAt: now}
		if err := e.Repo.InsertAgentTx(ctx, tx, a); err != nil {
			return res, fmt.Errorf("seed agent %s: %w", seed.Name, err)
		}
		res.AgentsCreated++
	}
	for _, seed := range e.Config.Seed.Playbooks {
		exists, err := e.Repo.PlaybookExistsTx(ctx, tx, seed.Title)
		if err != nil {
			return res, err
		}
		if exists {
			continue
		}
		p := domain.Playbook{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now}
		PlaybookOptions{
			Title:                 seed.Title,
			Scenario:              seed.Scenario,
			ImpactLevel:           seed.ImpactLevel,
			Owner:                 seed.Owner,
			CommunicationTemplate: seed.CommunicationTemplate,
			Steps:                 seed.Steps,
		}.apply(&p)
		if err := e.Repo.InsertPlaybookTx(ctx, tx, p); err != nil {
			return res, fmt.Errorf("seed playbook %s: %w", seed.Title, err)
		}
		res.PlaybooksCreated++
	}
	return res, tx.Commit()
}
