package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"missioncontrol/internal/audit"
	"missioncontrol/internal/domain"
)

type PlaybookOptions struct {
	Title                 string
	Scenario              string
	ImpactLevel           string
	Owner                 string
	CommunicationTemplate string
	Steps                 []string
	ActorID               string
}

func (o PlaybookOptions) validate() error {
	for field, v := range map[string]string{
		"title":                  o.Title,
		"scenario":               o.Scenario,
		"impact_level":           o.ImpactLevel,
		"owner":                  o.Owner,
		"communication_template": o.CommunicationTemplate,
	} {
		if strings.TrimSpace(v) == "" {
			return invalidf("%s is required", field)
		}
	}
	if len(steps(o.Steps)) == 0 {
		return invalidf("at least one step is required")
	}
	return nil
}

func steps(raw []string) []domain.PlaybookStep {
	var out []domain.PlaybookStep
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, domain.PlaybookStep{ID: uuid.NewString(), Position: len(out) + 1, Instruction: s})
	}
	return out
}

func (o PlaybookOptions) apply(p *domain.Playbook) {
	p.Title = strings.TrimSpace(o.Title)
	p.Scenario = strings.TrimSpace(o.Scenario)
	p.ImpactLevel = strings.TrimSpace(o.ImpactLevel)
	p.Owner = strings.TrimSpace(o.Owner)
	p.CommunicationTemplate = strings.TrimSpace(o.CommunicationTemplate)
	p.Steps = steps(o.Steps)
}

func (e Engine) CreatePlaybook(ctx context.Context, opts PlaybookOptions) (domain.Playbook, error) {
	if err := opts.validate(); err != nil {
		return domain.Playbook{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Playbook{}, err
	}
	defer tx.Rollback()
	if exists, err := e.Repo.PlaybookExistsTx(ctx, tx, strings.TrimSpace(opts.Title)); err != nil {
		return domain.Playbook{}, err
	} else if exists {
		return domain.Playbook{}, invalidf("playbook %q already exists", opts.Title)
	}
	now := e.now()
	p := domain.Playbook{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now}
	opts.apply(&p)
	if err := e.Repo.InsertPlaybookTx(ctx, tx, p); err != nil {
		return domain.Playbook{}, fmt.Errorf("insert playbook: %w", err)
	}
	if err := e.record(ctx, tx, now, audit.ActionPlaybookCreated, "", opts.ActorID, audit.Metadata{"playbook_id": p.ID, "title": p.Title}); err != nil {
		return domain.Playbook{}, err
	}
	return p, tx.Commit()
}

// UpdatePlaybook replaces every field and the full step list.
func (e Engine) UpdatePlaybook(ctx context.Context, id string, opts PlaybookOptions) (domain.Playbook, error) {
	if err := opts.validate(); err != nil {
		return domain.Playbook{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Playbook{}, err
	}
	defer tx.Rollback()
	p, err := e.Repo.GetPlaybookTx(ctx, tx, id)
	if err != nil {
		return domain.Playbook{}, err
	}
	now := e.now()
	opts.apply(&p)
	p.UpdatedAt = now
	if err := e.Repo.ReplacePlaybookTx(ctx, tx, p); err != nil {
		return domain.Playbook{}, fmt.Errorf("update playbook: %w", err)
	}
	if err := e.record(ctx, tx, now, audit.ActionPlaybookUpdated, "", opts.ActorID, audit.Metadata{"playbook_id": p.ID, "title": p.Title}); err != nil {
		return domain.Playbook{}, err
	}
	return p, tx.Commit()
}

func (e Engine) DeletePlaybook(ctx context.Context, id, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	p, err := e.Repo.GetPlaybookTx(ctx, tx, id)
	if err != nil {
		return err
	}
	if err := e.Repo.DeletePlaybookTx(ctx, tx, id); err != nil {
		return err
	}
	if err := e.record(ctx, tx, e.now(), audit.ActionPlaybookDeleted, "", actorID, audit.Metadata{"playbook_id": id, "title": p.Title}); err != nil {
		return err
	}
	return tx.Commit()
}
