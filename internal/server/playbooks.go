package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"missioncontrol/internal/domain"
	"missioncontrol/internal/engine"
)

func playbookOptions(req PlaybookRequest, actorID string) engine.PlaybookOptions {
	return engine.PlaybookOptions{
		Title:                 req.Title,
		Scenario:              req.Scenario,
		ImpactLevel:           req.ImpactLevel,
		Owner:                 req.Owner,
		CommunicationTemplate: req.CommunicationTemplate,
		Steps:                 req.Steps,
		ActorID:               actorID,
	}
}

func registerPlaybooks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-playbook",
		Method:        http.MethodPost,
		Path:          "/playbooks",
		Summary:       "Create escalation playbook",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body PlaybookRequest `json:"body"`
	}) (*struct {
		Body domain.Playbook `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.CreatePlaybook(ctx, playbookOptions(input.Body, actorID))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Playbook `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-playbooks",
		Method:      http.MethodGet,
		Path:        "/playbooks",
		Summary:     "List playbooks by impact",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body PlaybookList `json:"body"`
	}, error) {
		items, err := e.Repo.ListPlaybooks(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PlaybookList `json:"body"`
		}{Body: PlaybookList{Items: nonNilSlice(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-playbook",
		Method:      http.MethodGet,
		Path:        "/playbooks/{id}",
		Summary:     "Get playbook",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Playbook `json:"body"`
	}, error) {
		p, err := e.Repo.GetPlaybook(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Playbook `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "replace-playbook",
		Method:      http.MethodPut,
		Path:        "/playbooks/{id}",
		Summary:     "Replace playbook and its steps",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string          `path:"id"`
		Body PlaybookRequest `json:"body"`
	}) (*struct {
		Body domain.Playbook `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.UpdatePlaybook(ctx, input.ID, playbookOptions(input.Body, actorID))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Playbook `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-playbook",
		Method:        http.MethodDelete,
		Path:          "/playbooks/{id}",
		Summary:       "Delete playbook",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeletePlaybook(ctx, input.ID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
