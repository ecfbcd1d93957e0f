package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"missioncontrol/internal/dashboard"
	"missioncontrol/internal/domain"
	"missioncontrol/internal/engine"
	"missioncontrol/internal/metrics"
)

func registerAgents(api huma.API, e engine.Engine, d dashboard.Service) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-agent",
		Method:        http.MethodPost,
		Path:          "/agents",
		Summary:       "Create agent",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreateAgentRequest `json:"body"`
	}) (*struct {
		Body domain.Agent `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.CreateAgent(ctx, engine.AgentCreateOptions{
			Name:    input.Body.Name,
			Role:    input.Body.Role,
			Soul:    input.Body.Soul,
			ActorID: actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Agent `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-agents",
		Method:      http.MethodGet,
		Path:        "/agents",
		Summary:     "List agents with workload and presence",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		At string `query:"at" doc:"Reference time (RFC 3339)"`
	}) (*struct {
		Body AgentList `json:"body"`
	}, error) {
		ref, stErr := referenceTime(e, input.At)
		if stErr != nil {
			return nil, stErr
		}
		items, err := d.Agents(ctx, ref)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AgentList `json:"body"`
		}{Body: AgentList{Items: nonNilSlice(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "agent-recommendations",
		Method:      http.MethodGet,
		Path:        "/agents/recommendations",
		Summary:     "Suggest agents for the unassigned backlog",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		At string `query:"at"`
	}) (*struct {
		Body metrics.Staffing `json:"body"`
	}, error) {
		ref, stErr := referenceTime(e, input.At)
		if stErr != nil {
			return nil, stErr
		}
		st, err := d.Recommendations(ctx, ref)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body metrics.Staffing `json:"body"`
		}{Body: st}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "agent-rollup",
		Method:      http.MethodGet,
		Path:        "/agents/rollup",
		Summary:     "Per-agent completion rollup",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body PerformanceList `json:"body"`
	}, error) {
		items, err := d.Rollup(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PerformanceList `json:"body"`
		}{Body: PerformanceList{Items: nonNilSlice(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-agent",
		Method:      http.MethodGet,
		Path:        "/agents/{id}",
		Summary:     "Agent dossier",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
		At string `query:"at"`
	}) (*struct {
		Body dashboard.Dossier `json:"body"`
	}, error) {
		ref, stErr := referenceTime(e, input.At)
		if stErr != nil {
			return nil, stErr
		}
		dossier, err := d.AgentDossier(ctx, input.ID, ref)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body dashboard.Dossier `json:"body"`
		}{Body: dossier}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-memory",
		Method:        http.MethodPost,
		Path:          "/agents/{id}/memories",
		Summary:       "Append a memory",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string              `path:"id"`
		Body CreateMemoryRequest `json:"body"`
	}) (*struct {
		Body domain.Memory `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.AddMemory(ctx, engine.MemoryCreateOptions{AgentID: input.ID, Content: input.Body.Content, ActorID: actorID})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Memory `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-memories",
		Method:      http.MethodGet,
		Path:        "/agents/{id}/memories",
		Summary:     "List memories, newest first",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID    string `path:"id"`
		Limit int    `query:"limit" default:"20"`
	}) (*struct {
		Body MemoryList `json:"body"`
	}, error) {
		if _, err := e.Repo.GetAgent(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListMemories(ctx, input.ID, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MemoryList `json:"body"`
		}{Body: MemoryList{Items: nonNilSlice(items)}}, nil
	})
}
