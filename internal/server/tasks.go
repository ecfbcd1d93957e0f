package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"missioncontrol/internal/dashboard"
	"missioncontrol/internal/domain"
	"missioncontrol/internal/engine"
	"missioncontrol/internal/repo"
)

func registerTasks(api huma.API, e engine.Engine, d dashboard.Service) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest `json:"body"`
	}) (*struct {
		Body dashboard.TaskView `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if strings.TrimSpace(input.Body.Title) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "title is required", map[string]any{"field": "title"})
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.CreateTask(ctx, engine.TaskCreateOptions{
			Title:       input.Body.Title,
			Description: stringOrEmpty(input.Body.Description),
			Status:      stringOrEmpty(input.Body.Status),
			Priority:    stringOrEmpty(input.Body.Priority),
			AgentID:     stringOrEmpty(input.Body.AgentID),
			ActorID:     actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body dashboard.TaskView `json:"body"`
		}{Body: d.View(t, e.Clock())}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks with SLA state",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status   string `query:"status" doc:"TODO, DOING or DONE"`
		Priority string `query:"priority" doc:"LOW, MEDIUM or HIGH"`
		AgentID  string `query:"agent_id"`
		Limit    int    `query:"limit" default:"50"`
		At       string `query:"at"`
	}) (*struct {
		Body TaskList `json:"body"`
	}, error) {
		if input.Status != "" && !domain.Status(input.Status).Valid() {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "unknown status", map[string]any{"field": "status"})
		}
		if input.Priority != "" && !domain.Priority(input.Priority).Valid() {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "unknown priority", map[string]any{"field": "priority"})
		}
		ref, stErr := referenceTime(e, input.At)
		if stErr != nil {
			return nil, stErr
		}
		items, err := d.Tasks(ctx, repo.TaskFilter{
			Status:   domain.Status(input.Status),
			Priority: domain.Priority(input.Priority),
			AgentID:  input.AgentID,
			Limit:    normalizeLimit(input.Limit),
		}, ref)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskList `json:"body"`
		}{Body: TaskList{Items: nonNilSlice(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
		At string `query:"at"`
	}) (*struct {
		Body dashboard.TaskView `json:"body"`
	}, error) {
		ref, stErr := referenceTime(e, input.At)
		if stErr != nil {
			return nil, stErr
		}
		t, err := e.Repo.GetTask(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body dashboard.TaskView `json:"body"`
		}{Body: d.View(t, ref)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/tasks/{id}",
		Summary:     "Update status, priority or assignment",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body UpdateTaskRequest `json:"body"`
	}) (*struct {
		Body dashboard.TaskView `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.TaskUpdateOptions{
			ID:       input.ID,
			Status:   input.Body.Status,
			Priority: input.Body.Priority,
			AgentID:  input.Body.AgentID,
			ActorID:  actorID,
		}
		if raw, ok := rawBodyMap(ctx)["agent_id"]; ok && isNullRaw(raw) {
			cleared := ""
			opts.AgentID = &cleared
		}
		t, err := e.UpdateTask(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body dashboard.TaskView `json:"body"`
		}{Body: d.View(t, e.Clock())}, nil
	})
}

func registerAudit(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-audit",
		Method:      http.MethodGet,
		Path:        "/audit",
		Summary:     "Newest audit entries",
	}, func(ctx context.Context, input *struct {
		Action string `query:"action"`
		TaskID string `query:"task_id"`
		Limit  int    `query:"limit" default:"20"`
	}) (*struct {
		Body AuditList `json:"body"`
	}, error) {
		items, err := e.Repo.ListAuditLogs(ctx, repo.AuditFilter{Action: input.Action, TaskID: input.TaskID, Limit: input.Limit})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AuditList `json:"body"`
		}{Body: AuditList{Items: nonNilSlice(items)}}, nil
	})
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}
