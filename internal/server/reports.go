package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"missioncontrol/internal/dashboard"
	"missioncontrol/internal/engine"
	"missioncontrol/internal/report"
)

// documentOutput streams a rendered report as an attachment.
type documentOutput struct {
	ContentType        string `header:"Content-Type"`
	ContentDisposition string `header:"Content-Disposition"`
	Body               []byte
}

func newDocumentOutput(doc dashboard.Document) *documentOutput {
	return &documentOutput{
		ContentType:        doc.ContentType,
		ContentDisposition: fmt.Sprintf("attachment; filename=%q", doc.Filename),
		Body:               []byte(doc.Body),
	}
}

type overdueOutput struct {
	Status int
	Body   dashboard.OverdueResult
}

func registerDashboard(api huma.API, e engine.Engine, d dashboard.Service) {
	huma.Register(api, huma.Operation{
		OperationID: "dashboard",
		Method:      http.MethodGet,
		Path:        "/dashboard",
		Summary:     "Counts, alerts and executive snapshot",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Snapshot bool   `query:"snapshot" default:"true" doc:"Include the executive snapshot"`
		At       string `query:"at" doc:"Reference time (RFC 3339)"`
	}) (*struct {
		Body dashboard.Shell `json:"body"`
	}, error) {
		ref, stErr := referenceTime(e, input.At)
		if stErr != nil {
			return nil, stErr
		}
		sh, err := d.Shell(ctx, ref, input.Snapshot)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body dashboard.Shell `json:"body"`
		}{Body: sh}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "sla-board",
		Method:      http.MethodGet,
		Path:        "/board/sla",
		Summary:     "SLA command board per priority",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		At string `query:"at"`
	}) (*struct {
		Body BoardResponse `json:"body"`
	}, error) {
		ref, stErr := referenceTime(e, input.At)
		if stErr != nil {
			return nil, stErr
		}
		lanes, err := d.Board(ctx, ref)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BoardResponse `json:"body"`
		}{Body: BoardResponse{ReferenceTime: ref, Lanes: lanes}}, nil
	})
}

func registerReports(api huma.API, e engine.Engine, d dashboard.Service) {
	huma.Register(api, huma.Operation{
		OperationID: "weekly-digest",
		Method:      http.MethodGet,
		Path:        "/reports/digest",
		Summary:     "Weekly digest as a downloadable attachment",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Sections string `query:"sections" doc:"Comma separated: load,stuck,tasks,audits"`
		Format   string `query:"format" doc:"markdown, slack or html"`
		At       string `query:"at"`
	}) (*documentOutput, error) {
		ref, stErr := referenceTime(e, input.At)
		if stErr != nil {
			return nil, stErr
		}
		doc, err := d.Digest(ctx, ref, report.ParseSections(input.Sections), report.ParseFormat(input.Format))
		if err != nil {
			return nil, handleError(err)
		}
		return newDocumentOutput(doc), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "snapshot",
		Method:      http.MethodGet,
		Path:        "/reports/snapshot",
		Summary:     "Full Markdown snapshot",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Format string `query:"format" doc:"markdown or html"`
		At     string `query:"at"`
	}) (*documentOutput, error) {
		ref, stErr := referenceTime(e, input.At)
		if stErr != nil {
			return nil, stErr
		}
		doc, err := d.Snapshot(ctx, ref, report.ParseFormat(input.Format))
		if err != nil {
			return nil, handleError(err)
		}
		return newDocumentOutput(doc), nil
	})

	overdue := func(ctx context.Context, _ *struct{}) (*overdueOutput, error) {
		res, err := d.NotifyOverdue(ctx, e.Clock(), "")
		if err != nil {
			return nil, handleError(err)
		}
		status := http.StatusOK
		if !res.OK {
			status = http.StatusBadGateway
		}
		return &overdueOutput{Status: status, Body: res}, nil
	}
	for _, method := range []string{http.MethodGet, http.MethodPost} {
		huma.Register(api, huma.Operation{
			OperationID: "overdue-slack-" + strings.ToLower(method),
			Method:      method,
			Path:        "/reports/overdue/slack",
			Summary:     "Send the overdue task alert to Slack",
			Errors:      []int{http.StatusBadGateway},
		}, overdue)
	}
}
