package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"domainflow/internal/domain"
	"domainflow/internal/engine"
)

const (
	msgTemplateNotFound        = "Template non trovato"
	msgTemplateSubtaskNotFound = "Sottotask del template non trovato"
	msgLoadTemplates           = "Impossibile caricare i template"
	msgSaveTemplate            = "Impossibile salvare il template"
	msgDeleteTemplate          = "Impossibile eliminare il template"
	msgSaveTemplateSubtask     = "Impossibile salvare il sottotask"
	msgDeleteTemplateSubtask   = "Impossibile eliminare il sottotask"
)

func registerTemplates(api huma.API, h handler) {
	huma.Register(api, huma.Operation{
		OperationID: "list-templates",
		Method:      http.MethodGet,
		Path:        "/templates",
		Summary:     "List templates, newest first",
		Errors:      domainErrors,
	}, func(ctx context.Context, _ *struct{}) (*out[[]domain.Template], error) {
		items, err := h.e.ListTemplates(ctx)
		if err != nil {
			return nil, h.fail("list templates", err, msgLoadTemplates, msgTemplateNotFound)
		}
		return reply(items), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-template",
		Method:        http.MethodPost,
		Path:          "/templates",
		Summary:       "Create template",
		DefaultStatus: http.StatusCreated,
		Errors:        domainErrors,
	}, func(ctx context.Context, input *struct {
		Body engine.TaskFields `json:"body"`
	}) (*out[domain.Template], error) {
		t, err := h.e.CreateTemplate(ctx, input.Body)
		if err != nil {
			return nil, h.fail("create template", err, msgSaveTemplate, msgTemplateNotFound)
		}
		return reply(t), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-template",
		Method:      http.MethodGet,
		Path:        "/templates/{id}",
		Summary:     "Get template",
		Errors:      domainErrors,
	}, func(ctx context.Context, input *idPath) (*out[domain.Template], error) {
		t, err := h.e.GetTemplate(ctx, input.ID)
		if err != nil {
			return nil, h.fail("get template", err, msgLoadTemplates, msgTemplateNotFound)
		}
		return reply(t), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-template",
		Method:      http.MethodPatch,
		Path:        "/templates/{id}",
		Summary:     "Edit template; existing domain tasks are not touched",
		Errors:      domainErrors,
	}, func(ctx context.Context, input *struct {
		ID   string             `path:"id"`
		Body engine.FieldsPatch `json:"body"`
	}) (*out[domain.Template], error) {
		t, err := h.e.UpdateTemplate(ctx, input.ID, input.Body)
		if err != nil {
			return nil, h.fail("update template", err, msgSaveTemplate, msgTemplateNotFound)
		}
		return reply(t), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-template",
		Method:        http.MethodDelete,
		Path:          "/templates/{id}",
		Summary:       "Delete template; copied tasks keep their fields",
		DefaultStatus: http.StatusNoContent,
		Errors:        append([]int{http.StatusPreconditionRequired}, domainErrors...),
	}, func(ctx context.Context, input *struct {
		ID      string `path:"id"`
		Confirm bool   `query:"confirm"`
	}) (*struct{}, error) {
		if !input.Confirm {
			return nil, confirmationRequired("il template")
		}
		if err := h.e.DeleteTemplate(ctx, input.ID); err != nil {
			return nil, h.fail("delete template", err, msgDeleteTemplate, msgTemplateNotFound)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-template-subtasks",
		Method:      http.MethodGet,
		Path:        "/templates/{id}/subtasks",
		Summary:     "List template subtasks by order",
		Errors:      domainErrors,
	}, func(ctx context.Context, input *idPath) (*out[[]domain.TemplateSubtask], error) {
		items, err := h.e.ListTemplateSubtasks(ctx, input.ID)
		if err != nil {
			return nil, h.fail("list template subtasks", err, msgLoadTemplates, msgTemplateNotFound)
		}
		return reply(items), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-template-subtask",
		Method:        http.MethodPost,
		Path:          "/templates/{id}/subtasks",
		Summary:       "Append a template subtask",
		DefaultStatus: http.StatusCreated,
		Errors:        domainErrors,
	}, func(ctx context.Context, input *struct {
		ID   string              `path:"id"`
		Body engine.SubtaskInput `json:"body"`
	}) (*out[domain.TemplateSubtask], error) {
		s, err := h.e.AddTemplateSubtask(ctx, input.ID, input.Body)
		if err != nil {
			return nil, h.fail("create template subtask", err, msgSaveTemplateSubtask, msgTemplateNotFound)
		}
		return reply(s), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-template-subtask",
		Method:      http.MethodPatch,
		Path:        "/template-subtasks/{id}",
		Summary:     "Edit a template subtask",
		Errors:      domainErrors,
	}, func(ctx context.Context, input *struct {
		ID   string                      `path:"id"`
		Body engine.TemplateSubtaskPatch `json:"body"`
	}) (*out[domain.TemplateSubtask], error) {
		s, err := h.e.UpdateTemplateSubtask(ctx, input.ID, input.Body)
		if err != nil {
			return nil, h.fail("update template subtask", err, msgSaveTemplateSubtask, msgTemplateSubtaskNotFound)
		}
		return reply(s), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "move-template-subtask",
		Method:      http.MethodPost,
		Path:        "/template-subtasks/{id}/move",
		Summary:     "Move a template subtask to a new position",
		Errors:      domainErrors,
	}, func(ctx context.Context, input *struct {
		ID   string      `path:"id"`
		Body MoveRequest `json:"body"`
	}) (*out[[]domain.TemplateSubtask], error) {
		items, err := h.e.MoveTemplateSubtask(ctx, input.ID, input.Body.Index)
		if err != nil {
			return nil, h.fail("move template subtask", err, msgSaveTemplateSubtask, msgTemplateSubtaskNotFound)
		}
		return reply(items), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-template-subtask",
		Method:        http.MethodDelete,
		Path:          "/template-subtasks/{id}",
		Summary:       "Delete a template subtask and close the gap",
		DefaultStatus: http.StatusNoContent,
		Errors:        domainErrors,
	}, func(ctx context.Context, input *idPath) (*struct{}, error) {
		if err := h.e.DeleteTemplateSubtask(ctx, input.ID); err != nil {
			return nil, h.fail("delete template subtask", err, msgDeleteTemplateSubtask, msgTemplateSubtaskNotFound)
		}
		return nil, nil
	})
}
