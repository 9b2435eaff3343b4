package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"domainflow/internal/domain"
	"domainflow/internal/engine"
	"domainflow/internal/listing"
	"domainflow/internal/progress"
)

const (
	msgTaskNotFound    = "Task non trovato"
	msgSubtaskNotFound = "Sottotask non trovato"
	msgCommentNotFound = "Commento non trovato"
	msgLoadTasks       = "Impossibile caricare i task"
	msgCreateTask      = "Impossibile creare il task"
	msgUpdateTask      = "Impossibile aggiornare il task"
	msgDeleteTask      = "Impossibile eliminare il task"
	msgUpdateChecklist = "Impossibile aggiornare la checklist"
	msgLoadSubtasks    = "Impossibile caricare i sottotask"
	msgCreateSubtask   = "Impossibile creare il sottotask"
	msgUpdateSubtask   = "Impossibile aggiornare il sottotask"
	msgDeleteSubtask   = "Impossibile eliminare il sottotask"
	msgLoadComments    = "Impossibile caricare i commenti"
	msgAddComment      = "Impossibile aggiungere il commento"
	msgDeleteComment   = "Impossibile eliminare il commento"
)

var taskErrors = domainErrors

func registerTasks(api huma.API, h handler) {
	huma.Register(api, huma.Operation{
		OperationID: "list-domain-tasks",
		Method:      http.MethodGet,
		Path:        "/domains/{id}/tasks",
		Summary:     "List a domain's tasks with filters and sort",
		Errors:      taskErrors,
	}, func(ctx context.Context, input *struct {
		ID         string `path:"id"`
		SortBy     string `query:"sort_by" enum:"created_at,priority,title" doc:"Stored task sort when empty"`
		Tag        string `query:"tag" doc:"Tag substring, all for no filter; stored filter when empty"`
		Dependency string `query:"dependency" doc:"Dependency substring, all for no filter; stored filter when empty"`
	}) (*out[TaskListResponse], error) {
		filters, err := h.e.Preferences().DomainFilters(ctx)
		if err != nil {
			return nil, h.fail("list tasks", err, msgLoadTasks, msgDomainNotFound)
		}
		if input.SortBy != "" {
			filters.SortBy = input.SortBy
		}
		if input.Tag != "" {
			filters.FilterTag = input.Tag
		}
		if input.Dependency != "" {
			filters.FilterDependency = input.Dependency
		}
		tasks, err := h.e.ListDomainTasks(ctx, input.ID)
		if err != nil {
			return nil, h.fail("list tasks", err, msgLoadTasks, msgDomainNotFound)
		}
		completions, err := h.e.TaskCompletions(ctx, input.ID)
		if err != nil {
			return nil, h.fail("list tasks", err, msgLoadTasks, msgDomainNotFound)
		}
		shown := listing.SortTasks(listing.FilterTasks(tasks, filters.FilterTag, filters.FilterDependency), filters.SortBy, h.e.Collator)
		return reply(TaskListResponse{
			Items:        mapTasks(shown, completions),
			Tags:         listing.Tags(tasks),
			Dependencies: listing.Dependencies(tasks),
		}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-domain-task",
		Method:        http.MethodPost,
		Path:          "/domains/{id}/tasks",
		Summary:       "Add a manual task to a domain",
		DefaultStatus: http.StatusCreated,
		Errors:        taskErrors,
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body engine.TaskFields `json:"body"`
	}) (*out[TaskResponse], error) {
		t, err := h.e.CreateTask(ctx, input.ID, input.Body)
		if err != nil {
			return nil, h.fail("create task", err, msgCreateTask, msgDomainNotFound)
		}
		return reply(taskResponse(t, domain.TaskCompletion{})), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}",
		Summary:     "Get task",
		Errors:      taskErrors,
	}, func(ctx context.Context, input *idPath) (*out[TaskResponse], error) {
		t, err := h.e.GetTask(ctx, input.ID)
		if err != nil {
			return nil, h.fail("get task", err, msgLoadTasks, msgTaskNotFound)
		}
		return h.taskReply(ctx, t, msgLoadTasks)
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/tasks/{id}",
		Summary:     "Edit task fields",
		Errors:      taskErrors,
	}, func(ctx context.Context, input *struct {
		ID   string             `path:"id"`
		Body engine.FieldsPatch `json:"body"`
	}) (*out[TaskResponse], error) {
		t, err := h.e.UpdateTask(ctx, input.ID, input.Body)
		if err != nil {
			return nil, h.fail("update task", err, msgUpdateTask, msgTaskNotFound)
		}
		return h.taskReply(ctx, t, msgUpdateTask)
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-task",
		Method:        http.MethodDelete,
		Path:          "/tasks/{id}",
		Summary:       "Delete task with its subtasks and comments",
		DefaultStatus: http.StatusNoContent,
		Errors:        taskErrors,
	}, func(ctx context.Context, input *idPath) (*struct{}, error) {
		if err := h.e.DeleteTask(ctx, input.ID); err != nil {
			return nil, h.fail("delete task", err, msgDeleteTask, msgTaskNotFound)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-task-completion",
		Method:      http.MethodPut,
		Path:        "/tasks/{id}/completion",
		Summary:     "Mark a task done or open",
		Errors:      taskErrors,
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body CompletionRequest `json:"body"`
	}) (*out[TaskResponse], error) {
		t, err := h.e.SetTaskCompleted(ctx, input.ID, input.Body.Completed)
		if err != nil {
			return nil, h.fail("set task completion", err, msgUpdateTask, msgTaskNotFound)
		}
		return h.taskReply(ctx, t, msgUpdateTask)
	})

	huma.Register(api, huma.Operation{
		OperationID: "replace-task-checklist",
		Method:      http.MethodPut,
		Path:        "/tasks/{id}/checklist",
		Summary:     "Replace a task's checklist",
		Errors:      taskErrors,
	}, func(ctx context.Context, input *struct {
		ID   string           `path:"id"`
		Body ChecklistRequest `json:"body"`
	}) (*out[TaskResponse], error) {
		t, err := h.e.UpdateChecklist(ctx, input.ID, input.Body.Items)
		if err != nil {
			return nil, h.fail("update checklist", err, msgUpdateChecklist, msgTaskNotFound)
		}
		return h.taskReply(ctx, t, msgUpdateChecklist)
	})
}

// taskReply attaches the subtask summary to a single task.
func (h handler) taskReply(ctx context.Context, t domain.Task, message string) (*out[TaskResponse], error) {
	subs, err := h.e.ListSubtasks(ctx, t.ID)
	if err != nil {
		return nil, h.fail("load subtasks", err, message, msgTaskNotFound)
	}
	return reply(taskResponse(t, progress.Completion(t, subs))), nil
}

func registerSubtasks(api huma.API, h handler) {
	huma.Register(api, huma.Operation{
		OperationID: "list-subtasks",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}/subtasks",
		Summary:     "List a task's subtasks",
		Errors:      taskErrors,
	}, func(ctx context.Context, input *idPath) (*out[[]domain.Subtask], error) {
		subs, err := h.e.ListSubtasks(ctx, input.ID)
		if err != nil {
			return nil, h.fail("list subtasks", err, msgLoadSubtasks, msgTaskNotFound)
		}
		return reply(subs), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-subtask",
		Method:        http.MethodPost,
		Path:          "/tasks/{id}/subtasks",
		Summary:       "Add a subtask",
		DefaultStatus: http.StatusCreated,
		Errors:        taskErrors,
	}, func(ctx context.Context, input *struct {
		ID   string              `path:"id"`
		Body engine.SubtaskInput `json:"body"`
	}) (*out[domain.Subtask], error) {
		s, err := h.e.AddSubtask(ctx, input.ID, input.Body)
		if err != nil {
			return nil, h.fail("create subtask", err, msgCreateSubtask, msgTaskNotFound)
		}
		return reply(s), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-subtask",
		Method:      http.MethodPatch,
		Path:        "/subtasks/{id}",
		Summary:     "Edit a subtask",
		Errors:      taskErrors,
	}, func(ctx context.Context, input *struct {
		ID   string              `path:"id"`
		Body engine.SubtaskPatch `json:"body"`
	}) (*out[domain.Subtask], error) {
		s, err := h.e.UpdateSubtask(ctx, input.ID, input.Body)
		if err != nil {
			return nil, h.fail("update subtask", err, msgUpdateSubtask, msgSubtaskNotFound)
		}
		return reply(s), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-subtask-completion",
		Method:      http.MethodPut,
		Path:        "/subtasks/{id}/completion",
		Summary:     "Mark a subtask done or open",
		Errors:      taskErrors,
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body CompletionRequest `json:"body"`
	}) (*out[domain.Subtask], error) {
		s, err := h.e.SetSubtaskCompleted(ctx, input.ID, input.Body.Completed)
		if err != nil {
			return nil, h.fail("set subtask completion", err, msgUpdateSubtask, msgSubtaskNotFound)
		}
		return reply(s), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-subtask",
		Method:        http.MethodDelete,
		Path:          "/subtasks/{id}",
		Summary:       "Delete a subtask",
		DefaultStatus: http.StatusNoContent,
		Errors:        taskErrors,
	}, func(ctx context.Context, input *idPath) (*struct{}, error) {
		if err := h.e.DeleteSubtask(ctx, input.ID); err != nil {
			return nil, h.fail("delete subtask", err, msgDeleteSubtask, msgSubtaskNotFound)
		}
		return nil, nil
	})
}

func registerComments(api huma.API, h handler) {
	targets := []struct {
		kind    string
		path    string
		missing string
		target  func(id string) domain.CommentTarget
	}{
		{"task", "/tasks/{id}/comments", msgTaskNotFound, func(id string) domain.CommentTarget { return domain.TaskTarget{TaskID: id} }},
		{"subtask", "/subtasks/{id}/comments", msgSubtaskNotFound, func(id string) domain.CommentTarget { return domain.SubtaskTarget{SubtaskID: id} }},
	}
	for _, tc := range targets {
		tc := tc
		huma.Register(api, huma.Operation{
			OperationID: "list-" + tc.kind + "-comments",
			Method:      http.MethodGet,
			Path:        tc.path,
			Summary:     "List " + tc.kind + " comments, oldest first",
			Errors:      taskErrors,
		}, func(ctx context.Context, input *idPath) (*out[[]domain.Comment], error) {
			items, err := h.e.ListComments(ctx, tc.target(input.ID))
			if err != nil {
				return nil, h.fail("list comments", err, msgLoadComments, tc.missing)
			}
			return reply(items), nil
		})

		huma.Register(api, huma.Operation{
			OperationID:   "add-" + tc.kind + "-comment",
			Method:        http.MethodPost,
			Path:          tc.path,
			Summary:       "Comment on a " + tc.kind,
			DefaultStatus: http.StatusCreated,
			Errors:        taskErrors,
		}, func(ctx context.Context, input *struct {
			ID   string         `path:"id"`
			Body CommentRequest `json:"body"`
		}) (*out[domain.Comment], error) {
			c, err := h.e.AddComment(ctx, tc.target(input.ID), input.Body.Content)
			if err != nil {
				return nil, h.fail("add comment", err, msgAddComment, tc.missing)
			}
			return reply(c), nil
		})
	}

	huma.Register(api, huma.Operation{
		OperationID:   "delete-comment",
		Method:        http.MethodDelete,
		Path:          "/comments/{id}",
		Summary:       "Delete a comment",
		DefaultStatus: http.StatusNoContent,
		Errors:        taskErrors,
	}, func(ctx context.Context, input *idPath) (*struct{}, error) {
		if err := h.e.DeleteComment(ctx, input.ID); err != nil {
			return nil, h.fail("delete comment", err, msgDeleteComment, msgCommentNotFound)
		}
		return nil, nil
	})
}
