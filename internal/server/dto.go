package server

import (
	"domainflow/internal/domain"
	"domainflow/internal/progress"
)

// Request payloads

type CompletionRequest struct {
	Completed bool `json:"completed"`
}

type ChecklistRequest struct {
	Items []domain.ChecklistItem `json:"items"`
}

type CommentRequest struct {
	Content string `json:"content"`
}

type MoveRequest struct {
	Index int `json:"index" minimum:"0"`
}

type DevLoginRequest struct {
	Subject string `json:"subject"`
}

// Response payloads

// TaskResponse is a task with the read-only subtask summary. The stored
// completed flag is authoritative; effectively_completed is informative.
type TaskResponse struct {
	domain.Task
	SubtasksTotal        int  `json:"subtasks_total"`
	SubtasksCompleted    int  `json:"subtasks_completed"`
	EffectivelyCompleted bool `json:"effectively_completed"`
}

type DomainListResponse struct {
	Items []domain.Domain `json:"items"`
	Stats progress.Stats  `json:"stats"`
}

type TaskListResponse struct {
	Items        []TaskResponse `json:"items"`
	Tags         []string       `json:"tags"`
	Dependencies []string       `json:"dependencies"`
}

type ChangeListResponse struct {
	Items    []domain.Change `json:"items"`
	LatestID int64           `json:"latest_id"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

func taskResponse(t domain.Task, c domain.TaskCompletion) TaskResponse {
	return TaskResponse{
		Task:                 t,
		SubtasksTotal:        c.SubtasksTotal,
		SubtasksCompleted:    c.SubtasksCompleted,
		EffectivelyCompleted: domain.TaskCompletion{Completed: t.Completed, SubtasksTotal: c.SubtasksTotal, SubtasksCompleted: c.SubtasksCompleted}.Effective(),
	}
}

func mapTasks(items []domain.Task, completions map[string]domain.TaskCompletion) []TaskResponse {
	out := make([]TaskResponse, 0, len(items))
	for _, t := range items {
		out = append(out, taskResponse(t, completions[t.ID]))
	}
	return out
}
