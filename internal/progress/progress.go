// Package progress derives completion counters and percentages for domains.
package progress

import (
	"math"

	"domainflow/internal/domain"
)

type Summary struct {
	CompletedTasks int `json:"completed_tasks"`
	TotalTasks     int `json:"total_tasks"`
	Progress       int `json:"progress"`
}

// Percent returns round(100*completed/total) clamped to [0,100]; 0 when total is 0.
func Percent(completed, total int) int {
	if total <= 0 || completed <= 0 {
		return 0
	}
	if completed >= total {
		return 100
	}
	return int(math.Floor(100*float64(completed)/float64(total) + 0.5))
}

// Compute counts tasks by their stored completed flag.
func Compute(tasks []domain.Task) Summary {
	s := Summary{TotalTasks: len(tasks)}
	for _, t := range tasks {
		if t.Completed {
			s.CompletedTasks++
		}
	}
	s.Progress = Percent(s.CompletedTasks, s.TotalTasks)
	return s
}

// ComputeEffective counts a task as completed when all of its subtasks are,
// falling back to the stored flag for tasks without subtasks.
func ComputeEffective(tasks []domain.Task, subtasksByTask map[string][]domain.Subtask) Summary {
	s := Summary{TotalTasks: len(tasks)}
	for _, t := range tasks {
		if Completion(t, subtasksByTask[t.ID]).Effective() {
			s.CompletedTasks++
		}
	}
	s.Progress = Percent(s.CompletedTasks, s.TotalTasks)
	return s
}

// Completion builds the completion record of one task.
func Completion(t domain.Task, subtasks []domain.Subtask) domain.TaskCompletion {
	c := domain.TaskCompletion{
		DomainID:      t.DomainID,
		TaskID:        t.ID,
		Completed:     t.Completed,
		SubtasksTotal: len(subtasks),
	}
	for _, st := range subtasks {
		if st.Completed {
			c.SubtasksCompleted++
		}
	}
	return c
}

// ByDomain groups completion rows per domain. effective selects the
// subtask-derived rule over the stored flag.
func ByDomain(rows []domain.TaskCompletion, effective bool) map[string]Summary {
	res := map[string]Summary{}
	for _, r := range rows {
		s := res[r.DomainID]
		s.TotalTasks++
		done := r.Completed
		if effective {
			done = r.Effective()
		}
		if done {
			s.CompletedTasks++
		}
		res[r.DomainID] = s
	}
	for id, s := range res {
		s.Progress = Percent(s.CompletedTasks, s.TotalTasks)
		res[id] = s
	}
	return res
}

// Apply writes s onto the derived fields of d.
func Apply(d *domain.Domain, s Summary) {
	d.TotalTasks = s.TotalTasks
	d.CompletedTasks = s.CompletedTasks
	d.Progress = Percent(s.CompletedTasks, s.TotalTasks)
}

// Stats is the dashboard summary over a domain list.
type Stats struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	InProgress int `json:"in_progress"`
	NotStarted int `json:"not_started"`
}

// Summarize buckets domains by progress: 100 completed, 0 not started,
// anything between in progress.
func Summarize(domains []domain.Domain) Stats {
	st := Stats{Total: len(domains)}
	for _, d := range domains {
		switch {
		case d.Progress >= 100:
			st.Completed++
		case d.Progress <= 0:
			st.NotStarted++
		default:
			st.InProgress++
		}
	}
	return st
}
