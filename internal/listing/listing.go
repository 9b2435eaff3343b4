// Package listing filters and orders domain and task lists for display.
// Every function returns a new slice and leaves its input untouched.
package listing

import (
	"sort"
	"strings"

	"domainflow/internal/domain"
	"domainflow/internal/progress"
)

// Domain sort keys.
const (
	SortCreatedAt = "created_at"
	SortName      = "name"
	SortProgress  = "progress"
)

// Task sort keys. SortCreatedAt is shared.
const (
	SortPriority = "priority"
	SortTitle    = "title"
)

// FilterAll disables a tag or dependency filter.
const FilterAll = "all"

// DomainSortKeys lists the domain sort keys in cycling order.
var DomainSortKeys = []string{SortCreatedAt, SortName, SortProgress}

// TaskSortKeys lists the task sort keys in cycling order.
var TaskSortKeys = []string{SortCreatedAt, SortPriority, SortTitle}

// FilterDomains keeps domains whose name, url or description contains query,
// ignoring case. A blank query returns the input unchanged. Surrounding
// spaces of a non-blank query are part of the match.
func FilterDomains(domains []domain.Domain, query string) []domain.Domain {
	if strings.TrimSpace(query) == "" {
		return append([]domain.Domain(nil), domains...)
	}
	q := strings.ToLower(query)
	res := make([]domain.Domain, 0, len(domains))
	for _, d := range domains {
		if strings.Contains(strings.ToLower(d.Name), q) ||
			strings.Contains(strings.ToLower(d.URL), q) ||
			strings.Contains(strings.ToLower(d.Description), q) {
			res = append(res, d)
		}
	}
	return res
}

// FilterDomainsByStatus drops closed domains unless showClosed is set.
func FilterDomainsByStatus(domains []domain.Domain, showClosed bool) []domain.Domain {
	res := make([]domain.Domain, 0, len(domains))
	for _, d := range domains {
		if showClosed || d.Status != domain.StatusClosed {
			res = append(res, d)
		}
	}
	return res
}

// SortDomains returns pinned domains followed by unpinned ones. Pinned
// domains are ordered by name under SortName and by most recent pin
// otherwise. Unpinned domains follow sortBy; an unknown key keeps input order.
func SortDomains(domains []domain.Domain, sortBy string, col *Collator) []domain.Domain {
	var pinned, unpinned []domain.Domain
	for _, d := range domains {
		if d.Pinned {
			pinned = append(pinned, d)
		} else {
			unpinned = append(unpinned, d)
		}
	}
	byName := func(list []domain.Domain) func(i, j int) bool {
		return func(i, j int) bool { return col.Compare(list[i].Name, list[j].Name) < 0 }
	}
	if sortBy == SortName {
		sort.SliceStable(pinned, byName(pinned))
	} else {
		sort.SliceStable(pinned, func(i, j int) bool { return pinOrder(pinned[i]) > pinOrder(pinned[j]) })
	}
	switch sortBy {
	case SortCreatedAt:
		sort.SliceStable(unpinned, func(i, j int) bool { return unpinned[i].CreatedAt > unpinned[j].CreatedAt })
	case SortName:
		sort.SliceStable(unpinned, byName(unpinned))
	case SortProgress:
		sort.SliceStable(unpinned, func(i, j int) bool { return unpinned[i].Progress > unpinned[j].Progress })
	}
	res := make([]domain.Domain, 0, len(domains))
	res = append(res, pinned...)
	return append(res, unpinned...)
}

func pinOrder(d domain.Domain) int {
	if d.PinnedOrder == nil {
		return 0
	}
	return *d.PinnedOrder
}

// ComposeDomains runs the full domain pipeline: status, text filter, sort.
func ComposeDomains(domains []domain.Domain, query string, showClosed bool, sortBy string, col *Collator) []domain.Domain {
	return SortDomains(FilterDomains(FilterDomainsByStatus(domains, showClosed), query), sortBy, col)
}

// FilterTasks keeps tasks that have a tag containing tag and a dependency
// containing dependency, ignoring case. "all" or "" disables either filter.
func FilterTasks(tasks []domain.Task, tag, dependency string) []domain.Task {
	res := make([]domain.Task, 0, len(tasks))
	for _, t := range tasks {
		if matchesAny(t.Tags, tag) && matchesAny(t.Dependencies, dependency) {
			res = append(res, t)
		}
	}
	return res
}

func matchesAny(values []string, filter string) bool {
	f := strings.ToLower(strings.TrimSpace(filter))
	if f == "" || f == FilterAll {
		return true
	}
	for _, v := range values {
		if strings.Contains(strings.ToLower(v), f) {
			return true
		}
	}
	return false
}

// SortTasks orders tasks by creation time ascending, priority rank
// descending or title. Ties keep input order; an unknown key keeps input order.
func SortTasks(tasks []domain.Task, sortBy string, col *Collator) []domain.Task {
	res := append([]domain.Task(nil), tasks...)
	switch sortBy {
	case SortCreatedAt:
		sort.SliceStable(res, func(i, j int) bool { return res[i].CreatedAt < res[j].CreatedAt })
	case SortPriority:
		sort.SliceStable(res, func(i, j int) bool {
			return domain.PriorityRank(res[i].Priority) > domain.PriorityRank(res[j].Priority)
		})
	case SortTitle:
		sort.SliceStable(res, func(i, j int) bool { return col.Compare(res[i].Title, res[j].Title) < 0 })
	}
	return res
}

// EffectiveCompletion derives completion from subtasks when there are any.
// It is a read-side view; the stored flag is never rewritten from it.
func EffectiveCompletion(t domain.Task, subtasks []domain.Subtask) bool {
	return progress.Completion(t, subtasks).Effective()
}

// Tags returns the distinct tags across tasks in first-seen order, for
// populating a filter picker.
func Tags(tasks []domain.Task) []string {
	return distinct(tasks, func(t domain.Task) []string { return t.Tags })
}

// Dependencies returns the distinct dependency labels across tasks.
func Dependencies(tasks []domain.Task) []string {
	return distinct(tasks, func(t domain.Task) []string { return t.Dependencies })
}

func distinct(tasks []domain.Task, pick func(domain.Task) []string) []string {
	seen := map[string]bool{}
	res := []string{}
	for _, t := range tasks {
		for _, v := range pick(t) {
			if !seen[v] {
				seen[v] = true
				res = append(res, v)
			}
		}
	}
	return res
}
