package listing

import (
	"reflect"
	"testing"

	"domainflow/internal/domain"
)

func intPtr(v int) *int { return &v }

func ids[T any](items []T, id func(T) string) []string {
	res := make([]string, 0, len(items))
	for _, it := range items {
		res = append(res, id(it))
	}
	return res
}

func domainIDs(ds []domain.Domain) []string {
	return ids(ds, func(d domain.Domain) string { return d.ID })
}

func taskIDs(ts []domain.Task) []string {
	return ids(ts, func(t domain.Task) string { return t.ID })
}

func sampleDomains() []domain.Domain {
	return []domain.Domain{
		{ID: "a", Name: "Zeta Shop", URL: "https://zeta.it", CreatedAt: "2024-01-01T00:00:00.000000Z", Progress: 10, Status: domain.StatusActive},
		{ID: "b", Name: "alfa blog", URL: "https://alfa.it", Description: "Blog aziendale", CreatedAt: "2024-01-03T00:00:00.000000Z", Progress: 80, Status: domain.StatusActive},
		{ID: "c", Name: "Beta", URL: "https://beta.com", CreatedAt: "2024-01-02T00:00:00.000000Z", Progress: 50, Status: domain.StatusClosed},
		{ID: "d", Name: "Émile", URL: "https://emile.fr", CreatedAt: "2024-01-04T00:00:00.000000Z", Progress: 0, Status: domain.StatusActive,
			Pinned: true, PinnedOrder: intPtr(1)},
		{ID: "e", Name: "Delta", URL: "https://delta.it", CreatedAt: "2024-01-05T00:00:00.000000Z", Progress: 100, Status: domain.StatusActive,
			Pinned: true, PinnedOrder: intPtr(2)},
	}
}

func TestFilterDomains(t *testing.T) {
	ds := sampleDomains()
	cases := []struct {
		query string
		want  []string
	}{
		{"", []string{"a", "b", "c", "d", "e"}},
		{"   ", []string{"a", "b", "c", "d", "e"}},
		{"ZETA", []string{"a"}},
		{".it", []string{"a", "b", "e"}},
		{"aziendale", []string{"b"}},
		{"nothing", []string{}},
		{" shop", []string{"a"}},
		{"shop ", []string{}},
	}
	for _, tc := range cases {
		if got := domainIDs(FilterDomains(ds, tc.query)); !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("query %q: got %v want %v", tc.query, got, tc.want)
		}
	}
}

func TestFilterDomainsByStatus(t *testing.T) {
	ds := sampleDomains()
	if got := domainIDs(FilterDomainsByStatus(ds, false)); !reflect.DeepEqual(got, []string{"a", "b", "d", "e"}) {
		t.Fatalf("active only: %v", got)
	}
	if got := FilterDomainsByStatus(ds, true); len(got) != len(ds) {
		t.Fatalf("show closed should keep all, got %d", len(got))
	}
}

func TestSortDomains(t *testing.T) {
	col := NewCollator("it")
	cases := []struct {
		sortBy string
		want   []string
	}{
		{SortCreatedAt, []string{"e", "d", "b", "c", "a"}},
		{SortProgress, []string{"e", "d", "b", "c", "a"}},
		{SortName, []string{"e", "d", "b", "c", "a"}},
		{"unknown", []string{"e", "d", "a", "b", "c"}},
	}
	for _, tc := range cases {
		if got := domainIDs(SortDomains(sampleDomains(), tc.sortBy, col)); !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("sort %s: got %v want %v", tc.sortBy, got, tc.want)
		}
	}
}

func TestSortDomainsNameOrdersPinnedGroup(t *testing.T) {
	ds := []domain.Domain{
		{ID: "z", Name: "Zulu", Pinned: true, PinnedOrder: intPtr(5)},
		{ID: "a", Name: "alpha", Pinned: true, PinnedOrder: intPtr(1)},
		{ID: "u", Name: "Mike"},
	}
	got := domainIDs(SortDomains(ds, SortName, NewCollator("it")))
	if !reflect.DeepEqual(got, []string{"a", "z", "u"}) {
		t.Fatalf("got %v", got)
	}
}

func TestSortDomainsMostRecentPinFirst(t *testing.T) {
	ds := []domain.Domain{
		{ID: "x", Name: "X", CreatedAt: "2024-02-01T00:00:00.000000Z"},
		{ID: "A", Name: "A", Pinned: true, PinnedOrder: intPtr(1)},
		{ID: "B", Name: "B", Pinned: true, PinnedOrder: intPtr(2)},
	}
	for _, key := range []string{SortCreatedAt, SortProgress} {
		got := domainIDs(SortDomains(ds, key, nil))
		if !reflect.DeepEqual(got, []string{"B", "A", "x"}) {
			t.Fatalf("%s: got %v", key, got)
		}
	}
}

func TestSortAfterEmptyFilterKeepsMembers(t *testing.T) {
	ds := sampleDomains()
	for _, key := range append(DomainSortKeys, "other") {
		got := SortDomains(FilterDomains(ds, ""), key, NewCollator("it"))
		if len(got) != len(ds) {
			t.Fatalf("%s: lost members: %v", key, domainIDs(got))
		}
		seen := map[string]int{}
		for _, d := range got {
			seen[d.ID]++
		}
		for _, d := range ds {
			if seen[d.ID] != 1 {
				t.Fatalf("%s: %s seen %d times", key, d.ID, seen[d.ID])
			}
		}
	}
}

func TestSortDomainsDoesNotMutateInput(t *testing.T) {
	ds := sampleDomains()
	before := domainIDs(ds)
	_ = SortDomains(ds, SortName, nil)
	if !reflect.DeepEqual(domainIDs(ds), before) {
		t.Fatalf("input reordered")
	}
}

func TestComposeDomains(t *testing.T) {
	got := domainIDs(ComposeDomains(sampleDomains(), "it", false, SortName, NewCollator("it")))
	if !reflect.DeepEqual(got, []string{"e", "b", "a"}) {
		t.Fatalf("got %v", got)
	}
}

func sampleTasks() []domain.Task {
	return []domain.Task{
		{ID: "1", Title: "zaino", Priority: domain.PriorityLow, CreatedAt: "2024-01-02T00:00:00.000000Z", Tags: []string{"SEO-Audit"}, Dependencies: []string{"Accesso FTP"}},
		{ID: "2", Title: "Backup", Priority: domain.PriorityUrgent, CreatedAt: "2024-01-03T00:00:00.000000Z", Tags: []string{"sicurezza"}},
		{ID: "3", Title: "àncora", Priority: domain.PriorityMedium, CreatedAt: "2024-01-01T00:00:00.000000Z", Tags: []string{"seo"}, Dependencies: []string{"accesso cms"}},
		{ID: "4", Title: "Cache", Priority: "whatever", CreatedAt: "2024-01-04T00:00:00.000000Z"},
		{ID: "5", Title: "DNS", Priority: domain.PriorityMedium, CreatedAt: "2024-01-05T00:00:00.000000Z"},
	}
}

func TestFilterTasks(t *testing.T) {
	ts := sampleTasks()
	cases := []struct {
		tag, dep string
		want     []string
	}{
		{"all", "all", []string{"1", "2", "3", "4", "5"}},
		{"", "", []string{"1", "2", "3", "4", "5"}},
		{"seo", "all", []string{"1", "3"}},
		{"SEO", "", []string{"1", "3"}},
		{"all", "accesso", []string{"1", "3"}},
		{"seo", "ftp", []string{"1"}},
		{"missing", "all", []string{}},
	}
	for _, tc := range cases {
		if got := taskIDs(FilterTasks(ts, tc.tag, tc.dep)); !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("tag %q dep %q: got %v want %v", tc.tag, tc.dep, got, tc.want)
		}
	}
}

func TestSortTasks(t *testing.T) {
	col := NewCollator("it")
	cases := []struct {
		sortBy string
		want   []string
	}{
		{SortCreatedAt, []string{"3", "1", "2", "4", "5"}},
		// medium ties keep input order (3 before 5)
		{SortPriority, []string{"2", "3", "5", "1", "4"}},
		{SortTitle, []string{"3", "2", "4", "5", "1"}},
		{"bogus", []string{"1", "2", "3", "4", "5"}},
	}
	for _, tc := range cases {
		if got := taskIDs(SortTasks(sampleTasks(), tc.sortBy, col)); !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("sort %s: got %v want %v", tc.sortBy, got, tc.want)
		}
	}
}

func TestSortTasksPriorityExample(t *testing.T) {
	ts := []domain.Task{
		{ID: "low", Priority: domain.PriorityLow},
		{ID: "urgent", Priority: domain.PriorityUrgent},
		{ID: "medium", Priority: domain.PriorityMedium},
	}
	got := taskIDs(SortTasks(ts, SortPriority, nil))
	if !reflect.DeepEqual(got, []string{"urgent", "medium", "low"}) {
		t.Fatalf("got %v", got)
	}
}

func TestEffectiveCompletion(t *testing.T) {
	task := domain.Task{ID: "t", Completed: true}
	if !EffectiveCompletion(task, nil) {
		t.Fatalf("no subtasks: stored flag wins")
	}
	if EffectiveCompletion(task, []domain.Subtask{{Completed: true}, {Completed: false}}) {
		t.Fatalf("open subtask must make task incomplete")
	}
	if !EffectiveCompletion(domain.Task{}, []domain.Subtask{{Completed: true}}) {
		t.Fatalf("all subtasks done must complete task")
	}
}

func TestTagsAndDependencies(t *testing.T) {
	ts := sampleTasks()
	if got := Tags(ts); !reflect.DeepEqual(got, []string{"SEO-Audit", "sicurezza", "seo"}) {
		t.Fatalf("tags %v", got)
	}
	if got := Dependencies(ts); !reflect.DeepEqual(got, []string{"Accesso FTP", "accesso cms"}) {
		t.Fatalf("deps %v", got)
	}
}
