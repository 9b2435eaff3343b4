package engine_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"domainflow/internal/config"
	"domainflow/internal/db"
	"domainflow/internal/domain"
	"domainflow/internal/engine"
	"domainflow/internal/listing"
	"domainflow/internal/migrate"
	"domainflow/internal/prefs"
	"domainflow/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	clock  *time.Time
}

func newTestEnv(t *testing.T) testEnv {
	return newTestEnvWithConfig(t, config.Default())
}

func newTestEnvWithConfig(t *testing.T, cfg *config.Config) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, cfg)
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	env := testEnv{Engine: eng, Ctx: context.Background(), clock: &clock}
	// each reading advances one second so created_at values are distinct
	env.Engine.Now = func() time.Time {
		*env.clock = env.clock.Add(time.Second)
		return *env.clock
	}
	return env
}

func floatPtr(f float64) *float64 { return &f }
func strPtr(s string) *string     { return &s }

func (env testEnv) newTemplate(t *testing.T, title string) domain.Template {
	t.Helper()
	tpl, err := env.Engine.CreateTemplate(env.Ctx, engine.TaskFields{
		Title:          title,
		Description:    "desc " + title,
		Category:       "SEO",
		Priority:       domain.PriorityHigh,
		EstimatedHours: floatPtr(1.5),
		Tags:           []string{"seo", " seo ", "audit", ""},
		Dependencies:   []string{"Accesso FTP"},
		ReferenceLinks: []string{"https://example.com/guide"},
		ChecklistItems: []domain.ChecklistItem{{Text: "controlla"}, {Text: "verifica", Completed: true}},
	})
	if err != nil {
		t.Fatalf("create template: %v", err)
	}
	return tpl
}

func (env testEnv) newDomain(t *testing.T, name string) domain.Domain {
	t.Helper()
	d, err := env.Engine.CreateDomain(env.Ctx, engine.DomainInput{Name: name, URL: "https://" + name + ".it"})
	if err != nil {
		t.Fatalf("create domain: %v", err)
	}
	return d
}

func TestCreateTemplateNormalizes(t *testing.T) {
	env := newTestEnv(t)
	tpl := env.newTemplate(t, "Audit SEO")
	if !reflect.DeepEqual(tpl.Tags, []string{"seo", "audit"}) {
		t.Fatalf("tags not cleaned: %v", tpl.Tags)
	}
	for _, item := range tpl.ChecklistItems {
		if item.ID == "" {
			t.Fatalf("checklist item without id")
		}
	}
	_, err := env.Engine.CreateTemplate(env.Ctx, engine.TaskFields{Title: " ", Category: "x"})
	if !errors.Is(err, engine.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for empty title, got %v", err)
	}
	_, err = env.Engine.CreateTemplate(env.Ctx, engine.TaskFields{Title: "x", Category: "x", Priority: "asap"})
	if !errors.Is(err, engine.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for priority, got %v", err)
	}
	_, err = env.Engine.CreateTemplate(env.Ctx, engine.TaskFields{Title: "x", Category: "x", EstimatedHours: floatPtr(-1)})
	if !errors.Is(err, engine.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for hours, got %v", err)
	}
	plain, err := env.Engine.CreateTemplate(env.Ctx, engine.TaskFields{Title: "x", Category: "x"})
	if err != nil || plain.Priority != domain.PriorityMedium {
		t.Fatalf("default priority: %v %+v", err, plain)
	}
}

func TestCreateDomainMaterializesTemplates(t *testing.T) {
	env := newTestEnv(t)
	t1 := env.newTemplate(t, "Backup")
	t2 := env.newTemplate(t, "Audit")
	if _, err := env.Engine.AddTemplateSubtask(env.Ctx, t1.ID, engine.SubtaskInput{Title: "scarica"}); err != nil {
		t.Fatal(err)
	}
	d := env.newDomain(t, "rossi")
	if d.TotalTasks != 2 || d.CompletedTasks != 0 || d.Progress != 0 {
		t.Fatalf("unexpected counters %+v", d)
	}
	tasks, err := env.Engine.ListDomainTasks(env.Ctx, d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}
	byTemplate := map[string]domain.Task{}
	for _, task := range tasks {
		if task.TemplateID == nil {
			t.Fatalf("task without template id")
		}
		if task.Completed || task.CompletedAt != nil {
			t.Fatalf("materialized task must start open")
		}
		byTemplate[*task.TemplateID] = task
	}
	for _, tpl := range []domain.Template{t1, t2} {
		task, ok := byTemplate[tpl.ID]
		if !ok {
			t.Fatalf("no task for template %s", tpl.ID)
		}
		if task.Title != tpl.Title || task.Description != tpl.Description || task.Category != tpl.Category ||
			task.Priority != tpl.Priority || *task.EstimatedHours != *tpl.EstimatedHours ||
			!reflect.DeepEqual(task.Tags, tpl.Tags) || !reflect.DeepEqual(task.Dependencies, tpl.Dependencies) ||
			!reflect.DeepEqual(task.ReferenceLinks, tpl.ReferenceLinks) {
			t.Fatalf("fields not copied:\n%+v\n%+v", task, tpl)
		}
		if len(task.ChecklistItems) != len(tpl.ChecklistItems) {
			t.Fatalf("checklist not copied")
		}
		for i, item := range task.ChecklistItems {
			if item.Text != tpl.ChecklistItems[i].Text || item.Completed || item.ID == tpl.ChecklistItems[i].ID {
				t.Fatalf("checklist item %d not reset: %+v", i, item)
			}
		}
	}
	subs, err := env.Engine.ListSubtasks(env.Ctx, byTemplate[t1.ID].ID)
	if err != nil || len(subs) != 1 || subs[0].Title != "scarica" {
		t.Fatalf("template subtasks not copied: %v %+v", err, subs)
	}
	// later template edits do not reach existing tasks
	if _, err := env.Engine.UpdateTemplate(env.Ctx, t1.ID, engine.FieldsPatch{Title: strPtr("Backup mensile")}); err != nil {
		t.Fatal(err)
	}
	task, err := env.Engine.GetTask(env.Ctx, byTemplate[t1.ID].ID)
	if err != nil || task.Title != "Backup" {
		t.Fatalf("task changed with template: %v %q", err, task.Title)
	}
}

func TestCreateDomainWithoutTemplates(t *testing.T) {
	env := newTestEnv(t)
	d := env.newDomain(t, "vuoto")
	if d.TotalTasks != 0 || d.Progress != 0 {
		t.Fatalf("unexpected %+v", d)
	}
	list, err := env.Engine.ListDomains(env.Ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != d.ID {
		t.Fatalf("domain with zero tasks must be listed: %+v", list)
	}
	if _, err := env.Engine.CreateDomain(env.Ctx, engine.DomainInput{Name: "x"}); !errors.Is(err, engine.ErrInvalid) {
		t.Fatalf("missing url must be rejected, got %v", err)
	}
}

func TestCopySubtasksDisabled(t *testing.T) {
	cfg := config.Default()
	cfg.Templates.CopySubtasks = false
	env := newTestEnvWithConfig(t, cfg)
	tpl := env.newTemplate(t, "Backup")
	if _, err := env.Engine.AddTemplateSubtask(env.Ctx, tpl.ID, engine.SubtaskInput{Title: "scarica"}); err != nil {
		t.Fatal(err)
	}
	d := env.newDomain(t, "rossi")
	tasks, _ := env.Engine.ListDomainTasks(env.Ctx, d.ID)
	subs, err := env.Engine.ListSubtasks(env.Ctx, tasks[0].ID)
	if err != nil || len(subs) != 0 {
		t.Fatalf("expected no subtasks, got %v %d", err, len(subs))
	}
}

func TestTaskCompletionInvariant(t *testing.T) {
	env := newTestEnv(t)
	env.newTemplate(t, "A")
	env.newTemplate(t, "B")
	env.newTemplate(t, "C")
	d := env.newDomain(t, "bianchi")
	tasks, _ := env.Engine.ListDomainTasks(env.Ctx, d.ID)
	done, err := env.Engine.SetTaskCompleted(env.Ctx, tasks[0].ID, true)
	if err != nil {
		t.Fatal(err)
	}
	if !done.Completed || done.CompletedAt == nil {
		t.Fatalf("completed_at must be set: %+v", done)
	}
	got, _ := env.Engine.GetDomain(env.Ctx, d.ID)
	if got.CompletedTasks != 1 || got.TotalTasks != 3 || got.Progress != 33 {
		t.Fatalf("unexpected progress %+v", got)
	}
	undone, err := env.Engine.SetTaskCompleted(env.Ctx, tasks[0].ID, false)
	if err != nil {
		t.Fatal(err)
	}
	if undone.Completed || undone.CompletedAt != nil {
		t.Fatalf("completed_at must be cleared: %+v", undone)
	}
	for _, task := range tasks {
		if _, err := env.Engine.SetTaskCompleted(env.Ctx, task.ID, true); err != nil {
			t.Fatal(err)
		}
	}
	got, _ = env.Engine.GetDomain(env.Ctx, d.ID)
	if got.Progress != 100 {
		t.Fatalf("expected 100, got %d", got.Progress)
	}
	if _, err := env.Engine.SetTaskCompleted(env.Ctx, "missing", true); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStoredFlagIsAuthoritative(t *testing.T) {
	env := newTestEnv(t)
	env.newTemplate(t, "A")
	d := env.newDomain(t, "verdi")
	tasks, _ := env.Engine.ListDomainTasks(env.Ctx, d.ID)
	sub, err := env.Engine.AddSubtask(env.Ctx, tasks[0].ID, engine.SubtaskInput{Title: "passo"})
	if err != nil {
		t.Fatal(err)
	}
	sub, err = env.Engine.SetSubtaskCompleted(env.Ctx, sub.ID, true)
	if err != nil || sub.CompletedAt == nil {
		t.Fatalf("subtask completion: %v %+v", err, sub)
	}
	task, _ := env.Engine.GetTask(env.Ctx, tasks[0].ID)
	if task.Completed {
		t.Fatalf("subtask completion must not write back to the task")
	}
	got, _ := env.Engine.GetDomain(env.Ctx, d.ID)
	if got.Progress != 0 {
		t.Fatalf("stored flag rule expected 0, got %d", got.Progress)
	}
	comp, err := env.Engine.TaskCompletions(env.Ctx, d.ID)
	if err != nil || !comp[task.ID].Effective() {
		t.Fatalf("effective completion should be true: %v %+v", err, comp)
	}
}

func TestCountSubtasksProgress(t *testing.T) {
	cfg := config.Default()
	cfg.Progress.CountSubtasks = true
	env := newTestEnvWithConfig(t, cfg)
	env.newTemplate(t, "A")
	env.newTemplate(t, "B")
	d := env.newDomain(t, "neri")
	tasks, _ := env.Engine.ListDomainTasks(env.Ctx, d.ID)
	sub, _ := env.Engine.AddSubtask(env.Ctx, tasks[0].ID, engine.SubtaskInput{Title: "passo"})
	if _, err := env.Engine.SetSubtaskCompleted(env.Ctx, sub.ID, true); err != nil {
		t.Fatal(err)
	}
	got, _ := env.Engine.GetDomain(env.Ctx, d.ID)
	if got.CompletedTasks != 1 || got.Progress != 50 {
		t.Fatalf("expected subtask-derived progress, got %+v", got)
	}
}

func TestDeleteDomainCascades(t *testing.T) {
	env := newTestEnv(t)
	env.newTemplate(t, "A")
	d := env.newDomain(t, "gialli")
	tasks, _ := env.Engine.ListDomainTasks(env.Ctx, d.ID)
	sub, _ := env.Engine.AddSubtask(env.Ctx, tasks[0].ID, engine.SubtaskInput{Title: "s"})
	if _, err := env.Engine.AddComment(env.Ctx, domain.TaskTarget{TaskID: tasks[0].ID}, "nota"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.AddComment(env.Ctx, domain.SubtaskTarget{SubtaskID: sub.ID}, "nota sub"); err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.DeleteDomain(env.Ctx, d.ID); err != nil {
		t.Fatal(err)
	}
	for table, want := range map[string]int{"domain_tasks": 0, "subtasks": 0, "task_comments": 0} {
		var n int
		if err := env.Engine.DB.QueryRow(`SELECT COUNT(1) FROM ` + table).Scan(&n); err != nil {
			t.Fatal(err)
		}
		if n != want {
			t.Fatalf("%s: expected %d rows, got %d", table, want, n)
		}
	}
	if _, err := env.Engine.GetDomain(env.Ctx, d.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := env.Engine.DeleteDomain(env.Ctx, d.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("second delete should be not found, got %v", err)
	}
}

func TestCloseAndReopen(t *testing.T) {
	env := newTestEnv(t)
	env.newTemplate(t, "A")
	d := env.newDomain(t, "viola")
	tasks, _ := env.Engine.ListDomainTasks(env.Ctx, d.ID)
	_, _ = env.Engine.SetTaskCompleted(env.Ctx, tasks[0].ID, true)
	closed, err := env.Engine.CloseDomain(env.Ctx, d.ID)
	if err != nil || closed.Status != domain.StatusClosed || closed.Progress != 100 {
		t.Fatalf("close: %v %+v", err, closed)
	}
	active, _ := env.Engine.ListDomains(env.Ctx, false)
	if len(active) != 0 {
		t.Fatalf("closed domain in active list")
	}
	all, _ := env.Engine.ListDomains(env.Ctx, true)
	if len(all) != 1 {
		t.Fatalf("closed domain missing from full list")
	}
	reopened, err := env.Engine.ReopenDomain(env.Ctx, d.ID)
	if err != nil || reopened.Status != domain.StatusActive {
		t.Fatalf("reopen: %v %+v", err, reopened)
	}
}

func TestPinOrdering(t *testing.T) {
	env := newTestEnv(t)
	a := env.newDomain(t, "a")
	b := env.newDomain(t, "b")
	c := env.newDomain(t, "c")
	pa, err := env.Engine.PinDomain(env.Ctx, a.ID)
	if err != nil || !pa.Pinned || pa.PinnedAt == nil || *pa.PinnedOrder != 1 {
		t.Fatalf("pin a: %v %+v", err, pa)
	}
	pb, _ := env.Engine.PinDomain(env.Ctx, b.ID)
	if *pb.PinnedOrder != 2 {
		t.Fatalf("pin b order %d", *pb.PinnedOrder)
	}
	list, _ := env.Engine.ListDomains(env.Ctx, false)
	for _, key := range []string{listing.SortCreatedAt, listing.SortProgress} {
		sorted := listing.SortDomains(list, key, env.Engine.Collator)
		if sorted[0].ID != b.ID || sorted[1].ID != a.ID || sorted[2].ID != c.ID {
			t.Fatalf("%s: unexpected order %s %s %s", key, sorted[0].Name, sorted[1].Name, sorted[2].Name)
		}
	}
	up, err := env.Engine.UnpinDomain(env.Ctx, b.ID)
	if err != nil || up.Pinned || up.PinnedAt != nil || up.PinnedOrder != nil {
		t.Fatalf("unpin: %v %+v", err, up)
	}
	// re-pinning goes above the remaining pin
	pb, _ = env.Engine.PinDomain(env.Ctx, b.ID)
	if *pb.PinnedOrder != 2 {
		t.Fatalf("re-pin order %d", *pb.PinnedOrder)
	}
	if _, err := env.Engine.PinDomain(env.Ctx, "missing"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("pin missing: %v", err)
	}
}

func TestTemplateSubtaskOrdering(t *testing.T) {
	env := newTestEnv(t)
	tpl := env.newTemplate(t, "A")
	var ids []string
	for _, title := range []string{"uno", "due", "tre", "quattro"} {
		s, err := env.Engine.AddTemplateSubtask(env.Ctx, tpl.ID, engine.SubtaskInput{Title: title})
		if err != nil {
			t.Fatal(err)
		}
		if s.OrderIndex != len(ids) {
			t.Fatalf("order index %d for %s", s.OrderIndex, title)
		}
		ids = append(ids, s.ID)
	}
	if err := env.Engine.DeleteTemplateSubtask(env.Ctx, ids[1]); err != nil {
		t.Fatal(err)
	}
	list, _ := env.Engine.ListTemplateSubtasks(env.Ctx, tpl.ID)
	titles := []string{}
	for i, s := range list {
		if s.OrderIndex != i {
			t.Fatalf("gap after delete: %+v", list)
		}
		titles = append(titles, s.Title)
	}
	if !reflect.DeepEqual(titles, []string{"uno", "tre", "quattro"}) {
		t.Fatalf("unexpected titles %v", titles)
	}
	moved, err := env.Engine.MoveTemplateSubtask(env.Ctx, ids[3], 0)
	if err != nil {
		t.Fatal(err)
	}
	if moved[0].Title != "quattro" || moved[0].OrderIndex != 0 || moved[2].OrderIndex != 2 {
		t.Fatalf("move: %+v", moved)
	}
	next, _ := env.Engine.AddTemplateSubtask(env.Ctx, tpl.ID, engine.SubtaskInput{Title: "cinque"})
	if next.OrderIndex != 3 {
		t.Fatalf("append after renumber: %d", next.OrderIndex)
	}
}

func TestDeleteTemplateKeepsTasks(t *testing.T) {
	env := newTestEnv(t)
	tpl := env.newTemplate(t, "A")
	d := env.newDomain(t, "blu")
	if err := env.Engine.DeleteTemplate(env.Ctx, tpl.ID); err != nil {
		t.Fatal(err)
	}
	tasks, _ := env.Engine.ListDomainTasks(env.Ctx, d.ID)
	if len(tasks) != 1 || tasks[0].TemplateID != nil || tasks[0].Title != "A" {
		t.Fatalf("task should survive with null template: %+v", tasks)
	}
	if _, err := env.Engine.GetTemplate(env.Ctx, tpl.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestManualTaskAndChecklist(t *testing.T) {
	env := newTestEnv(t)
	d := env.newDomain(t, "arancio")
	task, err := env.Engine.CreateTask(env.Ctx, d.ID, engine.TaskFields{Title: "Manuale", Category: "Varie", Priority: domain.PriorityUrgent})
	if err != nil || task.TemplateID != nil {
		t.Fatalf("create: %v %+v", err, task)
	}
	task, err = env.Engine.UpdateChecklist(env.Ctx, task.ID, []domain.ChecklistItem{{Text: "uno"}, {ID: "fixed", Text: "due", Completed: true}})
	if err != nil || len(task.ChecklistItems) != 2 || task.ChecklistItems[1].ID != "fixed" || task.ChecklistItems[0].ID == "" {
		t.Fatalf("checklist: %v %+v", err, task.ChecklistItems)
	}
	task, err = env.Engine.UpdateTask(env.Ctx, task.ID, engine.FieldsPatch{Tags: &[]string{"x", "x"}, ClearHours: true})
	if err != nil || !reflect.DeepEqual(task.Tags, []string{"x"}) {
		t.Fatalf("update: %v %+v", err, task)
	}
	if _, err := env.Engine.CreateTask(env.Ctx, "missing", engine.TaskFields{Title: "x", Category: "y"}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := env.Engine.DeleteTask(env.Ctx, task.ID); err != nil {
		t.Fatal(err)
	}
	got, _ := env.Engine.GetDomain(env.Ctx, d.ID)
	if got.TotalTasks != 0 {
		t.Fatalf("task not deleted")
	}
}

func TestComments(t *testing.T) {
	env := newTestEnv(t)
	d := env.newDomain(t, "rosa")
	task, _ := env.Engine.CreateTask(env.Ctx, d.ID, engine.TaskFields{Title: "T", Category: "C"})
	sub, _ := env.Engine.AddSubtask(env.Ctx, task.ID, engine.SubtaskInput{Title: "S"})
	first, err := env.Engine.AddComment(env.Ctx, domain.TaskTarget{TaskID: task.ID}, "primo")
	if err != nil {
		t.Fatal(err)
	}
	if first.TaskID == nil || first.SubtaskID != nil {
		t.Fatalf("task comment parents: %+v", first)
	}
	if _, err := env.Engine.AddComment(env.Ctx, domain.TaskTarget{TaskID: task.ID}, "secondo"); err != nil {
		t.Fatal(err)
	}
	sc, err := env.Engine.AddComment(env.Ctx, domain.SubtaskTarget{SubtaskID: sub.ID}, "sub")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := sc.Target().(domain.SubtaskTarget); !ok {
		t.Fatalf("subtask comment target: %+v", sc)
	}
	list, err := env.Engine.ListComments(env.Ctx, domain.TaskTarget{TaskID: task.ID})
	if err != nil || len(list) != 2 || list[0].Content != "primo" {
		t.Fatalf("list: %v %+v", err, list)
	}
	if _, err := env.Engine.AddComment(env.Ctx, domain.TaskTarget{TaskID: task.ID}, "  "); !errors.Is(err, engine.ErrInvalid) {
		t.Fatalf("empty content: %v", err)
	}
	if _, err := env.Engine.AddComment(env.Ctx, domain.SubtaskTarget{SubtaskID: "missing"}, "x"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("missing subtask: %v", err)
	}
	if err := env.Engine.DeleteComment(env.Ctx, first.ID); err != nil {
		t.Fatal(err)
	}
	list, _ = env.Engine.ListComments(env.Ctx, domain.TaskTarget{TaskID: task.ID})
	if len(list) != 1 {
		t.Fatalf("comment not deleted")
	}
}

func TestChangeFeed(t *testing.T) {
	env := newTestEnv(t)
	d := env.newDomain(t, "feed")
	env.newDomain(t, "altro")
	task, _ := env.Engine.CreateTask(env.Ctx, d.ID, engine.TaskFields{Title: "T", Category: "C"})
	_, _ = env.Engine.SetTaskCompleted(env.Ctx, task.ID, true)
	changes, err := env.Engine.ListChanges(env.Ctx, 0, d.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	var types []string
	for _, c := range changes {
		if c.DomainID != d.ID {
			t.Fatalf("foreign change %+v", c)
		}
		types = append(types, c.Type)
	}
	if !reflect.DeepEqual(types, []string{"domain.created", "task.created", "task.completed"}) {
		t.Fatalf("unexpected change types %v", types)
	}
	latest, _ := env.Engine.LatestChangeID(env.Ctx)
	after, _ := env.Engine.ListChanges(env.Ctx, latest, "", 0)
	if len(after) != 0 {
		t.Fatalf("expected no changes after latest")
	}
}

func TestDomainStats(t *testing.T) {
	env := newTestEnv(t)
	env.newTemplate(t, "A")
	env.newTemplate(t, "B")
	a := env.newDomain(t, "a")
	env.newDomain(t, "b")
	tasks, _ := env.Engine.ListDomainTasks(env.Ctx, a.ID)
	_, _ = env.Engine.SetTaskCompleted(env.Ctx, tasks[0].ID, true)
	st, err := env.Engine.DomainStats(env.Ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if st.Total != 2 || st.InProgress != 1 || st.NotStarted != 1 || st.Completed != 0 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestPreferencesThroughEngine(t *testing.T) {
	env := newTestEnv(t)
	store := env.Engine.Preferences()
	q := "rossi"
	if _, err := store.Save(env.Ctx, prefs.Patch{SearchQuery: &q}); err != nil {
		t.Fatal(err)
	}
	p, err := store.Load(env.Ctx)
	if err != nil || p.SearchQuery != q || p.SortBy != "created_at" {
		t.Fatalf("prefs: %v %+v", err, p)
	}
}
