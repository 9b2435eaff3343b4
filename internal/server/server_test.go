package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"domainflow/internal/config"
	"domainflow/internal/db"
	"domainflow/internal/domain"
	"domainflow/internal/engine"
	"domainflow/internal/migrate"
	sdk "domainflow/sdk/go"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func (s *testServer) SDK() *sdk.Client {
	c := sdk.New(s.URL)
	c.HTTPClient = s.client
	return c
}

func newTestEngine(t *testing.T, cfg *config.Config) engine.Engine {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return engine.New(conn, cfg)
}

func newTestServer(t *testing.T, auth AuthConfig) (*testServer, func()) {
	t.Helper()
	e := newTestEngine(t, config.Default())
	handler, err := New(Config{Engine: e, BasePath: "/v0", Auth: auth, Logger: log.New(io.Discard, "", 0)})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{Timeout: 5 * time.Second},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decodeError(t *testing.T, data []byte) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decode error envelope: %v (%s)", err, data)
	}
	return env
}

func TestDomainLifecycleThroughSDK(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	ctx := context.Background()
	c := srv.SDK()

	tpl, err := c.CreateTemplate(ctx, sdk.TemplateInput{
		Title:          "Backup settimanale",
		Category:       "manutenzione",
		Priority:       "high",
		Tags:           []string{"backup", "backup", " wp "},
		ChecklistItems: []sdk.ChecklistItem{{Text: "Scarica archivio"}},
	})
	if err != nil {
		t.Fatalf("create template: %v", err)
	}
	if len(tpl.Tags) != 2 || tpl.ChecklistItems[0].ID == "" {
		t.Fatalf("template not normalized: %+v", tpl)
	}
	if _, err := c.AddTemplateSubtask(ctx, tpl.ID, "Verifica spazio"); err != nil {
		t.Fatalf("add template subtask: %v", err)
	}

	d, err := c.CreateDomain(ctx, "Rossi", "https://rossi.it", "")
	if err != nil {
		t.Fatalf("create domain: %v", err)
	}
	if d.TotalTasks != 1 || d.Progress != 0 || d.Status != domain.StatusActive {
		t.Fatalf("unexpected created domain: %+v", d)
	}

	tasks, err := c.ListTasks(ctx, d.ID, "", "", "")
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks.Items) != 1 {
		t.Fatalf("expected one materialized task, got %d", len(tasks.Items))
	}
	task := tasks.Items[0]
	if task.TemplateID == nil || *task.TemplateID != tpl.ID || task.Completed || task.SubtasksTotal != 1 {
		t.Fatalf("unexpected task: %+v", task)
	}

	subs, err := c.ListSubtasks(ctx, task.ID)
	if err != nil || len(subs) != 1 {
		t.Fatalf("list subtasks: %v %d", err, len(subs))
	}
	if _, err := c.SetSubtaskCompleted(ctx, subs[0].ID, true); err != nil {
		t.Fatalf("complete subtask: %v", err)
	}
	tasks, _ = c.ListTasks(ctx, d.ID, "", "", "")
	if tasks.Items[0].Completed || !tasks.Items[0].EffectivelyCompleted {
		t.Fatalf("stored flag must stay false while effective completion is true: %+v", tasks.Items[0])
	}
	got, _ := c.GetDomain(ctx, d.ID)
	if got.Progress != 0 {
		t.Fatalf("progress follows the stored flag, got %d", got.Progress)
	}

	done, err := c.SetTaskCompleted(ctx, task.ID, true)
	if err != nil {
		t.Fatalf("complete task: %v", err)
	}
	if !done.Completed || done.CompletedAt == nil {
		t.Fatalf("completed_at not set: %+v", done)
	}
	got, _ = c.GetDomain(ctx, d.ID)
	if got.Progress != 100 || got.CompletedTasks != 1 {
		t.Fatalf("expected full progress, got %+v", got)
	}

	comment, err := c.AddTaskComment(ctx, task.ID, "fatto")
	if err != nil || comment.TaskID == nil || *comment.TaskID != task.ID {
		t.Fatalf("add comment: %v %+v", err, comment)
	}

	if err := c.DeleteDomain(ctx, d.ID); err != nil {
		t.Fatalf("delete domain: %v", err)
	}
	_, err = c.GetDomain(ctx, d.ID)
	var apiErr *sdk.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound || apiErr.Message != "Dominio non trovato" {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if _, err := srv.Engine.GetTask(ctx, task.ID); err == nil {
		t.Fatalf("task must be gone with its domain")
	}
}

func TestErrorEnvelope(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/domains/missing", nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d: %s", res.StatusCode, data)
	}
	env := decodeError(t, data)
	if env.Error.Code != "not_found" || env.Error.Message != "Dominio non trovato" {
		t.Fatalf("unexpected envelope: %+v", env)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/domains", map[string]any{"name": "  ", "url": "https://x.it"}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d: %s", res.StatusCode, data)
	}
	env = decodeError(t, data)
	if env.Error.Message != "Impossibile creare il dominio" || env.Error.Details["reason"] != "name is required" {
		t.Fatalf("unexpected envelope: %+v", env)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/templates", map[string]any{"category": "seo"}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("schema validation should be 400, got %d: %s", res.StatusCode, data)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/templates", map[string]any{"title": "t", "category": "seo", "estimated_hours": -1}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("negative hours should be 400, got %d: %s", res.StatusCode, data)
	}
}

func TestDeleteRequiresConfirmation(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	ctx := context.Background()
	d, err := srv.Engine.CreateDomain(ctx, engine.DomainInput{Name: "Bianchi", URL: "https://bianchi.it"})
	if err != nil {
		t.Fatalf("create domain: %v", err)
	}
	tpl, err := srv.Engine.CreateTemplate(ctx, engine.TaskFields{Title: "SSL", Category: "sicurezza"})
	if err != nil {
		t.Fatalf("create template: %v", err)
	}

	for _, url := range []string{"/v0/domains/" + d.ID, "/v0/templates/" + tpl.ID} {
		res, data := doJSON(t, srv.Client(), http.MethodDelete, srv.URL+url, nil, nil)
		if res.StatusCode != http.StatusPreconditionRequired {
			t.Fatalf("%s: status %d: %s", url, res.StatusCode, data)
		}
		if env := decodeError(t, data); env.Error.Code != "confirmation_required" {
			t.Fatalf("%s: unexpected code %q", url, env.Error.Code)
		}
	}
	if _, err := srv.Engine.GetDomain(ctx, d.ID); err != nil {
		t.Fatalf("unconfirmed delete must not run: %v", err)
	}
	res, data := doJSON(t, srv.Client(), http.MethodDelete, srv.URL+"/v0/templates/"+tpl.ID+"?confirm=true", nil, nil)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("confirmed delete status %d: %s", res.StatusCode, data)
	}
}

func TestDomainListUsesStoredPreferences(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	ctx := context.Background()
	c := srv.SDK()
	for _, name := range []string{"zeta", "Alfa", "mezzo"} {
		if _, err := c.CreateDomain(ctx, name, "https://"+name+".it", ""); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}
	list, err := c.ListDomains(ctx, "", "", nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if names(list.Items) != "mezzo,Alfa,zeta" {
		t.Fatalf("default sort is newest first, got %s", names(list.Items))
	}

	p, err := c.SavePreferences(ctx, map[string]any{"sortBy": "name"})
	if err != nil {
		t.Fatalf("save prefs: %v", err)
	}
	if p.SortBy != "name" || p.DomainFilters.FilterTag != "all" {
		t.Fatalf("unexpected merged prefs: %+v", p)
	}
	list, _ = c.ListDomains(ctx, "", "", nil)
	if names(list.Items) != "Alfa,mezzo,zeta" {
		t.Fatalf("stored sort not applied, got %s", names(list.Items))
	}
	list, _ = c.ListDomains(ctx, "ZE", "", nil)
	if names(list.Items) != "zeta" || list.Stats.Total != 1 {
		t.Fatalf("query filter not applied, got %s", names(list.Items))
	}

	if _, err := c.DomainAction(ctx, list.Items[0].ID, "close"); err != nil {
		t.Fatalf("close: %v", err)
	}
	list, _ = c.ListDomains(ctx, "", "", nil)
	if len(list.Items) != 2 {
		t.Fatalf("closed domain should be hidden, got %s", names(list.Items))
	}
	show := true
	list, _ = c.ListDomains(ctx, "", "", &show)
	if len(list.Items) != 3 {
		t.Fatalf("show_closed should list all, got %s", names(list.Items))
	}
}

func names(items []sdk.Domain) string {
	var buf bytes.Buffer
	for i, d := range items {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(d.Name)
	}
	return buf.String()
}

func TestAuthRequiredWhenSecretSet(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{JWTSecret: "s3cret", APIKey: "key-1"})
	defer cleanup()
	client := srv.Client()

	res, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health must stay open, got %d", res.StatusCode)
	}
	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/domains", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", res.StatusCode, data)
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/domains", nil, map[string]string{"Authorization": "Bearer nope"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token must be rejected, got %d", res.StatusCode)
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/domains", nil, map[string]string{"X-Api-Key": "key-1"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("api key must be accepted, got %d", res.StatusCode)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/auth/dev/login", map[string]any{"subject": "maria"}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login status %d: %s", res.StatusCode, data)
	}
	var login DevLoginResponse
	if err := json.Unmarshal(data, &login); err != nil || login.Token == "" {
		t.Fatalf("decode token: %v", err)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"Authorization": "Bearer " + login.Token})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me status %d: %s", res.StatusCode, data)
	}
	var me Principal
	if err := json.Unmarshal(data, &me); err != nil || me.Subject != "maria" || me.Source != "jwt" {
		t.Fatalf("unexpected principal %+v (%v)", me, err)
	}
}

func TestImplicitAdminWithoutSecret(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/me", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me status %d: %s", res.StatusCode, data)
	}
	var me Principal
	if err := json.Unmarshal(data, &me); err != nil || me.Subject != ImplicitAdmin {
		t.Fatalf("unexpected principal %+v (%v)", me, err)
	}
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/openapi.json", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("openapi status %d", res.StatusCode)
	}
}

func TestChangeFeedAndStream(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	ctx := context.Background()
	c := srv.SDK()
	d, err := c.CreateDomain(ctx, "Verdi", "https://verdi.it", "")
	if err != nil {
		t.Fatalf("create domain: %v", err)
	}
	feed, err := c.Changes(ctx, d.ID, 0)
	if err != nil {
		t.Fatalf("changes: %v", err)
	}
	if len(feed.Items) != 1 || feed.Items[0].Type != "domain.created" || feed.LatestID != feed.Items[0].ID {
		t.Fatalf("unexpected feed: %+v", feed)
	}

	h := handler{e: srv.Engine, log: log.New(io.Discard, "", 0)}
	streamCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var (
		mu  sync.Mutex
		got []string
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.streamChanges(streamCtx, d.ID, feed.LatestID, 10*time.Millisecond, func(ch domain.Change) error {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, ch.Type)
			if len(got) == 2 {
				cancel()
			}
			return nil
		})
	}()
	if _, err := c.DomainAction(ctx, d.ID, "pin"); err != nil {
		t.Fatalf("pin: %v", err)
	}
	if _, err := c.DomainAction(ctx, d.ID, "unpin"); err != nil {
		t.Fatalf("unpin: %v", err)
	}
	<-done
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[0] != "domain.pinned" || got[1] != "domain.unpinned" {
		t.Fatalf("unexpected streamed changes: %v", got)
	}
}

func TestWebhookDispatcherDeliversFilteredChanges(t *testing.T) {
	type delivery struct {
		event, secret string
		body          webhookEvent
	}
	var (
		mu    sync.Mutex
		calls []delivery
	)
	mux := http.NewServeMux()
	mux.HandleFunc("/hook", func(w http.ResponseWriter, r *http.Request) {
		var evt webhookEvent
		_ = json.NewDecoder(r.Body).Decode(&evt)
		mu.Lock()
		calls = append(calls, delivery{event: r.Header.Get("X-Domainflow-Event"), secret: r.Header.Get("X-Domainflow-Secret"), body: evt})
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	hookSrv := &http.Server{Handler: mux}
	go hookSrv.Serve(ln)
	defer hookSrv.Shutdown(context.Background())

	cfg := config.Default()
	cfg.Webhooks = []config.WebhookConfig{{
		URL:    "http://" + ln.Addr().String() + "/hook",
		Events: []string{"domain.closed", "domain.deleted"},
		Secret: "shh",
	}}
	e := newTestEngine(t, cfg)
	ctx := context.Background()
	old, err := e.CreateDomain(ctx, engine.DomainInput{Name: "vecchio", URL: "https://vecchio.it"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	gone, err := e.CreateDomain(ctx, engine.DomainInput{Name: "rimosso", URL: "https://rimosso.it"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	d := newWebhookDispatcher(e, log.New(io.Discard, "", 0))
	if d == nil {
		t.Fatalf("dispatcher expected with a configured hook")
	}
	d.dispatchAll(ctx) // initializes the cursor past existing history

	if _, err := e.CloseDomain(ctx, old.ID); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := e.PinDomain(ctx, old.ID); err != nil {
		t.Fatalf("pin: %v", err)
	}
	if err := e.DeleteDomain(ctx, gone.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	d.dispatchAll(ctx)

	mu.Lock()
	defer mu.Unlock()
	if len(calls) != 2 {
		t.Fatalf("expected two deliveries, got %d", len(calls))
	}
	if calls[0].event != "domain.closed" || calls[0].secret != "shh" || calls[0].body.DomainID != old.ID {
		t.Fatalf("unexpected delivery: %+v", calls[0])
	}
	snap := calls[0].body.Domain
	if snap == nil || snap.Name != "vecchio" || snap.Status != domain.StatusClosed {
		t.Fatalf("expected domain snapshot on delivery, got %+v", snap)
	}
	if calls[1].event != "domain.deleted" || calls[1].body.DomainID != gone.ID || calls[1].body.Domain != nil {
		t.Fatalf("deleted domain should be delivered without snapshot: %+v", calls[1])
	}
}

func TestOpenAPIServedConcurrently(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	const workers = 8
	bodies := make([][]byte, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := srv.Client().Get(srv.URL + "/v0/openapi.json")
			if err != nil {
				errs[i] = err
				return
			}
			defer res.Body.Close()
			bodies[i], errs[i] = io.ReadAll(res.Body)
		}(i)
	}
	wg.Wait()
	for i := range bodies {
		if errs[i] != nil {
			t.Fatalf("fetch %d: %v", i, errs[i])
		}
		if len(bodies[i]) == 0 || !bytes.Equal(bodies[i], bodies[0]) {
			t.Fatalf("document %d differs or is empty", i)
		}
	}
}

func TestNoDispatcherWithoutWebhooks(t *testing.T) {
	if d := newWebhookDispatcher(engine.Engine{Config: config.Default()}, nil); d != nil {
		t.Fatalf("no dispatcher expected")
	}
}
