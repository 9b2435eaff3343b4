package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"domainflow/internal/config"
	"domainflow/internal/domain"
	"domainflow/internal/engine"
	"domainflow/internal/repo"
)

const (
	defaultWebhookInterval = 2 * time.Second
	defaultWebhookTimeout  = 5 * time.Second
	defaultWebhookBatch    = 100
)

type webhookDispatcher struct {
	engine   engine.Engine
	webhooks []config.WebhookConfig
	client   *http.Client
	log      *log.Logger
	mu       sync.Mutex
	cursors  map[int]int64
}

// StartWebhookDispatcher delivers change rows to the configured webhooks
// until ctx is done. It returns immediately when none is configured.
func StartWebhookDispatcher(ctx context.Context, e engine.Engine, logger *log.Logger) {
	d := newWebhookDispatcher(e, logger)
	if d == nil {
		return
	}
	interval := defaultWebhookInterval
	if e.Config != nil {
		if v, err := e.Config.PollInterval(); err == nil && v > 0 {
			interval = v
		}
	}
	go d.run(ctx, interval)
}

func newWebhookDispatcher(e engine.Engine, logger *log.Logger) *webhookDispatcher {
	if e.Config == nil || len(e.Config.Webhooks) == 0 {
		return nil
	}
	if logger == nil {
		logger = log.Default()
	}
	return &webhookDispatcher{
		engine:   e,
		webhooks: e.Config.Webhooks,
		client:   &http.Client{Timeout: defaultWebhookTimeout},
		log:      logger,
		cursors:  make(map[int]int64),
	}
}

func (d *webhookDispatcher) run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		d.dispatchAll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (d *webhookDispatcher) dispatchAll(ctx context.Context) {
	for i, hook := range d.webhooks {
		if !hook.IsEnabled() {
			continue
		}
		if strings.TrimSpace(hook.URL) == "" {
			continue
		}
		d.dispatchWebhook(ctx, i, hook)
	}
}

func (d *webhookDispatcher) dispatchWebhook(ctx context.Context, idx int, hook config.WebhookConfig) {
	cursor := d.cursorFor(ctx, idx)
	changes, err := d.engine.ListChanges(ctx, cursor, "", defaultWebhookBatch)
	if err != nil {
		d.log.Printf("webhook: fetch changes failed: %v", err)
		return
	}
	filter := newEventFilter(hook.Events)
	snapshots := domainSnapshots{engine: d.engine, byID: map[string]*domainSnapshot{}}
	for _, c := range changes {
		if !filter.match(c.Type) {
			d.setCursor(idx, c.ID)
			continue
		}
		evt, err := newWebhookEvent(ctx, c, &snapshots)
		if err != nil {
			d.log.Printf("webhook: load domain %s failed: %v", c.DomainID, err)
			return
		}
		if err := d.postEvent(ctx, hook, evt); err != nil {
			// the row is retried on the next tick
			d.log.Printf("webhook: deliver %s to %s failed: %v", c.Type, hook.URL, err)
			return
		}
		d.setCursor(idx, c.ID)
	}
}

// cursorFor starts a hook at the newest change, so history is not replayed
// on every start.
func (d *webhookDispatcher) cursorFor(ctx context.Context, idx int) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.cursors[idx]; ok {
		return cur
	}
	cur, err := d.engine.LatestChangeID(ctx)
	if err != nil {
		d.log.Printf("webhook: init cursor failed: %v", err)
		cur = 0
	}
	d.cursors[idx] = cur
	return cur
}

func (d *webhookDispatcher) setCursor(idx int, value int64) {
	d.mu.Lock()
	d.cursors[idx] = value
	d.mu.Unlock()
}

// domainSnapshot is the domain as it is when the change is delivered, so
// receivers can show a name and progress without calling back.
type domainSnapshot struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
}

// domainSnapshots caches lookups for one delivery batch. A domain that no
// longer exists is remembered as nil.
type domainSnapshots struct {
	engine engine.Engine
	byID   map[string]*domainSnapshot
}

func (s *domainSnapshots) get(ctx context.Context, id string) (*domainSnapshot, error) {
	if id == "" {
		return nil, nil
	}
	if snap, ok := s.byID[id]; ok {
		return snap, nil
	}
	dom, err := s.engine.GetDomain(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		s.byID[id] = nil
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	snap := &domainSnapshot{ID: dom.ID, Name: dom.Name, URL: dom.URL, Status: dom.Status, Progress: dom.Progress}
	s.byID[id] = snap
	return snap, nil
}

type webhookEvent struct {
	ID         int64           `json:"id"`
	Type       string          `json:"type"`
	DomainID   string          `json:"domain_id,omitempty"`
	Domain     *domainSnapshot `json:"domain,omitempty"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	TS         string          `json:"ts"`
	Payload    json.RawMessage `json:"payload"`
	PayloadRaw string          `json:"payload_raw,omitempty"`
}

func newWebhookEvent(ctx context.Context, c domain.Change, snapshots *domainSnapshots) (webhookEvent, error) {
	evt := webhookEvent{
		ID:         c.ID,
		Type:       c.Type,
		DomainID:   c.DomainID,
		EntityKind: c.EntityKind,
		EntityID:   c.EntityID,
		TS:         c.TS,
		Payload:    json.RawMessage("{}"),
	}
	if c.Payload != "" {
		if json.Valid([]byte(c.Payload)) {
			evt.Payload = json.RawMessage(c.Payload)
		} else {
			evt.PayloadRaw = c.Payload
		}
	}
	snap, err := snapshots.get(ctx, c.DomainID)
	if err != nil {
		return evt, err
	}
	evt.Domain = snap
	return evt, nil
}

func (d *webhookDispatcher) postEvent(ctx context.Context, hook config.WebhookConfig, evt webhookEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	timeout := defaultWebhookTimeout
	if hook.TimeoutSeconds > 0 {
		timeout = time.Duration(hook.TimeoutSeconds) * time.Second
	}
	client := d.client
	if timeout != d.client.Timeout {
		client = &http.Client{Timeout: timeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Domainflow-Event", evt.Type)
	req.Header.Set("X-Domainflow-Delivery", fmt.Sprintf("%d", evt.ID))
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-Domainflow-Secret", hook.Secret)
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

type eventFilter struct {
	all bool
	set map[string]struct{}
}

func newEventFilter(events []string) eventFilter {
	if len(events) == 0 {
		return eventFilter{all: true}
	}
	set := make(map[string]struct{}, len(events))
	for _, evt := range events {
		key := strings.TrimSpace(evt)
		if key == "" {
			continue
		}
		set[key] = struct{}{}
	}
	if len(set) == 0 {
		return eventFilter{all: true}
	}
	return eventFilter{set: set}
}

func (f eventFilter) match(evt string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[evt]
	return ok
}
