package server

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"domainflow/internal/domain"
	"domainflow/internal/prefs"
)

const (
	msgLoadPreferences = "Impossibile caricare le preferenze"
	msgSavePreferences = "Impossibile salvare le preferenze"
	msgLoadChanges     = "Impossibile caricare le modifiche"

	defaultPollInterval = 2 * time.Second
	changeBatch         = 100
)

func registerPreferences(api huma.API, h handler) {
	huma.Register(api, huma.Operation{
		OperationID: "get-preferences",
		Method:      http.MethodGet,
		Path:        "/preferences",
		Summary:     "Load dashboard preferences with defaults",
		Errors:      []int{http.StatusInternalServerError},
	}, func(ctx context.Context, _ *struct{}) (*out[prefs.Preferences], error) {
		p, err := h.e.Preferences().Load(ctx)
		if err != nil {
			return nil, h.fail("load preferences", err, msgLoadPreferences, msgLoadPreferences)
		}
		return reply(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-preferences",
		Method:      http.MethodPatch,
		Path:        "/preferences",
		Summary:     "Merge a partial update into the stored preferences",
		Errors:      []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body prefs.Patch `json:"body"`
	}) (*out[prefs.Preferences], error) {
		p, err := h.e.Preferences().Save(ctx, input.Body)
		if err != nil {
			return nil, h.fail("save preferences", err, msgSavePreferences, msgSavePreferences)
		}
		return reply(p), nil
	})
}

func registerChanges(api huma.API, h handler) {
	huma.Register(api, huma.Operation{
		OperationID: "list-domain-changes",
		Method:      http.MethodGet,
		Path:        "/domains/{id}/changes",
		Summary:     "List change rows of a domain after a cursor",
		Errors:      []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		ID    string `path:"id"`
		After int64  `query:"after" minimum:"0"`
		Limit int    `query:"limit" default:"100" minimum:"1" maximum:"500"`
	}) (*out[ChangeListResponse], error) {
		items, err := h.e.ListChanges(ctx, input.After, input.ID, input.Limit)
		if err != nil {
			return nil, h.fail("list changes", err, msgLoadChanges, msgDomainNotFound)
		}
		latest, err := h.e.LatestChangeID(ctx)
		if err != nil {
			return nil, h.fail("list changes", err, msgLoadChanges, msgDomainNotFound)
		}
		return reply(ChangeListResponse{Items: items, LatestID: latest}), nil
	})

	sse.Register(api, huma.Operation{
		OperationID: "stream-domain-changes",
		Method:      http.MethodGet,
		Path:        "/domains/{id}/changes/stream",
		Summary:     "Stream change rows of a domain as server-sent events",
	}, map[string]any{
		"change": domain.Change{},
	}, func(ctx context.Context, input *struct {
		ID    string `path:"id"`
		After int64  `query:"after" minimum:"0" doc:"Replay rows after this id; 0 starts from now"`
	}, send sse.Sender) {
		h.streamChanges(ctx, input.ID, input.After, h.pollInterval(), func(c domain.Change) error {
			return send(sse.Message{ID: int(c.ID), Data: c})
		})
	})
}

func (h handler) pollInterval() time.Duration {
	if h.e.Config == nil {
		return defaultPollInterval
	}
	d, err := h.e.Config.PollInterval()
	if err != nil || d <= 0 {
		return defaultPollInterval
	}
	return d
}

// streamChanges polls the change feed and emits every new row of domainID
// until ctx ends or emit fails. One event per row, no coalescing.
func (h handler) streamChanges(ctx context.Context, domainID string, after int64, interval time.Duration, emit func(domain.Change) error) {
	cursor := after
	if cursor <= 0 {
		latest, err := h.e.LatestChangeID(ctx)
		if err != nil {
			h.log.Printf("stream changes: init cursor: %v", err)
			return
		}
		cursor = latest
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		items, err := h.e.ListChanges(ctx, cursor, domainID, changeBatch)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			h.log.Printf("stream changes: %v", err)
		}
		for _, c := range items {
			if err := emit(c); err != nil {
				return
			}
			cursor = c.ID
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
