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
	msgDomainNotFound   = "Dominio non trovato"
	msgLoadDomains      = "Impossibile caricare i domini"
	msgLoadDomain       = "Impossibile caricare i dati del dominio"
	msgCreateDomain     = "Impossibile creare il dominio"
	msgUpdateDomain     = "Impossibile aggiornare il dominio"
	msgCloseDomain      = "Impossibile chiudere il dominio"
	msgReopenDomain     = "Impossibile riaprire il dominio"
	msgDeleteDomain     = "Impossibile eliminare il dominio"
	msgPinDomain        = "Impossibile fissare il dominio in alto"
	msgUnpinDomain      = "Impossibile rimuovere il dominio dai fissati"
	msgLoadDomainsStats = "Impossibile caricare le statistiche"
)

var domainErrors = []int{
	http.StatusBadRequest,
	http.StatusNotFound,
	http.StatusInternalServerError,
}

type domainListQuery struct {
	Query      string `query:"q" doc:"Substring over name, url and description; stored search when empty"`
	SortBy     string `query:"sort_by" enum:"created_at,name,progress" doc:"Stored sort when empty"`
	ShowClosed string `query:"show_closed" enum:"true,false" doc:"Stored setting when empty"`
}

// resolveDomainQuery fills omitted list parameters from the stored preferences.
func (h handler) resolveDomainQuery(ctx context.Context, in domainListQuery) (query string, showClosed bool, sortBy string, err error) {
	stored, err := h.e.Preferences().Load(ctx)
	if err != nil {
		return "", false, "", err
	}
	query, sortBy, showClosed = stored.SearchQuery, stored.SortBy, stored.ShowClosedDomains
	if in.Query != "" {
		query = in.Query
	}
	if in.SortBy != "" {
		sortBy = in.SortBy
	}
	if v, ok, perr := parseFlag(in.ShowClosed); perr == nil && ok {
		showClosed = v
	}
	return query, showClosed, sortBy, nil
}

func registerDomains(api huma.API, h handler) {
	huma.Register(api, huma.Operation{
		OperationID: "list-domains",
		Method:      http.MethodGet,
		Path:        "/domains",
		Summary:     "List domains with progress, pinned first",
		Errors:      domainErrors,
	}, func(ctx context.Context, input *domainListQuery) (*out[DomainListResponse], error) {
		query, showClosed, sortBy, err := h.resolveDomainQuery(ctx, *input)
		if err != nil {
			return nil, h.fail("list domains", err, msgLoadDomains, msgDomainNotFound)
		}
		all, err := h.e.ListDomains(ctx, true)
		if err != nil {
			return nil, h.fail("list domains", err, msgLoadDomains, msgDomainNotFound)
		}
		items := listing.ComposeDomains(all, query, showClosed, sortBy, h.e.Collator)
		return reply(DomainListResponse{Items: items, Stats: progress.Summarize(items)}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "domain-stats",
		Method:      http.MethodGet,
		Path:        "/domains/stats",
		Summary:     "Dashboard stats over the listed domains",
		Errors:      domainErrors,
	}, func(ctx context.Context, input *struct {
		ShowClosed string `query:"show_closed" enum:"true,false"`
	}) (*out[progress.Stats], error) {
		_, showClosed, _, err := h.resolveDomainQuery(ctx, domainListQuery{ShowClosed: input.ShowClosed})
		if err != nil {
			return nil, h.fail("domain stats", err, msgLoadDomainsStats, msgDomainNotFound)
		}
		st, err := h.e.DomainStats(ctx, showClosed)
		if err != nil {
			return nil, h.fail("domain stats", err, msgLoadDomainsStats, msgDomainNotFound)
		}
		return reply(st), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-domain",
		Method:        http.MethodPost,
		Path:          "/domains",
		Summary:       "Create a domain and copy every template into it",
		DefaultStatus: http.StatusCreated,
		Errors:        domainErrors,
	}, func(ctx context.Context, input *struct {
		Body engine.DomainInput `json:"body"`
	}) (*out[domain.Domain], error) {
		d, err := h.e.CreateDomain(ctx, input.Body)
		if err != nil {
			return nil, h.fail("create domain", err, msgCreateDomain, msgDomainNotFound)
		}
		return reply(d), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-domain",
		Method:      http.MethodGet,
		Path:        "/domains/{id}",
		Summary:     "Get domain",
		Errors:      domainErrors,
	}, func(ctx context.Context, input *idPath) (*out[domain.Domain], error) {
		d, err := h.e.GetDomain(ctx, input.ID)
		if err != nil {
			return nil, h.fail("get domain", err, msgLoadDomain, msgDomainNotFound)
		}
		return reply(d), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-domain",
		Method:      http.MethodPatch,
		Path:        "/domains/{id}",
		Summary:     "Edit name, url or description",
		Errors:      domainErrors,
	}, func(ctx context.Context, input *struct {
		ID   string             `path:"id"`
		Body engine.DomainPatch `json:"body"`
	}) (*out[domain.Domain], error) {
		d, err := h.e.UpdateDomain(ctx, input.ID, input.Body)
		if err != nil {
			return nil, h.fail("update domain", err, msgUpdateDomain, msgDomainNotFound)
		}
		return reply(d), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-domain",
		Method:        http.MethodDelete,
		Path:          "/domains/{id}",
		Summary:       "Delete domain with its tasks, subtasks and comments",
		DefaultStatus: http.StatusNoContent,
		Errors:        append([]int{http.StatusPreconditionRequired}, domainErrors...),
	}, func(ctx context.Context, input *struct {
		ID      string `path:"id"`
		Confirm bool   `query:"confirm"`
	}) (*struct{}, error) {
		if !input.Confirm {
			return nil, confirmationRequired("il dominio")
		}
		if err := h.e.DeleteDomain(ctx, input.ID); err != nil {
			return nil, h.fail("delete domain", err, msgDeleteDomain, msgDomainNotFound)
		}
		return nil, nil
	})

	domainAction := func(id, path, summary, op, msg string, fn func(context.Context, string) (domain.Domain, error)) {
		huma.Register(api, huma.Operation{
			OperationID: id,
			Method:      http.MethodPost,
			Path:        path,
			Summary:     summary,
			Errors:      domainErrors,
		}, func(ctx context.Context, input *idPath) (*out[domain.Domain], error) {
			d, err := fn(ctx, input.ID)
			if err != nil {
				return nil, h.fail(op, err, msg, msgDomainNotFound)
			}
			return reply(d), nil
		})
	}
	domainAction("close-domain", "/domains/{id}/close", "Close domain", "close domain", msgCloseDomain, h.e.CloseDomain)
	domainAction("reopen-domain", "/domains/{id}/reopen", "Reopen domain", "reopen domain", msgReopenDomain, h.e.ReopenDomain)
	domainAction("pin-domain", "/domains/{id}/pin", "Pin domain to the top", "pin domain", msgPinDomain, h.e.PinDomain)
	domainAction("unpin-domain", "/domains/{id}/unpin", "Unpin domain", "unpin domain", msgUnpinDomain, h.e.UnpinDomain)
}
