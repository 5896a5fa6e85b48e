package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/tktechnologies/meeting-agent/internal/domain"
	"github.com/tktechnologies/meeting-agent/internal/engine"
	"github.com/tktechnologies/meeting-agent/internal/engine/auth"
	"github.com/tktechnologies/meeting-agent/internal/metrics"
	"github.com/tktechnologies/meeting-agent/internal/repo"
	"github.com/tktechnologies/meeting-agent/internal/research"
	"github.com/tktechnologies/meeting-agent/internal/store"
)

// Config for the HTTP API handler.
type Config struct {
	Engine engine.Engine
	// Research is probed by /health/research. Nil reports research as disabled.
	Research *research.Client
	// Metrics is served at /metrics outside the base path. Nil serves the
	// default Prometheus registry.
	Metrics  *metrics.Prometheus
	BasePath string
	Auth     AuthConfig
	Logger   *zap.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"bad_request"`
	Message string         `json:"message" example:"invalid macro mode"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"scope\":\"agenda.plan\"}"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the agenda API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	if cfg.Auth.Logger == nil {
		cfg.Auth.Logger = cfg.Logger
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Meeting Agent API", "2.0.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	router.Handle("/metrics", cfg.Metrics.Handler())
	registerDocs(router, basePath)
	registerHealth(group, cfg.Research)
	registerAgendas(group, cfg.Engine)
	registerWorkstreams(group, cfg.Engine)
	registerFacts(group, cfg.Engine)
	registerMeetings(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"scope": fe.Scope})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	if errors.Is(err, engine.ErrInvalidMacroMode) {
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func requireScope(ctx context.Context, scope string) (Principal, error) {
	p, ok := principalFromContext(ctx)
	if !ok || p.ActorID == "" {
		return Principal{}, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
	}
	if err := auth.Require(p.Scopes, scope); err != nil {
		return Principal{}, err
	}
	return p, nil
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	open := map[string]bool{}
	for _, p := range publicPaths(basePath) {
		open[p] = true
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if open[route] {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Meeting Agent API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API, client *research.Client) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body HealthResponse `json:"body"`
	}, error) {
		return &struct {
			Body HealthResponse `json:"body"`
		}{Body: HealthResponse{Status: "ok"}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "health-research",
		Method:      http.MethodGet,
		Path:        "/health/research",
		Summary:     "Deep research service health",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body HealthResponse `json:"body"`
	}, error) {
		resp := HealthResponse{Status: "disabled"}
		if client != nil {
			ok, err := client.Health(ctx)
			switch {
			case err != nil:
				resp = HealthResponse{Status: "degraded", Detail: err.Error()}
			case !ok:
				resp = HealthResponse{Status: "degraded", Detail: "agent not ready"}
			default:
				resp = HealthResponse{Status: "ok"}
			}
		}
		return &struct {
			Body HealthResponse `json:"body"`
		}{Body: resp}, nil
	})
}

type orgPath struct {
	OrgID string `path:"org_id" minLength:"1"`
}

func registerAgendas(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "plan-agenda",
		Method:      http.MethodPost,
		Path:        "/orgs/{org_id}/agendas/plan",
		Summary:     "Plan a meeting agenda",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		orgPath
		Body PlanAgendaRequest `json:"body"`
	}) (*struct {
		Body domain.AgendaProposal `json:"body"`
	}, error) {
		p, err := requireScope(ctx, auth.ScopePlan)
		if err != nil {
			return nil, handleError(err)
		}
		proposal, err := e.PlanAgenda(ctx, engine.PlanOptions{
			OrgID:           input.OrgID,
			Subject:         input.Body.Subject,
			Prompt:          input.Body.Prompt,
			DurationMinutes: input.Body.DurationMinutes,
			Language:        input.Body.Language,
			MacroMode:       input.Body.MacroMode,
			ActorID:         p.ActorID,
			Persist:         input.Body.Persist,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.AgendaProposal `json:"body"`
		}{Body: proposal}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-agendas",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/agendas",
		Summary:     "List persisted agenda proposals",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		orgPath
		Limit int `query:"limit" default:"50"`
	}) (*struct {
		Body ListResponse[domain.AgendaProposal] `json:"body"`
	}, error) {
		if _, err := requireScope(ctx, auth.ScopeAgendaRead); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListProposals(ctx, input.OrgID, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ListResponse[domain.AgendaProposal] `json:"body"`
		}{Body: listOf(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-agenda",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/agendas/{proposal_id}",
		Summary:     "Get a persisted agenda proposal",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		orgPath
		ProposalID string `path:"proposal_id"`
	}) (*struct {
		Body domain.AgendaProposal `json:"body"`
	}, error) {
		if _, err := requireScope(ctx, auth.ScopeAgendaRead); err != nil {
			return nil, handleError(err)
		}
		p, err := e.Repo.GetProposal(ctx, input.ProposalID)
		if err != nil {
			return nil, handleError(err)
		}
		if p.OrgID != input.OrgID {
			return nil, handleError(repo.ErrNotFound)
		}
		return &struct {
			Body domain.AgendaProposal `json:"body"`
		}{Body: p}, nil
	})
}

func registerWorkstreams(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-workstreams",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/workstreams",
		Summary:     "List workstreams",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		orgPath
		Status      string `query:"status" enum:"active,paused,archived"`
		Q           string `query:"q"`
		MinPriority int    `query:"min_priority"`
		Limit       int    `query:"limit" default:"50"`
	}) (*struct {
		Body ListResponse[domain.Workstream] `json:"body"`
	}, error) {
		if _, err := requireScope(ctx, auth.ScopeWorkstreamRead); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListWorkstreams(ctx, input.OrgID, store.WorkstreamFilters{
			Status:      input.Status,
			Query:       input.Q,
			MinPriority: input.MinPriority,
			Limit:       normalizeLimit(input.Limit),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ListResponse[domain.Workstream] `json:"body"`
		}{Body: listOf(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-workstream",
		Method:        http.MethodPost,
		Path:          "/orgs/{org_id}/workstreams",
		Summary:       "Create workstream",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		orgPath
		Body CreateWorkstreamRequest `json:"body"`
	}) (*struct {
		Body domain.Workstream `json:"body"`
	}, error) {
		p, err := requireScope(ctx, auth.ScopeWorkstreamWrite)
		if err != nil {
			return nil, handleError(err)
		}
		b := input.Body
		w, err := e.CreateWorkstream(ctx, engine.WorkstreamCreateOptions{
			ID:          strPtrValue(b.ID),
			OrgID:       input.OrgID,
			Title:       b.Title,
			Description: strPtrValue(b.Description),
			Status:      strPtrValue(b.Status),
			Health:      strPtrValue(b.Health),
			Priority:    intPtrValue(b.Priority),
			Owner:       strPtrValue(b.Owner),
			StartDate:   strPtrValue(b.StartDate),
			TargetDate:  strPtrValue(b.TargetDate),
			Tags:        b.Tags,
			ActorID:     p.ActorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Workstream `json:"body"`
		}{Body: w}, nil
	})

	type workstreamPath struct {
		orgPath
		WorkstreamID string `path:"workstream_id"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "get-workstream",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/workstreams/{workstream_id}",
		Summary:     "Get workstream with its fact links",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *workstreamPath) (*struct {
		Body WorkstreamResponse `json:"body"`
	}, error) {
		if _, err := requireScope(ctx, auth.ScopeWorkstreamRead); err != nil {
			return nil, handleError(err)
		}
		w, err := e.Repo.Workstream(ctx, input.OrgID, input.WorkstreamID)
		if err != nil {
			return nil, handleError(err)
		}
		links, err := e.Repo.ListLinks(ctx, w.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body WorkstreamResponse `json:"body"`
		}{Body: WorkstreamResponse{Workstream: w, Links: links}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-workstream",
		Method:      http.MethodPatch,
		Path:        "/orgs/{org_id}/workstreams/{workstream_id}",
		Summary:     "Update workstream",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		workstreamPath
		Body UpdateWorkstreamRequest `json:"body"`
	}) (*struct {
		Body domain.Workstream `json:"body"`
	}, error) {
		p, err := requireScope(ctx, auth.ScopeWorkstreamWrite)
		if err != nil {
			return nil, handleError(err)
		}
		b := input.Body
		raw := rawBodyMap(ctx)
		_, tagsSet := raw["tags"]
		w, err := e.UpdateWorkstream(ctx, engine.WorkstreamUpdateOptions{
			OrgID:       input.OrgID,
			ID:          input.WorkstreamID,
			Title:       b.Title,
			Description: b.Description,
			Status:      b.Status,
			Health:      b.Health,
			Priority:    b.Priority,
			Owner:       b.Owner,
			TargetDate:  b.TargetDate,
			Tags:        b.Tags,
			SetTags:     tagsSet,
			ActorID:     p.ActorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Workstream `json:"body"`
		}{Body: w}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "link-workstream-facts",
		Method:      http.MethodPost,
		Path:        "/orgs/{org_id}/workstreams/{workstream_id}/facts",
		Summary:     "Link facts to a workstream",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		workstreamPath
		Body LinkFactsRequest `json:"body"`
	}) (*struct {
		Body LinkFactsResponse `json:"body"`
	}, error) {
		p, err := requireScope(ctx, auth.ScopeWorkstreamWrite)
		if err != nil {
			return nil, handleError(err)
		}
		if _, err := e.Repo.Workstream(ctx, input.OrgID, input.WorkstreamID); err != nil {
			return nil, handleError(err)
		}
		weight := store.ClampWeight(1)
		if input.Body.Weight != nil {
			weight = store.ClampWeight(*input.Body.Weight)
		}
		if err := e.LinkFacts(ctx, input.OrgID, input.WorkstreamID, input.Body.FactIDs, weight, p.ActorID); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body LinkFactsResponse `json:"body"`
		}{Body: LinkFactsResponse{WorkstreamID: input.WorkstreamID, FactIDs: input.Body.FactIDs, Weight: weight}}, nil
	})
}

func registerFacts(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-fact",
		Method:        http.MethodPost,
		Path:          "/orgs/{org_id}/facts",
		Summary:       "Record a fact",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		orgPath
		Body CreateFactRequest `json:"body"`
	}) (*struct {
		Body domain.Fact `json:"body"`
	}, error) {
		p, err := requireScope(ctx, auth.ScopeFactWrite)
		if err != nil {
			return nil, handleError(err)
		}
		b := input.Body
		f, err := e.AddFact(ctx, engine.FactCreateOptions{
			ID:           strPtrValue(b.ID),
			OrgID:        input.OrgID,
			Type:         b.Type,
			Status:       b.Status,
			Text:         b.Text,
			Owner:        b.Owner,
			Tags:         b.Tags,
			Evidence:     b.Evidence,
			DueAt:        b.DueAt,
			Source:       b.Source,
			WorkstreamID: b.WorkstreamID,
			ActorID:      p.ActorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Fact `json:"body"`
		}{Body: f}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-facts",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/facts",
		Summary:     "Search or list facts",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		orgPath
		Q      string `query:"q"`
		Type   string `query:"type" enum:"decision,risk,action_item,status,goal,other"`
		Status string `query:"status" enum:"draft,proposed,published,validated"`
		Limit  int    `query:"limit" default:"50"`
	}) (*struct {
		Body ListResponse[domain.Fact] `json:"body"`
	}, error) {
		if _, err := requireScope(ctx, auth.ScopeFactRead); err != nil {
			return nil, handleError(err)
		}
		limit := normalizeLimit(input.Limit)
		var (
			items []domain.Fact
			err   error
		)
		if strings.TrimSpace(input.Q) != "" {
			items, err = e.Repo.SearchFacts(ctx, input.OrgID, input.Q, limit)
		} else {
			items, err = e.Repo.ListFacts(ctx, repo.FactFilters{
				OrgID:  input.OrgID,
				Type:   input.Type,
				Status: input.Status,
				Limit:  limit,
			})
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ListResponse[domain.Fact] `json:"body"`
		}{Body: listOf(items)}, nil
	})
}

func registerMeetings(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "record-meeting",
		Method:        http.MethodPost,
		Path:          "/orgs/{org_id}/meetings",
		Summary:       "Record a held meeting",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		orgPath
		Body CreateMeetingRequest `json:"body"`
	}) (*struct {
		Body domain.Meeting `json:"body"`
	}, error) {
		p, err := requireScope(ctx, auth.ScopeMeetingWrite)
		if err != nil {
			return nil, handleError(err)
		}
		m, err := e.RecordMeeting(ctx, engine.MeetingOptions{
			OrgID:     input.OrgID,
			Title:     input.Body.Title,
			Subject:   input.Body.Subject,
			HeldAt:    input.Body.HeldAt,
			OpenItems: input.Body.OpenItems,
			ActorID:   p.ActorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Meeting `json:"body"`
		}{Body: m}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		orgPath
		Type   string `query:"type"`
		Limit  int    `query:"limit" default:"50"`
		Cursor string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		if _, err := requireScope(ctx, auth.ScopeAgendaRead); err != nil {
			return nil, handleError(err)
		}
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.Repo.LatestEvents(ctx, limit+1, cursorID, input.OrgID, input.Type)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []domain.Event{}}
		if len(items) > limit {
			items = items[:limit]
			resp.NextCursor = strconv.FormatInt(items[limit-1].ID, 10)
		}
		resp.Items = append(resp.Items, items...)
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return nil
	}
	data, _ := io.ReadAll(req.Body)
	return data
}

func rawBodyMap(ctx context.Context) map[string]json.RawMessage {
	data := bodyBytes(ctx)
	if len(data) == 0 {
		return map[string]json.RawMessage{}
	}
	var outer map[string]json.RawMessage
	if err := json.Unmarshal(data, &outer); err != nil {
		return map[string]json.RawMessage{}
	}
	return outer
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}

func strPtrValue(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func intPtrValue(ptr *int) int {
	if ptr == nil {
		return 0
	}
	return *ptr
}
