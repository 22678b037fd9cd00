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
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"lendline/internal/domain"
	"lendline/internal/graph"
	"lendline/internal/lifecycle"
	"lendline/internal/orchestrator"
	"lendline/internal/registry"
	"lendline/internal/repo"
	"lendline/internal/router"
)

// Config for the HTTP API handler.
type Config struct {
	Repo         repo.Repo
	Lifecycle    lifecycle.Manager
	Registry     *registry.Registry
	Router       *router.Router
	Orchestrator *orchestrator.Orchestrator
	BasePath     string
	Auth         AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"application not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
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

// New returns an HTTP handler exposing the Lendline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope.
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

	mux := chi.NewRouter()
	mux.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	mux.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Repo))
	hcfg := huma.DefaultConfig("Lendline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(mux, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(mux, basePath)
	registerHealth(group)
	registerChat(group, cfg)
	registerDocuments(group, cfg)
	registerApplications(group, cfg)
	registerRouting(group, cfg)
	registerAgents(group, cfg)
	registerEvents(group, cfg)
	registerOpenAPI(mux, api, basePath)

	return mux, nil
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
	if errors.Is(err, graph.ErrNotFound) || errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "required"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
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

func bodyBytes(ctx context.Context) []byte {
	b, _ := ctx.Value(bodyBytesKey{}).([]byte)
	return b
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerChat(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "chat",
		Method:      http.MethodPost,
		Path:        "/chat",
		Summary:     "Send a chat message",
		Description: "Detects intent, resolves the application the message belongs to, links the conversation thread, and dispatches the message to the best agent.",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body ChatRequest `json:"body"`
	}) (*struct {
		Body ChatResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.Message == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "message is required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		threadID := input.Body.ThreadID
		if threadID == "" {
			threadID = uuid.NewString()
		}

		intent := lifecycle.DetectIntent(input.Body.Context, "", input.Body.Message)
		resolution, err := cfg.Lifecycle.FindOrCreateApplication(ctx, lifecycle.FindOrCreateOptions{
			PersonName:   input.Body.PersonName,
			Conversation: input.Body.Context,
			Intent:       intent,
			ActorID:      actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		if resolution.ApplicationID != "" {
			if err := cfg.Lifecycle.LinkConversation(ctx, threadID, resolution.ApplicationID, actorID); err != nil {
				return nil, handleError(err)
			}
		}

		result := cfg.Orchestrator.Process(ctx, input.Body.Message)
		if err := cfg.Repo.AppendEvent(ctx, "request.routed", "conversation", threadID, actorID, map[string]any{
			"agent":      result.AgentName,
			"confidence": result.Confidence,
			"intent":     string(intent),
		}); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ChatResponse `json:"body"`
		}{Body: ChatResponse{
			ThreadID:      threadID,
			Reply:         result.Response,
			AgentName:     result.AgentName,
			Confidence:    result.Confidence,
			Intent:        string(intent),
			ApplicationID: resolution.ApplicationID,
			Status:        resolution.Status,
			Phase:         string(resolution.Phase),
		}}, nil
	})
}

func registerDocuments(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID:   "upload-document",
		Method:        http.MethodPost,
		Path:          "/documents",
		Summary:       "Upload a document",
		Description:   "Registers document content against an application, creating one from the extracted entities when none exists.",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body DocumentRequest `json:"body"`
	}) (*struct {
		Body DocumentResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.Content == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "content is required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}

		if input.Body.ApplicationID != "" {
			app, err := cfg.Repo.GetApplication(ctx, input.Body.ApplicationID)
			if err != nil {
				return nil, handleError(err)
			}
			if domain.PhaseRank(app.Phase) < domain.PhaseRank(domain.PhaseDocumentCollection) {
				if err := cfg.Lifecycle.UpdatePhase(ctx, app.ID, domain.PhaseDocumentCollection, actorID); err != nil {
					return nil, handleError(err)
				}
				app.Phase = domain.PhaseDocumentCollection
			}
			if err := cfg.Repo.AppendEvent(ctx, "document.received", "application", app.ID, actorID,
				map[string]any{"bytes": len(input.Body.Content)}); err != nil {
				return nil, handleError(err)
			}
			return &struct {
				Body DocumentResponse `json:"body"`
			}{Body: DocumentResponse{
				ApplicationID: app.ID,
				Status:        "attached",
				Phase:         string(app.Phase),
			}}, nil
		}

		resolution, err := cfg.Lifecycle.FindOrCreateApplication(ctx, lifecycle.FindOrCreateOptions{
			PersonName:       input.Body.PersonName,
			DocumentEntities: input.Body.Entities,
			Intent:           domain.IntentDocumentUpload,
			ActorID:          actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		if resolution.ApplicationID != "" {
			if err := cfg.Repo.AppendEvent(ctx, "document.received", "application", resolution.ApplicationID, actorID,
				map[string]any{"bytes": len(input.Body.Content)}); err != nil {
				return nil, handleError(err)
			}
		}
		return &struct {
			Body DocumentResponse `json:"body"`
		}{Body: DocumentResponse{
			ApplicationID: resolution.ApplicationID,
			Status:        resolution.Status,
			Phase:         string(resolution.Phase),
		}}, nil
	})
}

func registerApplications(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "list-applications",
		Method:      http.MethodGet,
		Path:        "/applications",
		Summary:     "List applications",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []ApplicationResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := cfg.Repo.ListApplications(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ApplicationResponse `json:"body"`
		}{Body: mapApplications(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-application",
		Method:      http.MethodGet,
		Path:        "/applications/{id}",
		Summary:     "Get application",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body ApplicationResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		app, err := cfg.Repo.GetApplication(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ApplicationResponse `json:"body"`
		}{Body: applicationResponse(app)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-application-phase",
		Method:      http.MethodPatch,
		Path:        "/applications/{id}/phase",
		Summary:     "Update application phase",
		Description: "Moves the application to a new lifecycle phase. Backward moves are allowed and logged.",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ID   string          `path:"id"`
		Body SetPhaseRequest `json:"body"`
	}) (*struct {
		Body ApplicationResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.Phase == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "phase is required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := cfg.Lifecycle.UpdatePhase(ctx, input.ID, domain.ApplicationPhase(input.Body.Phase), actorID); err != nil {
			return nil, handleError(err)
		}
		app, err := cfg.Repo.GetApplication(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ApplicationResponse `json:"body"`
		}{Body: applicationResponse(app)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-application-threads",
		Method:      http.MethodGet,
		Path:        "/applications/{id}/threads",
		Summary:     "List linked conversation threads",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []ThreadResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if _, err := cfg.Repo.GetApplication(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		threads, err := cfg.Repo.ListThreads(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ThreadResponse `json:"body"`
		}{Body: mapThreads(threads)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "application-events",
		Method:      http.MethodGet,
		Path:        "/applications/{id}/events",
		Summary:     "Application event history",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if _, err := cfg.Repo.GetApplication(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		items, err := cfg.Repo.EventsForEntity(ctx, "application", input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: mapEvents(items)}, nil
	})
}

func registerRouting(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "route",
		Method:      http.MethodPost,
		Path:        "/route",
		Summary:     "Preview routing decision",
		Description: "Runs the capability router without dispatching the request to any agent.",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body RouteRequest `json:"body"`
	}) (*struct {
		Body router.Decision `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.Request == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "request is required", nil)
		}
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		decision := cfg.Router.Route(ctx, input.Body.Request)
		return &struct {
			Body router.Decision `json:"body"`
		}{Body: decision}, nil
	})
}

func registerAgents(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "list-agents",
		Method:      http.MethodGet,
		Path:        "/agents",
		Summary:     "List registered agents",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []AgentResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		cfg.Registry.Initialize(ctx)
		return &struct {
			Body []AgentResponse `json:"body"`
		}{Body: mapAgents(cfg.Registry.Cards())}, nil
	})
}

func registerEvents(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit" default:"50"`
	}) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		limit := input.Limit
		if limit <= 0 || limit > 500 {
			limit = 50
		}
		items, err := cfg.Repo.ListEvents(ctx, limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: mapEvents(items)}, nil
	})
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
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
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
	healthPath := path.Join(basePath, "health")
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath {
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
    <title>Lendline API Docs</title>
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
