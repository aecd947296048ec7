package server

import (
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

	"argus/internal/store"
	"argus/internal/workflow"
)

// Config for the HTTP API handler.
type Config struct {
	Workflow workflow.Service
	Store    store.Store
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"already_assigned_to_other"`
	Message string         `json:"message" example:"mandate already assigned to another investigator"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope every endpoint returns.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Argus API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema validation failures are the client's fault.
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Store))
	hcfg := huma.DefaultConfig("Argus API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerMandates(group, cfg.Store)
	registerWorkflow(group, cfg.Workflow, cfg.Store)
	registerNotifications(group, cfg.Store)
	registerEvents(group, cfg.Store)
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

// handleError maps workflow and store errors onto the HTTP error envelope.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if kind := workflow.KindOf(err); kind != "" {
		return newAPIError(statusForKind(kind), string(kind), err.Error(), nil)
	}
	if errors.Is(err, store.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	if errors.Is(err, store.ErrConflict) {
		return newAPIError(http.StatusConflict, "conflict", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func statusForKind(kind workflow.Kind) int {
	switch kind {
	case workflow.KindUnauthenticated:
		return http.StatusUnauthorized
	case workflow.KindUnauthorized:
		return http.StatusForbidden
	case workflow.KindNotFound:
		return http.StatusNotFound
	case workflow.KindInvalidState,
		workflow.KindTerminalState,
		workflow.KindAlreadyAssigned,
		workflow.KindAlreadyAssignedToOther,
		workflow.KindAlreadyInState:
		return http.StatusConflict
	case workflow.KindEligibilityRejected:
		return http.StatusUnprocessableEntity
	case workflow.KindStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusServiceUnavailable:
		return "store_unavailable"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func callerFromContext(ctx context.Context) (workflow.Caller, huma.StatusError) {
	userID, authErr := userIDFromContext(ctx)
	if authErr != nil {
		return workflow.Caller{}, authErr
	}
	return workflow.Caller{UserID: userID}, nil
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
    <title>Argus API Docs</title>
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

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*healthOutput, error) {
		out := &healthOutput{}
		out.Body.Status = "ok"
		return out, nil
	})
}

func registerMandates(api huma.API, s store.Store) {
	huma.Register(api, huma.Operation{
		OperationID: "list-mandates",
		Method:      http.MethodGet,
		Path:        "/mandates",
		Summary:     "List mandates",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *mandateListInput) (*mandateListOutput, error) {
		items, err := s.ListMandates(ctx, store.MandateFilters{
			AgencyID:   input.AgencyID,
			Status:     input.Status,
			AssignedTo: input.AssignedTo,
		})
		if err != nil {
			return nil, handleError(err)
		}
		out := &mandateListOutput{}
		out.Body.Mandates = items
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-mandate",
		Method:      http.MethodGet,
		Path:        "/mandates/{mandateID}",
		Summary:     "Get mandate",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *mandateIDInput) (*mandateOutput, error) {
		m, err := s.GetMandate(ctx, input.MandateID)
		if err != nil {
			return nil, handleError(err)
		}
		return &mandateOutput{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-candidatures",
		Method:      http.MethodGet,
		Path:        "/mandates/{mandateID}/candidatures",
		Summary:     "List candidatures for a mandate",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *candidatureListInput) (*candidatureListOutput, error) {
		if _, err := s.GetMandate(ctx, input.MandateID); err != nil {
			return nil, handleError(err)
		}
		items, err := s.ListCandidatures(ctx, input.MandateID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &candidatureListOutput{}
		for _, c := range items {
			if input.Status != "" && c.Status != input.Status {
				continue
			}
			out.Body.Candidatures = append(out.Body.Candidatures, c)
		}
		return out, nil
	})
}

func registerWorkflow(api huma.API, wf workflow.Service, s store.Store) {
	outcome := func(ctx context.Context, mandateID, redirect string) (*outcomeOutput, error) {
		m, err := s.GetMandate(ctx, mandateID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &outcomeOutput{}
		out.Body.Mandate = m
		out.Body.Redirect = redirect
		return out, nil
	}

	huma.Register(api, huma.Operation{
		OperationID: "accept-candidature",
		Method:      http.MethodPost,
		Path:        "/mandates/{mandateID}/candidatures/{candidatureID}/accept",
		Summary:     "Accept a candidature and assign its investigator",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *acceptInput) (*outcomeOutput, error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if input.Body.InvestigatorID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "investigator_id is required", nil)
		}
		res, err := wf.AcceptCandidature(ctx, caller, input.CandidatureID, input.MandateID, input.Body.InvestigatorID)
		if err != nil {
			return nil, handleError(err)
		}
		return outcome(ctx, input.MandateID, res.RedirectHint)
	})

	huma.Register(api, huma.Operation{
		OperationID: "reject-candidature",
		Method:      http.MethodPost,
		Path:        "/mandates/{mandateID}/candidatures/{candidatureID}/reject",
		Summary:     "Reject a candidature",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *candidatureActionInput) (*outcomeOutput, error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := wf.RejectCandidature(ctx, caller, input.CandidatureID); err != nil {
			return nil, handleError(err)
		}
		return outcome(ctx, input.MandateID, "")
	})

	huma.Register(api, huma.Operation{
		OperationID: "unreject-candidature",
		Method:      http.MethodPost,
		Path:        "/mandates/{mandateID}/candidatures/{candidatureID}/unreject",
		Summary:     "Restore a rejected candidature",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *candidatureActionInput) (*outcomeOutput, error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := wf.UnrejectCandidature(ctx, caller, input.CandidatureID); err != nil {
			return nil, handleError(err)
		}
		return outcome(ctx, input.MandateID, "")
	})

	huma.Register(api, huma.Operation{
		OperationID: "assign-investigator",
		Method:      http.MethodPost,
		Path:        "/mandates/{mandateID}/assign",
		Summary:     "Assign an investigator directly",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *assignInput) (*outcomeOutput, error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if input.Body.InvestigatorID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "investigator_id is required", nil)
		}
		if err := wf.DirectAssignInvestigator(ctx, caller, input.MandateID, input.Body.InvestigatorID); err != nil {
			return nil, handleError(err)
		}
		return outcome(ctx, input.MandateID, "")
	})

	huma.Register(api, huma.Operation{
		OperationID: "unassign-investigator",
		Method:      http.MethodPost,
		Path:        "/mandates/{mandateID}/unassign",
		Summary:     "Unassign the current investigator",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *mandateIDInput) (*outcomeOutput, error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := wf.UnassignInvestigator(ctx, caller, input.MandateID); err != nil {
			return nil, handleError(err)
		}
		return outcome(ctx, input.MandateID, "")
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-mandate",
		Method:      http.MethodPost,
		Path:        "/mandates/{mandateID}/complete",
		Summary:     "Complete a mandate",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *mandateIDInput) (*outcomeOutput, error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := wf.CompleteMandate(ctx, caller, input.MandateID)
		if err != nil {
			return nil, handleError(err)
		}
		return outcome(ctx, input.MandateID, res.RedirectHint)
	})

	huma.Register(api, huma.Operation{
		OperationID: "reopen-mandate",
		Method:      http.MethodPost,
		Path:        "/mandates/{mandateID}/reopen",
		Summary:     "Reopen a completed mandate",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *mandateIDInput) (*outcomeOutput, error) {
		caller, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := wf.ReopenMandate(ctx, caller, input.MandateID); err != nil {
			return nil, handleError(err)
		}
		return outcome(ctx, input.MandateID, "")
	})
}

func registerNotifications(api huma.API, s store.Store) {
	huma.Register(api, huma.Operation{
		OperationID: "list-notifications",
		Method:      http.MethodGet,
		Path:        "/notifications",
		Summary:     "List the caller's notifications",
	}, func(ctx context.Context, input *notificationListInput) (*notificationListOutput, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		limit := input.Limit
		if limit <= 0 {
			limit = 50
		}
		items, err := s.ListNotifications(ctx, userID, limit)
		if err != nil {
			return nil, handleError(err)
		}
		out := &notificationListOutput{}
		out.Body.Notifications = items
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "read-notification",
		Method:      http.MethodPost,
		Path:        "/notifications/{notificationID}/read",
		Summary:     "Mark a notification read",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *notificationReadInput) (*notificationReadOutput, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if err := s.MarkNotificationRead(ctx, input.NotificationID); err != nil {
			return nil, handleError(err)
		}
		out := &notificationReadOutput{}
		out.Body.Status = "ok"
		return out, nil
	})
}

func registerEvents(api huma.API, s store.Store) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List audit events",
	}, func(ctx context.Context, input *eventListInput) (*eventListOutput, error) {
		limit := input.Limit
		if limit <= 0 {
			limit = 100
		}
		events, err := s.EventsAfter(ctx, limit, input.After)
		if err != nil {
			return nil, handleError(err)
		}
		out := &eventListOutput{}
		out.Body.Events = events
		return out, nil
	})
}
