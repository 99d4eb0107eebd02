package openapi

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"
)

// ServerInterface — обработчики всех операций openapi.yaml.
type ServerInterface interface {
	// GET /health/live
	HealthLive(w http.ResponseWriter, r *http.Request)
	// GET /health/ready
	HealthReady(w http.ResponseWriter, r *http.Request)
	// GET /metrics
	GetMetrics(w http.ResponseWriter, r *http.Request)

	// GET /api/v1/me
	GetMe(w http.ResponseWriter, r *http.Request)
	// POST /api/v1/me/onboarding
	CompleteOnboarding(w http.ResponseWriter, r *http.Request)
	// GET /api/v1/dashboard
	GetDashboard(w http.ResponseWriter, r *http.Request)

	// GET /api/v1/users
	ListUsers(w http.ResponseWriter, r *http.Request, params ListParams)
	// GET /api/v1/users/{id}
	GetUser(w http.ResponseWriter, r *http.Request, id string)
	// PUT /api/v1/users/{id}/role
	ChangeUserRole(w http.ResponseWriter, r *http.Request, id string)

	// GET /api/v1/sites
	ListSites(w http.ResponseWriter, r *http.Request, params ListParams)
	// POST /api/v1/sites
	CreateSite(w http.ResponseWriter, r *http.Request)
	// GET /api/v1/sites/{id}
	GetSite(w http.ResponseWriter, r *http.Request, id openapi_types.UUID)
	// DELETE /api/v1/sites/{id}
	DeleteSite(w http.ResponseWriter, r *http.Request, id openapi_types.UUID)
	// PUT /api/v1/sites/{id}/status
	SetSiteStatus(w http.ResponseWriter, r *http.Request, id openapi_types.UUID)

	// GET /api/v1/projects
	ListProjects(w http.ResponseWriter, r *http.Request, params ListParams)
	// POST /api/v1/projects
	CreateProject(w http.ResponseWriter, r *http.Request)
	// GET /api/v1/projects/{id}
	GetProject(w http.ResponseWriter, r *http.Request, id openapi_types.UUID)
	// PUT /api/v1/projects/{id}/status
	SetProjectStatus(w http.ResponseWriter, r *http.Request, id openapi_types.UUID)

	// GET /api/v1/tickets
	ListTickets(w http.ResponseWriter, r *http.Request, params ListTicketsParams)
	// POST /api/v1/tickets
	CreateTicket(w http.ResponseWriter, r *http.Request)
	// GET /api/v1/tickets/{id}
	GetTicket(w http.ResponseWriter, r *http.Request, id openapi_types.UUID)
	// PUT /api/v1/tickets/{id}/status
	SetTicketStatus(w http.ResponseWriter, r *http.Request, id openapi_types.UUID)

	// GET /api/v1/idp/status
	GetIdpStatus(w http.ResponseWriter, r *http.Request)
	// GET /api/v1/idp/drift
	GetRoleDrift(w http.ResponseWriter, r *http.Request, params ListParams)

	// POST /api/v1/webhooks/identity
	IdentityWebhook(w http.ResponseWriter, r *http.Request, params WebhookParams)
}

// InvalidParamFormatError — параметр запроса не соответствует схеме.
type InvalidParamFormatError struct {
	ParamName string
	Err       error
}

func (e *InvalidParamFormatError) Error() string {
	return fmt.Sprintf("некорректный параметр %q: %v", e.ParamName, e.Err)
}

func (e *InvalidParamFormatError) Unwrap() error {
	return e.Err
}

// RequiredHeaderError — обязательный заголовок отсутствует.
type RequiredHeaderError struct {
	ParamName string
}

func (e *RequiredHeaderError) Error() string {
	return fmt.Sprintf("отсутствует заголовок %s", e.ParamName)
}

// ChiServerOptions — параметры регистрации маршрутов.
type ChiServerOptions struct {
	BaseRouter       chi.Router
	Middlewares      []func(http.Handler) http.Handler
	ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

// serverWrapper привязывает path/query/header параметры и вызывает ServerInterface.
type serverWrapper struct {
	handler          ServerInterface
	middlewares      []func(http.Handler) http.Handler
	errorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

// HandlerFromMux регистрирует все операции на router.
func HandlerFromMux(si ServerInterface, r chi.Router) http.Handler {
	return HandlerWithOptions(si, ChiServerOptions{BaseRouter: r})
}

// HandlerWithOptions регистрирует все операции с дополнительными опциями.
func HandlerWithOptions(si ServerInterface, options ChiServerOptions) http.Handler {
	r := options.BaseRouter
	if r == nil {
		r = chi.NewRouter()
	}
	if options.ErrorHandlerFunc == nil {
		options.ErrorHandlerFunc = func(w http.ResponseWriter, _ *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	}
	sw := &serverWrapper{
		handler:          si,
		middlewares:      options.Middlewares,
		errorHandlerFunc: options.ErrorHandlerFunc,
	}

	r.Get("/health/live", sw.wrap(si.HealthLive))
	r.Get("/health/ready", sw.wrap(si.HealthReady))
	r.Get("/metrics", sw.wrap(si.GetMetrics))

	r.Get("/api/v1/me", sw.wrap(si.GetMe))
	r.Post("/api/v1/me/onboarding", sw.wrap(si.CompleteOnboarding))
	r.Get("/api/v1/dashboard", sw.wrap(si.GetDashboard))

	r.Get("/api/v1/users", sw.withList(si.ListUsers))
	r.Get("/api/v1/users/{id}", sw.withUserID(si.GetUser))
	r.Put("/api/v1/users/{id}/role", sw.withUserID(si.ChangeUserRole))

	r.Get("/api/v1/sites", sw.withList(si.ListSites))
	r.Post("/api/v1/sites", sw.wrap(si.CreateSite))
	r.Get("/api/v1/sites/{id}", sw.withUUID(si.GetSite))
	r.Delete("/api/v1/sites/{id}", sw.withUUID(si.DeleteSite))
	r.Put("/api/v1/sites/{id}/status", sw.withUUID(si.SetSiteStatus))

	r.Get("/api/v1/projects", sw.withList(si.ListProjects))
	r.Post("/api/v1/projects", sw.wrap(si.CreateProject))
	r.Get("/api/v1/projects/{id}", sw.withUUID(si.GetProject))
	r.Put("/api/v1/projects/{id}/status", sw.withUUID(si.SetProjectStatus))

	r.Get("/api/v1/tickets", sw.listTickets)
	r.Post("/api/v1/tickets", sw.wrap(si.CreateTicket))
	r.Get("/api/v1/tickets/{id}", sw.withUUID(si.GetTicket))
	r.Put("/api/v1/tickets/{id}/status", sw.withUUID(si.SetTicketStatus))

	r.Get("/api/v1/idp/status", sw.wrap(si.GetIdpStatus))
	r.Get("/api/v1/idp/drift", sw.withList(si.GetRoleDrift))

	r.Post("/api/v1/webhooks/identity", sw.identityWebhook)

	return r
}

// serve применяет middlewares операции и вызывает h.
func (sw *serverWrapper) serve(w http.ResponseWriter, r *http.Request, h http.HandlerFunc) {
	var handler http.Handler = h
	for _, mw := range sw.middlewares {
		handler = mw(handler)
	}
	handler.ServeHTTP(w, r)
}

func (sw *serverWrapper) wrap(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sw.serve(w, r, h)
	}
}

func (sw *serverWrapper) withUserID(h func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var id string
		err := runtime.BindStyledParameterWithOptions("simple", "id", chi.URLParam(r, "id"), &id,
			runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
		if err != nil {
			sw.errorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "id", Err: err})
			return
		}
		sw.serve(w, r, func(w http.ResponseWriter, r *http.Request) { h(w, r, id) })
	}
}

func (sw *serverWrapper) withUUID(h func(http.ResponseWriter, *http.Request, openapi_types.UUID)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var id openapi_types.UUID
		err := runtime.BindStyledParameterWithOptions("simple", "id", chi.URLParam(r, "id"), &id,
			runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
		if err != nil {
			sw.errorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "id", Err: err})
			return
		}
		sw.serve(w, r, func(w http.ResponseWriter, r *http.Request) { h(w, r, id) })
	}
}

func (sw *serverWrapper) withList(h func(http.ResponseWriter, *http.Request, ListParams)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, ok := sw.bindList(w, r)
		if !ok {
			return
		}
		sw.serve(w, r, func(w http.ResponseWriter, r *http.Request) { h(w, r, params) })
	}
}

func (sw *serverWrapper) bindList(w http.ResponseWriter, r *http.Request) (ListParams, bool) {
	var params ListParams
	if err := runtime.BindQueryParameter("form", true, false, "limit", r.URL.Query(), &params.Limit); err != nil {
		sw.errorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "limit", Err: err})
		return params, false
	}
	if err := runtime.BindQueryParameter("form", true, false, "offset", r.URL.Query(), &params.Offset); err != nil {
		sw.errorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "offset", Err: err})
		return params, false
	}
	return params, true
}

func (sw *serverWrapper) listTickets(w http.ResponseWriter, r *http.Request) {
	list, ok := sw.bindList(w, r)
	if !ok {
		return
	}
	params := ListTicketsParams{ListParams: list}
	if err := runtime.BindQueryParameter("form", true, false, "status", r.URL.Query(), &params.Status); err != nil {
		sw.errorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "status", Err: err})
		return
	}
	sw.serve(w, r, func(w http.ResponseWriter, r *http.Request) { sw.handler.ListTickets(w, r, params) })
}

func (sw *serverWrapper) identityWebhook(w http.ResponseWriter, r *http.Request) {
	var params WebhookParams
	for name, dest := range map[string]*string{
		"X-Portal-Timestamp": &params.Timestamp,
		"X-Portal-Signature": &params.Signature,
	} {
		value := r.Header.Get(name)
		if value == "" {
			sw.errorHandlerFunc(w, r, &RequiredHeaderError{ParamName: name})
			return
		}
		err := runtime.BindStyledParameterWithOptions("simple", name, value, dest,
			runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationHeader, Explode: false, Required: true})
		if err != nil {
			sw.errorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: name, Err: err})
			return
		}
	}
	sw.serve(w, r, func(w http.ResponseWriter, r *http.Request) { sw.handler.IdentityWebhook(w, r, params) })
}
