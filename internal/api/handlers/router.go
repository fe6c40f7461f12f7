// router.go — маршруты Asset Proxy и привязка параметров запроса.
// Повторяет устройство chi-server из oapi-codegen: ServerInterface,
// обёртка с разбором path/query параметров и регистрация на chi.Router.
package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	apierrors "github.com/bigkaa/goartstore/asset-proxy/internal/api/errors"
)

// AssetSummaryParams — параметры GET /id/{identifier}.
type AssetSummaryParams struct {
	// As — принудительный тип ответа ("json")
	As *string `form:"as,omitempty" json:"as,omitempty"`
}

// PreviewParams — параметры GET /img/{identifier}/preview/{filename}.
type PreviewParams struct {
	Size   *int  `form:"size,omitempty" json:"size,omitempty"`
	W      *int  `form:"w,omitempty" json:"w,omitempty"`
	H      *int  `form:"h,omitempty" json:"h,omitempty"`
	Square *bool `form:"square,omitempty" json:"square,omitempty"`
}

// RenditionParams — параметры GET /img/{identifier}/rendition/{filename}.
type RenditionParams struct {
	Profile  *string `form:"profile,omitempty" json:"profile,omitempty"`
	Original *bool   `form:"original,omitempty" json:"original,omitempty"`
	Size     *int    `form:"size,omitempty" json:"size,omitempty"`
	W        *int    `form:"w,omitempty" json:"w,omitempty"`
	H        *int    `form:"h,omitempty" json:"h,omitempty"`
}

// ManifestParams — параметры GET /-/data/manifest.
type ManifestParams struct {
	Archives *[]string `form:"archives,omitempty" json:"archives,omitempty"`
	Limit    *int      `form:"limit,omitempty" json:"limit,omitempty"`
	Since    *string   `form:"since,omitempty" json:"since,omitempty"`
}

// AssignMetadataParams — параметры эндпоинтов назначения метаданных.
type AssignMetadataParams struct {
	Tasks    *[]string `form:"tasks,omitempty" json:"tasks,omitempty"`
	Archives *[]string `form:"archives,omitempty" json:"archives,omitempty"`
	Limit    *int      `form:"limit,omitempty" json:"limit,omitempty"`
}

// NewTokensParams — параметры GET /-/token/new.
type NewTokensParams struct {
	Subject *string `form:"subject,omitempty" json:"subject,omitempty"`
}

// ServerInterface — обработчики всех маршрутов Asset Proxy.
type ServerInterface interface {
	// GET /health/live
	HealthLive(w http.ResponseWriter, r *http.Request)
	// GET /health/ready
	HealthReady(w http.ResponseWriter, r *http.Request)
	// GET /metrics
	GetMetrics(w http.ResponseWriter, r *http.Request)
	// GET /id/{identifier}
	GetAssetSummary(w http.ResponseWriter, r *http.Request, identifier string, params AssetSummaryParams)
	// GET /doc/{identifier}/{filename}
	GetOriginal(w http.ResponseWriter, r *http.Request, identifier, filename string)
	// GET /img/{identifier}/preview/{filename}
	GetPreview(w http.ResponseWriter, r *http.Request, identifier, filename string, params PreviewParams)
	// GET /img/{identifier}/rendition/{filename}
	GetRendition(w http.ResponseWriter, r *http.Request, identifier, filename string, params RenditionParams)
	// GET /-/data/manifest
	GetManifest(w http.ResponseWriter, r *http.Request, params ManifestParams)
	// GET /-/background-worker/assign-metadata
	RunAssignMetadata(w http.ResponseWriter, r *http.Request, params AssignMetadataParams)
	// POST /-/webhooks/assign-metadata
	AssignMetadataWebhook(w http.ResponseWriter, r *http.Request, params AssignMetadataParams)
	// GET /-/token/new
	NewTokens(w http.ResponseWriter, r *http.Request, params NewTokensParams)
}

// MiddlewareFunc — middleware отдельного маршрута.
type MiddlewareFunc func(http.Handler) http.Handler

// RouteMiddlewares — проверка токенов по группам маршрутов.
// nil-поле — маршрут без проверки.
type RouteMiddlewares struct {
	Original       MiddlewareFunc
	Preview        MiddlewareFunc
	Rendition      MiddlewareFunc
	Manifest       MiddlewareFunc
	MetadataUpdate MiddlewareFunc
}

// RouterOptions — параметры регистрации маршрутов.
type RouterOptions struct {
	BaseRouter chi.Router
	Gates      RouteMiddlewares
	// DevTokens — регистрировать /-/token/new (только режим разработки)
	DevTokens        bool
	ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

// InvalidParamFormatError — параметр запроса не разобран.
type InvalidParamFormatError struct {
	ParamName string
	Err       error
}

func (e *InvalidParamFormatError) Error() string {
	return fmt.Sprintf("некорректный формат параметра %s: %s", e.ParamName, e.Err.Error())
}

func (e *InvalidParamFormatError) Unwrap() error {
	return e.Err
}

// serverInterfaceWrapper разбирает параметры и вызывает ServerInterface.
type serverInterfaceWrapper struct {
	handler          ServerInterface
	errorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

// defaultErrorHandler отвечает 400 на ошибку разбора параметров.
func defaultErrorHandler(w http.ResponseWriter, _ *http.Request, err error) {
	apierrors.ValidationError(w, err.Error())
}

func (siw *serverInterfaceWrapper) pathParam(w http.ResponseWriter, r *http.Request, name string, dest *string) bool {
	err := runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), dest,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		siw.errorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: name, Err: err})
		return false
	}
	return true
}

// queryParams привязывает необязательные query-параметры (style=form).
// explode=false: списки передаются через запятую.
func (siw *serverInterfaceWrapper) queryParams(w http.ResponseWriter, r *http.Request, bindings map[string]any) bool {
	query := r.URL.Query()
	for name, dest := range bindings {
		if err := runtime.BindQueryParameter("form", false, false, name, query, dest); err != nil {
			siw.errorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: name, Err: err})
			return false
		}
	}
	return true
}

func (siw *serverInterfaceWrapper) GetAssetSummary(w http.ResponseWriter, r *http.Request) {
	var identifier string
	if !siw.pathParam(w, r, "identifier", &identifier) {
		return
	}
	var params AssetSummaryParams
	if !siw.queryParams(w, r, map[string]any{"as": &params.As}) {
		return
	}
	siw.handler.GetAssetSummary(w, r, identifier, params)
}

func (siw *serverInterfaceWrapper) GetOriginal(w http.ResponseWriter, r *http.Request) {
	var identifier, filename string
	if !siw.pathParam(w, r, "identifier", &identifier) || !siw.pathParam(w, r, "filename", &filename) {
		return
	}
	siw.handler.GetOriginal(w, r, identifier, filename)
}

func (siw *serverInterfaceWrapper) GetPreview(w http.ResponseWriter, r *http.Request) {
	var identifier, filename string
	if !siw.pathParam(w, r, "identifier", &identifier) || !siw.pathParam(w, r, "filename", &filename) {
		return
	}
	var params PreviewParams
	if !siw.queryParams(w, r, map[string]any{
		"size":   &params.Size,
		"w":      &params.W,
		"h":      &params.H,
		"square": &params.Square,
	}) {
		return
	}
	siw.handler.GetPreview(w, r, identifier, filename, params)
}

func (siw *serverInterfaceWrapper) GetRendition(w http.ResponseWriter, r *http.Request) {
	var identifier, filename string
	if !siw.pathParam(w, r, "identifier", &identifier) || !siw.pathParam(w, r, "filename", &filename) {
		return
	}
	var params RenditionParams
	if !siw.queryParams(w, r, map[string]any{
		"profile":  &params.Profile,
		"original": &params.Original,
		"size":     &params.Size,
		"w":        &params.W,
		"h":        &params.H,
	}) {
		return
	}
	siw.handler.GetRendition(w, r, identifier, filename, params)
}

func (siw *serverInterfaceWrapper) GetManifest(w http.ResponseWriter, r *http.Request) {
	var params ManifestParams
	if !siw.queryParams(w, r, map[string]any{
		"archives": &params.Archives,
		"limit":    &params.Limit,
		"since":    &params.Since,
	}) {
		return
	}
	siw.handler.GetManifest(w, r, params)
}

func (siw *serverInterfaceWrapper) assignMetadataParams(w http.ResponseWriter, r *http.Request) (AssignMetadataParams, bool) {
	var params AssignMetadataParams
	ok := siw.queryParams(w, r, map[string]any{
		"tasks":    &params.Tasks,
		"archives": &params.Archives,
		"limit":    &params.Limit,
	})
	return params, ok
}

func (siw *serverInterfaceWrapper) RunAssignMetadata(w http.ResponseWriter, r *http.Request) {
	if params, ok := siw.assignMetadataParams(w, r); ok {
		siw.handler.RunAssignMetadata(w, r, params)
	}
}

func (siw *serverInterfaceWrapper) AssignMetadataWebhook(w http.ResponseWriter, r *http.Request) {
	if params, ok := siw.assignMetadataParams(w, r); ok {
		siw.handler.AssignMetadataWebhook(w, r, params)
	}
}

func (siw *serverInterfaceWrapper) NewTokens(w http.ResponseWriter, r *http.Request) {
	var params NewTokensParams
	if !siw.queryParams(w, r, map[string]any{"subject": &params.Subject}) {
		return
	}
	siw.handler.NewTokens(w, r, params)
}

// HandlerWithOptions регистрирует маршруты si на chi.Router.
func HandlerWithOptions(si ServerInterface, options RouterOptions) http.Handler {
	r := options.BaseRouter
	if r == nil {
		r = chi.NewRouter()
	}
	if options.ErrorHandlerFunc == nil {
		options.ErrorHandlerFunc = defaultErrorHandler
	}
	wrapper := &serverInterfaceWrapper{
		handler:          si,
		errorHandlerFunc: options.ErrorHandlerFunc,
	}
	gated := func(mw MiddlewareFunc) chi.Router {
		if mw == nil {
			return r
		}
		return r.With(mw)
	}

	r.Get("/health/live", si.HealthLive)
	r.Get("/health/ready", si.HealthReady)
	r.Get("/metrics", si.GetMetrics)

	r.Get("/id/{identifier}", wrapper.GetAssetSummary)
	gated(options.Gates.Original).Get("/doc/{identifier}/{filename}", wrapper.GetOriginal)
	gated(options.Gates.Preview).Get("/img/{identifier}/preview/{filename}", wrapper.GetPreview)
	gated(options.Gates.Rendition).Get("/img/{identifier}/rendition/{filename}", wrapper.GetRendition)

	gated(options.Gates.Manifest).Get("/-/data/manifest", wrapper.GetManifest)
	gated(options.Gates.MetadataUpdate).Get("/-/background-worker/assign-metadata", wrapper.RunAssignMetadata)
	gated(options.Gates.MetadataUpdate).Post("/-/webhooks/assign-metadata", wrapper.AssignMetadataWebhook)

	if options.DevTokens {
		r.Get("/-/token/new", wrapper.NewTokens)
	}
	return r
}
