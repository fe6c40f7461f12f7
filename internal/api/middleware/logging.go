// logging.go — журнал доступа Asset Proxy.
// Одна запись на запрос: маршрут, идентификатор ресурса, исход проверки
// токена и его источник. Сам токен и query-строка не логируются.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/bigkaa/goartstore/asset-proxy/internal/apptoken"
)

const contextKeyAccess contextKey = "access_record"

// accessRecord заполняется Gate по ходу обработки запроса.
type accessRecord struct {
	gated    bool
	result   AuthResult
	audience apptoken.Audience
}

// noteAccess сохраняет исход проверки токена для журнала доступа.
func noteAccess(ctx context.Context, rule GateRule, result AuthResult) {
	rec, ok := ctx.Value(contextKeyAccess).(*accessRecord)
	if !ok {
		return
	}
	rec.gated = true
	rec.result = result
	rec.audience = rule.Audience
}

// tokenSource — откуда пришёл токен: header, query или none.
func tokenSource(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if scheme, _, found := strings.Cut(header, " "); found && strings.EqualFold(scheme, "Bearer") {
			return "header"
		}
	}
	if r.URL.Query().Has("token") {
		return "query"
	}
	return "none"
}

// RequestLogger возвращает middleware журнала доступа.
// Уровень: INFO (1xx-3xx), WARN (4xx), ERROR (5xx).
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &accessRecord{}
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), contextKeyAccess, rec)))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			level := slog.LevelInfo
			switch {
			case status >= 500:
				level = slog.LevelError
			case status >= 400:
				level = slog.LevelWarn
			}

			attrs := []slog.Attr{
				slog.String("request_id", chimw.GetReqID(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Duration("duration", time.Since(start)),
				slog.Int("bytes", ww.BytesWritten()),
				slog.String("remote_addr", r.RemoteAddr),
			}
			// RouteContext общий для всей цепочки: после маршрутизации
			// в нём есть шаблон и параметры пути.
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					attrs = append(attrs, slog.String("route", pattern))
				}
				if id := rctx.URLParam("identifier"); id != "" {
					attrs = append(attrs, slog.String("identifier", id))
				}
			}
			if rec.gated {
				attrs = append(attrs,
					slog.String("audience", rec.audience.String()),
					slog.String("auth", rec.result.String()),
					slog.String("token_source", tokenSource(r)),
				)
			}

			logger.LogAttrs(r.Context(), level, "HTTP запрос", attrs...)
		})
	}
}
