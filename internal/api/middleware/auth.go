// auth.go — проверка capability-токенов для эндпоинтов Asset Proxy.
// Токен берётся из заголовка Authorization (Bearer, приоритетно) или из
// query-параметра token и сверяется с идентификатором запрошенного ресурса,
// требуемой аудиторией и потолком срока действия.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apierrors "github.com/bigkaa/goartstore/asset-proxy/internal/api/errors"
	"github.com/bigkaa/goartstore/asset-proxy/internal/apptoken"
)

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

const (
	// ContextKeyAuth — результат проверки токена в контексте запроса.
	ContextKeyAuth contextKey = "token_auth"
)

// AuthResult — исход проверки токена.
type AuthResult int

const (
	// AuthMissing — токен не передан.
	AuthMissing AuthResult = iota
	// AuthDenied — токен передан, но не даёт доступа.
	AuthDenied
	// AuthAuthorized — токен действителен для ресурса и взаимодействия.
	AuthAuthorized
)

// String возвращает имя исхода для логов.
func (a AuthResult) String() string {
	switch a {
	case AuthAuthorized:
		return "authorized"
	case AuthDenied:
		return "denied"
	default:
		return "missing"
	}
}

// Причины отказа (лейбл reason метрики ap_token_rejections_total).
const (
	reasonMissing  = "missing"
	reasonInvalid  = "invalid"
	reasonSubject  = "subject"
	reasonAudience = "audience"
	reasonDuration = "duration"
)

var tokenRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ap_token_rejections_total",
	Help: "Количество отклонённых capability-токенов по причине",
}, []string{"reason"})

// IdentifierFunc извлекает идентификатор ресурса, к которому запрошен доступ.
type IdentifierFunc func(r *http.Request) string

// GateRule — требования эндпоинта к токену.
type GateRule struct {
	// Audience — требуемое взаимодействие
	Audience apptoken.Audience
	// MaxDuration — потолок срока действия (exp - iat)
	MaxDuration time.Duration
	// Required — без действительного токена запрос отклоняется (401/403);
	// иначе исход только кладётся в контекст
	Required bool
	// Identifier — извлечение идентификатора; nil — Gate.PathIdentifier
	Identifier IdentifierFunc
}

// Gate — middleware проверки capability-токенов.
type Gate struct {
	codec         *apptoken.Codec
	canonicalBase string
	logger        *slog.Logger
}

// NewGate создаёт Gate. canonicalBase — префикс, отрезаемый от ?resource=.
func NewGate(codec *apptoken.Codec, canonicalBase string, logger *slog.Logger) *Gate {
	return &Gate{
		codec:         codec,
		canonicalBase: canonicalBase,
		logger:        logger.With(slog.String("component", "token_gate")),
	}
}

// NoIdentifier — для эндпоинтов коллекций: токен выдаётся на пустой subject.
func NoIdentifier(*http.Request) string { return "" }

// PathIdentifier берёт chi-параметр identifier, иначе ?resource= без
// канонического префикса хоста.
func (g *Gate) PathIdentifier(r *http.Request) string {
	if id := chi.URLParam(r, "identifier"); id != "" {
		return id
	}
	resource := r.URL.Query().Get("resource")
	if g.canonicalBase != "" {
		resource = strings.TrimPrefix(resource, g.canonicalBase)
	}
	return strings.Trim(resource, "/")
}

// Middleware возвращает HTTP middleware для правила rule.
func (g *Gate) Middleware(rule GateRule) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result := g.Check(r, rule)
			noteAccess(r.Context(), rule, result)
			if rule.Required {
				switch result {
				case AuthMissing:
					apierrors.Unauthorized(w, "Требуется токен доступа")
					return
				case AuthDenied:
					apierrors.Forbidden(w, "Доступ запрещён")
					return
				}
			}
			ctx := context.WithValue(r.Context(), ContextKeyAuth, result)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Check проверяет токен запроса по правилу rule.
// Причина отказа пишется в лог и метрику, но не раскрывается клиенту.
func (g *Gate) Check(r *http.Request, rule GateRule) AuthResult {
	token := TokenFromRequest(r)
	if token == "" {
		tokenRejectionsTotal.WithLabelValues(reasonMissing).Inc()
		return AuthMissing
	}

	extract := rule.Identifier
	if extract == nil {
		extract = g.PathIdentifier
	}
	identifier := extract(r)

	grant, err := g.codec.Decode(token)
	if err != nil {
		return g.deny(r, reasonInvalid, slog.String("error", err.Error()))
	}
	if grant.Subject != identifier {
		return g.deny(r, reasonSubject,
			slog.String("subject", grant.Subject),
			slog.String("identifier", identifier),
		)
	}
	if grant.Audience != rule.Audience {
		return g.deny(r, reasonAudience,
			slog.String("audience", grant.Audience.String()),
			slog.String("required", rule.Audience.String()),
		)
	}
	if grant.Duration > rule.MaxDuration {
		return g.deny(r, reasonDuration,
			slog.Duration("duration", grant.Duration),
			slog.Duration("max_duration", rule.MaxDuration),
		)
	}
	return AuthAuthorized
}

func (g *Gate) deny(r *http.Request, reason string, attrs ...slog.Attr) AuthResult {
	tokenRejectionsTotal.WithLabelValues(reason).Inc()
	attrs = append(attrs,
		slog.String("reason", reason),
		slog.String("path", r.URL.Path),
	)
	g.logger.LogAttrs(r.Context(), slog.LevelDebug, "Токен отклонён", attrs...)
	return AuthDenied
}

// TokenFromRequest извлекает токен: Bearer-заголовок, затем ?token=.
func TokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, found := strings.Cut(header, " ")
		if found && strings.EqualFold(scheme, "Bearer") {
			if token = strings.TrimSpace(token); token != "" {
				return token
			}
		}
	}
	return r.URL.Query().Get("token")
}

// --- Context helpers ---

// AuthFromContext возвращает исход проверки токена.
// Без Gate в цепочке — AuthMissing.
func AuthFromContext(ctx context.Context) AuthResult {
	result, _ := ctx.Value(ContextKeyAuth).(AuthResult)
	return result
}

// Authorized сообщает, что запрос несёт действительный токен.
func Authorized(ctx context.Context) bool {
	return AuthFromContext(ctx) == AuthAuthorized
}
