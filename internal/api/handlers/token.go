// token.go — выдача тестовых токенов (только режим разработки).
package handlers

import (
	"log/slog"
	"net/http"
	"time"

	apierrors "github.com/bigkaa/goartstore/asset-proxy/internal/api/errors"
	"github.com/bigkaa/goartstore/asset-proxy/internal/apptoken"
)

// issuedToken — токен с параметрами выпуска.
type issuedToken struct {
	Token        string `json:"token"`
	Audience     string `json:"audience"`
	Duration     string `json:"duration"`
	ValidThrough string `json:"valid_through"`
}

// NewTokens — GET /-/token/new?subject=.
// Токены для subject по всем аудиториям на 15 минут, 7 и 365 дней.
func (h *APIHandler) NewTokens(w http.ResponseWriter, _ *http.Request, params NewTokensParams) {
	subject := ""
	if params.Subject != nil {
		subject = *params.Subject
	}

	now := time.Now().UTC()
	tokens := make([]issuedToken, 0, len(tokenDurations)*len(apptoken.Audiences()))
	for _, dur := range tokenDurations {
		for _, aud := range apptoken.Audiences() {
			token, err := h.codec.Issue(subject, aud, dur, nil)
			if err != nil {
				h.logger.Error("Ошибка выпуска токена",
					slog.String("audience", aud.String()),
					slog.String("error", err.Error()),
				)
				apierrors.InternalError(w, "Ошибка выпуска токена")
				return
			}
			tokens = append(tokens, issuedToken{
				Token:        token,
				Audience:     aud.String(),
				Duration:     dur.String(),
				ValidThrough: now.Add(dur).Format(time.RFC3339),
			})
		}
	}
	writeJSON(w, http.StatusOK, tokens)
}
