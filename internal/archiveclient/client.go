// Пакет archiveclient — HTTP-клиент API удалённого архива ассетов.
// Получает токен доступа через client_credentials grant (кэшируется во
// внешнем хранилище с TTL из ответа), ищет ассеты, запрашивает генерацию
// рендишенов, скачивает рендишены и превью, обновляет метаданные.
package archiveclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/asset-proxy/internal/cachekey"
	"github.com/bigkaa/goartstore/asset-proxy/internal/domain/model"
	"github.com/bigkaa/goartstore/asset-proxy/internal/retry"
)

const (
	// Корень API архива
	apiRoot = "/fotoweb"
	// Плейсхолдер поискового запроса в searchURL архива
	queryPlaceholder = "{?q}"
	// Сортировка результатов: сначала самые старые
	oldestFirst = ";o=+?q="

	renditionRequestType  = "application/vnd.fotoware.rendition-request+json"
	renditionResponseType = "application/vnd.fotoware.rendition-response+json"
	assetUpdateType       = "application/vnd.fotoware.assetupdate+json"

	// Верхняя граница размера скачиваемого файла
	maxContentBytes = 1 << 30
	// Верхняя граница размера тела ошибки в логах
	maxErrorBodyBytes = 4096

	// Токен архива считается истёкшим раньше expires_in на эту величину
	tokenExpiryMargin = 30 * time.Second
)

// Ошибки клиента архива.
var (
	// ErrNotFound — ассет или ресурс не найден.
	ErrNotFound = errors.New("ресурс архива не найден")
	// ErrMultipleMatches — идентификатору соответствует больше одного ассета.
	ErrMultipleMatches = errors.New("идентификатору соответствует несколько ассетов")
	// ErrNotSearchable — архив не поддерживает поиск.
	ErrNotSearchable = errors.New("архив не поддерживает поиск")
	// ErrNoRenderService — в описании API нет сервиса генерации рендишенов.
	ErrNoRenderService = errors.New("сервис генерации рендишенов недоступен")
	// ErrUpstream — архив ответил неожиданным статусом или недоступен.
	ErrUpstream = errors.New("ошибка API архива")

	errRenderPending = errors.New("рендишен ещё не готов")
)

// Prometheus-метрики запросов к архиву.
var (
	archiveRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ap_archive_requests_total",
		Help: "Количество запросов к API архива.",
	}, []string{"op", "result"})
	archiveRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ap_archive_retries_total",
		Help: "Количество повторных запросов к API архива после транзиентной ошибки.",
	}, []string{"op"})
)

// TokenStore — хранилище токена доступа (обычно cache.Resilient).
type TokenStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Options — параметры клиента.
type Options struct {
	// Host — базовый URL архива (https://tenant.example)
	Host         string
	ClientID     string
	ClientSecret string //nolint:gosec // G101: поле структуры, не содержит секрет напрямую
	// CACertPath — CA-сертификат для TLS (пустая строка — системный пул)
	CACertPath string
	// Timeout — таймаут одного HTTP-запроса
	Timeout time.Duration
	// SearchSuffix — дополнительное выражение, добавляемое к каждому поиску
	SearchSuffix string
	// PollAttempts, PollDelay — опрос готовности рендишена
	PollAttempts int
	PollDelay    time.Duration
	// RetryAttempts, RetryDelay — повторы запросов к API при сетевых
	// ошибках, 429 и 5xx
	RetryAttempts int
	RetryDelay    time.Duration
}

// Client — HTTP-клиент API архива.
type Client struct {
	httpClient    *http.Client
	host          string
	clientID      string
	clientSecret  string //nolint:gosec // G101: поле структуры, не содержит секрет напрямую
	searchSuffix  string
	tokens        TokenStore
	poll          retry.Policy
	retryAttempts int
	retryDelay    time.Duration
	logger        *slog.Logger

	// Сериализует получение нового токена
	tokenMu sync.Mutex
}

// New создаёт клиент архива.
func New(opts Options, tokens TokenStore, logger *slog.Logger) (*Client, error) {
	if opts.Host == "" {
		return nil, errors.New("не задан URL архива")
	}
	if tokens == nil {
		return nil, errors.New("не задано хранилище токенов")
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConnsPerHost: 10,
	}
	if opts.CACertPath != "" {
		tlsConfig, err := buildTLSConfig(opts.CACertPath)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата архива: %w", err)
		}
		transport.TLSClientConfig = tlsConfig
		logger.Info("CA-сертификат архива добавлен в пул доверия",
			slog.String("ca_cert", opts.CACertPath),
		)
	}

	c := &Client{
		httpClient:    &http.Client{Timeout: opts.Timeout, Transport: transport},
		host:          strings.TrimRight(opts.Host, "/"),
		clientID:      opts.ClientID,
		clientSecret:  opts.ClientSecret,
		searchSuffix:  strings.TrimSpace(opts.SearchSuffix),
		tokens:        tokens,
		retryAttempts: opts.RetryAttempts,
		retryDelay:    opts.RetryDelay,
		logger:        logger.With(slog.String("component", "archive_client")),
	}
	c.poll = retry.Policy{
		Attempts: opts.PollAttempts,
		Delay:    opts.PollDelay,
		OnRetry: func(attempt int, err error) {
			c.logger.Debug("Рендишен не готов, повтор",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
		},
	}
	return c, nil
}

// policy — политика повторов запросов операции op.
func (c *Client) policy(op string) retry.Policy {
	return retry.Policy{
		Attempts: c.retryAttempts,
		Delay:    c.retryDelay,
		OnRetry: func(attempt int, err error) {
			archiveRetriesTotal.WithLabelValues(op).Inc()
			c.logger.Warn("Транзиентная ошибка API архива, повтор",
				slog.String("op", op),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
		},
	}
}

// Host возвращает базовый URL архива.
func (c *Client) Host() string {
	return c.host
}

// AccessToken возвращает токен доступа к архиву.
// Токен хранится в TokenStore с TTL, равным expires_in из ответа архива
// за вычетом tokenExpiryMargin.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	key := cachekey.ArchiveToken(c.clientID)

	if token, ok, err := c.tokens.Get(ctx, key); err != nil {
		return "", fmt.Errorf("чтение токена архива: %w", err)
	} else if ok {
		return string(token), nil
	}

	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	// Повторная проверка: токен мог получить параллельный запрос
	if token, ok, err := c.tokens.Get(ctx, key); err != nil {
		return "", fmt.Errorf("чтение токена архива: %w", err)
	} else if ok {
		return string(token), nil
	}

	issued, err := retry.Do(ctx, c.policy("token"), c.requestToken)
	if err != nil {
		c.observe("token", err)
		return "", err
	}
	c.observe("token", nil)
	token := issued.token
	if issued.ttl > 0 {
		if err := c.tokens.Set(ctx, key, []byte(token), issued.ttl); err != nil {
			return "", fmt.Errorf("сохранение токена архива: %w", err)
		}
	}
	return token, nil
}

// invalidateToken удаляет закэшированный токен, отклонённый архивом.
func (c *Client) invalidateToken(ctx context.Context) {
	if err := c.tokens.Delete(ctx, cachekey.ArchiveToken(c.clientID)); err != nil {
		c.logger.Warn("Не удалось удалить отклонённый токен архива",
			slog.String("error", err.Error()),
		)
	}
}

// tokenTTL — срок хранения токена: expires_in минус запас,
// для коротких токенов — половина expires_in.
func tokenTTL(expiresIn int) time.Duration {
	lifetime := time.Duration(expiresIn) * time.Second
	if lifetime > 2*tokenExpiryMargin {
		return lifetime - tokenExpiryMargin
	}
	return lifetime / 2
}

// tokenResult — ответ token endpoint.
type tokenResult struct {
	token string
	ttl   time.Duration
}

// requestToken — одна попытка client_credentials grant. Запрос без побочных
// эффектов, поэтому повторяется при любой транспортной ошибке.
func (c *Client) requestToken(ctx context.Context) (tokenResult, error) {
	data := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
	}

	target := c.host + apiRoot + "/oauth2/token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(data.Encode()))
	if err != nil {
		return tokenResult{}, fmt.Errorf("создание запроса token: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req) //nolint:gosec // G704: URL из конфигурации
	if err != nil {
		return tokenResult{}, transportError(ctx, http.MethodPost, target, err, true)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := statusError(resp)
		if retryableStatus(resp.StatusCode, true) {
			return tokenResult{}, retry.Transient(err)
		}
		return tokenResult{}, err
	}

	var tokenResp struct {
		Token     string `json:"access_token"` //nolint:gosec // G117: JSON-маппинг OAuth2 ответа
		ExpiresIn int    `json:"expires_in"`
		TokenType string `json:"token_type"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return tokenResult{}, fmt.Errorf("%w: декодирование token response: %w", ErrUpstream, err)
	}
	if tokenResp.Token == "" {
		return tokenResult{}, fmt.Errorf("%w: пустой access_token в ответе", ErrUpstream)
	}

	ttl := tokenTTL(tokenResp.ExpiresIn)
	c.logger.Info("Получен новый токен архива",
		slog.Int("expires_in", tokenResp.ExpiresIn),
		slog.Time("cached_until", time.Now().Add(ttl)),
	)
	return tokenResult{token: tokenResp.Token, ttl: ttl}, nil
}

// archiveInfo — описание архива.
type archiveInfo struct {
	Name      string `json:"name"`
	SearchURL string `json:"searchURL"`
}

// searchPage — страница результатов поиска.
type searchPage struct {
	Assets struct {
		Data   []model.Asset `json:"data"`
		Paging struct {
			Next string `json:"next"`
		} `json:"paging"`
	} `json:"assets"`
}

// Search ищет ассеты по выражению q в архивах archiveIDs (в указанном порядке).
// Результаты отсортированы от старых к новым. limit <= 0 — без ограничения.
func (c *Client) Search(ctx context.Context, archiveIDs []string, q Query, limit int) ([]model.Asset, error) {
	expression := string(q)
	if c.searchSuffix != "" {
		expression += " " + c.searchSuffix
	}

	var result []model.Asset
	for _, archiveID := range archiveIDs {
		var info archiveInfo
		if err := c.getJSON(ctx, "archive", apiRoot+"/archives/"+url.PathEscape(archiveID)+"/", &info); err != nil {
			return nil, fmt.Errorf("описание архива %s: %w", archiveID, err)
		}
		if info.SearchURL == "" {
			c.logger.Error("Архив не поддерживает поиск", slog.String("archive", archiveID))
			return nil, fmt.Errorf("%w: %s", ErrNotSearchable, archiveID)
		}

		ref := strings.Replace(info.SearchURL, queryPlaceholder, oldestFirst+url.QueryEscape(expression), 1)
		for ref != "" {
			var page searchPage
			if err := c.getJSON(ctx, "search", ref, &page); err != nil {
				return nil, fmt.Errorf("поиск в архиве %s: %w", archiveID, err)
			}
			result = append(result, page.Assets.Data...)
			if limit > 0 && len(result) >= limit {
				return result[:limit], nil
			}
			ref = page.Assets.Paging.Next
		}
	}
	return result, nil
}

// FindByIdentifier ищет ровно один ассет с field = value.
// Нет совпадений — ErrNotFound, больше одного — ErrMultipleMatches.
func (c *Client) FindByIdentifier(ctx context.Context, archiveIDs []string, field, value string) (*model.Asset, error) {
	assets, err := c.Search(ctx, archiveIDs, Eq(field, value), 2)
	if err != nil {
		return nil, err
	}

	switch len(assets) {
	case 0:
		return nil, fmt.Errorf("%w: %s=%q", ErrNotFound, field, value)
	case 1:
		return &assets[0], nil
	default:
		hrefs := make([]string, len(assets))
		for i := range assets {
			hrefs[i] = assets[i].Href
		}
		c.logger.Error("Идентификатору соответствует несколько ассетов",
			slog.String("field", field),
			slog.String("value", value),
			slog.Any("hrefs", hrefs),
		)
		return nil, fmt.Errorf("%w: %s=%q", ErrMultipleMatches, field, value)
	}
}

// RenditionServiceURL возвращает адрес сервиса генерации рендишенов.
func (c *Client) RenditionServiceURL(ctx context.Context) (string, error) {
	var descriptor struct {
		Services struct {
			RenditionRequest string `json:"rendition_request"`
		} `json:"services"`
	}
	if err := c.getJSON(ctx, "me", apiRoot+"/me/", &descriptor); err != nil {
		return "", fmt.Errorf("описание API: %w", err)
	}
	if descriptor.Services.RenditionRequest == "" {
		c.logger.Error("В описании API нет сервиса генерации рендишенов")
		return "", ErrNoRenderService
	}
	return descriptor.Services.RenditionRequest, nil
}

// RequestRender запускает генерацию рендишена и возвращает адрес результата.
func (c *Client) RequestRender(ctx context.Context, renditionHref string) (string, error) {
	service, err := c.RenditionServiceURL(ctx)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(map[string]string{"href": renditionHref})
	if err != nil {
		return "", fmt.Errorf("кодирование запроса рендишена: %w", err)
	}

	resp, err := c.send(ctx, "render", http.MethodPost, c.resolve(service), body, map[string]string{
		"Content-Type": renditionRequestType,
		"Accept":       renditionResponseType,
	})
	if err != nil {
		c.observe("render", err)
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := statusError(resp)
		c.observe("render", err)
		c.logger.Error("Запрос генерации рендишена отклонён",
			slog.String("href", renditionHref),
			slog.String("error", err.Error()),
		)
		return "", err
	}

	location := resp.Header.Get("Location")
	if location == "" {
		err := fmt.Errorf("%w: нет Location в ответе на запрос рендишена", ErrUpstream)
		c.observe("render", err)
		return "", err
	}
	c.observe("render", nil)

	c.logger.Debug("Запущена генерация рендишена",
		slog.String("href", renditionHref),
		slog.String("location", location),
	)
	return location, nil
}

// FetchRendition скачивает сгенерированный рендишен, опрашивая location,
// пока архив не ответит 200. Число попыток и пауза — из Options.
func (c *Client) FetchRendition(ctx context.Context, location string) ([]byte, error) {
	content, err := retry.Do(ctx, c.poll, func(ctx context.Context) ([]byte, error) {
		resp, err := c.once(ctx, http.MethodGet, c.resolve(location), nil, nil)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			return readContent(resp.Body)
		case resp.StatusCode == http.StatusAccepted,
			resp.StatusCode == http.StatusNotFound,
			resp.StatusCode == http.StatusTooManyRequests,
			resp.StatusCode >= 500:
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBodyBytes))
			return nil, retry.Transient(fmt.Errorf("%w: статус %d", errRenderPending, resp.StatusCode))
		default:
			return nil, statusError(resp)
		}
	})
	c.observe("rendition", err)
	if err != nil {
		return nil, fmt.Errorf("скачивание рендишена %s: %w", location, err)
	}
	return content, nil
}

// FetchPreview скачивает превью с токеном превью ассета.
// Токен превью выдан архивом вместе с записью ассета, токен доступа не нужен.
func (c *Client) FetchPreview(ctx context.Context, href, previewToken string) ([]byte, error) {
	target := c.resolve(href)
	content, err := retry.Do(ctx, c.policy("preview"), func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
		if err != nil {
			return nil, fmt.Errorf("создание запроса превью: %w", err)
		}
		if previewToken != "" {
			req.Header.Set("Authorization", "Bearer "+previewToken)
		}

		resp, err := c.httpClient.Do(req) //nolint:gosec // G704: href из ответа архива
		if err != nil {
			return nil, transportError(ctx, http.MethodGet, target, err, true)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			return readContent(resp.Body)
		case retryableStatus(resp.StatusCode, true):
			return nil, retry.Transient(statusError(resp))
		default:
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBodyBytes))
			return nil, fmt.Errorf("%w: превью %s, статус %d", ErrNotFound, href, resp.StatusCode)
		}
	})
	c.observe("preview", err)
	return content, err
}

// UpdateMetadata записывает значения полей метаданных ассета одним запросом.
func (c *Client) UpdateMetadata(ctx context.Context, assetHref string, fields map[string]string) error {
	metadata := make(map[string]model.MetadataValue, len(fields))
	for field, value := range fields {
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("кодирование поля %s: %w", field, err)
		}
		metadata[field] = model.MetadataValue{Value: raw}
	}

	body, err := json.Marshal(map[string]any{"metadata": metadata})
	if err != nil {
		return fmt.Errorf("кодирование обновления метаданных: %w", err)
	}

	resp, err := c.send(ctx, "update", http.MethodPatch, c.resolve(assetHref), body, map[string]string{
		"Content-Type": assetUpdateType,
		"Accept":       "application/json",
	})
	if err != nil {
		c.observe("update", err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := statusError(resp)
		c.observe("update", err)
		return fmt.Errorf("обновление метаданных %s: %w", assetHref, err)
	}
	c.observe("update", nil)

	c.logger.Info("Метаданные ассета обновлены",
		slog.String("href", assetHref),
		slog.Int("fields", len(fields)),
	)
	return nil
}

// getJSON выполняет авторизованный GET и декодирует JSON-ответ.
func (c *Client) getJSON(ctx context.Context, op, ref string, out any) error {
	resp, err := c.send(ctx, op, http.MethodGet, c.resolve(ref), nil, map[string]string{"Accept": "application/json"})
	if err != nil {
		c.observe(op, err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := statusError(resp)
		c.observe(op, err)
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		err = fmt.Errorf("%w: декодирование ответа: %w", ErrUpstream, err)
		c.observe(op, err)
		return err
	}
	c.observe(op, nil)
	return nil
}

// send выполняет запрос с токеном доступа архива, повторяя его по политике
// операции op. Возвращает ответ с окончательным статусом; тело закрывает
// вызывающий. POST повторяется только когда архив заведомо не принял запрос.
func (c *Client) send(ctx context.Context, op, method, target string, body []byte, headers map[string]string) (*http.Response, error) {
	safe := method != http.MethodPost
	return retry.Do(ctx, c.policy(op), func(ctx context.Context) (*http.Response, error) {
		resp, err := c.once(ctx, method, target, body, headers)
		if err != nil {
			return nil, err
		}
		if retryableStatus(resp.StatusCode, safe) {
			err := statusError(resp)
			resp.Body.Close()
			return nil, retry.Transient(err)
		}
		return resp, nil
	})
}

// once — одна попытка запроса с токеном доступа. 401 удаляет токен из
// хранилища: следующая попытка получит новый.
func (c *Client) once(ctx context.Context, method, target string, body []byte, headers map[string]string) (*http.Response, error) {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("получение токена архива: %w", err)
	}

	var reader io.Reader = http.NoBody
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("создание запроса %s %s: %w", method, target, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req) //nolint:gosec // G704: URL из конфигурации или ответа архива
	if err != nil {
		return nil, transportError(ctx, method, target, err, method != http.MethodPost)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		err := statusError(resp)
		resp.Body.Close()
		c.invalidateToken(ctx)
		return nil, retry.Transient(err)
	}
	return resp, nil
}

// resolve превращает ссылку из ответа архива в абсолютный URL.
func (c *Client) resolve(ref string) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	if !strings.HasPrefix(ref, "/") {
		ref = "/" + ref
	}
	return c.host + ref
}

func (c *Client) observe(op string, err error) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		result = "not_found"
	case isTimeout(err):
		result = "timeout"
	default:
		result = "error"
	}
	archiveRequestsTotal.WithLabelValues(op, result).Inc()
}

// statusError формирует ошибку по неожиданному статусу ответа.
func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	base := ErrUpstream
	if resp.StatusCode == http.StatusNotFound {
		base = ErrNotFound
	}
	return fmt.Errorf("%w: %s %s: статус %d: %s",
		base, resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, strings.TrimSpace(string(body)))
}

// retryableStatus: 429 и 503 означают, что запрос не выполнен, их можно
// повторить всегда. Остальные 5xx повторяются только для безопасных методов.
func retryableStatus(code int, safe bool) bool {
	switch {
	case code == http.StatusTooManyRequests, code == http.StatusServiceUnavailable:
		return true
	case code >= 500:
		return safe
	default:
		return false
	}
}

// transportError оборачивает ошибку соединения. Повторяемая, если запрос
// безопасен или не ушёл дальше установки соединения. Отмена контекста
// вызывающим не повторяется.
func transportError(ctx context.Context, method, target string, err error, safe bool) error {
	wrapped := fmt.Errorf("%w: %s %s: %w", ErrUpstream, method, target, err)
	if ctx.Err() != nil {
		return wrapped
	}
	if safe || isDialError(err) {
		return retry.Transient(wrapped)
	}
	return wrapped
}

func isDialError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// readContent читает тело ответа с ограничением размера.
func readContent(r io.Reader) ([]byte, error) {
	content, err := io.ReadAll(io.LimitReader(r, maxContentBytes+1))
	if err != nil {
		return nil, retry.Transient(fmt.Errorf("%w: чтение содержимого: %w", ErrUpstream, err))
	}
	if len(content) > maxContentBytes {
		return nil, fmt.Errorf("%w: содержимое больше %d байт", ErrUpstream, maxContentBytes)
	}
	return content, nil
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// buildTLSConfig создаёт TLS-конфигурацию с кастомным CA-сертификатом.
func buildTLSConfig(caCertPath string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("чтение CA-сертификата: %w", err)
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, errors.New("в файле нет PEM-сертификатов")
	}

	return &tls.Config{
		RootCAs:    caCertPool,
		MinVersion: tls.VersionTLS12,
	}, nil
}
