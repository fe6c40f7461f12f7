// Пакет apptoken — capability-токены доступа к файлам архива.
//
// Токен — JWT (HS256) с claims:
//   - sub — идентификатор файла
//   - aud — разрешённое взаимодействие (Audience)
//   - iat, exp — время выдачи и истечения, их разность ограничивает срок действия
//
// Токены старого формата кодируют аудиторию в sub как "{aud}:{subject}" без
// отдельного aud. Codec принимает оба формата и сводит их к одному Grant.
// Отзыва нет: жизненный цикл токена заканчивается только истечением exp.
package apptoken

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalid — токен не прошёл проверку (подпись, claims, аудитория, время).
// Причина намеренно не различается для вызывающего кода.
var ErrInvalid = errors.New("невалидный токен")

// DefaultLeeway — допустимое расхождение часов при проверке iat/exp.
const DefaultLeeway = 30 * time.Second

// Единственный принимаемый алгоритм подписи.
const signingAlg = "HS256"

// Размер случайного ключа, если секрет не задан.
const randomKeySize = 32

// Зарезервированные claims, которые нельзя переопределить через extraClaims.
var reservedClaims = map[string]bool{"sub": true, "aud": true, "iat": true, "exp": true}

// Grant — декодированный и проверенный токен.
type Grant struct {
	// Subject — идентификатор файла
	Subject string
	// Audience — разрешённое взаимодействие
	Audience Audience
	// IssuedAt — время выдачи
	IssuedAt time.Time
	// ExpiresAt — время истечения
	ExpiresAt time.Time
	// Duration — срок действия (exp - iat)
	Duration time.Duration
	// Legacy — токен в старом формате sub = "{aud}:{subject}"
	Legacy bool
	// Claims — все claims токена как есть
	Claims map[string]any
}

// Codec выпускает и проверяет токены. Безопасен для конкурентного использования:
// ключ неизменяем после создания.
type Codec struct {
	key       []byte
	ephemeral bool
	leeway    time.Duration
	now       func() time.Time
}

// Option — опция Codec.
type Option func(*Codec)

// WithLeeway задаёт допустимое расхождение часов.
func WithLeeway(d time.Duration) Option {
	return func(c *Codec) { c.leeway = d }
}

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

// NewCodec создаёт Codec с ключом подписи secret.
// Пустой secret — генерируется случайный ключ: все ранее выданные токены
// перестают действовать после перезапуска процесса.
func NewCodec(secret string, opts ...Option) (*Codec, error) {
	c := &Codec{
		key:    []byte(secret),
		leeway: DefaultLeeway,
		now:    time.Now,
	}
	if secret == "" {
		key := make([]byte, randomKeySize)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("генерация ключа подписи: %w", err)
		}
		c.key = key
		c.ephemeral = true
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Ephemeral сообщает, что ключ сгенерирован случайно при старте.
func (c *Codec) Ephemeral() bool {
	return c.ephemeral
}

// Issue выпускает токен для subject с аудиторией aud, действующий dur от текущего момента.
// extraClaims добавляются в payload, но не могут переопределить sub, aud, iat, exp.
func (c *Codec) Issue(subject string, aud Audience, dur time.Duration, extraClaims map[string]any) (string, error) {
	if !aud.Valid() {
		return "", fmt.Errorf("выпуск токена: недопустимая аудитория %d", uint8(aud))
	}
	if dur <= 0 {
		return "", fmt.Errorf("выпуск токена: срок действия должен быть > 0, получено %s", dur)
	}

	now := c.now()
	claims := jwt.MapClaims{}
	for k, v := range extraClaims {
		if !reservedClaims[k] {
			claims[k] = v
		}
	}
	claims["sub"] = subject
	claims["aud"] = aud.String()
	claims["iat"] = now.Unix()
	claims["exp"] = now.Add(dur).Unix()

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("подпись токена: %w", err)
	}
	return signed, nil
}

// Decode проверяет подпись и время действия токена и возвращает Grant.
// Любая ошибка оборачивает ErrInvalid.
func (c *Codec) Decode(token string) (Grant, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{signingAlg}),
		jwt.WithLeeway(c.leeway),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.now),
	)

	claims := jwt.MapClaims{}
	if _, err := parser.ParseWithClaims(token, claims, c.keyFunc); err != nil {
		return Grant{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	iat, err := claims.GetIssuedAt()
	if err != nil || iat == nil {
		return Grant{}, fmt.Errorf("%w: отсутствует или некорректен iat", ErrInvalid)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return Grant{}, fmt.Errorf("%w: отсутствует или некорректен exp", ErrInvalid)
	}
	if !exp.After(iat.Time) {
		return Grant{}, fmt.Errorf("%w: exp не позже iat", ErrInvalid)
	}

	subject, aud, legacy, err := subjectAudience(claims)
	if err != nil {
		return Grant{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	return Grant{
		Subject:   subject,
		Audience:  aud,
		IssuedAt:  iat.Time,
		ExpiresAt: exp.Time,
		Duration:  exp.Sub(iat.Time),
		Legacy:    legacy,
		Claims:    map[string]any(claims),
	}, nil
}

// keyFunc возвращает ключ подписи. Алгоритм уже ограничен WithValidMethods,
// повторная проверка метода исключает подмену на другой HMAC.
func (c *Codec) keyFunc(t *jwt.Token) (any, error) {
	if t.Method.Alg() != signingAlg {
		return nil, fmt.Errorf("неожиданный алгоритм %s", t.Method.Alg())
	}
	return c.key, nil
}

// subjectAudience извлекает (subject, audience): сначала современный формат
// с отдельным aud, затем устаревший sub = "{aud}:{subject}".
func subjectAudience(claims jwt.MapClaims) (string, Audience, bool, error) {
	rawSub, ok := claims["sub"]
	if !ok {
		return "", AudienceNone, false, errors.New("отсутствует sub")
	}
	sub, ok := rawSub.(string)
	if !ok {
		return "", AudienceNone, false, errors.New("sub не является строкой")
	}

	auds, err := claims.GetAudience()
	if err != nil {
		return "", AudienceNone, false, fmt.Errorf("некорректный aud: %w", err)
	}

	if subject, aud, ok, err := decodeModern(sub, auds); ok || err != nil {
		return subject, aud, false, err
	}
	if subject, aud, ok, err := decodeLegacy(sub); ok || err != nil {
		return subject, aud, true, err
	}
	// Нет aud и нет префикса — токен без аудитории
	return sub, AudienceNone, false, nil
}

// decodeModern — формат с отдельным claim aud.
func decodeModern(sub string, auds jwt.ClaimStrings) (string, Audience, bool, error) {
	switch len(auds) {
	case 0:
		return "", AudienceNone, false, nil
	case 1:
		aud, err := ParseAudience(auds[0])
		if err != nil {
			return "", AudienceNone, false, err
		}
		return sub, aud, true, nil
	default:
		return "", AudienceNone, false, fmt.Errorf("ожидалась одна аудитория, получено %d", len(auds))
	}
}

// decodeLegacy — устаревший формат sub = "{aud}:{subject}" без aud.
func decodeLegacy(sub string) (string, Audience, bool, error) {
	audStr, subject, found := strings.Cut(sub, ":")
	if !found {
		return "", AudienceNone, false, nil
	}
	aud, err := ParseAudience(audStr)
	if err != nil {
		return "", AudienceNone, false, err
	}
	return subject, aud, true, nil
}
