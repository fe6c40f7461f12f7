package apptoken

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "sekret"

// fixedClock возвращает часы, которые можно сдвигать в тесте.
func fixedClock(start time.Time) (func() time.Time, func(time.Duration)) {
	now := start
	return func() time.Time { return now }, func(d time.Duration) { now = now.Add(d) }
}

func newTestCodec(t *testing.T, opts ...Option) *Codec {
	t.Helper()
	c, err := NewCodec(testSecret, opts...)
	require.NoError(t, err)
	return c
}

// signRaw подписывает произвольные claims тем же ключом (для устаревших и битых токенов).
func signRaw(t *testing.T, method jwt.SigningMethod, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func TestCodec_IssueDecode(t *testing.T) {
	c := newTestCodec(t)

	token, err := c.Issue("abc123", AudienceOriginal, 10*time.Minute, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, len(strings.Split(token, ".")))

	g, err := c.Decode(token)
	require.NoError(t, err)
	assert.Equal(t, "abc123", g.Subject)
	assert.Equal(t, AudienceOriginal, g.Audience)
	assert.Equal(t, 10*time.Minute, g.Duration)
	assert.False(t, g.Legacy)
	assert.Equal(t, "ori", g.Claims["aud"])
}

func TestCodec_ExtraClaimsCannotOverrideReserved(t *testing.T) {
	c := newTestCodec(t)

	token, err := c.Issue("abc123", AudiencePreview, time.Minute, map[string]any{
		"sub":  "other",
		"aud":  "ori",
		"exp":  float64(4102444800),
		"note": "hello",
	})
	require.NoError(t, err)

	g, err := c.Decode(token)
	require.NoError(t, err)
	assert.Equal(t, "abc123", g.Subject)
	assert.Equal(t, AudiencePreview, g.Audience)
	assert.Equal(t, time.Minute, g.Duration)
	assert.Equal(t, "hello", g.Claims["note"])
}

func TestCodec_IssueRejectsBadInput(t *testing.T) {
	c := newTestCodec(t)

	_, err := c.Issue("abc", Audience(42), time.Minute, nil)
	assert.Error(t, err)

	_, err = c.Issue("abc", AudienceOriginal, 0, nil)
	assert.Error(t, err)
}

func TestCodec_TamperedSignature(t *testing.T) {
	c := newTestCodec(t)
	token, err := c.Issue("abc123", AudienceOriginal, time.Minute, nil)
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	_, err = c.Decode(tampered)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestCodec_TamperedPayload(t *testing.T) {
	c := newTestCodec(t)
	good, err := c.Issue("abc123", AudienceOriginal, time.Minute, nil)
	require.NoError(t, err)
	other, err := c.Issue("xyz999", AudienceOriginal, time.Minute, nil)
	require.NoError(t, err)

	// payload от другого токена с подписью первого
	g := strings.Split(good, ".")
	o := strings.Split(other, ".")
	_, err = c.Decode(g[0] + "." + o[1] + "." + g[2])
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestCodec_WrongKey(t *testing.T) {
	issuer, err := NewCodec("another-secret")
	require.NoError(t, err)
	token, err := issuer.Issue("abc123", AudienceOriginal, time.Minute, nil)
	require.NoError(t, err)

	_, err = newTestCodec(t).Decode(token)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestCodec_OnlyHS256Accepted(t *testing.T) {
	c := newTestCodec(t)
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": "abc123",
		"aud": "ori",
		"iat": now.Unix(),
		"exp": now.Add(time.Minute).Unix(),
	}

	_, err := c.Decode(signRaw(t, jwt.SigningMethodHS512, claims))
	assert.ErrorIs(t, err, ErrInvalid)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = c.Decode(unsigned)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestCodec_ExpiryWithLeeway(t *testing.T) {
	clock, advance := fixedClock(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	c := newTestCodec(t, WithClock(clock))

	token, err := c.Issue("abc123", AudienceRendition, time.Minute, nil)
	require.NoError(t, err)

	advance(time.Minute + 20*time.Second)
	_, err = c.Decode(token)
	assert.NoError(t, err, "в пределах 30s leeway токен действителен")

	advance(20 * time.Second)
	_, err = c.Decode(token)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestCodec_IssuedInFuture(t *testing.T) {
	clock, advance := fixedClock(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	c := newTestCodec(t, WithClock(clock))

	token, err := c.Issue("abc123", AudienceRendition, time.Hour, nil)
	require.NoError(t, err)

	advance(-time.Minute)
	_, err = c.Decode(token)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestCodec_LegacyAndModernDecodeIdentically(t *testing.T) {
	c := newTestCodec(t)
	now := time.Now()
	iat, exp := now.Unix(), now.Add(15*time.Minute).Unix()

	for _, aud := range []Audience{AudiencePreview, AudienceRendition, AudienceOriginal, AudienceManifest} {
		modern := signRaw(t, jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": "r7abc", "aud": aud.String(), "iat": iat, "exp": exp,
		})
		legacy := signRaw(t, jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": aud.String() + ":r7abc", "iat": iat, "exp": exp,
		})

		gm, err := c.Decode(modern)
		require.NoError(t, err)
		gl, err := c.Decode(legacy)
		require.NoError(t, err)

		assert.Equal(t, gm.Subject, gl.Subject)
		assert.Equal(t, gm.Audience, gl.Audience)
		assert.Equal(t, gm.Duration, gl.Duration)
		assert.True(t, gl.Legacy)
		assert.False(t, gm.Legacy)
	}
}

func TestCodec_LegacySubjectMayContainColon(t *testing.T) {
	c := newTestCodec(t)
	now := time.Now()
	token := signRaw(t, jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "pre:a:b", "iat": now.Unix(), "exp": now.Add(time.Minute).Unix(),
	})

	g, err := c.Decode(token)
	require.NoError(t, err)
	assert.Equal(t, "a:b", g.Subject)
	assert.Equal(t, AudiencePreview, g.Audience)
}

func TestCodec_MalformedClaims(t *testing.T) {
	c := newTestCodec(t)
	now := time.Now()
	iat, exp := now.Unix(), now.Add(time.Minute).Unix()

	cases := map[string]jwt.MapClaims{
		"неизвестная аудитория":        {"sub": "abc", "aud": "xxx", "iat": iat, "exp": exp},
		"неизвестная legacy аудитория": {"sub": "xxx:abc", "iat": iat, "exp": exp},
		"нет sub":             {"aud": "ori", "iat": iat, "exp": exp},
		"sub не строка":       {"sub": 42, "aud": "ori", "iat": iat, "exp": exp},
		"нет iat":             {"sub": "abc", "aud": "ori", "exp": exp},
		"нет exp":             {"sub": "abc", "aud": "ori", "iat": iat},
		"iat строкой":         {"sub": "abc", "aud": "ori", "iat": "yesterday", "exp": exp},
		"несколько аудиторий": {"sub": "abc", "aud": []string{"ori", "pre"}, "iat": iat, "exp": exp},
		"exp раньше iat":      {"sub": "abc", "aud": "ori", "iat": iat, "exp": iat - 1},
	}

	for name, claims := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := c.Decode(signRaw(t, jwt.SigningMethodHS256, claims))
			assert.True(t, errors.Is(err, ErrInvalid), "ожидался ErrInvalid, получено %v", err)
		})
	}
}

func TestCodec_MissingAudienceFallsBackToNone(t *testing.T) {
	c := newTestCodec(t)
	now := time.Now()
	token := signRaw(t, jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "abc123", "iat": now.Unix(), "exp": now.Add(time.Minute).Unix(),
	})

	g, err := c.Decode(token)
	require.NoError(t, err)
	assert.Equal(t, "abc123", g.Subject)
	assert.Equal(t, AudienceNone, g.Audience)
}

func TestCodec_RandomKeyPerInstance(t *testing.T) {
	a, err := NewCodec("")
	require.NoError(t, err)
	b, err := NewCodec("")
	require.NoError(t, err)
	assert.True(t, a.Ephemeral())

	token, err := a.Issue("abc", AudienceOriginal, time.Minute, nil)
	require.NoError(t, err)

	_, err = a.Decode(token)
	assert.NoError(t, err)
	_, err = b.Decode(token)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestAudience_Parse(t *testing.T) {
	for _, a := range Audiences() {
		parsed, err := ParseAudience(a.String())
		require.NoError(t, err)
		assert.Equal(t, a, parsed)
	}

	_, err := ParseAudience("ORI")
	assert.Error(t, err)
	_, err = ParseAudience("")
	assert.Error(t, err)

	var a Audience
	assert.Error(t, a.UnmarshalText([]byte("bogus")))
	require.NoError(t, a.UnmarshalText([]byte("uid")))
	assert.Equal(t, AudienceMetadataUpdate, a)
}
