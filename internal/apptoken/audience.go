package apptoken

import (
	"fmt"
)

// Audience — разрешённое взаимодействие, которое авторизует токен.
// Набор закрыт: добавление значения — несовместимое изменение протокола.
type Audience uint8

const (
	// AudienceNone — служебное значение, только как fallback при декодировании.
	AudienceNone Audience = iota
	// AudiencePreview — доступ к превью.
	AudiencePreview
	// AudienceRendition — доступ к рендишенам.
	AudienceRendition
	// AudienceOriginal — доступ к оригиналу.
	AudienceOriginal
	// AudienceManifest — доступ к полному манифесту.
	AudienceManifest
	// AudienceMetadataUpdate — запуск обновления метаданных.
	AudienceMetadataUpdate
)

// Трёхбуквенные значения claim aud на проводе.
var audienceWire = [...]string{
	AudienceNone:           "zzz",
	AudiencePreview:        "pre",
	AudienceRendition:      "rnd",
	AudienceOriginal:       "ori",
	AudienceManifest:       "jld",
	AudienceMetadataUpdate: "uid",
}

// Audiences возвращает все значения перечисления в порядке объявления.
func Audiences() []Audience {
	return []Audience{
		AudienceNone,
		AudiencePreview,
		AudienceRendition,
		AudienceOriginal,
		AudienceManifest,
		AudienceMetadataUpdate,
	}
}

// ParseAudience разбирает wire-значение. Неизвестные значения отклоняются.
func ParseAudience(s string) (Audience, error) {
	for i, w := range audienceWire {
		if w == s {
			return Audience(i), nil
		}
	}
	return AudienceNone, fmt.Errorf("неизвестная аудитория %q", s)
}

// String возвращает wire-значение аудитории.
func (a Audience) String() string {
	if int(a) < len(audienceWire) {
		return audienceWire[a]
	}
	return fmt.Sprintf("Audience(%d)", uint8(a))
}

// Valid сообщает, входит ли значение в перечисление.
func (a Audience) Valid() bool {
	return int(a) < len(audienceWire)
}

// MarshalText реализует encoding.TextMarshaler.
func (a Audience) MarshalText() ([]byte, error) {
	if !a.Valid() {
		return nil, fmt.Errorf("недопустимая аудитория %d", uint8(a))
	}
	return []byte(a.String()), nil
}

// UnmarshalText реализует encoding.TextUnmarshaler.
func (a *Audience) UnmarshalText(b []byte) error {
	parsed, err := ParseAudience(string(b))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
