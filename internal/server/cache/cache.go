package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Type — логический тип кеша. Физический ключ собирается как
// {prefix}{type}:{key}, чтобы сервисы, разделяющие один backend,
// не конфликтовали между собой
type Type string

const (
	// TypeUsers — записи пользователей для principal resolution
	TypeUsers Type = "users"
	// TypeUserProfile — расширенные профили пользователей
	TypeUserProfile Type = "users:profile"
	// TypeRefreshTokens — read-through кеш refresh токенов
	TypeRefreshTokens Type = "auth:token:refresh"
	// TypeBlacklist — отозванные access токены, TTL = остаток жизни токена
	TypeBlacklist Type = "auth:token:blacklist"
)

// Схемы значений. Каждая запись кеша несет имя схемы вместе с payload,
// чтобы читатель из другого сервиса мог распознать чужое значение
// и отбросить его вместо слепого каста
const (
	SchemaUser         = "user/v1"
	SchemaRefreshToken = "refresh_token/v1"
	SchemaRevoked      = "revoked/v1"
)

var (
	// ErrCorruptEntry означает, что запись кеша не распарсилась как envelope
	ErrCorruptEntry = errors.New("corrupt cache entry")

	// ErrSchemaMismatch означает, что запись несет не ту схему, которую ожидает читатель
	ErrSchemaMismatch = errors.New("cache schema mismatch")
)

// envelope — обертка каждого значения в кеше: имя схемы + сериализованный payload
type envelope struct {
	Schema  string          `json:"schema"`
	Payload json.RawMessage `json:"payload"`
}

// Status — исход чтения из кеша
type Status int

const (
	// StatusMiss — ключ отсутствует
	StatusMiss Status = iota
	// StatusHit — ключ найден, envelope распарсился
	StatusHit
	// StatusError — ошибка связи или поврежденная запись;
	// вызывающая сторона сама решает деградировать к durable источнику
	StatusError
)

// Result — типизированный результат чтения из кеша.
// Вместо глушения исключений вокруг операций кеша каждый вызов
// явно различает Hit / Miss / Error
type Result struct {
	Err     error
	Schema  string
	Payload json.RawMessage
	Status  Status
}

// Hit возвращает результат успешного чтения
func Hit(schema string, payload json.RawMessage) Result {
	return Result{Status: StatusHit, Schema: schema, Payload: payload}
}

// Miss возвращает результат отсутствия ключа
func Miss() Result {
	return Result{Status: StatusMiss}
}

// Fail возвращает результат с ошибкой
func Fail(err error) Result {
	return Result{Status: StatusError, Err: err}
}

// Decode декодирует payload в dst, предварительно сверив схему.
// Возвращает ErrSchemaMismatch, если запись несет другую схему,
// и ErrCorruptEntry, если payload не декодируется
func (r Result) Decode(schema string, dst any) error {
	if r.Status != StatusHit {
		return fmt.Errorf("decode on non-hit cache result")
	}
	if r.Schema != schema {
		return fmt.Errorf("%w: want %q, got %q", ErrSchemaMismatch, schema, r.Schema)
	}
	if err := json.Unmarshal(r.Payload, dst); err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptEntry, err)
	}
	return nil
}

// Store — общий кеш, разделяемый всеми сервисами платформы
type Store interface {
	// Get читает запись; никогда не возвращает ошибку как panic или
	// пользовательскую ошибку — только типизированный Result
	Get(ctx context.Context, t Type, key string) Result

	// Set атомарно записывает значение, обернутое в envelope, с TTL
	Set(ctx context.Context, t Type, key, schema string, value any, ttl time.Duration) error

	// Delete удаляет запись; возвращает true, если запись существовала
	Delete(ctx context.Context, t Type, key string) (bool, error)

	// Has проверяет наличие ключа без чтения значения
	Has(ctx context.Context, t Type, key string) (bool, error)
}

// Key собирает физический ключ: {prefix}{type}:{key}
func Key(prefix string, t Type, key string) string {
	return prefix + string(t) + ":" + key
}

// Encode оборачивает значение в envelope и сериализует его
func Encode(schema string, value any) ([]byte, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cache payload: %w", err)
	}

	data, err := json.Marshal(envelope{Schema: schema, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cache envelope: %w", err)
	}

	return data, nil
}

// decodeEnvelope парсит сырые байты записи; поврежденная запись -> ErrCorruptEntry
func decodeEnvelope(raw []byte) (envelope, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return envelope{}, fmt.Errorf("%w: %w", ErrCorruptEntry, err)
	}
	if env.Schema == "" {
		return envelope{}, fmt.Errorf("%w: missing schema", ErrCorruptEntry)
	}
	return env, nil
}
