package token

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken возвращается для любого токена, который не прошел проверку:
// неверная подпись, неверный алгоритм, поврежденный payload или истекший срок
var ErrInvalidToken = errors.New("invalid token")

// Claims представляет JWT claims access токена
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Config содержит конфигурацию кодека токенов
type Config struct {
	Secret          []byte
	Issuer          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// Codec подписывает и проверяет access токены и генерирует refresh токены.
// Не имеет состояния и побочных эффектов
type Codec struct {
	cfg Config
}

// NewCodec создает новый кодек токенов
// secret должен быть криптографически стойкой случайной строкой
func NewCodec(cfg Config) *Codec {
	return &Codec{cfg: cfg}
}

// Issue создает новый подписанный JWT access token
// Возвращает токен и время жизни в секундах
func (c *Codec) Issue(userID, username string) (string, int64, error) {
	now := time.Now()
	expiresAt := now.Add(c.cfg.AccessTokenTTL)

	claims := Claims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    c.cfg.Issuer,
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := tok.SignedString(c.cfg.Secret)
	if err != nil {
		return "", 0, fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, int64(c.cfg.AccessTokenTTL.Seconds()), nil
}

// Verify валидирует и парсит JWT access token
// Для любого невалидного входа возвращает ErrInvalidToken, никогда не паникует.
// Claim exp обязателен: после успешной проверки ExpiresAt гарантированно не nil
func (c *Codec) Verify(tokenString string) (*Claims, error) {
	tok, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Проверяем что используется правильный алгоритм подписи
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return c.cfg.Secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// NewRefreshToken создает новый random refresh token
func (c *Codec) NewRefreshToken() (string, time.Time, error) {
	// Генерируем случайные 32 байта
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate random token: %w", err)
	}

	// Кодируем в base64
	tok := base64.URLEncoding.EncodeToString(tokenBytes)
	expiresAt := time.Now().Add(c.cfg.RefreshTokenTTL)

	return tok, expiresAt, nil
}

// AccessTokenTTL возвращает настроенное время жизни access токена
func (c *Codec) AccessTokenTTL() time.Duration {
	return c.cfg.AccessTokenTTL
}
