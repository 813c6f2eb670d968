package models

import "time"

// Роли пользователей блог-платформы
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User представляет пользователя в системе
type User struct {
	ID           string     `json:"id"`            // UUID пользователя
	Username     string     `json:"username"`      // уникальный username
	Email        string     `json:"email"`         // уникальный email
	PasswordHash string     `json:"password_hash"` // bcrypt хеш пароля
	Role         string     `json:"role"`          // роль ("user" или "admin")
	Enabled      bool       `json:"enabled"`       // false = учетная запись заблокирована
	CreatedAt    time.Time  `json:"created_at"`    // время создания
	LastLogin    *time.Time `json:"last_login"`    // время последнего входа
}

// RefreshToken представляет refresh token пользователя
type RefreshToken struct {
	Token     string    `json:"token"`      // opaque random string
	UserID    string    `json:"user_id"`    // ID пользователя
	ExpiresAt time.Time `json:"expires_at"` // время истечения
	CreatedAt time.Time `json:"created_at"` // время создания
}

// Expired сообщает, истек ли срок действия токена на момент now
func (t *RefreshToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// Principal — аутентифицированная идентичность в рамках одного запроса.
// Конструируется заново при каждом разрешении токена, никогда не персистится.
type Principal struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// NewPrincipal строит Principal из записи пользователя
func NewPrincipal(u *User) *Principal {
	return &Principal{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		Role:     u.Role,
	}
}
