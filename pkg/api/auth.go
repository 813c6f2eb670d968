package api

// SignupRequest представляет запрос на регистрацию нового пользователя
type SignupRequest struct {
	Username string `json:"username"` // username пользователя
	Email    string `json:"email"`    // email пользователя
	Password string `json:"password"` // пароль в открытом виде (только по TLS)
}

// LoginRequest представляет запрос на аутентификацию
type LoginRequest struct {
	Login    string `json:"login"`    // username или email
	Password string `json:"password"` // пароль
}

// RefreshRequest представляет запрос на обновление access token
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"` // opaque refresh token
}

// TokenResponse представляет ответ с токенами доступа
type TokenResponse struct {
	AccessToken  string `json:"access_token"`  // JWT access token
	RefreshToken string `json:"refresh_token"` // refresh token
	TokenType    string `json:"token_type"`    // всегда "Bearer"
	ExpiresIn    int64  `json:"expires_in"`    // время жизни access token в секундах
}

// UserResponse представляет публичное представление пользователя
type UserResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// SignupResponse представляет ответ на успешную регистрацию
// Boundary сразу выполняет login, поэтому токены возвращаются вместе с пользователем
type SignupResponse struct {
	User   UserResponse  `json:"user"`
	Tokens TokenResponse `json:"tokens"`
}

// ProfileResponse представляет ответ GET /me
type ProfileResponse struct {
	User UserResponse `json:"user"`
}

// ErrorResponse представляет ответ с ошибкой
type ErrorResponse struct {
	Error   string `json:"error"`             // описание ошибки
	Message string `json:"message,omitempty"` // дополнительное сообщение
}
