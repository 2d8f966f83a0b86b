package model

type LoginRequest struct {
	LoginOrEmail string `json:"loginOrEmail"`
	Password     string `json:"password"`
	Remember     bool   `json:"remember"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type AuthResponse struct {
	Message     string `json:"message"`
	AccessToken string `json:"accessToken"`
}

type LogoutResponse struct {
	Message string `json:"message"`
}

type RegisterRequest struct {
	Email     string  `json:"email"`
	Login     string  `json:"login"`
	Name      string  `json:"name"`
	Password  string  `json:"password"`
	CountryID string  `json:"countryId"`
	Phone     *string `json:"phone,omitempty"`
}

type UpdateSelfRequest struct {
	Name     *string `json:"name,omitempty"`
	Phone    *string `json:"phone,omitempty"`
	Language *string `json:"language,omitempty"`
	Theme    *string `json:"theme,omitempty"`
}

// AuthUser is what the auth middleware attaches to the request context
// after the access token and session both check out.
type AuthUser struct {
	ID        string
	Login     string
	Role      UserRole
	SessionID string
}

type ErrorResponse struct {
	Code string                 `json:"code"`
	Meta map[string]interface{} `json:"meta,omitempty"`
}
