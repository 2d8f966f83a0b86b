package model

import "time"

type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

type UserTheme string

const (
	ThemeLight  UserTheme = "light"
	ThemeDark   UserTheme = "dark"
	ThemeSystem UserTheme = "system"
)

type UserLanguage string

const (
	LangEN UserLanguage = "en"
	LangPL UserLanguage = "pl"
	LangRU UserLanguage = "ru"
	LangDE UserLanguage = "de"
)

type User struct {
	ID             string
	Email          string
	Login          string
	Name           string
	PasswordHash   string
	Role           UserRole
	Active         bool
	EmailConfirmed bool
	Phone          *string
	CountryID      *string
	Language       UserLanguage
	Theme          UserTheme
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Country struct {
	ID   string
	Code string
	Name string
}
