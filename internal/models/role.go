package models

// Role represents an administrator's role in the newsroom back office.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
)
