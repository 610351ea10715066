package models

// Actor is the authenticated user behind a request.
type Actor struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	FullName string `json:"fullName"`
	Role     Role   `json:"role"`
}
