package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleFarmer Role = "farmer"
	RoleBuyer  Role = "buyer"
)

type User struct {
	ID                string          `json:"id"`
	Username          string          `json:"username"`
	Mobile            string          `json:"mobile"`
	PasswordHash      string          `json:"passwordHash"`
	FullName          string          `json:"fullName"`
	Role              Role            `json:"role"`
	Location          Location        `json:"location"`
	Rating            decimal.Decimal `json:"rating"`
	TotalTransactions int             `json:"totalTransactions"`
	IsVerified        bool            `json:"isVerified"`
	CreatedAt         time.Time       `json:"createdAt"`
}

// PublicUser is what the API returns; it never carries the password hash.
type PublicUser struct {
	ID                string          `json:"id"`
	Username          string          `json:"username"`
	Mobile            string          `json:"mobile,omitempty"`
	FullName          string          `json:"fullName"`
	Role              Role            `json:"role"`
	Location          Location        `json:"location"`
	Rating            decimal.Decimal `json:"rating"`
	TotalTransactions int             `json:"totalTransactions"`
}

func (u User) Public() PublicUser {
	return PublicUser{
		ID:                u.ID,
		Username:          u.Username,
		Mobile:            u.Mobile,
		FullName:          u.FullName,
		Role:              u.Role,
		Location:          u.Location,
		Rating:            u.Rating,
		TotalTransactions: u.TotalTransactions,
	}
}
