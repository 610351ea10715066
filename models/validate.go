package models

import (
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

const MaxRoomIDLength = 128

// Validate is shared by the websocket and REST boundaries.
var Validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("roomid", func(fl validator.FieldLevel) bool {
		return ValidRoomID(fl.Field().String())
	})
	return v
}

// ValidRoomID reports whether id can be used as a room key and as a single
// pub/sub subject token.
func ValidRoomID(id string) bool {
	if id == "" || len(id) > MaxRoomIDLength {
		return false
	}
	return !strings.ContainsFunc(id, func(r rune) bool {
		return unicode.IsSpace(r) || r == '.' || r == '*' || r == '>' || !unicode.IsPrint(r)
	})
}
