package internal

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// NamesRequest carries the user-provided names checked before any
// session operation starts.
type NamesRequest struct {
	DisplayName string `validate:"required,min=1,max=32"`
	SessionName string `validate:"omitempty,min=1,max=64,excludesall= "`
}

func ValidateNames(req NamesRequest) error {
	return validate.Struct(req)
}

// CharacterRune enforces that a replacement setting is one character.
func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf("CENSOR_REPLACEMENT must be a single character, got %q", str)
	}
	return r[0], nil
}
