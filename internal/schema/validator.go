// Package schema validates outgoing transcript payloads.
package schema

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validator checks payload structs against their `validate` tags.
type Validator struct {
	v *validator.Validate
}

func New() *Validator {
	return &Validator{v: validator.New(validator.WithRequiredStructEnabled())}
}

// Validate returns an error naming every field that fails its rule.
func (v *Validator) Validate(event any) error {
	err := v.v.Struct(event)
	if err == nil {
		return nil
	}
	if verrs, ok := err.(validator.ValidationErrors); ok {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s(%s)", fe.Field(), fe.Tag()))
		}
		return fmt.Errorf("invalid %T: %v", event, fields)
	}
	return err
}
