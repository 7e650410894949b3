// Package validation checks API request params using go-playground/validator
// with custom validators for tag keys, decoders and hex data.
package validation

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/wizzomafizzo/mfctext/pkg/mifare"
	"github.com/wizzomafizzo/mfctext/pkg/utils"
)

var (
	ErrMissingParams = errors.New("missing params")
	ErrInvalidParams = errors.New("invalid params")
)

type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	_ = v.RegisterValidation("hexdata", validateHexData)
	_ = v.RegisterValidation("mfkey", validateKey)
	_ = v.RegisterValidation("mfkeytype", validateKeyType)
	_ = v.RegisterValidation("decoder", validateDecoder)

	return &Validator{validate: v}
}

// DefaultValidator is a shared validator instance for API use.
var DefaultValidator = NewValidator()

// Validate validates a struct and returns an *Error if any field fails.
func (v *Validator) Validate(params any) error {
	err := v.validate.Struct(params)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		return NewError(validationErrors)
	}
	return fmt.Errorf("%w: %s", ErrInvalidParams, err)
}

// ValidateAndUnmarshal unmarshals JSON params and validates them. Returns
// ErrMissingParams if params is empty, ErrInvalidParams if unmarshal fails,
// or an *Error if validation fails.
func ValidateAndUnmarshal[T any](params []byte, dest *T) error {
	if len(params) == 0 {
		return ErrMissingParams
	}
	if err := json.Unmarshal(params, dest); err != nil {
		return ErrInvalidParams
	}
	return DefaultValidator.Validate(dest)
}

// validateHexData accepts hex with the separators people type by hand, as
// long as it decodes to whole bytes.
func validateHexData(fl validator.FieldLevel) bool {
	val := utils.CleanHex(fl.Field().String())
	if val == "" {
		return false
	}
	_, err := hex.DecodeString(val)
	return err == nil
}

func validateKey(fl validator.FieldLevel) bool {
	_, err := mifare.ParseKey(fl.Field().String())
	return err == nil
}

func validateKeyType(fl validator.FieldLevel) bool {
	_, err := mifare.ParseKeyType(fl.Field().String())
	return err == nil
}

func validateDecoder(fl validator.FieldLevel) bool {
	return mifare.ValidDecoder(fl.Field().String())
}
