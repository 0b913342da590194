package orders

import (
	"errors"
	"github.com/go-playground/validator/v10"
	"reflect"
	"strings"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// toValidationError reports the first failed rule as a *ValidationError.
func toValidationError(err error) error {
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		field := fe.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		return &ValidationError{Field: field, Reason: "failed " + fe.Tag()}
	}
	return &ValidationError{Field: "payload", Reason: err.Error()}
}

// ValidatePaymentID is the guard every consumer applies first.
func ValidatePaymentID(ev OrderEvent) error {
	if strings.TrimSpace(ev.PaymentID) == "" {
		return &ValidationError{Field: "paymentId", Reason: "is required"}
	}
	return nil
}

// ValidateEvent checks paymentId and every order line.
func ValidateEvent(ev OrderEvent) error {
	if err := ValidatePaymentID(ev); err != nil {
		return err
	}
	return toValidationError(validate.Struct(ev))
}

// ValidateStockEvent additionally requires at least one order line.
func ValidateStockEvent(ev OrderEvent) error {
	if err := ValidatePaymentID(ev); err != nil {
		return err
	}
	if len(ev.OrderLines) == 0 {
		return &ValidationError{Field: "orderLines", Reason: "must not be empty"}
	}
	return toValidationError(validate.Struct(ev))
}

// ValidateStruct runs the struct's validate tags and reports the first
// failure as a *ValidationError.
func ValidateStruct(v any) error {
	return toValidationError(validate.Struct(v))
}
