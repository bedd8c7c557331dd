package api

import (
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// passwordSpecials is the set of characters that satisfy has_special.
const passwordSpecials = `!@#$%^&*(),.?":{}|<>_-[]\/;'+=`

// maxPasswordBytes is the longest input bcrypt accepts.
const maxPasswordBytes = 72

// Validator checks decoded request bodies and renders failures as
// "<field>: <message>" strings.
type Validator struct {
	v *validator.Validate
}

// NewValidator creates a Validator with the password rules registered.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})

	for tag, fn := range map[string]func(string) bool{
		"has_upper":   containsFunc(unicode.IsUpper),
		"has_lower":   containsFunc(unicode.IsLower),
		"has_digit":   containsFunc(unicode.IsDigit),
		"has_special": func(s string) bool { return strings.ContainsAny(s, passwordSpecials) },
		"bcrypt_len":  func(s string) bool { return len(s) <= maxPasswordBytes },
	} {
		// Registration only fails for empty tags or nil funcs.
		_ = v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			return fn(fl.Field().String())
		})
	}
	return &Validator{v: v}
}

func containsFunc(pred func(rune) bool) func(string) bool {
	return func(s string) bool { return strings.IndexFunc(s, pred) >= 0 }
}

// Check validates s and returns the field messages, prefixed with prefix
// when non-empty. Fields that already failed to decode are not reported a
// second time.
func (val *Validator) Check(s any, prefix string, decodeErrs typeErrors) []string {
	err := val.v.Struct(s)
	if err == nil {
		return nil
	}
	var vErrs validator.ValidationErrors
	if !errors.As(err, &vErrs) {
		return []string{err.Error()}
	}

	out := make([]string, 0, len(vErrs))
	for _, fe := range vErrs {
		field := fe.Field()
		if prefix != "" {
			field = prefix + "." + field
		}
		if decodeErrs.has(field) {
			continue
		}
		out = append(out, field+": "+message(fe))
	}
	return out
}

func (t typeErrors) has(field string) bool {
	for _, msg := range t {
		if strings.HasPrefix(msg, field+": ") {
			return true
		}
	}
	return false
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "Required"
	case "email":
		return "Invalid email"
	case "uuid":
		return "Invalid uuid"
	case "alphanum":
		return "Must be alphanumeric"
	case "has_upper":
		return "Must include at least one uppercase letter"
	case "has_lower":
		return "Must include at least one lowercase letter"
	case "has_digit":
		return "Must include at least one number"
	case "has_special":
		return "Must include at least one special character"
	case "bcrypt_len":
		return "Must be at most " + strconv.Itoa(maxPasswordBytes) + " bytes"
	case "min":
		if fe.Kind() == reflect.String {
			return "String must contain at least " + fe.Param() + " character(s)"
		}
		return "Number must be greater than or equal to " + fe.Param()
	case "max":
		if fe.Kind() == reflect.String {
			return "String must contain at most " + fe.Param() + " character(s)"
		}
		return "Number must be less than or equal to " + fe.Param()
	case "gt":
		return "Number must be greater than " + fe.Param()
	default:
		return "Invalid value"
	}
}
