// internal/validator/validator.go
package validator

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"expense-tracker/internal/domain"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var Validate *validator.Validate

var nonSpace = regexp.MustCompile(`\S`)

func init() {
	Validate = validator.New()

	// report json names so messages match request bodies
	Validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	// decimals are compared as floats by gt/gte/lte
	Validate.RegisterCustomTypeFunc(func(v reflect.Value) interface{} {
		d, ok := v.Interface().(decimal.Decimal)
		if !ok {
			return nil
		}
		f, _ := d.Float64()
		return f
	}, decimal.Decimal{})

	// string not empty and not only whitespace
	_ = Validate.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return nonSpace.MatchString(fl.Field().String())
	})

	_ = Validate.RegisterValidation("category", func(fl validator.FieldLevel) bool {
		return domain.Category(fl.Field().String()).Valid()
	})

	_ = Validate.RegisterValidation("isodate", func(fl validator.FieldLevel) bool {
		_, err := domain.ParseDate(fl.Field().String())
		return err == nil
	})

	// byte length, unlike max which counts runes; bcrypt stops at 72 bytes
	_ = Validate.RegisterValidation("maxbytes", func(fl validator.FieldLevel) bool {
		limit, err := strconv.Atoi(fl.Param())
		if err != nil {
			return false
		}
		return len(fl.Field().String()) <= limit
	})

	_ = Validate.RegisterValidation("role", func(fl validator.FieldLevel) bool {
		return domain.Role(fl.Field().String()).Valid()
	})
}

// Struct validates v and converts failures into a *domain.ValidationError.
func Struct(v any) error {
	err := Validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate: %w", err)
	}
	out := &domain.ValidationError{Message: "Validation failed"}
	for _, e := range verrs {
		out.Add(e.Field(), fieldErrorToString(e))
	}
	return out
}

// messages keyed by "field.tag" win over the generic ones below
var messages = map[string]string{
	"description.min":            "Description must be between 3 and 200 characters",
	"description.max":            "Description must be between 3 and 200 characters",
	"description.required":       "Description is required",
	"description.notblank":       "Description is required",
	"amount.gte":                 "Amount must be a positive number",
	"category.category":          "Invalid category",
	"date.isodate":               "Invalid date format",
	"monthlyBudget.gte":          "Budget cannot be negative",
	"budgetWarningThreshold.gte": "Warning threshold must be between 0 and 100",
	"budgetWarningThreshold.lte": "Warning threshold must be between 0 and 100",
	"name.min":                   "Name must be between 2 and 50 characters",
	"name.max":                   "Name must be between 2 and 50 characters",
	"email.email":                "Please provide a valid email",
	"password.min":               "Password must be at least 6 characters",
	"password.required":          "Password is required",
	"password.maxbytes":          "Password must be at most 72 bytes",
	"newPassword.maxbytes":       "Password must be at most 72 bytes",
	"email.required":             "Email is required",
	"newPassword.min":            "Password must be at least 6 characters",
	"role.role":                  "Role must be either user or admin",
}

func fieldErrorToString(e validator.FieldError) string {
	if msg, ok := messages[e.Field()+"."+e.Tag()]; ok {
		return msg
	}
	switch e.Tag() {
	case "required", "notblank":
		return fmt.Sprintf("%s is required", e.Field())
	case "isodate":
		return fmt.Sprintf("%s must be a date in YYYY-MM-DD format", e.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", e.Field(), e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", e.Field(), e.Param())
	case "maxbytes":
		return fmt.Sprintf("%s must be at most %s bytes", e.Field(), e.Param())
	case "gte", "lte":
		return fmt.Sprintf("%s must be between 0 and 100", e.Field())
	default:
		return fmt.Sprintf("%s is invalid", e.Field())
	}
}
