// internal/middleware/validation.go
package middleware

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/gurkanbulca/taskassign/internal/models"
)

// FieldError describes one rejected request field.
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// ValidationError is returned when a request body cannot be decoded or fails
// its struct rules.
type ValidationError struct {
	Message string       `json:"message"`
	Fields  []FieldError `json:"fields,omitempty"`
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return fmt.Sprintf("%s: %s", e.Message, strings.Join(parts, "; "))
}

// Validator wraps validator/v10 with the task domain's custom rules:
// taskstatus, priority and role.
type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report JSON names instead of Go field names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})

	// Registration only fails for empty tags or nil funcs.
	_ = v.RegisterValidation("taskstatus", func(fl validator.FieldLevel) bool {
		_, err := models.ParseStatus(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("priority", func(fl validator.FieldLevel) bool {
		_, err := models.ParsePriority(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("role", func(fl validator.FieldLevel) bool {
		_, err := models.ParseRole(fl.Field().String())
		return err == nil
	})

	return &Validator{validate: v}
}

// Struct validates s against its `validate` tags.
func (v *Validator) Struct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ValidationError{Message: err.Error()}
	}

	out := &ValidationError{Message: "validation failed"}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{
			Field:   fe.Field(),
			Rule:    fe.Tag(),
			Message: describe(fe),
		})
	}
	return out
}

// BindAndValidate decodes the request body into dst and validates it.
func (v *Validator) BindAndValidate(c *fiber.Ctx, dst interface{}) error {
	if err := c.BodyParser(dst); err != nil {
		return &ValidationError{Message: "invalid request body"}
	}
	return v.Struct(dst)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "uuid":
		return "must be a valid id"
	case "taskstatus":
		return "must be one of: " + joinStatuses()
	case "priority":
		return "must be low, medium or high"
	case "role":
		return "must be admin or employee"
	default:
		return "failed " + fe.Tag() + " check"
	}
}

func joinStatuses() string {
	names := make([]string, len(models.Statuses))
	for i, s := range models.Statuses {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}
