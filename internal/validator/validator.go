package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/qzplatform/qz-service/internal/models"
)

// ValidationError describes one rejected field
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
	Rule    string      `json:"rule,omitempty"`
}

type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "validation failed"
	}
	if len(ve) == 1 {
		return fmt.Sprintf("validation failed: %s %s", ve[0].Field, ve[0].Message)
	}
	return fmt.Sprintf("validation failed: %d field errors", len(ve))
}

// OrNil keeps an empty error list from turning into a non-nil error interface
func (ve ValidationErrors) OrNil() error {
	if len(ve) == 0 {
		return nil
	}
	return ve
}

// Validator wraps go-playground/validator with the platform's custom rules
type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	v := &Validator{validate: validate}
	v.registerRules()
	return v
}

// Validate runs struct tags and returns ValidationErrors, or nil
func (v *Validator) Validate(s interface{}) error {
	if err := v.validate.Struct(s); err != nil {
		return ToValidationErrors(err)
	}
	return nil
}

// ToValidationErrors converts go-playground errors into ValidationErrors
func ToValidationErrors(err error) ValidationErrors {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return ValidationErrors{{Field: "request", Message: err.Error(), Rule: "invalid"}}
	}

	out := make(ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, ValidationError{
			Field:   fe.Field(),
			Message: messageFor(fe),
			Value:   fe.Value(),
			Rule:    fe.Tag(),
		})
	}
	return out
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "notblank":
		return "must not be blank"
	case "question_type":
		return "must be one of multipleChoice, trueFalse, fillInTheGap"
	case "assignment_method":
		return "must be one of manual, email, link"
	case "link_sharing":
		return "must be public or restricted"
	case "sort_order":
		return "must be asc or desc"
	}
	return fmt.Sprintf("failed on the '%s' rule", fe.Tag())
}

func (v *Validator) registerRules() {
	v.validate.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})

	v.validate.RegisterValidation("question_type", func(fl validator.FieldLevel) bool {
		switch models.QuestionType(fl.Field().String()) {
		case models.MultipleChoice, models.TrueFalse, models.FillInTheGap:
			return true
		}
		return false
	})

	v.validate.RegisterValidation("assignment_method", func(fl validator.FieldLevel) bool {
		switch models.AssignmentMethod(fl.Field().String()) {
		case models.AssignmentManual, models.AssignmentEmail, models.AssignmentLink:
			return true
		}
		return false
	})

	v.validate.RegisterValidation("link_sharing", func(fl validator.FieldLevel) bool {
		switch models.LinkSharing(fl.Field().String()) {
		case models.LinkPublic, models.LinkRestricted:
			return true
		}
		return false
	})

	v.validate.RegisterValidation("sort_order", func(fl validator.FieldLevel) bool {
		s := strings.ToLower(fl.Field().String())
		return s == "" || s == "asc" || s == "desc"
	})
}
