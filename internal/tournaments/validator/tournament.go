package validator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"rally/pkg/logger"
	"rally/pkg/model"
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var messages []string
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(messages, "; "))
}

// CreateRequest is the tournament creation input shape.
type CreateRequest struct {
	CampusID  string         `json:"campus_id" validate:"required"`
	Name      string         `json:"name" validate:"required,max=128"`
	Groups    []string       `json:"groups" validate:"required,min=1,dive,required"`
	EventDate model.DateTime `json:"event_date"`
	Open      model.DateTime `json:"registration_open"`
	Close     model.DateTime `json:"registration_close"`
}

type TournamentValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewTournamentValidator(log *logger.Logger) *TournamentValidator {
	return &TournamentValidator{
		validate: validator.New(),
		logger:   log,
	}
}

func (v *TournamentValidator) ValidateCreate(req *CreateRequest) error {
	if err := v.validate.Struct(req); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return v.translateValidationErrors(validationErrs)
		}
		return err
	}

	var errs ValidationErrors
	if req.Open.IsZero() || req.Close.IsZero() {
		errs = append(errs, ValidationError{Field: "RegistrationWindow", Message: "registration_open and registration_close are required"})
	} else if !req.Close.After(req.Open.Time) {
		errs = append(errs, ValidationError{Field: "RegistrationWindow", Message: "registration_close must be after registration_open"})
	}
	if req.EventDate.IsZero() {
		errs = append(errs, ValidationError{Field: "EventDate", Message: "event_date is required"})
	} else if !req.Close.IsZero() && req.EventDate.Before(req.Close.Time) {
		errs = append(errs, ValidationError{Field: "EventDate", Message: "event_date must not precede the registration close"})
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (v *TournamentValidator) translateValidationErrors(validationErrs validator.ValidationErrors) ValidationErrors {
	var errs ValidationErrors
	for _, fieldErr := range validationErrs {
		var message string
		switch fieldErr.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", fieldErr.Field())
		case "min":
			message = fmt.Sprintf("%s must have at least %s entries", fieldErr.Field(), fieldErr.Param())
		case "max":
			message = fmt.Sprintf("%s must be at most %s characters", fieldErr.Field(), fieldErr.Param())
		default:
			message = fmt.Sprintf("%s failed validation on %s", fieldErr.Field(), fieldErr.Tag())
		}
		errs = append(errs, ValidationError{Field: fieldErr.Field(), Message: message})
	}
	return errs
}
