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

// BookRequest is the booking input shape. StartTime and EndTime arrive in
// the boundary date-time format.
type BookRequest struct {
	CoachID   string         `json:"coach_id" validate:"required"`
	StudentID string         `json:"student_id" validate:"required"`
	TableID   string         `json:"table_id" validate:"required"`
	StartTime model.DateTime `json:"start_time"`
	EndTime   model.DateTime `json:"end_time"`
}

type CourseValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewCourseValidator(log *logger.Logger) *CourseValidator {
	return &CourseValidator{
		validate: validator.New(),
		logger:   log,
	}
}

func (v *CourseValidator) ValidateBook(req *BookRequest) error {
	if err := v.validate.Struct(req); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return v.translateValidationErrors(validationErrs)
		}
		return err
	}

	var errs ValidationErrors
	if req.StartTime.IsZero() {
		errs = append(errs, ValidationError{Field: "StartTime", Message: "start_time is required"})
	}
	if req.EndTime.IsZero() {
		errs = append(errs, ValidationError{Field: "EndTime", Message: "end_time is required"})
	}
	if !req.StartTime.IsZero() && !req.EndTime.IsZero() && !req.EndTime.After(req.StartTime.Time) {
		errs = append(errs, ValidationError{Field: "EndTime", Message: "end_time must be after start_time"})
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (v *CourseValidator) translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", err.Field())
		case "min":
			message = fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
		case "max":
			message = fmt.Sprintf("%s must be at most %s", err.Field(), err.Param())
		case "oneof":
			message = fmt.Sprintf("%s must be one of: %s", err.Field(), err.Param())
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: message,
		})
	}

	return validationErrors
}
