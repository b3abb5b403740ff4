package handlers

import (
	"errors"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var ticketStatuses = []string{"OPEN", "IN_PROGRESS", "RESOLVED", "CLOSED"}

var ticketIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

func validTicketID(id string) bool {
	return ticketIDPattern.MatchString(id)
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = v.RegisterValidation("ticketid", func(fl validator.FieldLevel) bool {
		return validTicketID(fl.Field().String())
	})
	_ = v.RegisterValidation("ticketstatus", func(fl validator.FieldLevel) bool {
		status := strings.ToUpper(strings.TrimSpace(fl.Field().String()))
		for _, allowed := range ticketStatuses {
			if status == allowed {
				return true
			}
		}
		return false
	})
	return v
}

type contactInput struct {
	Title   string `json:"title" validate:"omitempty,max=200"`
	Subject string `json:"subject" validate:"notblank,max=100"`
	Message string `json:"message" validate:"notblank,max=5000"`
}

type ticketMessageInput struct {
	TicketID string `json:"-" validate:"ticketid"`
	Message  string `json:"message" validate:"notblank,max=5000"`
}

type ticketStatusInput struct {
	TicketID string `json:"-" validate:"ticketid"`
	Status   string `json:"status" validate:"ticketstatus"`
}

type syncInput struct {
	Email    string `json:"email" validate:"omitempty,email"`
	Username string `json:"username" validate:"omitempty,max=64"`
}

type conversationInput struct {
	Name string `json:"name" validate:"omitempty,max=120"`
}

// fieldErrors lists the JSON names of the fields that failed validation.
func fieldErrors(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, strings.ToLower(fe.Field()[:1])+fe.Field()[1:])
	}
	return fields
}
