// Package validation checks dashboard forms before they reach the CRM API.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"crm-dashboard/internal/domain"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = v.RegisterValidation("strongpassword", func(fl validator.FieldLevel) bool {
		return strongPassword(fl.Field().String())
	})

	return v
}

// strongPassword requires at least one uppercase letter and one digit
func strongPassword(s string) bool {
	var upper, digit bool
	for _, r := range s {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return upper && digit
}

var messages = map[string]string{
	"required":       "This field is required",
	"notblank":       "This field is required",
	"email":          "Invalid email address",
	"min":            "Must be at least %s characters",
	"max":            "Must be at most %s characters",
	"len":            "Must be exactly %s characters",
	"gte":            "Must be greater than or equal to %s",
	"strongpassword": "Password must contain one uppercase letter and one digit",
	"eqfield":        "Passwords must match",
}

func message(e validator.FieldError) string {
	msg, ok := messages[e.Tag()]
	if !ok {
		return fmt.Sprintf("Invalid value (%s)", e.Tag())
	}
	if strings.Contains(msg, "%s") {
		return fmt.Sprintf(msg, e.Param())
	}
	return msg
}

// Errors maps JSON field names to the first problem found on each
type Errors map[string]string

func (e Errors) Error() string {
	fields := make([]string, 0, len(e))
	for field := range e {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(e))
	for _, field := range fields {
		parts = append(parts, field+": "+e[field])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// ValidateStruct validates s and returns nil when it is valid
func ValidateStruct(s any) Errors {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return Errors{"_": err.Error()}
	}

	out := make(Errors, len(verrs))
	for _, e := range verrs {
		field := e.Field()
		if _, seen := out[field]; !seen {
			out[field] = message(e)
		}
	}
	return out
}

// LoginForm is the sign-in form
type LoginForm struct {
	Email    string `json:"email" validate:"notblank,email"`
	Password string `json:"password" validate:"notblank"`
}

// Credentials converts the form into the API payload
func (f LoginForm) Credentials() domain.Credentials {
	return domain.Credentials{Email: strings.TrimSpace(f.Email), Password: f.Password}
}

// RegisterForm is the sign-up form
type RegisterForm struct {
	Email           string `json:"email" validate:"notblank,email"`
	Password        string `json:"password" validate:"notblank,min=6,strongpassword"`
	ConfirmPassword string `json:"confirmPassword" validate:"notblank,eqfield=Password"`
}

// Credentials converts the form into the API payload
func (f RegisterForm) Credentials() domain.Credentials {
	return domain.Credentials{Email: strings.TrimSpace(f.Email), Password: f.Password}
}

// DealForm validates a deal create request
type DealForm struct {
	Title       string   `json:"title" validate:"notblank,max=255"`
	Opportunity *float64 `json:"opportunity" validate:"omitempty,gte=0"`
	CurrencyID  string   `json:"currencyId" validate:"omitempty,len=3"`
}

// NewDealForm extracts the validated fields of a create payload
func NewDealForm(d domain.CreateDeal) DealForm {
	return DealForm{Title: d.Title, Opportunity: d.Opportunity, CurrencyID: d.CurrencyID}
}

// DealPatchForm validates a partial update. Absent fields are left untouched upstream.
type DealPatchForm struct {
	Title       string   `json:"title" validate:"max=255"`
	Opportunity *float64 `json:"opportunity" validate:"omitempty,gte=0"`
	CurrencyID  string   `json:"currencyId" validate:"omitempty,len=3"`
}

// NewDealPatchForm extracts the validated fields of an update payload
func NewDealPatchForm(d domain.CreateDeal) DealPatchForm {
	return DealPatchForm{Title: d.Title, Opportunity: d.Opportunity, CurrencyID: d.CurrencyID}
}

// ProfileForm validates a profile update; email is optional but must be well formed
type ProfileForm struct {
	Name    string `json:"name" validate:"max=100"`
	Email   string `json:"email" validate:"omitempty,email"`
	Phone   string `json:"phone" validate:"max=32"`
	Address string `json:"address" validate:"max=255"`
}

// NewProfileForm wraps an update payload
func NewProfileForm(u domain.UpdateUserProfile) ProfileForm {
	return ProfileForm{Name: u.Name, Email: u.Email, Phone: u.Phone, Address: u.Address}
}
