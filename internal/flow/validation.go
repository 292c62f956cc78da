package flow

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	emailPattern    = regexp.MustCompile(`\S+@\S+\.\S+`)
	namePattern     = regexp.MustCompile(`^[a-zA-Z\s]+$`)
	phonePattern    = regexp.MustCompile(`^\d{8,15}$`)
	isoDatePattern  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	zipCodePattern  = regexp.MustCompile(`^\d{5}(-\d{4})?$`)
	whitespaceChars = regexp.MustCompile(`\s`)
)

// DefaultCountryCode is preselected on the personal-info step.
const DefaultCountryCode = "+598"

// CountryCodes lists the dialing prefixes offered, with the country each one stands for.
var CountryCodes = map[string]string{
	"+598": "Uruguay",
	"+1":   "United States",
	"+44":  "United Kingdom",
	"+33":  "France",
	"+49":  "Germany",
}

// LoginRequest is the body of POST /login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,loose_email"`
	Password string `json:"password" validate:"required,min=6"`
}

// RegisterRequest is the body of POST /register.
type RegisterRequest struct {
	Email           string `json:"email" validate:"required,loose_email"`
	Password        string `json:"password" validate:"required,min=6,password_mix"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
}

// PersonalInfoRequest is the body of POST /personal-info.
type PersonalInfoRequest struct {
	FullName    string `json:"fullName" validate:"required,min=2,person_name"`
	Gender      string `json:"gender" validate:"required,oneof=male female"`
	CountryCode string `json:"countryCode" validate:"required,country_code"`
	PhoneNumber string `json:"phoneNumber" validate:"required,phone_digits"`
	Birthday    string `json:"birthday" validate:"omitempty,iso_date"`
}

func (r *PersonalInfoRequest) normalize() {
	r.FullName = strings.TrimSpace(r.FullName)
	r.PhoneNumber = strings.TrimSpace(r.PhoneNumber)
	if r.CountryCode == "" {
		r.CountryCode = DefaultCountryCode
	}
}

// AddressSearch actions.
const (
	ActionCurrentLocation = "current-location"
	ActionSearch          = "search"
	ActionManual          = "manual"
)

// AddressSearchRequest is the body of POST /address-search. Latitude and
// Longitude are the browser's geolocation result; GeolocationError reports
// that the position could not be obtained.
type AddressSearchRequest struct {
	Action           string   `json:"action" validate:"required,oneof=current-location search manual"`
	Latitude         *float64 `json:"latitude" validate:"omitempty,latitude"`
	Longitude        *float64 `json:"longitude" validate:"omitempty,longitude"`
	GeolocationError string   `json:"geolocationError"`
	Query            string   `json:"query"`
}

// AddressFormRequest is the body of POST /address-form.
type AddressFormRequest struct {
	StreetAddress string `json:"streetAddress" validate:"required,min=5"`
	Apartment     string `json:"apartment"`
	City          string `json:"city" validate:"required,min=2"`
	State         string `json:"state" validate:"required,min=2"`
	ZipCode       string `json:"zipCode" validate:"required,zip_code"`
}

func (r *AddressFormRequest) normalize() {
	r.StreetAddress = strings.TrimSpace(r.StreetAddress)
	r.Apartment = strings.TrimSpace(r.Apartment)
	r.City = strings.TrimSpace(r.City)
	r.State = strings.TrimSpace(r.State)
	r.ZipCode = strings.TrimSpace(r.ZipCode)
}

// fieldMessages holds the message per json field and failing tag.
var fieldMessages = map[string]map[string]string{
	"email": {
		"required":    "Email is required",
		"loose_email": "Please enter a valid email address",
	},
	"password": {
		"required":     "Password is required",
		"min":          "Password must be at least 6 characters long",
		"password_mix": "Password must contain at least one uppercase letter, one lowercase letter, and one number",
	},
	"confirmPassword": {
		"required": "Please confirm your password",
		"eqfield":  "Passwords do not match",
	},
	"fullName": {
		"required":    "Full name is required",
		"min":         "Full name must be at least 2 characters long",
		"person_name": "Full name can only contain letters and spaces",
	},
	"gender": {
		"required": "Please select your gender",
		"oneof":    "Please select your gender",
	},
	"countryCode": {
		"required":     "Please select a country code",
		"country_code": "Please select a supported country code",
	},
	"phoneNumber": {
		"required":     "Phone number is required",
		"phone_digits": "Please enter a valid phone number (8-15 digits)",
	},
	"birthday": {
		"iso_date": "Please enter a valid date (YYYY-MM-DD)",
	},
	"action": {
		"required": "Please choose how to add your address",
		"oneof":    "Please choose how to add your address",
	},
	"latitude": {
		"latitude": "Latitude is out of range",
	},
	"longitude": {
		"longitude": "Longitude is out of range",
	},
	"streetAddress": {
		"required": "Street address is required",
		"min":      "Please enter a complete street address",
	},
	"city": {
		"required": "City is required",
		"min":      "Please enter a valid city name",
	},
	"state": {
		"required": "State is required",
		"min":      "Please enter a valid state",
	},
	"zipCode": {
		"required": "Zip code is required",
		"zip_code": "Please enter a valid zip code (e.g., 12345 or 12345-6789)",
	},
}

// Validator checks step inputs and reports failures keyed by json field name.
type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	mustRegister(v, "loose_email", func(fl validator.FieldLevel) bool {
		return emailPattern.MatchString(fl.Field().String())
	})
	mustRegister(v, "password_mix", func(fl validator.FieldLevel) bool {
		return hasPasswordMix(fl.Field().String())
	})
	mustRegister(v, "person_name", func(fl validator.FieldLevel) bool {
		return namePattern.MatchString(fl.Field().String())
	})
	mustRegister(v, "phone_digits", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(DigitsOnly(fl.Field().String()))
	})
	mustRegister(v, "iso_date", func(fl validator.FieldLevel) bool {
		return isoDatePattern.MatchString(fl.Field().String())
	})
	mustRegister(v, "zip_code", func(fl validator.FieldLevel) bool {
		return zipCodePattern.MatchString(fl.Field().String())
	})
	mustRegister(v, "country_code", func(fl validator.FieldLevel) bool {
		_, ok := CountryCodes[fl.Field().String()]
		return ok
	})
	return &Validator{validate: v}
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(err)
	}
}

// Struct validates req and returns the field-keyed messages, or nil when valid.
// Only the first failure of each field is reported.
func (v *Validator) Struct(req interface{}) map[string]string {
	err := v.validate.Struct(req)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return map[string]string{"submit": err.Error()}
	}

	out := make(map[string]string, len(ve))
	for _, fe := range ve {
		field := fe.Field()
		if _, seen := out[field]; seen {
			continue
		}
		out[field] = messageFor(field, fe.Tag())
	}
	return out
}

func messageFor(field, tag string) string {
	if msgs, ok := fieldMessages[field]; ok {
		if msg, ok := msgs[tag]; ok {
			return msg
		}
	}
	return "Invalid value"
}

func hasPasswordMix(s string) bool {
	var lower, upper, digit bool
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		}
	}
	return lower && upper && digit
}

// DigitsOnly strips every whitespace character from a phone number.
func DigitsOnly(phone string) string {
	return whitespaceChars.ReplaceAllString(phone, "")
}
