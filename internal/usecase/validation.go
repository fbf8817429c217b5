package usecase

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/vadimbarashkov/shortlink/internal/entity"
)

const maxUTMValueLength = 100

var utmValueRe = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

type shortenInput struct {
	OriginalURL string            `json:"original_url" validate:"required,abs_url"`
	Slug        string            `json:"slug" validate:"omitempty,slug"`
	UTMParams   map[string]string `json:"utm_params" validate:"dive,max=100,utm_value"`
}

func newValidator(slugLength int) *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// Registration only fails on empty tags or nil funcs.
	_ = v.RegisterValidation("abs_url", func(fl validator.FieldLevel) bool {
		u, err := url.Parse(fl.Field().String())
		return err == nil && u.Scheme != "" && u.Host != ""
	})
	_ = v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return len(s) == slugLength && isAlphanumeric(s)
	})
	_ = v.RegisterValidation("utm_value", func(fl validator.FieldLevel) bool {
		return utmValueRe.MatchString(fl.Field().String())
	})

	return v
}

func isAlphanumeric(s string) bool {
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}

func (uc *URLUseCase) validateShortenParams(params entity.ShortenParams) error {
	var errs entity.ValidationErrors

	err := uc.validate.Struct(shortenInput{
		OriginalURL: params.OriginalURL,
		Slug:        params.Slug,
		UTMParams:   params.UTMParams.Map(),
	})

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		for _, fe := range fieldErrs {
			errs = append(errs, &entity.ValidationError{
				Field:   fe.Field(),
				Message: uc.messageForTag(fe.Tag()),
			})
		}
	} else if err != nil {
		return fmt.Errorf("failed to validate params: %w", err)
	}

	if exp := params.ExpirationDate; exp != nil && !exp.After(uc.now()) {
		errs = append(errs, &entity.ValidationError{
			Field:   "expiration_date",
			Message: "must be in the future",
		})
	}

	if len(errs) > 0 {
		return errs
	}

	return nil
}

func (uc *URLUseCase) messageForTag(tag string) string {
	switch tag {
	case "required":
		return "this field is required"
	case "abs_url":
		return "must be an absolute url"
	case "slug":
		return fmt.Sprintf("must be %d alphanumeric characters", uc.slugLength)
	case "max":
		return fmt.Sprintf("must be at most %d characters", maxUTMValueLength)
	case "utm_value":
		return "may contain only letters, digits, '.', '_' and '-'"
	default:
		return "invalid value"
	}
}
