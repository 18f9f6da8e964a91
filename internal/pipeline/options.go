package pipeline

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	DefaultMaxWidth = 800
	DefaultQuality  = 0.85
	DefaultFormat   = "jpeg"
)

type Options struct {
	MaxWidth int     `json:"max_width" validate:"gt=0"`
	Quality  float64 `json:"quality" validate:"gt=0,lte=1"`
	Format   string  `json:"format,omitempty"`
}

func DefaultOptions() Options {
	return Options{
		MaxWidth: DefaultMaxWidth,
		Quality:  DefaultQuality,
		Format:   DefaultFormat,
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", fe.Field(), fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed validation for tag '%s'", fe.Field(), fe.Tag())
	}
}

func (o Options) Validate() error {
	err := validate.Struct(o)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, validationMessage(fe))
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfiguration, strings.Join(msgs, "; "))
}

func (o Options) format() string {
	if strings.TrimSpace(o.Format) == "" {
		return DefaultFormat
	}
	return normalizeOutputFormat(strings.ToLower(strings.TrimSpace(o.Format)))
}
