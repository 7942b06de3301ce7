package model

import (
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	en2 "github.com/go-playground/validator/translations/en"
	validator "gopkg.in/go-playground/validator.v9"
)

// validate and trans are built once and reused across requests.
var (
	validate *validator.Validate
	trans    ut.Translator
)

func init() {
	locale := en.New()
	uni := ut.New(locale, locale)
	trans, _ = uni.GetTranslator("en")

	validate = validator.New()
	if err := en2.RegisterDefaultTranslations(validate, trans); err != nil {
		panic(err)
	}

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}

		return name
	})

	_ = validate.RegisterValidation("loglevel", validateLogLevel)
}

func validateLogLevel(fl validator.FieldLevel) bool {
	lvl, ok := fl.Field().Interface().(LogLevel)
	if !ok {
		return false
	}

	return lvl.IsValid()
}

// FieldValidations maps a field name to its translated validation error.
type FieldValidations map[string]string

// ValidateRecord validates a single LogRecord's field-level constraints:
// device_id nonempty and <=50 chars, log_level one of the five enum values,
// message nonempty and <=1000 chars.
func ValidateRecord(r *LogRecord) FieldValidations {
	err := validate.Struct(r)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return FieldValidations{"_": err.Error()}
	}

	fields := make(FieldValidations, len(verrs))
	for _, fe := range verrs {
		switch fe.Field() {
		case "log_level":
			fields["log_level"] = "log_level must be one of DEBUG, INFO, WARNING, ERROR, CRITICAL"
		default:
			fields[fe.Field()] = fe.Translate(trans)
		}
	}

	return fields
}
