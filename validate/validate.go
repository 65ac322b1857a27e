package validate

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/google/uuid"
)

// ErrInvalid is wrapped by the errors returned from Check.
var ErrInvalid = errors.New("validation failed")

var validate *validator.Validate

var translator ut.Translator

const postcodeTag = "gb_postcode"

var gbPostcode = regexp.MustCompile(`^(?:GIR ?0AA|[A-Z]{1,2}\d[A-Z\d]? ?\d[ABD-HJLNP-UW-Z]{2}|BFPO ?\d{1,4})$`)

// NormalizePostcode upper-cases pc and collapses its whitespace to single
// spaces.
func NormalizePostcode(pc string) string {
	return strings.ToUpper(strings.Join(strings.Fields(pc), " "))
}

// IsPostcode reports whether pc is a UK postcode once normalized.
func IsPostcode(pc string) bool {
	return gbPostcode.MatchString(NormalizePostcode(pc))
}

func init() {

	validate = validator.New()

	// Report fields by their JSON name, the name clients send.
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	translator, _ = ut.New(en.New(), en.New()).GetTranslator("en")
	en_translations.RegisterDefaultTranslations(validate, translator)

	validate.RegisterValidation(postcodeTag, func(fl validator.FieldLevel) bool {
		return IsPostcode(fl.Field().String())
	})

	validate.RegisterTranslation(postcodeTag, translator,
		func(ut ut.Translator) error {
			return ut.Add(postcodeTag, "{0} is not a valid postal code", true)
		},
		func(ut ut.Translator, fe validator.FieldError) string {
			t, _ := ut.T(postcodeTag, fe.Field())
			return t
		},
	)
}

// Check validates val and returns the first failure as a readable error
// wrapping ErrInvalid.
func Check(val any) error {
	err := validate.Struct(val)
	if err == nil {
		return nil
	}

	var verrors validator.ValidationErrors
	if !errors.As(err, &verrors) || len(verrors) == 0 {
		return err
	}

	return fmt.Errorf("%w: %s", ErrInvalid, verrors[0].Translate(translator))
}

// CheckFields validates val and returns one translated message per failing
// field, keyed by the field's JSON name. It returns nil when val is valid.
func CheckFields(val any) map[string]string {
	err := validate.Struct(val)
	if err == nil {
		return nil
	}

	var verrors validator.ValidationErrors
	if !errors.As(err, &verrors) {
		return map[string]string{"": err.Error()}
	}

	fields := make(map[string]string, len(verrors))
	for _, fe := range verrors {
		if _, ok := fields[fe.Field()]; ok {
			continue
		}
		fields[fe.Field()] = fe.Translate(translator)
	}
	return fields
}

func GenerateID() string {
	return uuid.NewString()
}

func CheckID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("ID is not in its proper form")
	}
	return nil
}
