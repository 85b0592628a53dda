package config

import (
	"errors"
	"fmt"
	"regexp"
	"sync"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"github.com/verte-zerg/keyprint/internal/model"
)

// userIDPattern: a letter followed by 1-19 letters, digits or underscores.
var userIDPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{1,19}$`)

type validatorSvc struct {
	validate   *validator.Validate
	translator ut.Translator
}

var (
	vOnce sync.Once
	vSvc  *validatorSvc
)

func validatorInstance() *validatorSvc {
	vOnce.Do(func() {
		enLoc := en.New()
		uni := ut.New(enLoc, enLoc)
		trans, _ := uni.GetTranslator("en")

		v := validator.New(validator.WithRequiredStructEnabled())
		_ = en_translations.RegisterDefaultTranslations(v, trans)

		_ = v.RegisterValidation("userid", func(fl validator.FieldLevel) bool {
			return userIDPattern.MatchString(fl.Field().String())
		})
		_ = v.RegisterTranslation("userid", trans,
			func(ut ut.Translator) error {
				return ut.Add("userid", "{0} must be 2-20 characters, start with a letter and use only letters, digits or underscores", true)
			},
			func(ut ut.Translator, fe validator.FieldError) string {
				msg, _ := ut.T("userid", fe.Field())
				return msg
			},
		)

		vSvc = &validatorSvc{validate: v, translator: trans}
	})
	return vSvc
}

// Validate checks a resolved config.
func Validate(cfg model.Config) error {
	return validateStruct(cfg)
}

// ValidateUser checks a user id and display name.
func ValidateUser(u model.NewUser) error {
	return validateStruct(u)
}

// ValidUserID reports whether id is an acceptable user id.
func ValidUserID(id string) bool {
	return userIDPattern.MatchString(id)
}

func validateStruct(v any) error {
	svc := validatorInstance()
	err := svc.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Errorf("%s: %s", fe.Namespace(), fe.Translate(svc.translator)))
	}
	return errors.Join(msgs...)
}
