package document

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/dossier/core"
)

var (
	statusTag  = "docstatus"
	statusText = "{0} must be one of: pending, uploaded, approved, rejected, expired"

	policyTag  = "resubmitpolicy"
	policyText = "{0} must be one of: clear-file, keep-file"
)

// InitValidators registers the document validators and their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(statusTag, statusValidation)
	core.RegisterCustomTranslation(validate, translator, statusTag, statusText)

	_ = validate.RegisterValidation(policyTag, policyValidation)
	core.RegisterCustomTranslation(validate, translator, policyTag, policyText)
}

// statusValidation accepts Status values and strings naming one.
func statusValidation(fl validator.FieldLevel) bool {
	return Status(fl.Field().String()).Valid()
}

func policyValidation(fl validator.FieldLevel) bool {
	switch ResubmitPolicy(fl.Field().String()) {
	case ResubmitClearFile, ResubmitKeepFile:
		return true
	}
	return false
}
