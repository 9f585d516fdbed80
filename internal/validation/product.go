package validation

import (
	"regexp"
	"slices"
	"strings"

	"github.com/BartekS5/fieldmap/pkg/models"
)

const (
	productKeyMinLen = 32
	productKeyMaxLen = 64
)

var (
	// Letters, digits and CJK unified ideographs.
	productNamePattern = regexp.MustCompile(`^[A-Za-z0-9\x{4e00}-\x{9fa5}]+$`)
	apiPathPattern     = regexp.MustCompile(`^[a-z0-9\-/]+$`)
	productKeyPattern  = regexp.MustCompile(`^[A-Za-z0-9]+$`)
	credentialPattern  = regexp.MustCompile(`^[A-Za-z0-9!@#$%^&*()_+\-=\[\]{};':"\\|,.<>/?]+$`)
)

// ValidateProductForm checks the data product connection form. Only the
// credentials of the selected auth method are checked.
func ValidateProductForm(form models.ProductForm, existingNames []string) models.ProductErrors {
	errs := models.ProductErrors{
		ProductName: productNameError(form.ProductName, existingNames),
		APIPath:     apiPathError(form.APIPath),
	}

	switch {
	case form.AuthMethod.UsesToken():
		errs.APIKey = productKeyError(form.APIKey)
	case form.AuthMethod == models.AuthBasic:
		errs.Username = credentialError(form.Username)
		errs.Password = credentialError(form.Password)
	}
	return errs
}

func productNameError(name string, existingNames []string) models.FieldError {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return models.ErrRequired
	case !productNamePattern.MatchString(name):
		return models.ErrInvalidFormat
	case slices.Contains(existingNames, name):
		return models.ErrDuplicate
	}
	return models.ErrNone
}

// The API prefix already ends in a slash, so one leading slash is dropped.
func apiPathError(path string) models.FieldError {
	path = strings.TrimSpace(path)
	if path == "" {
		return models.ErrRequired
	}
	if !apiPathPattern.MatchString(strings.TrimPrefix(path, "/")) {
		return models.ErrInvalidFormat
	}
	return models.ErrNone
}

func productKeyError(key string) models.FieldError {
	if key == "" {
		return models.ErrRequired
	}
	if len(key) < productKeyMinLen || len(key) > productKeyMaxLen || !productKeyPattern.MatchString(key) {
		return models.ErrInvalidFormat
	}
	return models.ErrNone
}

func credentialError(v string) models.FieldError {
	v = strings.TrimSpace(v)
	if v == "" {
		return models.ErrRequired
	}
	if !credentialPattern.MatchString(v) {
		return models.ErrInvalidFormat
	}
	return models.ErrNone
}
