package validation

import (
	"regexp"
	"slices"

	"github.com/BartekS5/fieldmap/pkg/models"
)

var (
	dataStoreNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
	endpointPattern      = regexp.MustCompile(`^https?://.+`)
)

// ValidateConnection checks the connection setup form. existingNames are the
// data store names already taken downstream; a duplicate name wins over a
// format error.
func ValidateConnection(form models.ConnectionForm, existingNames []string) models.ConnectionErrors {
	var errs models.ConnectionErrors

	if !dataStoreNamePattern.MatchString(form.DataStoreName) {
		errs.DataStoreName = models.ErrInvalidFormat
	}
	if slices.Contains(existingNames, form.DataStoreName) {
		errs.DataStoreName = models.ErrDuplicate
	}

	if !endpointPattern.MatchString(form.DataEndpoint) {
		errs.DataEndpoint = models.ErrInvalidFormat
	}

	if form.AuthMethod.UsesToken() && form.APIKey == "" {
		errs.APIKey = models.ErrRequired
	}
	if form.AuthMethod == models.AuthBasic {
		if form.Username == "" {
			errs.Username = models.ErrRequired
		}
		if form.Password == "" {
			errs.Password = models.ErrRequired
		}
	}

	if !form.Tested {
		errs.TestAPIConnection = models.ErrConnectionUntested
	}
	return errs
}
