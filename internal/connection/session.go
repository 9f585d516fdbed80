// Package connection holds the state of the connection setup step and the
// HTTP tester that fetches a sample from the configured endpoint.
package connection

import (
	"slices"
	"sync"

	"github.com/BartekS5/fieldmap/internal/validation"
	"github.com/BartekS5/fieldmap/pkg/models"
)

// Session tracks the connection form and its errors. Any change to a field
// that affects the request clears a previous successful test.
type Session struct {
	mu       sync.Mutex
	form     models.ConnectionForm
	errs     models.ConnectionErrors
	existing []string
	failed   bool
}

func NewSession(existingNames []string) *Session {
	s := &Session{
		form:     models.DefaultConnectionForm(),
		existing: slices.Clone(existingNames),
	}
	s.revalidateLocked()
	return s
}

func (s *Session) Form() models.ConnectionForm {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.form
}

func (s *Session) Errors() models.ConnectionErrors {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errs
}

// Update replaces the form. The tested flag is owned by the session: it
// survives only when the request target is unchanged.
func (s *Session) Update(form models.ConnectionForm) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if form.SameTarget(s.form) {
		form.Tested = s.form.Tested
	} else {
		form.Tested = false
		s.failed = false
	}
	s.form = form
	s.revalidateLocked()
}

// SetExistingNames replaces the data store names already taken downstream.
func (s *Session) SetExistingNames(names []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.existing = slices.Clone(names)
	s.revalidateLocked()
}

// CanTest reports whether the form is complete enough to run a test.
func (s *Session) CanTest() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return validation.CanTestConnection(s.errs)
}

// RecordTest stores the outcome of a connection test run against form. A
// result for a form whose target has changed since is ignored.
func (s *Session) RecordTest(form models.ConnectionForm, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !form.SameTarget(s.form) {
		return false
	}
	s.form.Tested = err == nil
	s.failed = err != nil
	s.revalidateLocked()
	return true
}

func (s *Session) Tested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.form.Tested
}

// IsValid is the connection step validity.
func (s *Session) IsValid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return validation.IsConnectionStepValid(s.errs, s.form.Tested)
}

// Reset restores the default form and forgets any test result.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.form = models.DefaultConnectionForm()
	s.failed = false
	s.revalidateLocked()
}

func (s *Session) revalidateLocked() {
	s.errs = validation.ValidateConnection(s.form, s.existing)
	if s.failed && !s.form.Tested {
		s.errs.TestAPIConnection = models.ErrConnectionFailed
	}
}
