// Package mapping owns the collection of field mappings and the invariants
// that span it: a single primary key and unique target field names.
//
// Every mutation installs a new slice, so a snapshot returned by Mappings is
// never modified afterwards and callers can detect changes by comparing
// slices. Cleaning rule edits are validated asynchronously after a debounce
// window; a result is applied only if no newer edit of the same record has
// happened since it was scheduled.
package mapping

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/BartekS5/fieldmap/internal/rules"
	"github.com/BartekS5/fieldmap/internal/validation"
	"github.com/BartekS5/fieldmap/pkg/logger"
	"github.com/BartekS5/fieldmap/pkg/models"
	"github.com/BartekS5/fieldmap/pkg/utils"
)

var (
	ErrIndexOutOfRange = errors.New("mapping index out of range")
	ErrFieldType       = errors.New("wrong value type for field")
	ErrUnknownField    = errors.New("unknown mapping field")
	ErrRuleUnavailable = errors.New("rule type not available for field")
	ErrInvalidOrder    = errors.New("order is not a permutation of the mappings")
)

// Field names the editable columns of a mapping row.
type Field string

const (
	FieldSourceField  Field = "sourceField"
	FieldSampleValue  Field = "sampleValue"
	FieldTargetField  Field = "targetField"
	FieldDataType     Field = "dataType"
	FieldRuleType     Field = "ruleType"
	FieldCleaningRule Field = "cleaningRule"
	FieldIsPK         Field = "isPK"
)

type Listener func(mappings []models.FieldMapping)

type Store struct {
	mu       sync.Mutex
	mappings []models.FieldMapping
	// handles[i] identifies mappings[i] independently of its position, so
	// async results still find their record after removals and reorders.
	handles    []uint64
	versions   map[uint64]uint64
	nextHandle uint64

	sample    any
	evaluator validation.Evaluator
	debouncer *validation.Debouncer

	ctx    context.Context
	cancel context.CancelFunc

	listeners    map[int]Listener
	nextListener int
	// seq counts installed snapshots; delivered is the last one handed to
	// listeners. Only one goroutine delivers at a time.
	seq        uint64
	delivered  uint64
	delivering bool
}

type Option func(*Store)

// WithDebounce sets how long a cleaning rule must stay unchanged before it is
// evaluated.
func WithDebounce(d time.Duration) Option {
	return func(s *Store) {
		s.debouncer = validation.NewDebouncer(d)
	}
}

// WithSample sets the data cleaning rules are evaluated against.
func WithSample(data any) Option {
	return func(s *Store) {
		s.sample = data
	}
}

func NewStore(eval validation.Evaluator, opts ...Option) *Store {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		versions:  make(map[uint64]uint64),
		evaluator: eval,
		debouncer: validation.NewDebouncer(validation.DefaultDebounce),
		ctx:       ctx,
		cancel:    cancel,
		listeners: make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Mappings returns the current snapshot. It must not be modified.
func (s *Store) Mappings() []models.FieldMapping {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mappings
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.mappings)
}

func (s *Store) At(index int) (models.FieldMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkIndexLocked(index); err != nil {
		return models.FieldMapping{}, err
	}
	return s.mappings[index], nil
}

// IndexOf returns the position of the mapping created from tree node id, or
// -1. Manual mappings share the empty id and cannot be looked up this way.
func (s *Store) IndexOf(id string) int {
	if id == "" {
		return -1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.IndexFunc(s.mappings, func(m models.FieldMapping) bool { return m.ID == id })
}

// Subscribe registers fn to receive new snapshots. Calls are serialised and
// ordered; snapshots installed while fn is running are coalesced, so fn may
// skip intermediate states but always ends on the latest one. The returned
// func removes the subscription.
func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// SetSample replaces the data cleaning rules are evaluated against. Call
// Revalidate to re-check existing rules.
func (s *Store) SetSample(data any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sample = data
}

// Add appends m and returns its index. The first mapping always becomes the
// primary key; adding a mapping flagged as primary key clears the flag on
// the others.
func (s *Store) Add(m models.FieldMapping) int {
	s.mu.Lock()
	index := s.addLocked(m)
	s.mu.Unlock()

	s.notify()
	return index
}

// AddFromNode maps a schema tree node. It returns the existing index and
// false when the node is already mapped.
func (s *Store) AddFromNode(node models.TreeNode) (int, bool) {
	s.mu.Lock()
	if i := slices.IndexFunc(s.mappings, func(m models.FieldMapping) bool { return m.ID == node.Key }); i >= 0 {
		s.mu.Unlock()
		return i, false
	}
	index := s.addLocked(models.FieldMapping{
		ID:             node.Key,
		SourceField:    node.Label,
		SampleValue:    node.Payload.RawValue,
		SampleKind:     node.Payload.Kind,
		SampleElemKind: node.Payload.ElemKind,
		DataType:       utils.DataTypeOf(node.Payload.Kind),
		RuleType:       models.RuleEmpty,
		SourcePath:     slices.Clone(node.Payload.Path),
	})
	s.mu.Unlock()

	s.notify()
	return index, true
}

// AddBlank appends a manual field with no source path.
func (s *Store) AddBlank() int {
	return s.Add(models.FieldMapping{
		DataType: models.DataTypeString,
		RuleType: models.RuleEmpty,
	})
}

func (s *Store) addLocked(m models.FieldMapping) int {
	next := slices.Clone(s.mappings)
	if len(next) == 0 {
		m.IsPK = true
	} else if m.IsPK {
		for i := range next {
			next[i].IsPK = false
		}
	}
	next = append(next, m)

	s.nextHandle++
	s.handles = append(s.handles, s.nextHandle)
	s.installLocked(next)
	return len(next) - 1
}

// Update sets one field of the mapping at index. TargetField, CleaningRule,
// RuleType and IsPK carry the same side effects as their dedicated setters.
func (s *Store) Update(index int, field Field, value any) error {
	switch field {
	case FieldTargetField:
		v, ok := value.(string)
		if !ok {
			return fieldTypeError(field, "", value)
		}
		return s.SetTargetField(index, v)
	case FieldCleaningRule:
		v, ok := value.(string)
		if !ok {
			return fieldTypeError(field, "", value)
		}
		return s.SetCleaningRule(index, v)
	case FieldRuleType:
		switch v := value.(type) {
		case models.RuleType:
			return s.SetRuleType(index, v)
		case string:
			return s.SetRuleType(index, models.RuleType(v))
		}
		return fieldTypeError(field, models.RuleEmpty, value)
	case FieldDataType:
		switch v := value.(type) {
		case models.DataType:
			return s.SetDataType(index, v)
		case string:
			return s.SetDataType(index, models.DataType(v))
		}
		return fieldTypeError(field, models.DataTypeString, value)
	case FieldIsPK:
		v, ok := value.(bool)
		if !ok {
			return fieldTypeError(field, false, value)
		}
		return s.SetPK(index, v)
	case FieldSourceField:
		v, ok := value.(string)
		if !ok {
			return fieldTypeError(field, "", value)
		}
		return s.mutate(index, func(next []models.FieldMapping) {
			next[index].SourceField = v
		})
	case FieldSampleValue:
		return s.mutate(index, func(next []models.FieldMapping) {
			next[index].SampleValue = value
			next[index].SampleKind = utils.KindOf(value)
		})
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
}

func fieldTypeError(field Field, want, got any) error {
	return fmt.Errorf("%w: %s expects %T, got %T", ErrFieldType, field, want, got)
}

// SetTargetField renames the output field, marks it touched and re-checks
// every touched target field for blanks and duplicates.
func (s *Store) SetTargetField(index int, value string) error {
	return s.mutate(index, func(next []models.FieldMapping) {
		next[index].TargetField = value
		next[index].TargetFieldTouched = true
		refreshTargetErrors(next)
	})
}

func refreshTargetErrors(mappings []models.FieldMapping) {
	errs := validation.ValidateTargetFields(mappings)
	for i := range mappings {
		if mappings[i].TargetFieldTouched {
			mappings[i].TargetFieldError = errs[i]
		}
	}
}

func (s *Store) SetDataType(index int, dataType models.DataType) error {
	switch dataType {
	case models.DataTypeString, models.DataTypeNumber, models.DataTypeNull:
	default:
		return fmt.Errorf("%w: unknown data type %q", ErrFieldType, dataType)
	}
	return s.mutate(index, func(next []models.FieldMapping) {
		next[index].DataType = dataType
	})
}

// SetCleaningRule stores a user entered expression. The record reads
// RuleStateLoading until the debounced evaluation of its latest rule lands.
func (s *Store) SetCleaningRule(index int, rule string) error {
	return s.mutate(index, func(next []models.FieldMapping) {
		s.setCleaningRuleLocked(next, index, rule)
	})
}

// SetRuleType picks a predefined rule and replaces the cleaning rule with
// its compiled expression.
func (s *Store) SetRuleType(index int, ruleType models.RuleType) error {
	s.mu.Lock()
	if err := s.checkIndexLocked(index); err != nil {
		s.mu.Unlock()
		return err
	}
	current := s.mappings[index]
	if !rules.IsAvailable(current, ruleType) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %q for %q", ErrRuleUnavailable, ruleType, current.SourceField)
	}

	next := slices.Clone(s.mappings)
	next[index].RuleType = ruleType
	s.setCleaningRuleLocked(next, index, rules.Compile(ruleType, current.SourcePath))
	s.installLocked(next)
	s.mu.Unlock()

	s.notify()
	return nil
}

func (s *Store) setCleaningRuleLocked(next []models.FieldMapping, index int, rule string) {
	m := &next[index]
	m.CleaningRule = rule
	m.CleaningRuleTouched = true
	m.CleaningRuleError = validation.CleaningRuleError(*m, rule)
	m.RuleValidationState = models.RuleStateNone
	if s.scheduleLocked(s.handles[index], rule) {
		m.RuleValidationState = models.RuleStateLoading
	}
}

// scheduleLocked queues the evaluation of rule for handle. It reports false
// once the store is closed.
func (s *Store) scheduleLocked(handle uint64, rule string) bool {
	s.versions[handle]++
	if s.ctx.Err() != nil {
		return false
	}
	version := s.versions[handle]
	sample := s.sample

	s.debouncer.Schedule(handle, func() {
		state := validation.ValidateExpression(s.ctx, s.evaluator, rule, sample)
		s.applyValidation(handle, version, state)
	})
	return true
}

func (s *Store) applyValidation(handle, version uint64, state models.RuleValidationState) {
	if s.ctx.Err() != nil {
		return
	}

	s.mu.Lock()
	if s.versions[handle] != version {
		s.mu.Unlock()
		logger.WithFields(logrus.Fields{
			"handle":  handle,
			"version": version,
			"state":   state,
		}).Debug("discarding stale rule validation")
		return
	}
	index := slices.Index(s.handles, handle)
	if index < 0 {
		s.mu.Unlock()
		return
	}

	next := slices.Clone(s.mappings)
	next[index].RuleValidationState = state
	next[index].CleaningRuleError = validation.ExpressionError(state, next[index].CleaningRuleError)
	s.installLocked(next)
	s.mu.Unlock()

	s.notify()
}

// Revalidate re-runs the asynchronous check of every touched cleaning rule,
// typically after the sample changed.
func (s *Store) Revalidate() {
	s.mu.Lock()
	next := slices.Clone(s.mappings)
	for i := range next {
		if !next[i].CleaningRuleTouched {
			continue
		}
		next[i].RuleValidationState = models.RuleStateNone
		if s.scheduleLocked(s.handles[i], next[i].CleaningRule) {
			next[i].RuleValidationState = models.RuleStateLoading
		}
	}
	s.installLocked(next)
	s.mu.Unlock()

	s.notify()
}

// SetPK marks or unmarks the primary key. Marking one mapping unmarks all
// others.
func (s *Store) SetPK(index int, value bool) error {
	return s.mutate(index, func(next []models.FieldMapping) {
		for i := range next {
			if i == index {
				next[i].IsPK = value
			} else if value {
				next[i].IsPK = false
			}
		}
	})
}

// Remove deletes the mapping at index. When it held the primary key, the new
// first mapping takes it over.
func (s *Store) Remove(index int) error {
	s.mu.Lock()
	if err := s.checkIndexLocked(index); err != nil {
		s.mu.Unlock()
		return err
	}

	removed := s.mappings[index]
	handle := s.handles[index]
	s.debouncer.Cancel(handle)
	delete(s.versions, handle)
	s.handles = slices.Delete(s.handles, index, index+1)

	next := slices.Delete(slices.Clone(s.mappings), index, index+1)
	if removed.IsPK && len(next) > 0 {
		next[0].IsPK = true
	}
	refreshTargetErrors(next)
	s.installLocked(next)
	s.mu.Unlock()

	s.notify()
	return nil
}

// Reorder rearranges the mappings so that position i holds the mapping
// previously at order[i]. Mapping fields are left untouched.
func (s *Store) Reorder(order []int) error {
	s.mu.Lock()
	if len(order) != len(s.mappings) {
		n := len(s.mappings)
		s.mu.Unlock()
		return fmt.Errorf("%w: got %d positions for %d mappings", ErrInvalidOrder, len(order), n)
	}

	seen := make([]bool, len(order))
	next := make([]models.FieldMapping, len(order))
	handles := make([]uint64, len(order))
	for i, from := range order {
		if from < 0 || from >= len(order) || seen[from] {
			s.mu.Unlock()
			return fmt.Errorf("%w: %v", ErrInvalidOrder, order)
		}
		seen[from] = true
		next[i] = s.mappings[from]
		handles[i] = s.handles[from]
	}
	s.handles = handles
	s.installLocked(next)
	s.mu.Unlock()

	s.notify()
	return nil
}

// Move drags the mapping at from to position to.
func (s *Store) Move(from, to int) error {
	n := s.Len()
	if from < 0 || from >= n || to < 0 || to >= n {
		return fmt.Errorf("%w: move %d -> %d (have %d)", ErrIndexOutOfRange, from, to, n)
	}

	order := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if i != from {
			order = append(order, i)
		}
	}
	order = slices.Insert(order, to, from)
	return s.Reorder(order)
}

// Reset drops every mapping and cancels pending validations.
func (s *Store) Reset() {
	s.mu.Lock()
	s.debouncer.Stop()
	s.handles = nil
	clear(s.versions)
	s.installLocked(nil)
	s.mu.Unlock()

	s.notify()
}

// Settled reports whether no mapping is waiting for its rule validation.
func (s *Store) Settled() bool {
	return !slices.ContainsFunc(s.Mappings(), func(m models.FieldMapping) bool {
		return m.RuleValidationState == models.RuleStateLoading
	})
}

// WaitSettled blocks until Settled holds or ctx ends.
func (s *Store) WaitSettled(ctx context.Context) error {
	changed := make(chan struct{}, 1)
	unsubscribe := s.Subscribe(func([]models.FieldMapping) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	for !s.Settled() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
	return nil
}

// Close stops pending validations. Results still in flight are dropped and
// records waiting for them fall back to RuleStateNone. Later rule edits are
// stored without being evaluated.
func (s *Store) Close() {
	s.mu.Lock()
	s.cancel()
	s.debouncer.Stop()
	next := slices.Clone(s.mappings)
	for i := range next {
		if next[i].RuleValidationState == models.RuleStateLoading {
			next[i].RuleValidationState = models.RuleStateNone
		}
	}
	s.installLocked(next)
	s.mu.Unlock()

	s.notify()
}

func (s *Store) mutate(index int, fn func(next []models.FieldMapping)) error {
	s.mu.Lock()
	if err := s.checkIndexLocked(index); err != nil {
		s.mu.Unlock()
		return err
	}
	next := slices.Clone(s.mappings)
	fn(next)
	s.installLocked(next)
	s.mu.Unlock()

	s.notify()
	return nil
}

func (s *Store) checkIndexLocked(index int) error {
	if index < 0 || index >= len(s.mappings) {
		return fmt.Errorf("%w: %d (have %d)", ErrIndexOutOfRange, index, len(s.mappings))
	}
	return nil
}

func (s *Store) installLocked(next []models.FieldMapping) {
	s.mappings = next
	s.seq++
}

// notify hands the latest snapshot to the listeners. Calls made while
// another goroutine is delivering return at once; that goroutine picks up
// the newer snapshot before it stops. Listeners therefore never run
// concurrently, never see an older snapshot after a newer one, and may
// mutate the store.
func (s *Store) notify() {
	s.mu.Lock()
	if s.delivering {
		s.mu.Unlock()
		return
	}
	s.delivering = true

	for s.delivered != s.seq {
		snapshot, seq := s.mappings, s.seq
		listeners := make([]Listener, 0, len(s.listeners))
		for _, l := range s.listeners {
			listeners = append(listeners, l)
		}
		s.mu.Unlock()

		for _, l := range listeners {
			l(snapshot)
		}

		s.mu.Lock()
		s.delivered = seq
	}
	s.delivering = false
	s.mu.Unlock()
}
