// Package wizard ties the connection step, the schema tree and the mapping
// store into the state of one "create data store" session.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BartekS5/fieldmap/internal/connection"
	"github.com/BartekS5/fieldmap/internal/mapping"
	"github.com/BartekS5/fieldmap/internal/preview"
	"github.com/BartekS5/fieldmap/internal/schema"
	"github.com/BartekS5/fieldmap/internal/sink"
	"github.com/BartekS5/fieldmap/internal/validation"
	"github.com/BartekS5/fieldmap/pkg/logger"
	"github.com/BartekS5/fieldmap/pkg/models"
)

var (
	ErrNodeNotFound = errors.New("tree node not found")
	ErrCannotTest   = errors.New("connection form is incomplete")
	ErrIncomplete   = errors.New("wizard steps are not all valid")
)

type Step int

const (
	StepConnection Step = iota
	StepFieldMapping
	StepCleaning
	StepPreview
)

func (s Step) String() string {
	switch s {
	case StepConnection:
		return "connection"
	case StepFieldMapping:
		return "field-mapping"
	case StepCleaning:
		return "cleaning"
	case StepPreview:
		return "preview"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

// Steps is the validity of every gated step.
type Steps struct {
	Connection   bool `json:"connection"`
	FieldMapping bool `json:"fieldMapping"`
	Cleaning     bool `json:"cleaning"`
}

type Options struct {
	Debounce      time.Duration
	Tester        *connection.Tester
	ExistingNames []string
	// SampleRoot selects the part of a fetched response used as sample.
	SampleRoot string
}

type Session struct {
	mu     sync.Mutex
	sample *schema.Sample
	tree   []models.TreeNode

	eval   validation.Evaluator
	store  *mapping.Store
	conn   *connection.Session
	tester *connection.Tester
	root   string
}

func New(eval validation.Evaluator, opts Options) *Session {
	debounce := opts.Debounce
	if debounce == 0 {
		debounce = validation.DefaultDebounce
	}
	tester := opts.Tester
	if tester == nil {
		tester = connection.NewTester()
	}
	return &Session{
		eval:   eval,
		store:  mapping.NewStore(eval, mapping.WithDebounce(debounce)),
		conn:   connection.NewSession(opts.ExistingNames),
		tester: tester,
		root:   opts.SampleRoot,
	}
}

func (s *Session) Store() *mapping.Store {
	return s.store
}

func (s *Session) Connection() *connection.Session {
	return s.conn
}

func (s *Session) Sample() *schema.Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sample
}

func (s *Session) Tree() []models.TreeNode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree
}

// SetSample installs a new sample. The tree is rebuilt and existing rules are
// re-checked only when the sample content changed. It reports whether it did.
func (s *Session) SetSample(sample *schema.Sample) bool {
	s.mu.Lock()
	if s.sample.SameAs(sample) {
		s.mu.Unlock()
		return false
	}
	s.sample = sample
	s.tree = sample.Tree()
	nodes := len(s.tree)
	s.mu.Unlock()

	var value any
	if sample != nil {
		value = sample.Value
	}
	s.store.SetSample(value)
	s.store.Revalidate()
	logger.Debugf("Sample replaced, %d top level nodes", nodes)
	return true
}

// LoadSample parses raw JSON, narrowed to the session's sample root, and
// installs it.
func (s *Session) LoadSample(raw []byte) error {
	sample, err := schema.ParseSample(raw, s.root)
	if err != nil {
		return err
	}
	s.SetSample(sample)
	return nil
}

// SelectNode maps the tree node with the given key. Selecting a node twice
// returns the existing mapping.
func (s *Session) SelectNode(key string) (int, error) {
	node, ok := schema.FindByKey(s.Tree(), key)
	if !ok {
		return -1, fmt.Errorf("%w: %s", ErrNodeNotFound, key)
	}
	index, _ := s.store.AddFromNode(node)
	return index, nil
}

// ApplyFields adds one mapping per mapping file entry. Sources are dotted paths into
// the sample; a field without a source becomes a manual field. All problems
// are reported together.
func (s *Session) ApplyFields(mf *models.MappingFile) error {
	if mf == nil {
		return nil
	}
	tree := s.Tree()

	var errs []error
	for i, f := range mf.Fields {
		if err := s.applyField(tree, f); err != nil {
			errs = append(errs, fmt.Errorf("field %d (%s): %w", i, f.Target, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Session) applyField(tree []models.TreeNode, f models.FieldSpec) error {
	var index int
	if src := strings.TrimSpace(f.Source); src != "" {
		node, ok := schema.FindByPath(tree, strings.Split(src, "."))
		if !ok {
			return fmt.Errorf("%w: %s", ErrNodeNotFound, src)
		}
		index, _ = s.store.AddFromNode(node)
	} else {
		index = s.store.AddBlank()
	}

	if err := s.store.SetTargetField(index, f.Target); err != nil {
		return err
	}
	if f.DataType != "" {
		if err := s.store.SetDataType(index, f.DataType); err != nil {
			return err
		}
	}
	if f.RuleType != models.RuleEmpty {
		if err := s.store.SetRuleType(index, f.RuleType); err != nil {
			return err
		}
	}
	if f.CleaningRule != "" || f.Source == "" {
		if err := s.store.SetCleaningRule(index, f.CleaningRule); err != nil {
			return err
		}
	}
	if f.IsPK {
		return s.store.SetPK(index, true)
	}
	return nil
}

func (s *Session) Steps() Steps {
	mappings := s.store.Mappings()
	return Steps{
		Connection:   s.conn.IsValid(),
		FieldMapping: validation.IsFieldMappingStepValid(mappings),
		Cleaning:     validation.IsCleaningStepValid(mappings),
	}
}

// CanAdvance reports whether the user may leave step, which requires it and
// every earlier step to be valid.
func (s *Session) CanAdvance(step Step) bool {
	steps := s.Steps()
	gates := []bool{steps.Connection, steps.FieldMapping, steps.Cleaning}
	for i, ok := range gates {
		if Step(i) > step {
			break
		}
		if !ok {
			return false
		}
	}
	return true
}

// TestConnection fetches a sample with the current form and records the
// outcome on the connection step. A successful response becomes the sample.
func (s *Session) TestConnection(ctx context.Context) error {
	if !s.conn.CanTest() {
		return ErrCannotTest
	}
	form := s.conn.Form()

	body, err := s.tester.Fetch(ctx, form)
	if errors.Is(err, connection.ErrRateLimited) {
		return err
	}
	var sample *schema.Sample
	if err == nil {
		sample, err = schema.ParseSample(body, s.root)
	}

	if !s.conn.RecordTest(form, err) {
		logger.Warn("Connection form changed during the test, result ignored")
		return err
	}
	if err != nil {
		return err
	}
	s.SetSample(sample)
	return nil
}

// Rules exports the current mappings.
func (s *Session) Rules() []models.Rule {
	return sink.BuildRules(s.store.Mappings())
}

// Preview evaluates the exported rules against the sample.
func (s *Session) Preview(ctx context.Context) (*preview.Result, error) {
	var data any
	if sample := s.Sample(); sample != nil {
		data = sample.Value
	}
	return preview.New(s.eval).Run(ctx, s.Rules(), data)
}

// Job builds the payload to persist. Every step must be valid.
func (s *Session) Job() (models.DataStoreJob, error) {
	if !s.CanAdvance(StepCleaning) {
		return models.DataStoreJob{}, fmt.Errorf("%w: %+v", ErrIncomplete, s.Steps())
	}
	return sink.BuildJob(uuid.NewString(), s.conn.Form(), s.store.Mappings()), nil
}

// ClearAll drops the sample, the mappings and the connection form.
func (s *Session) ClearAll() {
	s.mu.Lock()
	s.sample = nil
	s.tree = nil
	s.mu.Unlock()

	s.store.Reset()
	s.store.SetSample(nil)
	s.conn.Reset()
}

func (s *Session) Close() {
	s.store.Close()
}
