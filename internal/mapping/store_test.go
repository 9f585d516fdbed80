package mapping

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BartekS5/fieldmap/internal/schema"
	"github.com/BartekS5/fieldmap/internal/validation"
	"github.com/BartekS5/fieldmap/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testDebounce = 10 * time.Millisecond
	waitFor      = time.Second
	tick         = 5 * time.Millisecond
)

// okEvaluator accepts every expression except "bad".
var okEvaluator = validation.EvaluatorFunc(func(_ context.Context, expr string, _ any) (any, error) {
	if expr == "bad" {
		return nil, validation.ErrUndefined
	}
	return 1, nil
})

func newTestStore(t *testing.T, eval validation.Evaluator) *Store {
	t.Helper()
	s := NewStore(eval, WithDebounce(testDebounce))
	t.Cleanup(s.Close)
	return s
}

func pkCount(mappings []models.FieldMapping) int {
	n := 0
	for _, m := range mappings {
		if m.IsPK {
			n++
		}
	}
	return n
}

func stateOf(s *Store, index int) models.RuleValidationState {
	m, err := s.At(index)
	if err != nil {
		return ""
	}
	return m.RuleValidationState
}

func TestStore_FirstMappingIsPK(t *testing.T) {
	s := newTestStore(t, okEvaluator)

	s.AddBlank()
	s.AddBlank()

	mappings := s.Mappings()
	assert.True(t, mappings[0].IsPK)
	assert.False(t, mappings[1].IsPK)
}

func TestStore_AddWithPKClearsOthers(t *testing.T) {
	s := newTestStore(t, okEvaluator)

	s.AddBlank()
	s.Add(models.FieldMapping{IsPK: true})

	mappings := s.Mappings()
	assert.False(t, mappings[0].IsPK)
	assert.True(t, mappings[1].IsPK)
}

func TestStore_AddFromNode(t *testing.T) {
	s := newTestStore(t, okEvaluator)
	tree := schema.BuildBytes([]byte(`{"station": {"name": "North Pier", "temp": 12.5}}`))
	name, ok := schema.FindByPath(tree, []string{"station", "name"})
	require.True(t, ok)
	temp, ok := schema.FindByPath(tree, []string{"station", "temp"})
	require.True(t, ok)

	i, added := s.AddFromNode(name)
	require.True(t, added)
	assert.Equal(t, 0, i)

	j, added := s.AddFromNode(temp)
	require.True(t, added)
	assert.Equal(t, 1, j)

	again, added := s.AddFromNode(name)
	assert.False(t, added)
	assert.Equal(t, 0, again)
	assert.Equal(t, 2, s.Len())

	m, err := s.At(1)
	require.NoError(t, err)
	assert.Equal(t, temp.Key, m.ID)
	assert.Equal(t, "temp", m.SourceField)
	assert.Equal(t, json.Number("12.5"), m.SampleValue)
	assert.Equal(t, models.DataTypeNumber, m.DataType)
	assert.Equal(t, []string{"station", "temp"}, m.SourcePath)
	assert.Equal(t, 1, s.IndexOf(temp.Key))
	assert.Equal(t, -1, s.IndexOf(""))
}

func TestStore_PKInvariantHoldsUnderRandomEdits(t *testing.T) {
	s := newTestStore(t, okEvaluator)
	r := rand.New(rand.NewSource(7))

	for i := 0; i < 500; i++ {
		n := s.Len()
		switch op := r.Intn(3); {
		case op == 0 || n == 0:
			s.Add(models.FieldMapping{IsPK: r.Intn(4) == 0})
		case op == 1:
			require.NoError(t, s.Remove(r.Intn(n)))
		default:
			require.NoError(t, s.SetPK(r.Intn(n), true))
		}

		mappings := s.Mappings()
		if len(mappings) == 0 {
			assert.Zero(t, pkCount(mappings))
		} else {
			assert.Equal(t, 1, pkCount(mappings))
		}
	}
}

func TestStore_RemovePKPromotesFirst(t *testing.T) {
	s := newTestStore(t, okEvaluator)
	s.AddBlank()
	s.AddBlank()
	s.AddBlank()
	require.NoError(t, s.SetPK(1, true))

	require.NoError(t, s.Remove(1))

	mappings := s.Mappings()
	require.Len(t, mappings, 2)
	assert.True(t, mappings[0].IsPK)
	assert.Equal(t, 1, pkCount(mappings))
}

func TestStore_UnsetPKLeavesNone(t *testing.T) {
	s := newTestStore(t, okEvaluator)
	s.AddBlank()

	require.NoError(t, s.SetPK(0, false))
	assert.Zero(t, pkCount(s.Mappings()))
}

func TestStore_DuplicateTargets(t *testing.T) {
	s := newTestStore(t, okEvaluator)
	s.AddBlank()
	s.AddBlank()
	s.AddBlank()

	require.NoError(t, s.SetTargetField(0, "id"))
	require.NoError(t, s.SetTargetField(1, "id"))

	mappings := s.Mappings()
	assert.Equal(t, models.ErrDuplicate, mappings[0].TargetFieldError)
	assert.Equal(t, models.ErrDuplicate, mappings[1].TargetFieldError)
	assert.False(t, mappings[2].TargetFieldTouched)
	assert.Equal(t, models.ErrNone, mappings[2].TargetFieldError)

	require.NoError(t, s.SetTargetField(1, "name"))
	mappings = s.Mappings()
	assert.Equal(t, models.ErrNone, mappings[0].TargetFieldError)
	assert.Equal(t, models.ErrNone, mappings[1].TargetFieldError)

	require.NoError(t, s.SetTargetField(1, "  "))
	assert.Equal(t, models.ErrRequired, s.Mappings()[1].TargetFieldError)
}

func TestStore_RemoveClearsDuplicate(t *testing.T) {
	s := newTestStore(t, okEvaluator)
	s.AddBlank()
	s.AddBlank()
	require.NoError(t, s.SetTargetField(0, "id"))
	require.NoError(t, s.SetTargetField(1, "id"))

	require.NoError(t, s.Remove(1))
	assert.Equal(t, models.ErrNone, s.Mappings()[0].TargetFieldError)
}

func TestStore_BlankManualRule(t *testing.T) {
	s := newTestStore(t, okEvaluator)
	s.AddBlank()

	require.NoError(t, s.SetCleaningRule(0, ""))

	m, err := s.At(0)
	require.NoError(t, err)
	assert.Equal(t, models.ErrRequired, m.CleaningRuleError)
	assert.Equal(t, models.RuleStateLoading, m.RuleValidationState)
	assert.True(t, m.CleaningRuleTouched)

	require.Eventually(t, func() bool { return stateOf(s, 0) == models.RuleStateNone }, waitFor, tick)
	m, _ = s.At(0)
	assert.Equal(t, models.ErrRequired, m.CleaningRuleError)
}

func TestStore_RuleValidation(t *testing.T) {
	tests := []struct {
		name      string
		rule      string
		wantState models.RuleValidationState
		wantErr   models.FieldError
	}{
		{"valid", "$sum(values)", models.RuleStateSuccess, models.ErrNone},
		{"undefined", "bad", models.RuleStateError, models.ErrExpression},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t, okEvaluator)
			s.AddBlank()

			require.NoError(t, s.SetCleaningRule(0, tt.rule))
			require.Eventually(t, func() bool { return stateOf(s, 0) == tt.wantState }, waitFor, tick)

			m, _ := s.At(0)
			assert.Equal(t, tt.wantErr, m.CleaningRuleError)
		})
	}
}

func TestStore_PanickingEvaluator(t *testing.T) {
	s := newTestStore(t, validation.EvaluatorFunc(func(context.Context, string, any) (any, error) {
		panic("boom")
	}))
	s.AddBlank()

	require.NoError(t, s.SetCleaningRule(0, "$x"))
	require.Eventually(t, func() bool { return stateOf(s, 0) == models.RuleStateError }, waitFor, tick)
}

func TestStore_RapidEditsEvaluateOnlyLast(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	s := newTestStore(t, validation.EvaluatorFunc(func(_ context.Context, expr string, _ any) (any, error) {
		mu.Lock()
		seen = append(seen, expr)
		mu.Unlock()
		if expr == "bad" {
			return nil, validation.ErrUndefined
		}
		return 1, nil
	}))
	s.AddBlank()

	require.NoError(t, s.SetCleaningRule(0, "bad"))
	require.NoError(t, s.SetCleaningRule(0, "$good"))

	require.Eventually(t, func() bool { return stateOf(s, 0) == models.RuleStateSuccess }, waitFor, tick)
	time.Sleep(5 * testDebounce)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"$good"}, seen)
}

func TestStore_StaleResultIsDiscarded(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	s := newTestStore(t, validation.EvaluatorFunc(func(_ context.Context, expr string, _ any) (any, error) {
		if expr == "slow" {
			close(started)
			<-release
			return nil, errors.New("late failure")
		}
		return 1, nil
	}))
	s.AddBlank()

	require.NoError(t, s.SetCleaningRule(0, "slow"))
	select {
	case <-started:
	case <-time.After(waitFor):
		t.Fatal("slow evaluation never started")
	}

	require.NoError(t, s.SetCleaningRule(0, "fast"))
	require.Eventually(t, func() bool { return stateOf(s, 0) == models.RuleStateSuccess }, waitFor, tick)

	close(release)
	time.Sleep(5 * testDebounce)

	m, _ := s.At(0)
	assert.Equal(t, models.RuleStateSuccess, m.RuleValidationState)
	assert.Equal(t, "fast", m.CleaningRule)
}

func TestStore_RemoveCancelsPendingValidation(t *testing.T) {
	var calls atomic.Int32
	s := NewStore(validation.EvaluatorFunc(func(context.Context, string, any) (any, error) {
		calls.Add(1)
		return 1, nil
	}), WithDebounce(50*time.Millisecond))
	t.Cleanup(s.Close)
	s.AddBlank()
	s.AddBlank()

	require.NoError(t, s.SetCleaningRule(1, "$x"))
	require.NoError(t, s.Remove(1))

	time.Sleep(150 * time.Millisecond)
	assert.Zero(t, calls.Load())
	assert.Equal(t, 1, s.Len())
}

func TestStore_ValidationFollowsReorder(t *testing.T) {
	s := newTestStore(t, okEvaluator)
	s.AddBlank()
	s.AddBlank()

	require.NoError(t, s.SetCleaningRule(0, "bad"))
	require.NoError(t, s.Move(0, 1))

	require.Eventually(t, func() bool { return stateOf(s, 1) == models.RuleStateError }, waitFor, tick)
	assert.Equal(t, models.RuleStateNone, stateOf(s, 0))
}

func TestStore_SetRuleType(t *testing.T) {
	s := newTestStore(t, okEvaluator)
	tree := schema.BuildBytes([]byte(`{"readings": [10, 14, 12], "station": "NP"}`))
	readings, _ := schema.FindByPath(tree, []string{"readings"})
	station, _ := schema.FindByPath(tree, []string{"station"})
	s.AddFromNode(readings)
	s.AddFromNode(station)

	require.NoError(t, s.SetRuleType(0, models.RuleSum))
	m, _ := s.At(0)
	assert.Equal(t, models.RuleSum, m.RuleType)
	assert.Equal(t, "$sum(readings)", m.CleaningRule)
	assert.Equal(t, models.RuleStateLoading, m.RuleValidationState)
	require.Eventually(t, func() bool { return stateOf(s, 0) == models.RuleStateSuccess }, waitFor, tick)

	err := s.SetRuleType(1, models.RuleSum)
	assert.ErrorIs(t, err, ErrRuleUnavailable)

	require.NoError(t, s.Update(1, FieldRuleType, "UpperCase"))
	m, _ = s.At(1)
	assert.Equal(t, "$uppercase(station)", m.CleaningRule)
}

func TestStore_Update(t *testing.T) {
	s := newTestStore(t, okEvaluator)
	s.AddBlank()
	s.AddBlank()

	require.NoError(t, s.Update(0, FieldTargetField, "code"))
	require.NoError(t, s.Update(0, FieldDataType, models.DataTypeNumber))
	require.NoError(t, s.Update(1, FieldIsPK, true))
	require.NoError(t, s.Update(1, FieldSourceField, "manual"))

	mappings := s.Mappings()
	assert.Equal(t, "code", mappings[0].TargetField)
	assert.True(t, mappings[0].TargetFieldTouched)
	assert.Equal(t, models.DataTypeNumber, mappings[0].DataType)
	assert.False(t, mappings[0].IsPK)
	assert.True(t, mappings[1].IsPK)
	assert.Equal(t, "manual", mappings[1].SourceField)

	assert.ErrorIs(t, s.Update(0, FieldTargetField, 3), ErrFieldType)
	assert.ErrorIs(t, s.Update(0, FieldIsPK, "yes"), ErrFieldType)
	assert.ErrorIs(t, s.Update(0, FieldDataType, "date"), ErrFieldType)
	assert.ErrorIs(t, s.Update(0, Field("colour"), "x"), ErrUnknownField)
	assert.ErrorIs(t, s.Update(5, FieldTargetField, "x"), ErrIndexOutOfRange)
}

func TestStore_OutOfRange(t *testing.T) {
	s := newTestStore(t, okEvaluator)
	s.AddBlank()

	assert.ErrorIs(t, s.Remove(1), ErrIndexOutOfRange)
	assert.ErrorIs(t, s.SetPK(-1, true), ErrIndexOutOfRange)
	assert.ErrorIs(t, s.SetCleaningRule(2, "x"), ErrIndexOutOfRange)
	assert.ErrorIs(t, s.Move(0, 3), ErrIndexOutOfRange)
	_, err := s.At(1)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestStore_Reorder(t *testing.T) {
	s := newTestStore(t, okEvaluator)
	for _, name := range []string{"a", "b", "c"} {
		i := s.AddBlank()
		require.NoError(t, s.SetTargetField(i, name))
	}
	before := s.Mappings()

	require.NoError(t, s.Reorder([]int{2, 0, 1}))
	after := s.Mappings()
	assert.Equal(t, []string{"c", "a", "b"}, []string{after[0].TargetField, after[1].TargetField, after[2].TargetField})
	assert.Equal(t, "a", before[0].TargetField, "earlier snapshot must not change")

	require.NoError(t, s.Move(0, 2))
	after = s.Mappings()
	assert.Equal(t, []string{"a", "b", "c"}, []string{after[0].TargetField, after[1].TargetField, after[2].TargetField})

	assert.ErrorIs(t, s.Reorder([]int{0, 0, 1}), ErrInvalidOrder)
	assert.ErrorIs(t, s.Reorder([]int{0, 1}), ErrInvalidOrder)
	assert.ErrorIs(t, s.Reorder([]int{0, 1, 3}), ErrInvalidOrder)
}

func TestStore_SubscribeAndReset(t *testing.T) {
	s := newTestStore(t, okEvaluator)

	var got [][]models.FieldMapping
	unsubscribe := s.Subscribe(func(m []models.FieldMapping) { got = append(got, m) })

	s.AddBlank()
	s.AddBlank()
	s.Reset()

	require.Len(t, got, 3)
	assert.Len(t, got[1], 2)
	assert.Empty(t, got[2])
	assert.Zero(t, s.Len())

	unsubscribe()
	s.AddBlank()
	assert.Len(t, got, 3)
}

func TestStore_WaitSettledAndRevalidate(t *testing.T) {
	s := NewStore(validation.EvaluatorFunc(func(_ context.Context, _ string, data any) (any, error) {
		if data == nil {
			return nil, validation.ErrUndefined
		}
		return data, nil
	}), WithDebounce(testDebounce))
	t.Cleanup(s.Close)
	s.AddBlank()

	require.NoError(t, s.SetCleaningRule(0, "$x"))
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, s.WaitSettled(ctx))
	assert.Equal(t, models.RuleStateError, stateOf(s, 0))

	s.SetSample(map[string]any{"x": 1})
	s.Revalidate()
	require.NoError(t, s.WaitSettled(ctx))
	assert.Equal(t, models.RuleStateSuccess, stateOf(s, 0))
}

func TestStore_ListenersSeeSnapshotsInOrder(t *testing.T) {
	s := newTestStore(t, okEvaluator)
	s.AddBlank()

	var (
		mu      sync.Mutex
		last    []models.FieldMapping
		active  atomic.Int32
		overlap atomic.Int32
		once    sync.Once
	)
	blocked := make(chan struct{})
	release := make(chan struct{})
	s.Subscribe(func(m []models.FieldMapping) {
		if active.Add(1) > 1 {
			overlap.Add(1)
		}
		defer active.Add(-1)

		if len(m) == 1 && m[0].RuleValidationState == models.RuleStateSuccess {
			once.Do(func() {
				close(blocked)
				<-release
			})
		}
		mu.Lock()
		last = m
		mu.Unlock()
	})

	require.NoError(t, s.SetCleaningRule(0, "$x"))
	select {
	case <-blocked:
	case <-time.After(waitFor):
		t.Fatal("validation result was never delivered")
	}

	// Delivered by the goroutine stuck in the listener once it resumes.
	require.NoError(t, s.SetTargetField(0, "renamed"))
	close(release)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(last) == 1 && last[0].TargetField == "renamed"
	}, waitFor, tick)
	assert.Zero(t, overlap.Load())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, models.RuleStateSuccess, last[0].RuleValidationState)
	assert.Equal(t, s.Mappings(), last)
}

func TestStore_ListenerMayMutate(t *testing.T) {
	s := newTestStore(t, okEvaluator)

	var calls int
	s.Subscribe(func(m []models.FieldMapping) {
		calls++
		if len(m) == 1 && m[0].TargetField == "" {
			require.NoError(t, s.SetTargetField(0, "from_listener"))
		}
	})
	s.AddBlank()

	m, err := s.At(0)
	require.NoError(t, err)
	assert.Equal(t, "from_listener", m.TargetField)
	assert.Equal(t, 2, calls)
}

func TestStore_EditsAfterCloseStaySettled(t *testing.T) {
	s := NewStore(okEvaluator, WithDebounce(time.Hour))
	s.AddBlank()
	s.AddBlank()
	require.NoError(t, s.SetCleaningRule(0, "$x"))
	assert.Equal(t, models.RuleStateLoading, stateOf(s, 0))

	s.Close()
	assert.Equal(t, models.RuleStateNone, stateOf(s, 0))

	require.NoError(t, s.SetCleaningRule(1, "$y"))
	m, err := s.At(1)
	require.NoError(t, err)
	assert.Equal(t, "$y", m.CleaningRule)
	assert.Equal(t, models.RuleStateNone, m.RuleValidationState)

	s.Revalidate()
	assert.True(t, s.Settled())

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	assert.NoError(t, s.WaitSettled(ctx))
}
