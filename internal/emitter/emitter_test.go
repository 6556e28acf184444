package emitter

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeoncioXavier/elasticache-inventory/internal/orchestrator"
)

// mockEmitter implements Emitter for testing.
type mockEmitter struct {
	emitCalls  int
	closeCalls int
	emitErr    error
	closeErr   error
	results    []*orchestrator.Result
}

func (m *mockEmitter) Emit(_ context.Context, result *orchestrator.Result) error {
	m.emitCalls++
	m.results = append(m.results, result)
	return m.emitErr
}

func (m *mockEmitter) Close() error {
	m.closeCalls++
	return m.closeErr
}

func TestMultiEmitter_Emit(t *testing.T) {
	e1 := &mockEmitter{}
	e2 := &mockEmitter{}
	multi := NewMultiEmitter(e1, e2)

	result := makeResult(makeResource("prod", "c1", "7.0", nil))

	err := multi.Emit(context.Background(), result)

	require.NoError(t, err)
	assert.Equal(t, 1, e1.emitCalls)
	assert.Equal(t, 1, e2.emitCalls)
	assert.Same(t, result, e1.results[0])
	assert.Same(t, result, e2.results[0])
}

func TestMultiEmitter_Emit_Error(t *testing.T) {
	e1 := &mockEmitter{emitErr: errors.New("emit failed")}
	e2 := &mockEmitter{}
	multi := NewMultiEmitter(e1, e2)

	err := multi.Emit(context.Background(), makeResult())

	assert.ErrorContains(t, err, "emit failed")
	assert.Equal(t, 1, e1.emitCalls)
	assert.Equal(t, 1, e2.emitCalls) // one failing backend does not starve the others
}

func TestMultiEmitter_Close_Error(t *testing.T) {
	e1 := &mockEmitter{closeErr: errors.New("close failed")}
	e2 := &mockEmitter{}
	multi := NewMultiEmitter(e1, e2)

	err := multi.Close()

	assert.ErrorContains(t, err, "close failed")
	assert.Equal(t, 1, e1.closeCalls)
	assert.Equal(t, 1, e2.closeCalls)
}

func TestMultiEmitter_Empty(t *testing.T) {
	multi := NewMultiEmitter()

	require.NoError(t, multi.Emit(context.Background(), makeResult()))
	require.NoError(t, multi.Close())
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		name   string
		result orchestrator.Result
		want   string
	}{
		{name: "ok", result: orchestrator.Result{TasksTotal: 2}, want: OutcomeOK},
		{name: "partial", result: orchestrator.Result{TasksTotal: 2, TasksFailed: 1}, want: OutcomePartial},
		{name: "failed", result: orchestrator.Result{TasksTotal: 2, TasksFailed: 2}, want: OutcomeFailed},
		{name: "interrupted", result: orchestrator.Result{TasksTotal: 2, Interrupted: true}, want: OutcomeInterrupted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Outcome(&tt.result))
		})
	}
}
