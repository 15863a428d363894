package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKind_BuiltinCycles(t *testing.T) {
	assert.Equal(t, []string{StagePending, StageWorking, StageDone}, BaseEvent.Cycle())
	assert.Equal(t, []string{StagePending, StageValidating, StageWorking, StageDone}, SetEvent.Cycle())
	assert.Equal(t, []string{StagePending, StageWorking, StageDone}, DelEvent.Cycle())
}

func TestKind_Typenames(t *testing.T) {
	assert.Equal(t, "event", BaseEvent.Typename())
	assert.Equal(t, "set event", SetEvent.Typename())
	assert.Equal(t, "del event", DelEvent.Typename())
	assert.Equal(t, []string{"set event", "event"}, SetEvent.Lineage())
}

func TestKind_Is(t *testing.T) {
	assert.True(t, SetEvent.Is(BaseEvent))
	assert.True(t, SetEvent.Is(SetEvent))
	assert.False(t, SetEvent.Is(DelEvent))
	assert.False(t, BaseEvent.Is(SetEvent))
}

func TestKind_DerivedSplicesStage(t *testing.T) {
	audited := NewKind("audited", SetEvent).
		After(StageDone, "audit").
		MustBuild()

	assert.Equal(t, []string{StagePending, StageValidating, StageWorking, StageDone, "audit"}, audited.Cycle())
	assert.Equal(t, "audited set event", audited.Typename())
	assert.Equal(t, []string{"audited set event", "set event", "event"}, audited.Lineage())

	// Handlers are inherited.
	_, ok := audited.handler(StageWorking)
	assert.True(t, ok)
	_, ok = audited.handler("audit")
	assert.False(t, ok)
	assert.NotNil(t, audited.rollbackFunc())
}

func TestKind_BeforeSplice(t *testing.T) {
	k := NewKind("checked", DelEvent).Before(StageWorking, "checking").MustBuild()
	assert.Equal(t, []string{StagePending, "checking", StageWorking, StageDone}, k.Cycle())
}

func TestKind_LoopIsInvalid(t *testing.T) {
	_, err := NewKind("loop", BaseEvent).Link(StageDone, StagePending).Build()
	require.Error(t, err)
	assert.True(t, IsInvalidKind(err))
}

func TestKind_NameRequired(t *testing.T) {
	_, err := NewKind("", BaseEvent).Build()
	assert.True(t, IsInvalidKind(err))
}

func TestEveryStage(t *testing.T) {
	assert.Equal(t,
		[]string{StagePending, StageWorking, StageDone, StageNone},
		EveryStage(),
	)
	assert.Equal(t,
		[]string{StagePending, StageWorking, StageDone, StageValidating, StageNone},
		EveryStage(DelEvent, SetEvent),
	)
}
