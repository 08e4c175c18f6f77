package stream

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_MessagesAreDistinctPerKind(t *testing.T) {
	kinds := []Kind{KindConfig, KindConnection, KindConsistency, KindStructural, KindApply, KindCheckpoint, KindFeedEnded}
	seen := make(map[string]bool)
	for _, k := range kinds {
		msg := (&Error{Kind: k}).Error()
		assert.False(t, seen[msg], "duplicate message %q", msg)
		seen[msg] = true
	}
}

func TestError_WrapKeepsExistingKind(t *testing.T) {
	inner := &Error{Kind: KindConsistency, Err: errors.New("boom")}
	wrapped := Wrap(KindApply, "apply", fmt.Errorf("outer: %w", inner))
	assert.Equal(t, KindConsistency, KindOf(wrapped))

	assert.Nil(t, Wrap(KindApply, "apply", nil))
	assert.Equal(t, KindApply, KindOf(Wrap(KindApply, "apply", errors.New("x"))))
}

func TestError_WithEvent(t *testing.T) {
	ev := ChangeEvent{ID: "doc", Seq: "7-abc"}

	err := WithEvent(errors.New("write failed"), KindApply, ev)
	var se *Error
	assert.ErrorAs(t, err, &se)
	assert.Equal(t, KindApply, se.Kind)
	assert.Equal(t, "doc", se.ID)
	assert.Equal(t, "7-abc", se.Seq)
	assert.Contains(t, err.Error(), `seq="7-abc"`)

	err = WithEvent(&Error{Kind: KindConnection, Err: errors.New("reset")}, KindApply, ev)
	assert.True(t, IsTransient(err))
	assert.Contains(t, err.Error(), `id="doc"`)
}

func TestError_WithEventKeepsWrappedContext(t *testing.T) {
	ev := ChangeEvent{ID: "doc", Seq: "7-abc"}
	cause := errors.New("reset by peer")
	inner := &Error{Kind: KindConnection, Op: "mongodb replace", Err: cause}

	err := WithEvent(fmt.Errorf("apply upsert: %w", inner), KindApply, ev)

	assert.Contains(t, err.Error(), "apply upsert: ")
	assert.Contains(t, err.Error(), "mongodb replace")
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsTransient(err))

	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "doc", se.ID)
	assert.Equal(t, "7-abc", se.Seq)
	assert.Equal(t, KindConnection, se.Kind)
}
