package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/bsewire/internal/common"
)

type recordingSink struct {
	messages []string
	err      error
}

func (s *recordingSink) Send(_ context.Context, msg string) error {
	s.messages = append(s.messages, msg)
	return s.err
}

func TestMultiNotifierFansOut(t *testing.T) {
	first := &recordingSink{}
	failing := &recordingSink{err: errors.New("down")}
	last := &recordingSink{}

	multi := NewMultiNotifier(common.GetLogger(), first, failing, last)
	require.NoError(t, multi.Send(context.Background(), "hello"))

	assert.Equal(t, []string{"hello"}, first.messages)
	assert.Equal(t, []string{"hello"}, failing.messages)
	assert.Equal(t, []string{"hello"}, last.messages, "a failing sink must not stop the fan-out")
}

func TestTelegramUnconfiguredIsNoOp(t *testing.T) {
	n, err := NewTelegramNotifier(&common.TelegramConfig{}, common.GetLogger())
	require.NoError(t, err)
	assert.NoError(t, n.Send(context.Background(), "dropped"))
}

func TestLogNotifier(t *testing.T) {
	n := NewLogNotifier(common.GetLogger())
	assert.NoError(t, n.Send(context.Background(), "logged"))
}
