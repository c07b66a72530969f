package pairing

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockResponder struct{ mock.Mock }

func (m *mockResponder) PasskeyReply(conn uint16, action Action, value uint32) error {
	return m.Called(conn, action, value).Error(0)
}

type recordingDisplay struct {
	shown []string
}

func (d *recordingDisplay) ShowPasskey(ev Event, prompt string) {
	d.shown = append(d.shown, FormatPasskey(ev.Passkey))
}

type fixedConfirmer bool

func (c fixedConfirmer) Confirm(context.Context, Event) bool { return bool(c) }

func TestStepInputRepliesZero(t *testing.T) {
	r := &mockResponder{}
	r.On("PasskeyReply", uint16(1), ActionInput, uint32(0)).Return(nil).Once()

	m := NewMachine(r, &recordingDisplay{}, fixedConfirmer(true))
	require.NoError(t, m.Step(context.Background(), Event{Conn: 1, Action: ActionInput}))

	r.AssertExpectations(t)
}

func TestStepDisplayShowsPasskeyWithoutReply(t *testing.T) {
	r := &mockResponder{}
	d := &recordingDisplay{}

	m := NewMachine(r, d, fixedConfirmer(true))
	require.NoError(t, m.Step(context.Background(), Event{Conn: 2, Action: ActionDisplay, Passkey: 42, HasPasskey: true}))

	assert.Equal(t, []string{"000042"}, d.shown)
	r.AssertNotCalled(t, "PasskeyReply", mock.Anything, mock.Anything, mock.Anything)
}

func TestStepNumericComparison(t *testing.T) {
	tests := []struct {
		name    string
		confirm bool
		value   uint32
	}{
		{"accept", true, 1},
		{"reject", false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &mockResponder{}
			r.On("PasskeyReply", uint16(3), ActionNumericComparison, tt.value).Return(nil).Once()
			d := &recordingDisplay{}

			m := NewMachine(r, d, fixedConfirmer(tt.confirm))
			require.NoError(t, m.Step(context.Background(), Event{Conn: 3, Action: ActionNumericComparison, Passkey: 123456, HasPasskey: true}))

			assert.Equal(t, []string{"123456"}, d.shown)
			r.AssertExpectations(t)
		})
	}
}

func TestStepNoneAndUnknownAreIgnored(t *testing.T) {
	r := &mockResponder{}
	m := NewMachine(r, &recordingDisplay{}, fixedConfirmer(true))

	assert.NoError(t, m.Step(context.Background(), Event{Conn: 1, Action: ActionNone}))
	assert.NoError(t, m.Step(context.Background(), Event{Conn: 1, Action: Action(9)}))
	r.AssertNotCalled(t, "PasskeyReply", mock.Anything, mock.Anything, mock.Anything)
}

func TestStepReturnsToNoPendingAction(t *testing.T) {
	r := &mockResponder{}
	r.On("PasskeyReply", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("stack gone"))

	m := NewMachine(r, &recordingDisplay{}, fixedConfirmer(true))
	err := m.Step(context.Background(), Event{Conn: 5, Action: ActionInput})
	assert.Error(t, err)

	state, action := m.State()
	assert.Equal(t, NoPendingAction, state)
	assert.Equal(t, ActionNone, action)
}

func TestDelayConfirmer(t *testing.T) {
	c := DelayConfirmer{Delay: 10 * time.Millisecond, Accept: true}
	assert.True(t, c.Confirm(context.Background(), Event{}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	slow := DelayConfirmer{Delay: time.Hour, Accept: true}
	assert.False(t, slow.Confirm(ctx, Event{}))
}

func TestFormatPasskey(t *testing.T) {
	assert.Equal(t, "000000", FormatPasskey(0))
	assert.Equal(t, "000007", FormatPasskey(7))
	assert.Equal(t, "999999", FormatPasskey(999999))
}

func TestTerminalDisplay(t *testing.T) {
	var buf bytes.Buffer
	d := NewTerminalDisplay(&buf)
	d.ShowPasskey(Event{Conn: 4, Passkey: 1234}, "check")

	assert.Contains(t, buf.String(), "001234")
	assert.Contains(t, buf.String(), "check")
}
