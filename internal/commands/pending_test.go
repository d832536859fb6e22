package commands

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/satriahrh/arunika/client/domain"
	"github.com/satriahrh/arunika/client/domain/entities"
)

type fakeTransport struct {
	open bool
	sent []domain.ControlMessage
	fail map[domain.ControlType]error
}

func (t *fakeTransport) IsOpen() bool { return t.open }

func (t *fakeTransport) SendControl(msg domain.ControlMessage) error {
	if err := t.fail[msg.ControlType()]; err != nil {
		return err
	}
	t.sent = append(t.sent, msg)
	return nil
}

func TestQueueLastWriteWins(t *testing.T) {
	transport := &fakeTransport{}
	q := NewQueue(transport, zap.NewNop())

	sent, err := q.Enqueue(SpeedCommand{Speed: 3})
	require.NoError(t, err)
	assert.False(t, sent)
	_, err = q.Enqueue(SpeedCommand{Speed: 7})
	require.NoError(t, err)

	assert.Empty(t, transport.sent)
	require.NotNil(t, q.Pending().Speed)
	assert.Equal(t, 7, q.Pending().Speed.Speed)

	transport.open = true
	n, err := q.Flush()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Len(t, transport.sent, 1)
	assert.Equal(t, domain.NewSetSpeed(7), transport.sent[0])
	assert.Nil(t, q.Pending().Speed, "flush must clear the slot")
}

func TestQueueFlushesEachKind(t *testing.T) {
	transport := &fakeTransport{}
	q := NewQueue(transport, zap.NewNop())

	_, _ = q.Enqueue(SystemPromptCommand{Persona: "tutor", Verbosity: entities.VerbosityBrief})
	_, _ = q.Enqueue(SpeedCommand{Speed: 4})
	_, _ = q.Enqueue(SystemPromptCommand{Persona: "friend", Verbosity: entities.VerbosityDetailed})

	transport.open = true
	n, err := q.Flush()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Len(t, transport.sent, 2)
	assert.Contains(t, transport.sent, domain.ControlMessage(domain.NewSetSpeed(4)))
	assert.Contains(t, transport.sent, domain.ControlMessage(domain.NewSetSystemPrompt("friend", "detailed")))

	n, err = q.Flush()
	require.NoError(t, err)
	assert.Equal(t, 0, n, "second flush has nothing to send")
	assert.Len(t, transport.sent, 2)
}

func TestQueueSendsImmediatelyWhenOpen(t *testing.T) {
	transport := &fakeTransport{open: true}
	q := NewQueue(transport, zap.NewNop())

	sent, err := q.Enqueue(SpeedCommand{Speed: 5})
	require.NoError(t, err)
	assert.True(t, sent)
	assert.Len(t, transport.sent, 1)
	assert.Nil(t, q.Pending().Speed)
}

func TestQueueWithoutTransportStores(t *testing.T) {
	q := NewQueue(nil, nil)

	sent, err := q.Enqueue(SpeedCommand{Speed: 2})
	require.NoError(t, err)
	assert.False(t, sent)

	transport := &fakeTransport{open: true}
	q.Attach(transport)
	n, err := q.Flush()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestQueueRejectsInvalidCommands(t *testing.T) {
	q := NewQueue(&fakeTransport{}, zap.NewNop())

	_, err := q.Enqueue(SpeedCommand{Speed: 0})
	assert.ErrorIs(t, err, entities.ErrInvalidSpeed)

	_, err = q.Enqueue(SystemPromptCommand{Persona: "x", Verbosity: "verbose"})
	assert.ErrorIs(t, err, entities.ErrInvalidVerbosity)

	_, err = q.Enqueue(SystemPromptCommand{Verbosity: entities.VerbosityNormal})
	assert.ErrorIs(t, err, entities.ErrEmptyPersona)

	assert.Equal(t, Snapshot{}, q.Pending())
}

func TestQueueFlushErrorsStillClear(t *testing.T) {
	boom := errors.New("write failed")
	transport := &fakeTransport{fail: map[domain.ControlType]error{domain.ControlSetSpeed: boom}}
	q := NewQueue(transport, zap.NewNop())

	_, _ = q.Enqueue(SpeedCommand{Speed: 3})
	_, _ = q.Enqueue(SystemPromptCommand{Persona: "friend", Verbosity: entities.VerbosityNormal})

	transport.open = true
	n, err := q.Flush()
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, n)
	assert.Equal(t, Snapshot{}, q.Pending())
}

func TestQueueClear(t *testing.T) {
	q := NewQueue(&fakeTransport{}, zap.NewNop())
	_, _ = q.Enqueue(SpeedCommand{Speed: 3})
	q.Clear()
	assert.Equal(t, Snapshot{}, q.Pending())
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "speed", KindSpeed.String())
	assert.Equal(t, "system_prompt", KindSystemPrompt.String())
}

func TestQueueOpenAttachesAndFlushes(t *testing.T) {
	q := NewQueue(nil, zap.NewNop())
	_, _ = q.Enqueue(SpeedCommand{Speed: 8})
	_, _ = q.Enqueue(SystemPromptCommand{Persona: "tutor", Verbosity: entities.VerbosityBrief})

	transport := &fakeTransport{open: true}
	n, err := q.Open(transport)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []domain.ControlMessage{
		domain.NewSetSpeed(8),
		domain.NewSetSystemPrompt("tutor", "brief"),
	}, transport.sent, "speed flushes before system prompt")

	sent, err := q.Enqueue(SpeedCommand{Speed: 9})
	require.NoError(t, err)
	assert.True(t, sent, "commands after Open go straight out")
	assert.Len(t, transport.sent, 3)
}
