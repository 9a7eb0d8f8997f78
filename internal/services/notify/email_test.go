package notify

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/findosh/coinwatch/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

type recordingDialer struct {
	err  error
	sent []*gomail.Message
}

func (d *recordingDialer) DialAndSend(m ...*gomail.Message) error {
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, m...)
	return nil
}

func TestSend_ComposesMessage(t *testing.T) {
	d := &recordingDialer{}
	n := NewEmailNotifierWithDialer("noreply@coinwatch.test", d, nil)

	err := n.Send(context.Background(), "user@example.com", "Reset your password", "link: http://x/abc")
	require.NoError(t, err)
	require.Len(t, d.sent, 1)

	m := d.sent[0]
	assert.Equal(t, []string{"noreply@coinwatch.test"}, m.GetHeader("From"))
	assert.Equal(t, []string{"user@example.com"}, m.GetHeader("To"))
	assert.Equal(t, []string{"Reset your password"}, m.GetHeader("Subject"))

	var buf bytes.Buffer
	_, err = m.WriteTo(&buf)
	require.NoError(t, err)
	assert.True(t, strings.Contains(buf.String(), "http://x/abc"))
}

func TestSend_PropagatesTransportError(t *testing.T) {
	d := &recordingDialer{err: errors.New("connection refused")}
	n := NewEmailNotifierWithDialer("noreply@coinwatch.test", d, nil)

	err := n.Send(context.Background(), "user@example.com", "s", "b")
	assert.ErrorContains(t, err, "connection refused")
}

func TestSend_NotConfigured(t *testing.T) {
	n := NewEmailNotifier(&config.Config{}, nil)
	assert.False(t, n.Configured())
	assert.ErrorIs(t, n.Send(context.Background(), "a@b.c", "s", "b"), ErrNotConfigured)
}

func TestSend_CancelledContext(t *testing.T) {
	d := &recordingDialer{}
	n := NewEmailNotifierWithDialer("noreply@coinwatch.test", d, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, n.Send(ctx, "a@b.c", "s", "b"), context.Canceled)
	assert.Empty(t, d.sent)
}

func TestSend_EmptyRecipient(t *testing.T) {
	n := NewEmailNotifierWithDialer("noreply@coinwatch.test", &recordingDialer{}, nil)
	assert.Error(t, n.Send(context.Background(), "  ", "s", "b"))
}
