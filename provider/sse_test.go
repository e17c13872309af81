package provider

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSEScanner(t *testing.T) {
	t.Run("plain data events", func(t *testing.T) {
		body := "data: {\"a\":1}\n\ndata: {\"b\":2}\n\ndata: [DONE]\n\n"
		sc := NewSSEScanner(strings.NewReader(body))

		ev, err := sc.Next()
		require.NoError(t, err)
		assert.Equal(t, `{"a":1}`, ev.Data)

		ev, err = sc.Next()
		require.NoError(t, err)
		assert.Equal(t, `{"b":2}`, ev.Data)

		ev, err = sc.Next()
		require.NoError(t, err)
		assert.Equal(t, "[DONE]", ev.Data)

		_, err = sc.Next()
		assert.Equal(t, io.EOF, err)
	})

	t.Run("named events", func(t *testing.T) {
		body := "event: message_start\ndata: {\"type\":\"message_start\"}\n\n"
		sc := NewSSEScanner(strings.NewReader(body))

		ev, err := sc.Next()
		require.NoError(t, err)
		assert.Equal(t, "message_start", ev.Event)
		assert.Equal(t, `{"type":"message_start"}`, ev.Data)
	})

	t.Run("comments and keep-alives are skipped", func(t *testing.T) {
		body := ": ping\n\ndata: x\n\n"
		sc := NewSSEScanner(strings.NewReader(body))

		ev, err := sc.Next()
		require.NoError(t, err)
		assert.Equal(t, "x", ev.Data)
	})

	t.Run("multiline data is joined", func(t *testing.T) {
		body := "data: line1\ndata: line2\n\n"
		sc := NewSSEScanner(strings.NewReader(body))

		ev, err := sc.Next()
		require.NoError(t, err)
		assert.Equal(t, "line1\nline2", ev.Data)
	})

	t.Run("trailing event without blank line still delivered", func(t *testing.T) {
		sc := NewSSEScanner(strings.NewReader("data: tail"))

		ev, err := sc.Next()
		require.NoError(t, err)
		assert.Equal(t, "tail", ev.Data)

		_, err = sc.Next()
		assert.Equal(t, io.EOF, err)
	})

	t.Run("empty body", func(t *testing.T) {
		sc := NewSSEScanner(strings.NewReader(""))
		_, err := sc.Next()
		assert.Equal(t, io.EOF, err)
	})
}
