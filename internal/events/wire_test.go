package events

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	frame := EncodeFrame(42, []byte(`{"member_id":1}`))

	require.Equal(t, []byte{0, 0, 0, 0, 42}, frame[:5])

	id, payload, err := DecodeFrame(frame)
	require.NoError(t, err)
	require.Equal(t, 42, id)
	require.JSONEq(t, `{"member_id":1}`, string(payload))
}

func TestDecodeFrameRejectsMalformedValues(t *testing.T) {
	_, _, err := DecodeFrame([]byte{0, 1})
	require.ErrorIs(t, err, ErrShortFrame)

	_, _, err = DecodeFrame([]byte{1, 0, 0, 0, 1, '{', '}'})
	require.Error(t, err)
}
