package launcher

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayloadCodec(t *testing.T) {
	in := &Payload{LaunchID: "id-1", Paths: []string{"/a", "/b"}, Args: []string{"x"}}
	data, err := marshalPayload(in)
	require.NoError(t, err)

	again, err := marshalPayload(in)
	require.NoError(t, err)
	assert.Equal(t, data, again, "encoding must be deterministic")

	out, err := decodePayload(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestPayloadCodec_Garbage(t *testing.T) {
	_, err := decodePayload(bytes.NewReader([]byte{0xff, 0x00}))
	assert.Error(t, err)

	_, err = decodePayload(bytes.NewReader(nil))
	assert.Error(t, err)
}
