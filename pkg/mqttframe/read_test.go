package mqttframe

import (
	"bytes"
	"encoding/hex"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func TestReadFrameSplitsStream(t *testing.T) {
	stream := mustHex(t, "20020000"+"9003000101"+"40020002")
	r := bytes.NewReader(stream)

	for _, want := range []string{"20020000", "9003000101", "40020002"} {
		got, err := ReadFrame(r, 0)
		require.NoError(t, err)
		assert.Equal(t, want, hex.EncodeToString(got))
	}

	_, err := ReadFrame(r, 0)
	assert.Equal(t, io.EOF, err)
}

func TestReadFrameMultiByteLength(t *testing.T) {
	payload := bytes.Repeat([]byte{'x'}, 200)
	f, err := Publish(PublishParams{Topic: "t", QoS: 0, Payload: payload})
	require.NoError(t, err)
	require.Equal(t, byte(0x80|(203&0x7f)), f[1], "remaining length takes two bytes")

	got, err := ReadFrame(bytes.NewReader(f), 0)
	require.NoError(t, err)
	assert.Equal(t, []byte(f), []byte(got))
}

func TestReadFrameTruncated(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"header only", "32"},
		{"partial length", "32ff"},
		{"partial body", "322c0016627269"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := mustHex(t, tt.input)
			got, err := ReadFrame(bytes.NewReader(input), 0)
			assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
			assert.Equal(t, input, []byte(got), "consumed bytes are returned")
		})
	}
}

func TestReadFrameMalformedLength(t *testing.T) {
	got, err := ReadFrame(bytes.NewReader(mustHex(t, "30ffffffff01")), 0)
	assert.ErrorIs(t, err, ErrMalformedLength)
	assert.Len(t, got, 5)
}

func TestReadFrameTooLarge(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader(mustHex(t, "30ff01")), 100)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestDescribe(t *testing.T) {
	f, err := Publish(PublishParams{Topic: testTopic, QoS: 1, MessageID: 2, Dup: true, Payload: []byte(testPayload)})
	require.NoError(t, err)

	desc := Describe(f)
	assert.Contains(t, desc, "PUBLISH")
	assert.Contains(t, desc, testTopic)

	assert.Equal(t, "<no bytes>", Describe(nil))
	assert.Contains(t, Describe(mustHex(t, "322c00")), "0x322c00")
}

func TestCodec(t *testing.T) {
	c := Codec{MaxFrameSize: 8}
	got, err := c.ReadFrame(bytes.NewReader(Puback(5)))
	require.NoError(t, err)
	assert.Equal(t, []byte(Puback(5)), got)
	assert.Contains(t, c.Describe(got), "PUBACK")

	_, err = c.ReadFrame(bytes.NewReader(mustHex(t, "3010")))
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestParseProtocolLevel(t *testing.T) {
	tests := []struct {
		tag  string
		want byte
	}{
		{"3.1.1", 0x04},
		{"3.1.1+bridge", 0x84},
		{"3.1", 0x03},
		{"3.1+bridge", 0x83},
		{"", 0x04},
		{"132", 0x84},
		{" MQTT ", 0x04},
	}
	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			got, err := ParseProtocolLevel(tt.tag)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"5", "mqtt5", "9+bridge", "abc"} {
		_, err := ParseProtocolLevel(bad)
		assert.Error(t, err, bad)
	}
}
