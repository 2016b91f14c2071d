package json

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeNormalized(t *testing.T) {
	v, err := DecodeNormalized([]byte(`{"limit":2,"where":{"qty":{"between":[1.5,10]}},"big":1e3,"ids":[1,2]}`))
	require.NoError(t, err)

	m := v.(map[string]interface{})
	assert.Equal(t, int64(2), m["limit"])
	assert.Equal(t, float64(1000), m["big"])
	assert.Equal(t, []interface{}{int64(1), int64(2)}, m["ids"])

	between := m["where"].(map[string]interface{})["qty"].(map[string]interface{})["between"]
	assert.Equal(t, []interface{}{1.5, int64(10)}, between)
}

func TestDecodeNormalizedInvalid(t *testing.T) {
	_, err := DecodeNormalized([]byte(`{"limit":`))
	assert.Error(t, err)
}

func TestMarshalString(t *testing.T) {
	assert.Equal(t, `{"a":"<b>"}`, MarshalString(map[string]string{"a": "<b>"}))
	assert.Contains(t, MarshalString(make(chan int)), "!json(")
}

func TestStreamingEncoderArray(t *testing.T) {
	var buf bytes.Buffer
	enc := NewStreamingEncoder(&buf, true)
	require.NoError(t, enc.Encode(map[string]int{"id": 1}))
	require.NoError(t, enc.Encode(map[string]int{"id": 2}))
	require.NoError(t, enc.Close())

	var out []map[string]int
	require.NoError(t, Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, []map[string]int{{"id": 1}, {"id": 2}}, out)
}

func TestStreamingEncoderLines(t *testing.T) {
	var buf bytes.Buffer
	enc := NewStreamingEncoder(&buf, false)
	require.NoError(t, enc.Encode(1))
	require.NoError(t, enc.Encode(2))
	require.NoError(t, enc.Close())

	assert.Equal(t, "1\n2\n", buf.String())
}

func TestBufferPool(t *testing.T) {
	buf := GetBuffer()
	buf.WriteString("x")
	PutBuffer(buf)

	again := GetBuffer()
	assert.Equal(t, 0, again.Len())
}
