package zkml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputRoundTrip(t *testing.T) {
	out := &ProgramOutput{Values: []int64{1780, 0, -3}, Scale: 1000}
	data, err := MarshalOutput(out)
	require.NoError(t, err)
	assert.Equal(t, `{"values":[1780,0,-3],"scale":1000}`, string(data))

	parsed, err := UnmarshalOutput(data)
	require.NoError(t, err)
	assert.Equal(t, out, parsed)
}

func TestOutputRejectsNonCanonicalForm(t *testing.T) {
	cases := []string{
		`{"values": [1780, 0], "scale": 1000}`, // extra whitespace
		`{"scale":1000,"values":[1780,0]}`,     // key order
		`{"values":[1780,0],"scale":1000} `,    // trailing byte
	}
	for _, raw := range cases {
		_, err := UnmarshalOutput([]byte(raw))
		assert.ErrorIs(t, err, ErrDeserialization, "input %q", raw)
	}
}

func TestOutputRejectsGarbage(t *testing.T) {
	_, err := UnmarshalOutput([]byte("not json"))
	require.ErrorIs(t, err, ErrDeserialization)
}

func TestVerifyRejectsGarbageEnvelopes(t *testing.T) {
	output, err := MarshalOutput(&ProgramOutput{Values: []int64{1}, Scale: 1000})
	require.NoError(t, err)

	_, err = Verify([]byte("garbage"), []byte("garbage"), output)
	require.ErrorIs(t, err, ErrDeserialization)
}
