package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecseg/model"
)

func TestByName(t *testing.T) {
	for _, name := range []string{"json", "go-json"} {
		c, ok := ByName(name)
		require.True(t, ok)
		assert.Equal(t, name, c.Name())
	}

	_, ok := ByName("gob")
	assert.False(t, ok)
}

func TestMetadataRoundTrip(t *testing.T) {
	md := model.Metadata{
		"hnsw:space": "cosine",
		"hnsw:M":     16,
		"ratio":      float32(0.5),
		"exact":      true,
		"big":        int64(1 << 40),
	}

	for _, c := range []Codec{JSON{}, GoJSON{}} {
		t.Run(c.Name(), func(t *testing.T) {
			data, err := MarshalMetadata(c, md)
			require.NoError(t, err)

			got, err := UnmarshalMetadata(c, data)
			require.NoError(t, err)
			assert.Equal(t, model.Metadata{
				"hnsw:space": "cosine",
				"hnsw:M":     int64(16),
				"ratio":      float64(0.5),
				"exact":      true,
				"big":        int64(1 << 40),
			}, got)
		})
	}
}

func TestMetadataEmpty(t *testing.T) {
	data, err := MarshalMetadata(nil, model.Metadata{})
	require.NoError(t, err)
	assert.Nil(t, data)

	md, err := UnmarshalMetadata(nil, nil)
	require.NoError(t, err)
	assert.Nil(t, md)

	md, err = UnmarshalMetadata(nil, []byte("{}"))
	require.NoError(t, err)
	assert.Nil(t, md)
}

func TestMetadataUnsupported(t *testing.T) {
	_, err := MarshalMetadata(nil, model.Metadata{"list": []string{"a"}})
	assert.ErrorIs(t, err, ErrUnsupportedValue)

	_, err = UnmarshalMetadata(nil, []byte(`{"k":{}}`))
	assert.ErrorIs(t, err, ErrUnsupportedValue)
}

func TestMustMarshal(t *testing.T) {
	assert.Equal(t, []byte(`{"a":1}`), MustMarshal(nil, map[string]int{"a": 1}))
	assert.Panics(t, func() { MustMarshal(JSON{}, make(chan int)) })
}
