package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalHasNoTrailingNewline(t *testing.T) {
	data, err := Marshal(map[string]string{"q": "acme"})
	require.NoError(t, err)
	assert.Equal(t, `{"q":"acme"}`, string(data))
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	data, err := Marshal(payload{Name: "ACME", Count: 3})
	require.NoError(t, err)

	var decoded payload
	require.NoError(t, Unmarshal(data, &decoded))
	assert.Equal(t, "ACME", decoded.Name)
	assert.Equal(t, 3, decoded.Count)
}

func TestUnmarshalConfigFromMap(t *testing.T) {
	type memConfig struct {
		MaxEntries int `json:"max_entries"`
	}

	var cfg memConfig
	require.NoError(t, UnmarshalConfig(map[string]interface{}{"max_entries": 42}, &cfg))
	assert.Equal(t, 42, cfg.MaxEntries)
}

func TestUnmarshalConfigNil(t *testing.T) {
	var cfg struct{}
	assert.Error(t, UnmarshalConfig(nil, &cfg))
}

func TestBytesToString(t *testing.T) {
	assert.Equal(t, "", BytesToString(nil))
	assert.Equal(t, "hello", BytesToString([]byte("hello")))
}

func TestTitleFromID(t *testing.T) {
	cases := map[string]string{
		"":                 "",
		"customer":         "Customer",
		"sales_order":      "Sales Order",
		"sales_order-line": "Sales Order Line",
		"crm.customer":     "Crm Customer",
	}

	for input, expected := range cases {
		assert.Equal(t, expected, TitleFromID(input), input)
	}
}
