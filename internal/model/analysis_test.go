package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceIncrease_UnmarshalNumber(t *testing.T) {
	var p PriceIncrease
	err := json.Unmarshal([]byte(`2000`), &p)
	require.NoError(t, err)
	assert.Equal(t, PriceIncrease("2000"), p)
}

func TestPriceIncrease_UnmarshalFractionalNumber(t *testing.T) {
	var p PriceIncrease
	err := json.Unmarshal([]byte(`1500.5`), &p)
	require.NoError(t, err)
	assert.Equal(t, PriceIncrease("1500.5"), p)
}

func TestPriceIncrease_UnmarshalString(t *testing.T) {
	var p PriceIncrease
	err := json.Unmarshal([]byte(`"INR 2,000 (est.)"`), &p)
	require.NoError(t, err)
	assert.Equal(t, PriceIncrease("INR 2,000 (est.)"), p)
}

func TestPriceIncrease_UnmarshalInvalid(t *testing.T) {
	var p PriceIncrease
	err := json.Unmarshal([]byte(`{"amount": 5}`), &p)
	assert.Error(t, err)
}

func TestPriceIncrease_MarshalRoundTrip(t *testing.T) {
	p := PriceIncrease("3500")
	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Equal(t, `"3500"`, string(data))
}

func TestScopeAnalysis_UnmarshalMixedPriceShapes(t *testing.T) {
	var a ScopeAnalysis
	err := json.Unmarshal([]byte(`{"message_id": "m1", "is_out_of_scope": true, "suggested_price_increase": 4500}`), &a)
	require.NoError(t, err)
	assert.True(t, a.IsOutOfScope)
	assert.Equal(t, PriceIncrease("4500"), a.SuggestedPriceIncrease)
}
