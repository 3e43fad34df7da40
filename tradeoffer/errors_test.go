package tradeoffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyStrErrorEmptyIsNil(t *testing.T) {
	assert.Nil(t, classifyStrError(""))
}

func TestClassifyStrErrorUnrecognizedIsNil(t *testing.T) {
	assert.Nil(t, classifyStrError("some future error text we've never seen"))
}

func TestClassifyStrErrorTradeBan(t *testing.T) {
	se := classifyStrError("You have been banned from trading (16)")
	require.NotNil(t, se)
	assert.Equal(t, KindTradeBan, se.Kind)
	assert.True(t, se.HasCode)
	assert.Equal(t, 16, se.Code)
}

func TestClassifyStrErrorOfferLimit(t *testing.T) {
	se := classifyStrError("You have sent too many trade offers.")
	require.NotNil(t, se)
	assert.Equal(t, KindOfferLimitExceeded, se.Kind)
	assert.False(t, se.HasCode)
}

func TestClassifyStrErrorItemServerUnavailable(t *testing.T) {
	se := classifyStrError("The item server may be down, please try again later.")
	require.NotNil(t, se)
	assert.Equal(t, KindItemServerUnavailable, se.Kind)
}

func TestClassifyStrErrorCaseInsensitive(t *testing.T) {
	se := classifyStrError("BANNED FROM TRADING")
	require.NotNil(t, se)
	assert.Equal(t, KindTradeBan, se.Kind)
}

func TestHTTPErrorMessage(t *testing.T) {
	err := &HTTPError{Status: 500}
	assert.Contains(t, err.Error(), "500")
}
