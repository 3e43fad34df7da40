package steamid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRoundTripsAccountID(t *testing.T) {
	sid := New(UniversePublic, AccountTypeIndividual, DesktopInstance, 123456789)
	assert.Equal(t, uint32(123456789), sid.AccountID())
	assert.Equal(t, AccountTypeIndividual, sid.AccountType())
	assert.True(t, sid.IsIndividual())
}

func TestIsIndividualFalseForOtherTypes(t *testing.T) {
	clan := New(UniversePublic, AccountTypeClan, DesktopInstance, 1)
	assert.False(t, clan.IsIndividual())
}

func TestParseRoundTripsString(t *testing.T) {
	sid := New(UniversePublic, AccountTypeIndividual, DesktopInstance, 555)
	parsed, err := Parse(sid.String())
	require.NoError(t, err)
	assert.Equal(t, sid, parsed)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse("not-a-number")
	assert.Error(t, err)
}
