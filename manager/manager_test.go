package manager

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkmire/steamtrade/confirmation"
	"github.com/arkmire/steamtrade/steamid"
	"github.com/arkmire/steamtrade/tradeoffer"
)

func TestNewWithoutIdentitySecretHasNoConfirmClient(t *testing.T) {
	m, err := New(Config{APIKey: tradeoffer.APIKey("key")}, Session{
		SteamID: steamid.New(steamid.UniversePublic, steamid.AccountTypeIndividual, steamid.DesktopInstance, 1),
		HTTP:    new(http.Client),
	}, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, m.Confirm)

	err = m.ConfirmOffer("1", true)
	assert.ErrorIs(t, err, confirmation.ErrNotLoggedIn)

	err = m.CancelAllConfirmations()
	assert.ErrorIs(t, err, confirmation.ErrNotLoggedIn)
}

func TestNewWithIdentitySecretBuildsConfirmClient(t *testing.T) {
	m, err := New(Config{
		APIKey:         tradeoffer.APIKey("key"),
		IdentitySecret: "deadbeef",
	}, Session{
		SteamID: steamid.New(steamid.UniversePublic, steamid.AccountTypeIndividual, steamid.DesktopInstance, 1),
		HTTP:    new(http.Client),
	}, nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, m.Confirm)
}

func TestNewWithoutItemCacheCapacityLeavesItemsNil(t *testing.T) {
	m, err := New(Config{APIKey: tradeoffer.APIKey("key")}, Session{
		SteamID: steamid.New(steamid.UniversePublic, steamid.AccountTypeIndividual, steamid.DesktopInstance, 1),
		HTTP:    new(http.Client),
	}, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, m.Items)
}

func TestNewWithItemCacheCapacityBuildsCache(t *testing.T) {
	m, err := New(Config{
		APIKey:              tradeoffer.APIKey("key"),
		ItemCacheCapacity:   16,
		ItemCacheTTLSeconds: 60,
	}, Session{
		SteamID: steamid.New(steamid.UniversePublic, steamid.AccountTypeIndividual, steamid.DesktopInstance, 1),
		HTTP:    new(http.Client),
	}, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, m.Items)
}

func TestEventsExposesBusChannel(t *testing.T) {
	m, err := New(Config{APIKey: tradeoffer.APIKey("key")}, Session{
		SteamID: steamid.New(steamid.UniversePublic, steamid.AccountTypeIndividual, steamid.DesktopInstance, 1),
		HTTP:    new(http.Client),
	}, nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, m.Events())
}
