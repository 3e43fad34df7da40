// Package steamid implements the 64-bit SteamID encoding used to address
// accounts across the community site and the web API.
package steamid

import "strconv"

// AccountType mirrors the subset of Steam's account-type enum the trade
// offer flow cares about. Only Individual accounts can trade.
type AccountType uint8

const (
	AccountTypeInvalid        AccountType = 0
	AccountTypeIndividual     AccountType = 1
	AccountTypeMultiseat      AccountType = 2
	AccountTypeGameServer     AccountType = 3
	AccountTypeAnonGameServer AccountType = 4
	AccountTypePending        AccountType = 5
	AccountTypeContentServer  AccountType = 6
	AccountTypeClan           AccountType = 7
	AccountTypeChat           AccountType = 8
)

const (
	universeBits  = 8
	typeBits      = 4
	instanceBits  = 20
	accountIDBits = 32

	universeShift = 56
	typeShift     = 52
	instanceShift = 32
)

// Universe the account lives in. Public is the only one that matters for
// community trading.
type Universe uint8

const UniversePublic Universe = 1

// DesktopInstance is the instance value ordinary accounts use.
const DesktopInstance uint32 = 1

// SteamID is a 64-bit account identifier, the "opaque account identifier"
// spec.md refers to as partner.
type SteamID uint64

// New packs the four SteamID fields into their 64-bit encoding.
func New(universe Universe, accountType AccountType, instance uint32, accountID uint32) SteamID {
	return SteamID(
		uint64(universe)<<universeShift |
			uint64(accountType)<<typeShift |
			uint64(instance&((1<<instanceBits)-1))<<instanceShift |
			uint64(accountID),
	)
}

// AccountID returns the low 32 bits — the id used in community inventory
// and trade-offer-new URLs.
func (s SteamID) AccountID() uint32 {
	return uint32(s)
}

// AccountType returns the account type nibble.
func (s SteamID) AccountType() AccountType {
	return AccountType((uint64(s) >> typeShift) & 0xF)
}

// IsIndividual reports whether s addresses a person, the only kind of
// account the Offer constructor (spec.md §4.A) accepts as a partner.
func (s SteamID) IsIndividual() bool {
	return s.AccountType() == AccountTypeIndividual
}

func (s SteamID) String() string {
	return strconv.FormatUint(uint64(s), 10)
}

// Parse reads a base-10 SteamID64 string.
func Parse(s string) (SteamID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return SteamID(v), nil
}
