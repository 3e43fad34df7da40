// Package totp wraps the time-bound HMAC primitives the confirmation
// engine needs: deriving a mobile-confirmation key for a given tag, and
// computing the device id the confirmation endpoints expect. Both are
// pure given their inputs, per spec.md §6 "Totp primitives".
package totp

import (
	"crypto/md5"
	"fmt"

	authenticator "github.com/bbqtd/go-steam-authenticator"
)

// Tag identifies which confirmation operation a derived key authorizes.
// These three are the ones spec.md §4.E and §6 name; "details" exists in
// the wild (trade-info pages) but nothing in this spec calls it.
type Tag string

const (
	TagConf   Tag = "conf"
	TagAllow  Tag = "allow"
	TagCancel Tag = "cancel"
)

// KeyDeriver produces the base64 confirmation key for (time, tag),
// spec.md §4.E's derive_key. The static-secret mode described there is
// DefaultDeriver; a caller-supplied dynamic mode can be substituted by
// implementing this interface directly.
type KeyDeriver interface {
	DeriveKey(timeSeconds uint64, tag Tag) (string, error)
}

// DefaultDeriver implements the "static secret" mode of spec.md §4.E:
// HMAC-SHA1 of the timestamp and tag keyed by the account's identity
// secret, base64 encoded. It delegates to bbqtd/go-steam-authenticator,
// the same library the teacher's confirmation client already used,
// calling one of three Generate*Code functions per tag.
type DefaultDeriver struct {
	IdentitySecret string
}

func (d DefaultDeriver) DeriveKey(timeSeconds uint64, tag Tag) (string, error) {
	timer := func() uint64 { return timeSeconds }
	switch tag {
	case TagConf:
		return authenticator.GenerateLoadConfirmationCode(d.IdentitySecret, timer)
	case TagAllow:
		return authenticator.GenerateAcceptTradeCode(d.IdentitySecret, timer)
	case TagCancel:
		return authenticator.GenerateCancelCode(d.IdentitySecret, timer)
	default:
		return "", fmt.Errorf("totp: unsupported tag %q", tag)
	}
}

// DynamicDeriver adapts a caller-supplied function taking (time, tag) —
// spec.md §4.E's "dynamic" mode, for hosts that keep the identity secret
// behind a remote signing service instead of handing it to this module.
type DynamicDeriver struct {
	Func func(timeSeconds uint64, tag Tag) (string, error)
}

func (d DynamicDeriver) DeriveKey(timeSeconds uint64, tag Tag) (string, error) {
	return d.Func(timeSeconds, tag)
}

// LoginCode generates the standard 5-character Steam Guard Mobile
// Authenticator code for t, the value login's twofactorcode parameter
// expects — a different code family from the confirmation tags above,
// but the same underlying library call shape.
func LoginCode(sharedSecret string, t func() uint64) (string, error) {
	return authenticator.GenerateAuthCode(sharedSecret, t)
}

// DeviceID derives the "android:<hex>" device id the confirmation
// endpoints require from an account id, per spec.md §6. This is the same
// MD5-digest-split formula the teacher's community.GenerateDeviceID and
// zergu1ar-steam's getDeviceID both compute from account name + password;
// spec.md's external-interface signature takes the account id instead,
// so the input domain changes but the formatting does not.
func DeviceID(accountID uint32) string {
	sum := md5.Sum([]byte(fmt.Sprintf("steamid:%d", accountID)))
	return fmt.Sprintf(
		"android:%x-%x-%x-%x-%x",
		sum[:2], sum[2:4], sum[4:6], sum[6:8], sum[8:10],
	)
}
