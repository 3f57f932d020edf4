package settlement

import "regexp"

var (
	rawAddrRe      = regexp.MustCompile(`^-?[0-9]:[0-9a-fA-F]{64}$`)
	friendlyAddrRe = regexp.MustCompile(`^[EUk0][Qf][A-Za-z0-9_-]{46}$`)
)

// ValidAddressFormat is the local, offline format check for a TON address:
// raw "workchain:hex" or 48-char url-safe base64 friendly form. The checksum
// itself is verified by the node (ValidateAddressChecksum); this predicate
// only rejects obviously malformed input before any network round trip.
func ValidAddressFormat(address string) bool {
	if address == "" {
		return false
	}
	return rawAddrRe.MatchString(address) || friendlyAddrRe.MatchString(address)
}
