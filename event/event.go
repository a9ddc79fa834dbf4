// Package event defines the record types stored in the event column family
// and the contract they satisfy: msgpack serialization with positional
// (tuple) encoding, a stable 16-byte key, and attribute extraction for
// triage filtering.
//
// Field structs are encoded as msgpack arrays, so the number of encoded
// fields identifies the schema generation of a stored record. Superseded
// schema generations are kept as frozen copies in the migrate package and
// are never edited.
package event

import (
	"encoding/binary"
	"fmt"
	"net"
)

// Kind identifies the detection that produced an event. The numeric values
// are part of the on-disk key format and must never be renumbered.
type Kind int32

const (
	KindPortScan Kind = iota
	KindMultiHostPortScan
	KindExternalDdos
	KindHttpThreat
	KindRdpBruteForce
	KindFtpBruteForce
	KindBlocklistConn
	KindBlocklistHttp
	KindDomainGenerationAlgorithm
	KindTorConnection
	KindNetworkThreat
	KindWindowsThreat
	KindExtraThreat
)

func (k Kind) String() string {
	switch k {
	case KindPortScan:
		return "port scan"
	case KindMultiHostPortScan:
		return "multi host port scan"
	case KindExternalDdos:
		return "external ddos"
	case KindHttpThreat:
		return "http threat"
	case KindRdpBruteForce:
		return "rdp brute force"
	case KindFtpBruteForce:
		return "ftp brute force"
	case KindBlocklistConn:
		return "blocklist conn"
	case KindBlocklistHttp:
		return "blocklist http"
	case KindDomainGenerationAlgorithm:
		return "domain generation algorithm"
	case KindTorConnection:
		return "tor connection"
	case KindNetworkThreat:
		return "network threat"
	case KindWindowsThreat:
		return "windows threat"
	case KindExtraThreat:
		return "extra threat"
	default:
		return fmt.Sprintf("unknown kind %d", int32(k))
	}
}

// KindFromValue converts a raw key field back to a Kind. ok is false for
// values outside the known range.
func KindFromValue(v int32) (Kind, bool) {
	if v < int32(KindPortScan) || v > int32(KindExtraThreat) {
		return 0, false
	}
	return Kind(v), true
}

// KeyLen is the length of an event key in bytes.
const KeyLen = 16

// Key packs an event key: timestamp nanos (bytes 0-7, big-endian), kind
// (bytes 8-11), sequence (bytes 12-15). Keys sort by time first, which
// keeps range scans over a time window contiguous.
func Key(tsNanos int64, kind Kind, seq uint32) []byte {
	key := make([]byte, KeyLen)
	binary.BigEndian.PutUint64(key[0:8], uint64(tsNanos))
	binary.BigEndian.PutUint32(key[8:12], uint32(kind))
	binary.BigEndian.PutUint32(key[12:16], seq)
	return key
}

// KindFromKey extracts the event kind from a packed key. ok is false if the
// key is malformed or carries an unknown kind.
func KindFromKey(key []byte) (Kind, bool) {
	if len(key) < KeyLen {
		return 0, false
	}
	return KindFromValue(int32(binary.BigEndian.Uint32(key[8:12])))
}

// TimestampFromKey extracts the timestamp nanos from a packed key.
func TimestampFromKey(key []byte) (int64, bool) {
	if len(key) < KeyLen {
		return 0, false
	}
	return int64(binary.BigEndian.Uint64(key[0:8])), true
}

// Record is the contract a storable event type satisfies. The key is
// derived with [Key] from immutable properties (time, kind, sequence),
// never from mutable fields.
type Record interface {
	// Kind returns the detection kind of the record.
	Kind() Kind

	// Value returns the serialized field bytes.
	Value() ([]byte, error)
}

// Country codes used when no real code can be determined.
const (
	// UnknownCountryCode is stored when a lookup fails or returns an
	// invalid code.
	UnknownCountryCode = "XX"

	// NoLocatorCountryCode is stored when no locator is available at all.
	NoLocatorCountryCode = "ZZ"
)

// Locator resolves an IP address to a two-letter country code. ok is false
// when the address cannot be resolved.
type Locator interface {
	Country(addr net.IP) (code string, ok bool)
}

// LookupCountry resolves addr via loc, falling back to
// [NoLocatorCountryCode] when loc is nil and [UnknownCountryCode] when the
// lookup fails or yields a code that is not two ASCII letters.
func LookupCountry(loc Locator, addr net.IP) string {
	if loc == nil {
		return NoLocatorCountryCode
	}
	code, ok := loc.Country(addr)
	if !ok || !isValidCountryCode(code) {
		return UnknownCountryCode
	}
	return code
}

func isValidCountryCode(code string) bool {
	if len(code) != 2 {
		return false
	}
	return isASCIIAlpha(code[0]) && isASCIIAlpha(code[1])
}

func isASCIIAlpha(b byte) bool {
	return b >= 'A' && b <= 'Z' || b >= 'a' && b <= 'z'
}
