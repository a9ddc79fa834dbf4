package event

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func TestKeyPacking(t *testing.T) {
	const ts = int64(1736930000123456789)

	key := Key(ts, KindHttpThreat, 42)
	require.Len(t, key, KeyLen)

	kind, ok := KindFromKey(key)
	require.True(t, ok)
	assert.Equal(t, KindHttpThreat, kind)

	got, ok := TimestampFromKey(key)
	require.True(t, ok)
	assert.Equal(t, ts, got)

	t.Run("later timestamps sort higher", func(t *testing.T) {
		earlier := Key(ts-1, KindExtraThreat, 0xFFFFFFFF)
		assert.Equal(t, -1, compareBytes(earlier, key))
	})

	t.Run("malformed keys rejected", func(t *testing.T) {
		_, ok := KindFromKey([]byte("short"))
		assert.False(t, ok)
		_, ok = TimestampFromKey(nil)
		assert.False(t, ok)
	})

	t.Run("unknown kind rejected", func(t *testing.T) {
		_, ok := KindFromValue(999)
		assert.False(t, ok)
		_, ok = KindFromValue(-1)
		assert.False(t, ok)
	})
}

func compareBytes(a, b []byte) int {
	switch {
	case string(a) < string(b):
		return -1
	case string(a) > string(b):
		return 1
	default:
		return 0
	}
}

func TestRecordsEncodeAsArrays(t *testing.T) {
	rec := &PortScanFields{
		Time:     1,
		Sensor:   "s",
		OrigAddr: net.ParseIP("203.0.113.1"),
		RespAddr: net.ParseIP("10.0.0.1"),
	}
	data, err := rec.Value()
	require.NoError(t, err)

	// Positional encoding: the value starts with a msgpack array header,
	// not a map.
	var raw []any
	require.NoError(t, msgpack.Unmarshal(data, &raw))
	assert.Len(t, raw, 10)

	var decoded PortScanFields
	require.NoError(t, msgpack.Unmarshal(data, &decoded))
	assert.Equal(t, rec.Sensor, decoded.Sensor)
	assert.True(t, rec.OrigAddr.Equal(decoded.OrigAddr))
}

func TestAttrDispatch(t *testing.T) {
	f := &HttpThreatFields{
		OrigAddr:        net.ParseIP("203.0.113.1"),
		RespPort:        443,
		Host:            "evil.example",
		Confidence:      0.9,
		RespCountryCode: "KR",
	}

	addr, ok := f.Attr(AttrOrigAddr)
	require.True(t, ok)
	assert.True(t, f.OrigAddr.Equal(addr.(net.IP)))

	port, ok := f.Attr(AttrRespPort)
	require.True(t, ok)
	assert.Equal(t, uint16(443), port)

	country, ok := f.Attr(AttrRespCountry)
	require.True(t, ok)
	assert.Equal(t, "KR", country)

	_, ok = f.Attr(AttrKind(9999))
	assert.False(t, ok)
}

type fixedLocator struct {
	code string
	ok   bool
}

func (l fixedLocator) Country(net.IP) (string, bool) { return l.code, l.ok }

func TestLookupCountry(t *testing.T) {
	addr := net.ParseIP("203.0.113.1")

	assert.Equal(t, NoLocatorCountryCode, LookupCountry(nil, addr))
	assert.Equal(t, "US", LookupCountry(fixedLocator{code: "US", ok: true}, addr))
	assert.Equal(t, UnknownCountryCode, LookupCountry(fixedLocator{ok: false}, addr))

	t.Run("invalid codes replaced", func(t *testing.T) {
		assert.Equal(t, UnknownCountryCode, LookupCountry(fixedLocator{code: "USA", ok: true}, addr))
		assert.Equal(t, UnknownCountryCode, LookupCountry(fixedLocator{code: "1A", ok: true}, addr))
	})
}
