package store

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seclens/sentrydb/db"
	"github.com/seclens/sentrydb/event"
)

func TestEventTable(t *testing.T) {
	s := db.NewMockStore(EventsCF)
	events := NewEventTable(s)

	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC).UnixNano()
	rec := &event.PortScanFields{
		Time:            now,
		Sensor:          "sensor-1",
		OrigAddr:        net.ParseIP("203.0.113.5"),
		RespAddr:        net.ParseIP("10.0.0.1"),
		RespPorts:       []uint16{22, 80, 443},
		Proto:           6,
		OrigCountryCode: "US",
		RespCountryCode: "KR",
	}

	key, err := events.Put(now, 1, rec)
	require.NoError(t, err)
	require.Len(t, key, event.KeyLen)

	kind, ok := event.KindFromKey(key)
	require.True(t, ok)
	assert.Equal(t, event.KindPortScan, kind)
	ts, ok := event.TimestampFromKey(key)
	require.True(t, ok)
	assert.Equal(t, now, ts)

	value, err := events.Get(key)
	require.NoError(t, err)
	want, err := rec.Value()
	require.NoError(t, err)
	assert.Equal(t, want, value)

	t.Run("keys sort by time", func(t *testing.T) {
		_, err := events.Put(now-time.Hour.Nanoseconds(), 2, rec)
		require.NoError(t, err)

		var stamps []int64
		require.NoError(t, events.RawIter(func(key, _ []byte) error {
			ts, ok := event.TimestampFromKey(key)
			require.True(t, ok)
			stamps = append(stamps, ts)
			return nil
		}))
		require.Len(t, stamps, 2)
		assert.Less(t, stamps[0], stamps[1])
	})

	t.Run("raw update is compare-and-set", func(t *testing.T) {
		err := events.RawUpdate(key, []byte("stale"), []byte("ignored"))
		assert.ErrorIs(t, err, ErrValueChanged)

		require.NoError(t, events.RawUpdate(key, value, []byte("rewritten")))
		got, err := events.Get(key)
		require.NoError(t, err)
		assert.Equal(t, []byte("rewritten"), got)
	})
}
