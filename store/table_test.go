package store

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seclens/sentrydb/db"
)

func newAllowTable(t *testing.T) (*db.MockStore, *IndexedTable[*AllowNetwork]) {
	t.Helper()
	s := db.NewMockStore(AllowNetworksCF)
	return s, NewIndexedTable(s, AllowNetworksCF, func() *AllowNetwork { return &AllowNetwork{} })
}

func testGroup(cidr string) HostNetworkGroup {
	return HostNetworkGroup{Networks: []string{cidr}}
}

func TestIndexedTablePutAndGet(t *testing.T) {
	_, tbl := newAllowTable(t)

	entry := &AllowNetwork{
		Name:       "office",
		Networks:   testGroup("10.0.0.0/8"),
		CustomerID: 7,
	}
	id, err := tbl.Put(entry)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), id)
	assert.Equal(t, id, entry.ID)

	byID, err := tbl.GetByID(id)
	require.NoError(t, err)
	assert.Equal(t, "office", byID.Name)
	assert.Equal(t, uint32(7), byID.CustomerID)

	byKey, err := tbl.GetByKey(entry.UniqueKey())
	require.NoError(t, err)
	assert.Equal(t, id, byKey.ID)

	t.Run("duplicate key rejected", func(t *testing.T) {
		dup := &AllowNetwork{Name: "office", CustomerID: 7}
		_, err := tbl.Put(dup)
		assert.Error(t, err)
	})

	t.Run("same name under another customer is distinct", func(t *testing.T) {
		other := &AllowNetwork{Name: "office", CustomerID: 8}
		oid, err := tbl.Put(other)
		require.NoError(t, err)
		assert.Equal(t, uint32(1), oid)
	})

	t.Run("missing lookups", func(t *testing.T) {
		_, err := tbl.GetByID(42)
		assert.ErrorIs(t, err, ErrInvalidID)
		_, err = tbl.GetByKey([]byte("nope"))
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestIndexedTableUpdate(t *testing.T) {
	_, tbl := newAllowTable(t)

	entry := &AllowNetwork{Name: "office", Networks: testGroup("10.0.0.0/8"), CustomerID: 1}
	id, err := tbl.Put(entry)
	require.NoError(t, err)

	t.Run("in place", func(t *testing.T) {
		entry.Description = "head office"
		require.NoError(t, tbl.Update(entry))
		got, err := tbl.GetByID(id)
		require.NoError(t, err)
		assert.Equal(t, "head office", got.Description)
	})

	t.Run("rename moves the entry", func(t *testing.T) {
		oldKey := entry.UniqueKey()
		entry.Name = "hq"
		require.NoError(t, tbl.Update(entry))

		got, err := tbl.GetByID(id)
		require.NoError(t, err)
		assert.Equal(t, "hq", got.Name)

		_, err = tbl.GetByKey(oldKey)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("rename onto a taken key rejected", func(t *testing.T) {
		other := &AllowNetwork{Name: "lab", CustomerID: 1}
		_, err := tbl.Put(other)
		require.NoError(t, err)

		entry.Name = "lab"
		assert.Error(t, tbl.Update(entry))
		entry.Name = "hq"
	})
}

func TestIndexedTableRemoveAndIter(t *testing.T) {
	_, tbl := newAllowTable(t)

	first := &AllowNetwork{Name: "a", CustomerID: 1}
	second := &AllowNetwork{Name: "b", CustomerID: 1}
	firstID, err := tbl.Put(first)
	require.NoError(t, err)
	_, err = tbl.Put(second)
	require.NoError(t, err)

	require.NoError(t, tbl.Remove(firstID))
	n, err := tbl.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var names []string
	require.NoError(t, tbl.Iter(func(e *AllowNetwork) error {
		names = append(names, e.Name)
		return nil
	}))
	assert.Equal(t, []string{"b"}, names)

	// The freed id goes to the next insertion.
	third := &AllowNetwork{Name: "c", CustomerID: 1}
	thirdID, err := tbl.Put(third)
	require.NoError(t, err)
	assert.Equal(t, firstID, thirdID)
}

func TestCustomerValidation(t *testing.T) {
	group := HostNetworkGroup{
		Hosts:    []net.IP{net.ParseIP("192.0.2.1")},
		Networks: []string{"10.0.0.0/8"},
	}

	t.Run("duplicate network range rejected", func(t *testing.T) {
		c := &Customer{
			Name: "acme",
			Networks: []Network{
				{Name: "one", NetworkGroup: group},
				{Name: "two", NetworkGroup: group},
			},
		}
		err := c.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "network range already exists")
	})

	t.Run("distinct ranges accepted", func(t *testing.T) {
		c := &Customer{
			Name: "acme",
			Networks: []Network{
				{Name: "one", NetworkGroup: group},
				{Name: "two", NetworkGroup: testGroup("172.16.0.0/12")},
			},
		}
		assert.NoError(t, c.Validate())
	})

	t.Run("contains", func(t *testing.T) {
		c := &Customer{Name: "acme", Networks: []Network{{Name: "one", NetworkGroup: group}}}
		assert.True(t, c.Contains(net.ParseIP("10.1.2.3")))
		assert.True(t, c.Contains(net.ParseIP("192.0.2.1")))
		assert.False(t, c.Contains(net.ParseIP("203.0.113.9")))
	})
}

func TestHostNetworkGroupContains(t *testing.T) {
	g := HostNetworkGroup{
		Hosts:    []net.IP{net.ParseIP("192.0.2.10")},
		Networks: []string{"10.0.0.0/8"},
		Ranges: []IPRange{
			{Start: net.ParseIP("172.16.0.1"), End: net.ParseIP("172.16.0.9")},
		},
	}

	assert.True(t, g.Contains(net.ParseIP("192.0.2.10")))
	assert.True(t, g.Contains(net.ParseIP("10.255.0.1")))
	assert.True(t, g.Contains(net.ParseIP("172.16.0.5")))
	assert.False(t, g.Contains(net.ParseIP("172.16.0.10")))
	assert.False(t, g.Contains(net.ParseIP("198.51.100.1")))
}
