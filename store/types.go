package store

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/seclens/sentrydb/event"
)

// IPRange is an inclusive range of IP addresses.
type IPRange struct {
	Start net.IP `msgpack:"start"`
	End   net.IP `msgpack:"end"`
}

// Contains reports whether addr falls inside the range.
func (r IPRange) Contains(addr net.IP) bool {
	a := addr.To16()
	return a != nil &&
		bytes.Compare(a, r.Start.To16()) >= 0 &&
		bytes.Compare(a, r.End.To16()) <= 0
}

// HostNetworkGroup is a set of individual hosts, CIDR networks, and address
// ranges, matched as a union.
type HostNetworkGroup struct {
	Hosts    []net.IP  `msgpack:"hosts"`
	Networks []string  `msgpack:"networks"` // CIDR notation
	Ranges   []IPRange `msgpack:"ranges"`
}

// Contains reports whether addr is covered by any member of the group.
func (g *HostNetworkGroup) Contains(addr net.IP) bool {
	for _, h := range g.Hosts {
		if h.Equal(addr) {
			return true
		}
	}
	for _, c := range g.Networks {
		if _, ipnet, err := net.ParseCIDR(c); err == nil && ipnet.Contains(addr) {
			return true
		}
	}
	for _, r := range g.Ranges {
		if r.Contains(addr) {
			return true
		}
	}
	return false
}

// Equal reports whether two groups have identical members in identical
// order.
func (g *HostNetworkGroup) Equal(other *HostNetworkGroup) bool {
	if len(g.Hosts) != len(other.Hosts) ||
		len(g.Networks) != len(other.Networks) ||
		len(g.Ranges) != len(other.Ranges) {
		return false
	}
	for i, h := range g.Hosts {
		if !h.Equal(other.Hosts[i]) {
			return false
		}
	}
	for i, c := range g.Networks {
		if c != other.Networks[i] {
			return false
		}
	}
	for i, r := range g.Ranges {
		if !r.Start.Equal(other.Ranges[i].Start) || !r.End.Equal(other.Ranges[i].End) {
			return false
		}
	}
	return true
}

// NetworkType tells how a customer network attaches to the monitored
// infrastructure.
type NetworkType uint8

const (
	NetworkTypeIntranet NetworkType = iota
	NetworkTypeExtranet
	NetworkTypeGateway
)

// Network is one named network belonging to a customer.
type Network struct {
	Name         string           `msgpack:"name"`
	Description  string           `msgpack:"description"`
	NetworkType  NetworkType      `msgpack:"network_type"`
	NetworkGroup HostNetworkGroup `msgpack:"network_group"`
}

// Contains reports whether addr belongs to the network.
func (n *Network) Contains(addr net.IP) bool {
	return n.NetworkGroup.Contains(addr)
}

// Customer is a tenant of the monitoring product.
type Customer struct {
	ID           uint32    `msgpack:"id"`
	Name         string    `msgpack:"name"`
	Description  string    `msgpack:"description"`
	Networks     []Network `msgpack:"networks"`
	CreationTime time.Time `msgpack:"creation_time"`
}

func (c *Customer) UniqueKey() []byte   { return []byte(c.Name) }
func (c *Customer) Index() uint32       { return c.ID }
func (c *Customer) SetIndex(idx uint32) { c.ID = idx }

// Contains reports whether addr belongs to any of the customer's networks.
func (c *Customer) Contains(addr net.IP) bool {
	for _, n := range c.Networks {
		if n.Contains(addr) {
			return true
		}
	}
	return false
}

// Validate rejects customers with duplicate network ranges; a range may
// appear at most once per customer.
func (c *Customer) Validate() error {
	for i, n := range c.Networks {
		for _, other := range c.Networks[i+1:] {
			if n.NetworkGroup.Equal(&other.NetworkGroup) {
				return fmt.Errorf("store: network range already exists for this customer: %s", other.Name)
			}
		}
	}
	return nil
}

// AllowNetwork is a customer-scoped set of networks whose traffic is never
// flagged.
type AllowNetwork struct {
	ID          uint32           `msgpack:"id"`
	Name        string           `msgpack:"name"`
	Networks    HostNetworkGroup `msgpack:"networks"`
	Description string           `msgpack:"description"`
	CustomerID  uint32           `msgpack:"customer_id"`
}

func (a *AllowNetwork) UniqueKey() []byte   { return customerScopedKey(a.CustomerID, a.Name) }
func (a *AllowNetwork) Index() uint32       { return a.ID }
func (a *AllowNetwork) SetIndex(idx uint32) { a.ID = idx }

// BlockNetwork is a customer-scoped set of networks whose traffic is always
// flagged.
type BlockNetwork struct {
	ID          uint32           `msgpack:"id"`
	Name        string           `msgpack:"name"`
	Networks    HostNetworkGroup `msgpack:"networks"`
	Description string           `msgpack:"description"`
	CustomerID  uint32           `msgpack:"customer_id"`
}

func (b *BlockNetwork) UniqueKey() []byte   { return customerScopedKey(b.CustomerID, b.Name) }
func (b *BlockNetwork) Index() uint32       { return b.ID }
func (b *BlockNetwork) SetIndex(idx uint32) { b.ID = idx }

// customerScopedKey builds the key of a customer-scoped entry: 4-byte
// big-endian customer id, NUL, name.
func customerScopedKey(customerID uint32, name string) []byte {
	key := make([]byte, 0, 5+len(name))
	key = binary.BigEndian.AppendUint32(key, customerID)
	key = append(key, 0x00)
	key = append(key, name...)
	return key
}

// LabelDBKind tells how the patterns of a label database are matched.
type LabelDBKind uint8

const (
	LabelDBKindIP LabelDBKind = iota
	LabelDBKindURL
	LabelDBKindToken
	LabelDBKindRegex
)

// Rule is one pattern in a label database.
type Rule struct {
	RuleID      uint32         `msgpack:"rule_id"`
	Category    event.Category `msgpack:"category"`
	Name        string         `msgpack:"name"`
	Description string         `msgpack:"description"`
	References  []string       `msgpack:"references"`
	Signatures  []string       `msgpack:"signatures"`
	// Confidence level of the rule, ranging from 0.0 to 1.0.
	Confidence float32 `msgpack:"confidence"`
}

// LabelDb is a named database of threat-intelligence labeling rules.
type LabelDb struct {
	ID          uint32         `msgpack:"id"`
	Name        string         `msgpack:"name"`
	Description string         `msgpack:"description"`
	Kind        LabelDBKind    `msgpack:"kind"`
	Category    event.Category `msgpack:"category"`
	Version     string         `msgpack:"version"`
	Patterns    []Rule         `msgpack:"patterns"`
}

// Validate rejects label databases with a missing id, name, or version.
func (l *LabelDb) Validate() error {
	switch {
	case l.ID == 0:
		return errors.New("store: invalid label db id")
	case strings.TrimSpace(l.Name) == "":
		return errors.New("store: invalid label db name")
	case strings.TrimSpace(l.Version) == "":
		return errors.New("store: label db version is required")
	}
	return nil
}

func (l *LabelDb) UniqueKey() []byte   { return []byte(l.Name) }
func (l *LabelDb) Index() uint32       { return l.ID }
func (l *LabelDb) SetIndex(idx uint32) { l.ID = idx }

// serialize is the common value encoding for table entries.
func serialize(v any) ([]byte, error) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("store: failed to serialize entry: %w", err)
	}
	return data, nil
}

// deserialize is the common value decoding for table entries.
func deserialize(data []byte, v any) error {
	if err := msgpack.Unmarshal(data, v); err != nil {
		return fmt.Errorf("store: failed to deserialize entry: %w", err)
	}
	return nil
}
