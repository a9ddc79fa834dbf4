package migrate

import (
	"net"

	"github.com/seclens/sentrydb/store"
)

// Frozen copies of serialized structures as they existed in the 0.42.x
// format. Migration steps decode old records through these types; the
// current types live in the store and event packages and keep evolving
// independently. store.HostNetworkGroup has not changed since 0.42 and is
// referenced directly.

// allowNetworkV0_42 is the allow-network value before customer_id was
// added. Its key was the bare name.
type allowNetworkV0_42 struct {
	ID          uint32                 `msgpack:"id"`
	Name        string                 `msgpack:"name"`
	Networks    store.HostNetworkGroup `msgpack:"networks"`
	Description string                 `msgpack:"description"`
}

// blockNetworkV0_42 is the block-network value before customer_id was
// added. Its key was the bare name.
type blockNetworkV0_42 struct {
	ID          uint32                 `msgpack:"id"`
	Name        string                 `msgpack:"name"`
	Networks    store.HostNetworkGroup `msgpack:"networks"`
	Description string                 `msgpack:"description"`
}

// Event field structs before country codes were added. Like the current
// types they encode as msgpack arrays, so the array length of a stored
// record tells the two generations apart.

type portScanFieldsV0_42 struct {
	_msgpack struct{} `msgpack:",as_array"`

	Time      int64
	Sensor    string
	OrigAddr  net.IP
	RespAddr  net.IP
	RespPorts []uint16
	StartTime int64
	EndTime   int64
	Proto     uint8
}

type httpThreatFieldsV0_42 struct {
	_msgpack struct{} `msgpack:",as_array"`

	Time       int64
	Sensor     string
	OrigAddr   net.IP
	OrigPort   uint16
	RespAddr   net.IP
	RespPort   uint16
	Proto      uint8
	Method     string
	Host       string
	URI        string
	Referer    string
	UserAgent  string
	StatusCode uint16
	RuleID     uint32
	MatchedTo  string
	ClusterID  *uint32
	AttackKind string
	Confidence float32
}

type blocklistConnFieldsV0_42 struct {
	_msgpack struct{} `msgpack:",as_array"`

	Time      int64
	Sensor    string
	OrigAddr  net.IP
	OrigPort  uint16
	RespAddr  net.IP
	RespPort  uint16
	Proto     uint8
	ConnState string
	Duration  int64
	Service   string
	OrigBytes uint64
	RespBytes uint64
	OrigPkts  uint64
	RespPkts  uint64
}

type externalDdosFieldsV0_42 struct {
	_msgpack struct{} `msgpack:",as_array"`

	Time      int64
	Sensor    string
	OrigAddrs []net.IP
	RespAddr  net.IP
	Proto     uint8
	StartTime int64
	EndTime   int64
}
