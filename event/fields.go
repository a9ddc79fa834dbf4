package event

import (
	"net"

	"github.com/vmihailenco/msgpack/v5"
)

// Compile-time interface checks.
var (
	_ Record          = (*PortScanFields)(nil)
	_ AttributeSource = (*PortScanFields)(nil)
	_ Record          = (*HttpThreatFields)(nil)
	_ AttributeSource = (*HttpThreatFields)(nil)
	_ Record          = (*BlocklistConnFields)(nil)
	_ AttributeSource = (*BlocklistConnFields)(nil)
	_ Record          = (*ExternalDdosFields)(nil)
	_ AttributeSource = (*ExternalDdosFields)(nil)
)

// PortScanFields are the stored fields of a port-scan detection.
type PortScanFields struct {
	_msgpack struct{} `msgpack:",as_array"`

	Time            int64 // nanoseconds since the Unix epoch
	Sensor          string
	OrigAddr        net.IP
	RespAddr        net.IP
	RespPorts       []uint16
	StartTime       int64
	EndTime         int64
	Proto           uint8
	OrigCountryCode string
	RespCountryCode string
}

func (f *PortScanFields) Kind() Kind { return KindPortScan }

func (f *PortScanFields) Value() ([]byte, error) { return msgpack.Marshal(f) }

func (f *PortScanFields) Attr(kind AttrKind) (any, bool) {
	switch kind {
	case AttrOrigAddr:
		return f.OrigAddr, true
	case AttrRespAddr:
		return f.RespAddr, true
	case AttrProto:
		return f.Proto, true
	case AttrSensor:
		return f.Sensor, true
	case AttrTime:
		return f.Time, true
	case AttrOrigCountry:
		return f.OrigCountryCode, true
	case AttrRespCountry:
		return f.RespCountryCode, true
	default:
		return nil, false
	}
}

// HttpThreatFields are the stored fields of an HTTP threat detection.
type HttpThreatFields struct {
	_msgpack struct{} `msgpack:",as_array"`

	Time            int64
	Sensor          string
	OrigAddr        net.IP
	OrigPort        uint16
	RespAddr        net.IP
	RespPort        uint16
	Proto           uint8
	Method          string
	Host            string
	URI             string
	Referer         string
	UserAgent       string
	StatusCode      uint16
	RuleID          uint32
	MatchedTo       string
	ClusterID       *uint32
	AttackKind      string
	Confidence      float32
	OrigCountryCode string
	RespCountryCode string
}

func (f *HttpThreatFields) Kind() Kind { return KindHttpThreat }

func (f *HttpThreatFields) Value() ([]byte, error) { return msgpack.Marshal(f) }

func (f *HttpThreatFields) Attr(kind AttrKind) (any, bool) {
	switch kind {
	case AttrOrigAddr:
		return f.OrigAddr, true
	case AttrOrigPort:
		return f.OrigPort, true
	case AttrRespAddr:
		return f.RespAddr, true
	case AttrRespPort:
		return f.RespPort, true
	case AttrProto:
		return f.Proto, true
	case AttrSensor:
		return f.Sensor, true
	case AttrTime:
		return f.Time, true
	case AttrConfidence:
		return f.Confidence, true
	case AttrHost:
		return f.Host, true
	case AttrURI:
		return f.URI, true
	case AttrUserAgent:
		return f.UserAgent, true
	case AttrAttackKind:
		return f.AttackKind, true
	case AttrOrigCountry:
		return f.OrigCountryCode, true
	case AttrRespCountry:
		return f.RespCountryCode, true
	default:
		return nil, false
	}
}

// BlocklistConnFields are the stored fields of a blocklisted connection.
type BlocklistConnFields struct {
	_msgpack struct{} `msgpack:",as_array"`

	Time            int64
	Sensor          string
	OrigAddr        net.IP
	OrigPort        uint16
	RespAddr        net.IP
	RespPort        uint16
	Proto           uint8
	ConnState       string
	Duration        int64
	Service         string
	OrigBytes       uint64
	RespBytes       uint64
	OrigPkts        uint64
	RespPkts        uint64
	OrigCountryCode string
	RespCountryCode string
}

func (f *BlocklistConnFields) Kind() Kind { return KindBlocklistConn }

func (f *BlocklistConnFields) Value() ([]byte, error) { return msgpack.Marshal(f) }

func (f *BlocklistConnFields) Attr(kind AttrKind) (any, bool) {
	switch kind {
	case AttrOrigAddr:
		return f.OrigAddr, true
	case AttrOrigPort:
		return f.OrigPort, true
	case AttrRespAddr:
		return f.RespAddr, true
	case AttrRespPort:
		return f.RespPort, true
	case AttrProto:
		return f.Proto, true
	case AttrSensor:
		return f.Sensor, true
	case AttrTime:
		return f.Time, true
	case AttrOrigCountry:
		return f.OrigCountryCode, true
	case AttrRespCountry:
		return f.RespCountryCode, true
	default:
		return nil, false
	}
}

// ExternalDdosFields are the stored fields of an external DDoS detection.
// The originator side is a set of addresses, so the originator country code
// is a parallel slice.
type ExternalDdosFields struct {
	_msgpack struct{} `msgpack:",as_array"`

	Time             int64
	Sensor           string
	OrigAddrs        []net.IP
	RespAddr         net.IP
	Proto            uint8
	StartTime        int64
	EndTime          int64
	OrigCountryCodes []string
	RespCountryCode  string
}

func (f *ExternalDdosFields) Kind() Kind { return KindExternalDdos }

func (f *ExternalDdosFields) Value() ([]byte, error) { return msgpack.Marshal(f) }

func (f *ExternalDdosFields) Attr(kind AttrKind) (any, bool) {
	switch kind {
	case AttrRespAddr:
		return f.RespAddr, true
	case AttrProto:
		return f.Proto, true
	case AttrSensor:
		return f.Sensor, true
	case AttrTime:
		return f.Time, true
	case AttrRespCountry:
		return f.RespCountryCode, true
	default:
		return nil, false
	}
}
