package event

// AttrKind identifies a single attribute that can be pulled out of an event
// record for triage filtering. Not every record type carries every
// attribute.
type AttrKind int

const (
	AttrOrigAddr AttrKind = iota
	AttrOrigPort
	AttrRespAddr
	AttrRespPort
	AttrProto
	AttrSensor
	AttrTime
	AttrConfidence
	AttrHost
	AttrURI
	AttrUserAgent
	AttrAttackKind
	AttrOrigCountry
	AttrRespCountry
)

// AttributeSource extracts a single attribute from a record. The second
// return value is false when the record does not carry the attribute.
//
// This replaces per-type hand-written field matching with one dispatch
// method per record type; callers stay independent of concrete field
// layouts.
type AttributeSource interface {
	Attr(kind AttrKind) (any, bool)
}
