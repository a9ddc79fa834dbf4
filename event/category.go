package event

// Category classifies a detection by attack stage, loosely following the
// MITRE ATT&CK tactics the product reports on.
type Category uint8

const (
	CategoryUnknown Category = iota
	CategoryReconnaissance
	CategoryInitialAccess
	CategoryExecution
	CategoryCredentialAccess
	CategoryDiscovery
	CategoryLateralMovement
	CategoryCommandAndControl
	CategoryExfiltration
	CategoryImpact
)

func (c Category) String() string {
	switch c {
	case CategoryReconnaissance:
		return "reconnaissance"
	case CategoryInitialAccess:
		return "initial access"
	case CategoryExecution:
		return "execution"
	case CategoryCredentialAccess:
		return "credential access"
	case CategoryDiscovery:
		return "discovery"
	case CategoryLateralMovement:
		return "lateral movement"
	case CategoryCommandAndControl:
		return "command and control"
	case CategoryExfiltration:
		return "exfiltration"
	case CategoryImpact:
		return "impact"
	default:
		return "unknown"
	}
}
