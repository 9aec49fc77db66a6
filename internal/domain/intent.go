package domain

// IntentKind is the closed set of routing outcomes for a turn.
type IntentKind int

const (
	IntentUnknown IntentKind = iota
	IntentChat
	IntentVision
	IntentToolDirect
)

func (k IntentKind) String() string {
	switch k {
	case IntentChat:
		return "chat"
	case IntentVision:
		return "vision"
	case IntentToolDirect:
		return "tool_direct"
	default:
		return "unknown"
	}
}

// Resource returns the accelerator class a turn of this kind needs.
func (k IntentKind) Resource() ResourceClass {
	switch k {
	case IntentChat:
		return ResourceTextGeneration
	case IntentVision:
		return ResourceVision
	default:
		return ResourceNone
	}
}

// Intent is the classification of one turn. It is never persisted.
type Intent struct {
	Kind          IntentKind `json:"kind"`
	Confidence    float64    `json:"confidence"`
	MatchedSignal string     `json:"matched_signal"`
}
