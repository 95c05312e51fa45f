package settings

import "strings"

// AIMode is the resolved auto-reply switch. Historical installations stored
// the flag as "1"/"0"/"true"/"false" strings or not at all; those forms are
// interpreted here, once, so the rest of the pipeline only ever sees the enum.
type AIMode int

const (
	AIEnabled AIMode = iota
	AIDisabled
)

func (m AIMode) String() string {
	if m == AIDisabled {
		return "disabled"
	}
	return "enabled"
}

// ResolveAIMode maps the stored flag to an AIMode. An absent key defaults to
// enabled; only an explicit "0"/"false" disables the pipeline.
func ResolveAIMode(raw string, present bool) AIMode {
	if !present {
		return AIEnabled
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "0", "false":
		return AIDisabled
	default:
		return AIEnabled
	}
}
