package router

import "strings"

// ParseAlias normalizes the `gatewayz-code[-mode]` / `gatewayz-general[-mode]`
// hyphenated aliases to the colon form `router:code[:mode]` /
// `router:general[:mode]` before mode parsing (spec.md §4.9.1, §4.9.2).
func ParseAlias(modelID string) string {
	switch {
	case modelID == "gatewayz-code":
		return "router:code"
	case strings.HasPrefix(modelID, "gatewayz-code-"):
		return "router:code:" + strings.TrimPrefix(modelID, "gatewayz-code-")
	case modelID == "gatewayz-general":
		return "router:general"
	case strings.HasPrefix(modelID, "gatewayz-general-"):
		return "router:general:" + strings.TrimPrefix(modelID, "gatewayz-general-")
	default:
		return modelID
	}
}

// IsCodeRouter reports whether modelID (after alias normalization)
// addresses the code router, returning its mode suffix (empty for auto).
func IsCodeRouter(modelID string) (mode string, ok bool) {
	normalized := ParseAlias(modelID)
	switch {
	case normalized == "router:code":
		return "", true
	case strings.HasPrefix(normalized, "router:code:"):
		return strings.TrimPrefix(normalized, "router:code:"), true
	default:
		return "", false
	}
}

// IsGeneralRouter reports whether modelID (after alias normalization)
// addresses the general router, returning its mode suffix (empty for
// balanced).
func IsGeneralRouter(modelID string) (mode string, ok bool) {
	normalized := ParseAlias(modelID)
	switch {
	case normalized == "router:general":
		return "", true
	case strings.HasPrefix(normalized, "router:general:"):
		return strings.TrimPrefix(normalized, "router:general:"), true
	default:
		return "", false
	}
}
