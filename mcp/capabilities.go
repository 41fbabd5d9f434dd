package mcp

import (
	"maps"
	"strings"
)

// Capability names a capability area ("resources") or one of its sub-flags
// ("resources.subscribe"). The name is what CapabilityError reports.
type Capability string

// Server-side capability names.
const (
	CapabilityLogging              Capability = "logging"
	CapabilityCompletions          Capability = "completions"
	CapabilityPrompts              Capability = "prompts"
	CapabilityPromptsListChanged   Capability = "prompts.listChanged"
	CapabilityResources            Capability = "resources"
	CapabilityResourcesListChanged Capability = "resources.listChanged"
	CapabilityResourcesSubscribe   Capability = "resources.subscribe"
	CapabilityTools                Capability = "tools"
	CapabilityToolsListChanged     Capability = "tools.listChanged"
)

// Client-side capability names.
const (
	CapabilityRoots            Capability = "roots"
	CapabilityRootsListChanged Capability = "roots.listChanged"
	CapabilitySampling         Capability = "sampling"
	CapabilityElicitation      Capability = "elicitation"
)

// Area returns the feature area portion of the name.
func (c Capability) Area() string {
	area, _, _ := strings.Cut(string(c), ".")
	return area
}

// Flag returns the sub-flag portion of the name, or "" for a bare area.
func (c Capability) Flag() string {
	_, flag, _ := strings.Cut(string(c), ".")
	return flag
}

// Support is the explicit tri-state of a capability area.
type Support int

const (
	// Unsupported means the area is absent from the capability document.
	Unsupported Support = iota
	// Supported means the area is present with no sub-flags set.
	Supported
	// SupportedWithFlags means the area is present and at least one sub-flag is set.
	SupportedWithFlags
)

func (s Support) String() string {
	switch s {
	case Supported:
		return "supported"
	case SupportedWithFlags:
		return "supported-with-flags"
	default:
		return "unsupported"
	}
}

// EmptyFeature is a capability area without sub-flags.
type EmptyFeature struct{}

// ListChangedFeature is a capability area whose only flag advertises change
// notifications.
type ListChangedFeature struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// ResourcesFeature advertises resource support.
type ResourcesFeature struct {
	Subscribe   bool `json:"subscribe,omitempty"`
	ListChanged bool `json:"listChanged,omitempty"`
}

// ServerCapabilities advertises server features.
type ServerCapabilities struct {
	Experimental map[string]any      `json:"experimental,omitempty"`
	Logging      *EmptyFeature       `json:"logging,omitempty"`
	Completions  *EmptyFeature       `json:"completions,omitempty"`
	Prompts      *ListChangedFeature `json:"prompts,omitempty"`
	Resources    *ResourcesFeature   `json:"resources,omitempty"`
	Tools        *ListChangedFeature `json:"tools,omitempty"`
}

// ClientCapabilities advertises client features.
type ClientCapabilities struct {
	Experimental map[string]any      `json:"experimental,omitempty"`
	Roots        *ListChangedFeature `json:"roots,omitempty"`
	Sampling     *EmptyFeature       `json:"sampling,omitempty"`
	Elicitation  *EmptyFeature       `json:"elicitation,omitempty"`
}

// Support reports the tri-state for a feature area.
func (c ServerCapabilities) Support(area string) Support {
	switch area {
	case "logging":
		return presence(c.Logging != nil, false)
	case "completions":
		return presence(c.Completions != nil, false)
	case "prompts":
		return presence(c.Prompts != nil, c.Prompts != nil && c.Prompts.ListChanged)
	case "resources":
		return presence(c.Resources != nil, c.Resources != nil && (c.Resources.Subscribe || c.Resources.ListChanged))
	case "tools":
		return presence(c.Tools != nil, c.Tools != nil && c.Tools.ListChanged)
	}
	return Unsupported
}

// Has reports whether the named area, or area flag, is advertised.
func (c ServerCapabilities) Has(cap Capability) bool {
	if c.Support(cap.Area()) == Unsupported {
		return false
	}
	switch cap {
	case CapabilityPromptsListChanged:
		return c.Prompts.ListChanged
	case CapabilityResourcesListChanged:
		return c.Resources.ListChanged
	case CapabilityResourcesSubscribe:
		return c.Resources.Subscribe
	case CapabilityToolsListChanged:
		return c.Tools.ListChanged
	}
	return cap.Flag() == ""
}

// Clone returns a deep copy so that a negotiated document can be frozen.
func (c ServerCapabilities) Clone() ServerCapabilities {
	out := ServerCapabilities{Experimental: maps.Clone(c.Experimental)}
	out.Logging = clonePtr(c.Logging)
	out.Completions = clonePtr(c.Completions)
	out.Prompts = clonePtr(c.Prompts)
	out.Resources = clonePtr(c.Resources)
	out.Tools = clonePtr(c.Tools)
	return out
}

// Support reports the tri-state for a feature area.
func (c ClientCapabilities) Support(area string) Support {
	switch area {
	case "roots":
		return presence(c.Roots != nil, c.Roots != nil && c.Roots.ListChanged)
	case "sampling":
		return presence(c.Sampling != nil, false)
	case "elicitation":
		return presence(c.Elicitation != nil, false)
	}
	return Unsupported
}

// Has reports whether the named area, or area flag, is advertised.
func (c ClientCapabilities) Has(cap Capability) bool {
	if c.Support(cap.Area()) == Unsupported {
		return false
	}
	if cap == CapabilityRootsListChanged {
		return c.Roots.ListChanged
	}
	return cap.Flag() == ""
}

// Clone returns a deep copy so that a negotiated document can be frozen.
func (c ClientCapabilities) Clone() ClientCapabilities {
	out := ClientCapabilities{Experimental: maps.Clone(c.Experimental)}
	out.Roots = clonePtr(c.Roots)
	out.Sampling = clonePtr(c.Sampling)
	out.Elicitation = clonePtr(c.Elicitation)
	return out
}

func presence(present, flagged bool) Support {
	switch {
	case !present:
		return Unsupported
	case flagged:
		return SupportedWithFlags
	default:
		return Supported
	}
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
