package protocol

import "github.com/ggoodman/mcp-peer-go/mcp"

// Role names used in logs and capability errors.
const (
	RoleClient = "client"
	RoleServer = "server"
)

// roleRules maps methods to the capability each direction requires.
type roleRules struct {
	name string
	peer string
	// outgoing requests are checked against the peer's negotiated document
	outgoing map[mcp.Method]mcp.Capability
	// outgoing notifications are checked against the local document
	notify map[mcp.Method]mcp.Capability
	// handler registrations are checked against the local document
	handle map[mcp.Method]mcp.Capability
}

var clientRules = roleRules{
	name: RoleClient,
	peer: RoleServer,
	outgoing: map[mcp.Method]mcp.Capability{
		mcp.LoggingSetLevelMethod:        mcp.CapabilityLogging,
		mcp.CompletionCompleteMethod:     mcp.CapabilityCompletions,
		mcp.PromptsListMethod:            mcp.CapabilityPrompts,
		mcp.PromptsGetMethod:             mcp.CapabilityPrompts,
		mcp.ResourcesListMethod:          mcp.CapabilityResources,
		mcp.ResourcesTemplatesListMethod: mcp.CapabilityResources,
		mcp.ResourcesReadMethod:          mcp.CapabilityResources,
		mcp.ResourcesSubscribeMethod:     mcp.CapabilityResourcesSubscribe,
		mcp.ResourcesUnsubscribeMethod:   mcp.CapabilityResourcesSubscribe,
		mcp.ToolsListMethod:              mcp.CapabilityTools,
		mcp.ToolsCallMethod:              mcp.CapabilityTools,
	},
	notify: map[mcp.Method]mcp.Capability{
		mcp.RootsListChangedNotificationMethod: mcp.CapabilityRootsListChanged,
		mcp.LoggingMessageNotificationMethod:   mcp.CapabilityLogging,
	},
	handle: map[mcp.Method]mcp.Capability{
		mcp.SamplingCreateMessageMethod: mcp.CapabilitySampling,
		mcp.RootsListMethod:             mcp.CapabilityRoots,
		mcp.ElicitationCreateMethod:     mcp.CapabilityElicitation,
	},
}

var serverRules = roleRules{
	name: RoleServer,
	peer: RoleClient,
	outgoing: map[mcp.Method]mcp.Capability{
		mcp.SamplingCreateMessageMethod: mcp.CapabilitySampling,
		mcp.RootsListMethod:             mcp.CapabilityRoots,
		mcp.ElicitationCreateMethod:     mcp.CapabilityElicitation,
	},
	notify: map[mcp.Method]mcp.Capability{
		mcp.LoggingMessageNotificationMethod:       mcp.CapabilityLogging,
		mcp.ResourcesUpdatedNotificationMethod:     mcp.CapabilityResourcesSubscribe,
		mcp.ResourcesListChangedNotificationMethod: mcp.CapabilityResourcesListChanged,
		mcp.ToolsListChangedNotificationMethod:     mcp.CapabilityToolsListChanged,
		mcp.PromptsListChangedNotificationMethod:   mcp.CapabilityPromptsListChanged,
	},
	handle: map[mcp.Method]mcp.Capability{
		mcp.CompletionCompleteMethod:     mcp.CapabilityCompletions,
		mcp.LoggingSetLevelMethod:        mcp.CapabilityLogging,
		mcp.PromptsListMethod:            mcp.CapabilityPrompts,
		mcp.PromptsGetMethod:             mcp.CapabilityPrompts,
		mcp.ResourcesListMethod:          mcp.CapabilityResources,
		mcp.ResourcesTemplatesListMethod: mcp.CapabilityResources,
		mcp.ResourcesReadMethod:          mcp.CapabilityResources,
		mcp.ResourcesSubscribeMethod:     mcp.CapabilityResourcesSubscribe,
		mcp.ResourcesUnsubscribeMethod:   mcp.CapabilityResourcesSubscribe,
		mcp.ToolsListMethod:              mcp.CapabilityTools,
		mcp.ToolsCallMethod:              mcp.CapabilityTools,
	},
}

func requiredCapability(table map[mcp.Method]mcp.Capability, method string) (mcp.Capability, bool) {
	c, ok := table[mcp.Method(method)]
	return c, ok
}
