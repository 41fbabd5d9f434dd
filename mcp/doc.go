// Package mcp contains the protocol vocabulary shared by both peers of a
// session: method names, capability documents, logging severities and the
// handshake payloads. It mirrors the wire representation while keeping the
// surface Go-friendly (exported structs with json tags, string constants for
// method names and enumerations, helper validation functions).
//
// The package is free of transport and dispatch logic. The protocol package
// consumes these types to gate handlers and outgoing calls; transports never
// look inside envelopes.
//
// # Method Names
//
// JSON-RPC method and notification names are enumerated as Method constants
// (e.g. ToolsListMethod). Using the constants avoids typographical mistakes
// and keeps a single point of truth if the protocol evolves.
//
// # Capabilities
//
// ClientCapabilities and ServerCapabilities capture negotiated feature sets.
// Each feature area is an optional pointer: nil means unsupported, a non-nil
// value with no flags means supported with defaults, and set flags refine the
// support. The Support type makes that tri-state explicit and Capability
// names (e.g. "resources.subscribe") address an area or one of its flags:
//
//	caps := mcp.ServerCapabilities{Resources: &mcp.ResourcesFeature{Subscribe: true}}
//	caps.Support("resources")                 // mcp.SupportedWithFlags
//	caps.Has(mcp.CapabilityResourcesSubscribe) // true
//	caps.Has(mcp.CapabilityLogging)            // false
//
// # Logging Levels
//
// LoggingLevel values mirror the eight syslog severities and are totally
// ordered; use Severity or AtLeast to compare them.
//
// # Compatibility
//
// LatestProtocolVersion reflects the most recent protocol revision the library
// targets and SupportedProtocolVersions lists every revision it accepts during
// negotiation.
package mcp
