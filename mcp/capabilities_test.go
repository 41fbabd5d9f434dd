package mcp

import (
	"encoding/json"
	"testing"
)

func TestServerCapabilitiesTriState(t *testing.T) {
	var absent ServerCapabilities
	if got := absent.Support("resources"); got != Unsupported {
		t.Fatalf("absent resources: got %v", got)
	}

	empty := ServerCapabilities{Resources: &ResourcesFeature{}}
	if got := empty.Support("resources"); got != Supported {
		t.Fatalf("empty resources: got %v", got)
	}
	if !empty.Has(CapabilityResources) {
		t.Fatalf("expected resources to be advertised")
	}
	if empty.Has(CapabilityResourcesSubscribe) {
		t.Fatalf("subscribe flag should be off")
	}

	flagged := ServerCapabilities{Resources: &ResourcesFeature{Subscribe: true}}
	if got := flagged.Support("resources"); got != SupportedWithFlags {
		t.Fatalf("flagged resources: got %v", got)
	}
	if !flagged.Has(CapabilityResourcesSubscribe) {
		t.Fatalf("expected subscribe flag")
	}
	if flagged.Has(CapabilityResourcesListChanged) {
		t.Fatalf("listChanged flag should be off")
	}
}

func TestCapabilitiesWireShape(t *testing.T) {
	raw := []byte(`{"logging":{},"tools":{"listChanged":true}}`)
	var caps ServerCapabilities
	if err := json.Unmarshal(raw, &caps); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if caps.Support("logging") != Supported {
		t.Fatalf("logging: got %v", caps.Support("logging"))
	}
	if !caps.Has(CapabilityToolsListChanged) {
		t.Fatalf("expected tools.listChanged")
	}
	if caps.Has(CapabilityPrompts) {
		t.Fatalf("prompts should be absent")
	}

	out, err := json.Marshal(ServerCapabilities{Completions: &EmptyFeature{}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"completions":{}}` {
		t.Fatalf("unexpected wire form: %s", out)
	}
}

func TestClientCapabilities(t *testing.T) {
	caps := ClientCapabilities{Roots: &ListChangedFeature{ListChanged: true}, Sampling: &EmptyFeature{}}
	if !caps.Has(CapabilityRootsListChanged) || !caps.Has(CapabilitySampling) {
		t.Fatalf("expected roots.listChanged and sampling")
	}
	if caps.Has(CapabilityElicitation) {
		t.Fatalf("elicitation should be absent")
	}
	if caps.Has("roots.unknownFlag") {
		t.Fatalf("unknown flag must not be reported")
	}
}

func TestCloneIsDeep(t *testing.T) {
	orig := ServerCapabilities{Tools: &ListChangedFeature{}}
	cp := orig.Clone()
	orig.Tools.ListChanged = true
	if cp.Tools.ListChanged {
		t.Fatalf("clone shares feature pointer with original")
	}
}

func TestLoggingLevelOrdering(t *testing.T) {
	for i, l := range LoggingLevels {
		if l.Severity() != i {
			t.Fatalf("%s: severity %d, want %d", l, l.Severity(), i)
		}
	}
	if !LoggingLevelCritical.AtLeast(LoggingLevelError) {
		t.Fatalf("critical should pass an error threshold")
	}
	if LoggingLevelWarning.AtLeast(LoggingLevelError) {
		t.Fatalf("warning should not pass an error threshold")
	}
	if LoggingLevel("verbose").AtLeast(LoggingLevelDebug) {
		t.Fatalf("unknown levels never pass")
	}
	if _, err := ParseLoggingLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}
