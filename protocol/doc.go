// Package protocol implements the session engine shared by both ends of a
// connection: request/response correlation, notifications, capability
// negotiation and gating, cancellation, timeouts and the logging threshold.
//
// A session is bound to a single transport.Transport. The client side is
// created with NewClient and the server side with NewServer; both are
// started with Start. The client then drives the handshake:
//
//	client := protocol.NewClient(t, mcp.ImplementationInfo{Name: "probe"}, mcp.ClientCapabilities{})
//	if err := client.Start(ctx); err != nil {
//		return err
//	}
//	res, err := client.Initialize(ctx)
//
// Every outgoing Request ends in exactly one outcome. Failures are typed:
// *jsonrpc.Error when the peer rejected the request, *TimeoutError,
// *CancellationError, *TransportError and *CapabilityError. Match them with
// errors.Is against ErrRequestTimeout, ErrCancelled, ErrTransport and
// ErrCapability.
//
// Handlers are registered per method. Registration fails with a
// *CapabilityError when the local capability document does not declare the
// capability the method requires. Request handlers run concurrently and may
// issue nested requests to the peer. Notification handlers run one at a time
// in arrival order.
package protocol
