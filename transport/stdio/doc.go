// Package stdio is the reference transport: newline-delimited JSON over a
// pair of byte streams, typically a process's stdin and stdout.
//
// Every message is one UTF-8 JSON document terminated by '\n'. The read loop
// consumes raw chunks and may extract several documents from a single read;
// each is delivered in order. Documents that are not valid JSON are reported
// through OnError and dropped without tearing the connection down. A partial
// document that outgrows the configured maximum is unrecoverable.
//
// Writes go through a bounded queue drained by a single writer goroutine, so
// Send preserves call order and blocks only while the queue is full.
//
// A side channel (a child's stderr, for instance) may be attached with
// WithSideChannel. Each line is classified with a classify.Classifier; Fatal
// lines raise OnError and close the transport, everything else is logged.
//
// Close, peer EOF and I/O failures share one shutdown path: new sends are
// refused, queued messages are written and flushed, the streams are closed and
// OnClose fires exactly once.
//
// Use New for arbitrary streams, Stdio for the current process's stdin and
// stdout, and Command to speak to a subprocess.
package stdio
