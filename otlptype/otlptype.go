// Package otlptype holds the signal taxonomy and message shapes shared by the
// codec, queue fabric, receivers and driver.
package otlptype

import "fmt"

// SignalKind identifies which of the three OTLP telemetry kinds a message
// carries. The three variants are part of the external contract: their names
// appear verbatim in offset records and log lines.
type SignalKind int

const (
	Traces SignalKind = iota
	Metrics
	Logs
)

// Signals lists every SignalKind in the fixed order the driver polls them.
var Signals = [...]SignalKind{Traces, Metrics, Logs}

// String returns the external, lower-case name for the signal.
func (k SignalKind) String() string {
	switch k {
	case Traces:
		return "traces"
	case Metrics:
		return "metrics"
	case Logs:
		return "logs"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Message is the unit handed from a receiver to a queue and on to a record.
// Payload is either UTF-8 JSON or ASCII base64 of the protobuf wire form,
// depending on the codec format fixed for the run; it never varies per
// message within a single process lifetime.
type Message struct {
	Signal     SignalKind
	Payload    string
	IngestTime int64 // unix milliseconds
}
