package stream

// Kind identifies the variant of a Fragment.
type Kind int

const (
	// Recognized fragments carry text extracted from a JSON frame.
	Recognized Kind = iota
	// Unrecognized fragments carry a raw line that was not valid JSON.
	Unrecognized
	// TransportFailure is the terminal fragment emitted when reading fails.
	TransportFailure
)

// FailureMarker is written to the caller when the upstream stream breaks.
const FailureMarker = "\n[stream error]\n"

// String returns a stable, low-cardinality name for metrics and logs.
func (k Kind) String() string {
	switch k {
	case Recognized:
		return "recognized"
	case Unrecognized:
		return "unrecognized"
	case TransportFailure:
		return "transport_failure"
	default:
		return "unknown"
	}
}

// Fragment is one decoded unit of the upstream stream.
type Fragment struct {
	Kind Kind
	// Text is the extracted payload for Recognized fragments, the trimmed
	// raw line for Unrecognized ones and FailureMarker for TransportFailure.
	Text string
	// Final is set on fragments produced from the unterminated tail flushed
	// at end of stream.
	Final bool
}

// Render returns the bytes to forward to the caller for this fragment.
// Unrecognized lines that were terminated by a newline keep their line
// break; everything else is written verbatim.
func (f Fragment) Render() string {
	if f.Kind == Unrecognized && !f.Final {
		return f.Text + "\n"
	}
	return f.Text
}
