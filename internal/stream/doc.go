// Package stream decodes the newline-delimited JSON stream produced by the
// inference upstream into text fragments.
//
// The upstream sends one JSON object per line. Lines can be split across
// arbitrary transport chunks, so the Decoder buffers the trailing partial line
// until the next chunk (or the end of the stream) completes it.
//
// Every complete, non-empty line becomes at most one Fragment:
//   - Recognized: the line parsed as a JSON object and one of the configured
//     extractors found a non-empty payload (message.content, then text, then data).
//   - Unrecognized: the line did not parse as JSON; the trimmed raw line is
//     passed through untouched so that plain-text upstreams keep working.
//
// A line that parses but carries no payload (for example the final
// `{"done":true}` record) produces nothing.
//
// Decode drives a Decoder from an io.Reader. When the reader fails mid-stream
// it emits a single TransportFailure fragment carrying FailureMarker and stops.
package stream
