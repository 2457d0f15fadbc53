// Package relay forwards generation requests to the streaming chat upstream
// (an Ollama-compatible /api/chat endpoint) and relays the decoded text back
// to the caller as it arrives.
//
// A request is validated, turned into a single user turn and posted with
// stream=true. Failures before any body byte is read are returned as errors
// (BadRequestError, UpstreamError) so the HTTP layer can still answer with a
// structured status. Once streaming has started, problems are reported inline:
// an unparsable line is passed through and a broken upstream connection ends
// the stream with stream.FailureMarker.
//
// The same Relay serves the public POST /generate endpoint (Handler) and the
// in-process assistant (Relay.Generate).
package relay
