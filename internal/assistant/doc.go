// Package assistant turns user intents on selected emails into generation
// requests and streams the answers into a conversation.Store.
//
// BuildRequest holds the prompt rules for each Intent. A Dispatcher runs one
// generation per Dispatch call, begins the assistant message before calling
// the generator and resolves the returned Completion exactly once, whether the
// generation succeeded or failed. While a dispatch is pending for a context, a
// second dispatch against the same context is rejected with
// ErrDispatchPending.
package assistant
