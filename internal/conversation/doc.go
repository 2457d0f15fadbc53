// Package conversation keeps the assistant chat transcripts of one user, one
// conversation per context: the general conversation (GeneralKey) and one per
// email the user has opened.
//
// A Store is created per user and injected into whatever needs it. Switching
// to a context that already has a conversation returns it untouched; a new
// context starts with a greeting. Assistant replies are created empty by
// BeginAssistantMessage or BeginReply and grow through AppendFragment, which targets the
// message id captured when the reply began, so late fragments never land in a
// conversation the user switched to in the meantime.
package conversation
