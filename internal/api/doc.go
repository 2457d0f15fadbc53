// Package api is the HTTP surface of inboxpilot: the public inference relay,
// Google sign-in, and the session-protected mailbox, conversation and
// assistant endpoints used by the web UI.
//
// Routes:
//
//	POST   /generate                 relay a generation request (also /api/generate, /api/ai/process)
//	GET    /auth/login               redirect to Google sign-in
//	GET    /auth/callback            finish sign-in and set the session cookie
//	POST   /auth/logout              end the session
//	GET    /api/session              the signed-in user
//	GET    /api/emails               list the inbox
//	GET    /api/emails/{id}          one email with body and attachments
//	DELETE /api/emails               delete emails {ids}
//	POST   /api/emails/archive       archive emails {ids}
//	GET    /api/conversation         the active conversation
//	PUT    /api/conversation         switch the active conversation
//	GET    /api/conversations/{key}  one conversation
//	POST   /api/assistant/actions    run an assistant intent, streaming the reply
//
// Errors are JSON objects with an "error" field.
package api
