package google

import gmail "google.golang.org/api/gmail/v1"

// DefaultOAuthScopes are requested at sign-in: the OpenID identity of the user
// and full Gmail access, which batchDelete requires.
var DefaultOAuthScopes = []string{
	"openid",
	"email",
	gmail.MailGoogleComScope,
}
