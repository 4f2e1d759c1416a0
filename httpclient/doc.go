// Package httpclient is the HTTP [authflow.Authenticator] used by the login
// client. 4xx responses become *authflow.AuthError carrying the server's
// detail; connection failures and 5xx responses are transport faults.
package httpclient
