// Package auth keeps the authentication state of latchkey.
//
// There are three moving parts:
//
// The Verifier checks a username/password pair against the keyring. Passwords
// are never stored, only an argon2id key derived from them, and the comparison
// is done in constant time. Unknown users still pay for a full derivation so
// they cannot be told apart from known users with a wrong password.
//
// The TokenStore keeps the remember-me chains. Each chain has a stable series
// and a secret value that changes every time it is used. The keyring only
// sees an HMAC of the value, keyed by the remember-me key. Presenting a value
// that was already replaced means someone else has (or had) a copy of the
// cookie, so the whole series is dropped and the user has to login again.
//
// The Manager ties both together with the SessionRegistry. A request is
// authenticated from its session first, then from its remember-me pair, and
// the outcome tells the HTTP layer which cookies to set or clear.
//
// Sessions live in memory only. If the process restarts, users with a
// remember-me cookie get a new session transparently, everyone else logs in
// again.
package auth
