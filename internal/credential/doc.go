// Package credential answers Git credential prompts for registered repos.
//
// A Broker maps a prompt such as
//
//	Password for 'https://x-access-token@github.com':
//
// plus the working directory of the Git process to the saved credential for
// that host. Resolution misses are not errors: GetCredential returns "" and
// Git falls back to its own behaviour.
//
// Resolved credentials are cached in memory per host for a short TTL. The
// secret never appears in log attributes and is never written to disk by
// this package.
package credential
