// Package server wires the ocm HTTP surface.
//
// One Server owns the SQLite store, the TokenAuthority, the credential
// Broker and the SSH trust Manager. Routes:
//
//	POST   /git/askpass                  askpass bridge (loopback, optional session token)
//	POST   /git/ssh/host-key             full-key host verification (loopback)
//	GET    /api/health                   liveness, public
//	GET    /api/auth/verify              bearer token check, public
//	POST   /api/ssh/host-key/respond     approve or reject a pending host key
//	GET    /api/ssh/host-key/status      pending count
//	GET    /api/ssh/host-key/pending     pending request snapshots
//	GET    /api/ssh/trusted-hosts        trusted host list
//	DELETE /api/ssh/trusted-hosts/{host} forget a host
//	GET    /api/ssh/known-hosts          known_hosts export
//	GET    /api/tokens                   list tokens
//	POST   /api/tokens                   create token
//	POST   /api/tokens/{id}/revoke       revoke token
//	DELETE /api/tokens/{id}              delete token
//	GET    /api/repos                    list repos
//	POST   /api/repos                    register repo
//	DELETE /api/repos/{id}               unregister repo
//	GET    /api/settings/git-credentials saved credentials, redacted
//	PUT    /api/settings/git-credentials replace saved credentials
//
// Everything under /api/ outside the public allow-list requires a bearer
// token unless auth.disabled is set.
//
// The HTTP listener on server.http_addr always runs; with tailscale enabled
// a second listener is opened on the tailnet.
package server
