// Package askpass is the client half of the Git askpass protocol.
//
// Git and OpenSSH run the program named by GIT_ASKPASS / SSH_ASKPASS with
// the prompt as the only argument and read the answer from stdout. Run
// implements that program: it forwards {prompt, cwd} to the server's
// /git/askpass endpoint and prints the token it gets back.
//
// Everything on stdout is protocol. Diagnostics go to stderr, and only
// when OCM_ASKPASS_DEBUG is set. The answer is never passed on a command
// line; GitEnv hands configuration to child processes through the
// environment.
package askpass
