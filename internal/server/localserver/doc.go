// Package localserver is the channel adapter for local clients.
//
// Every service with library functions gets a Unix domain socket at
// <socket_dir>/<service>.sock. Everything the daemon writes is a frame:
// one kind byte followed by a complete response or event.
//
//	0  response to a request
//	1  event pushed by the daemon
//
// A client connects and reads the setup frame, a bare response header
// whose error field is the accept result. The daemon closes the socket
// after a failed setup. Otherwise the client writes requests, each a
// request header followed by its payload, and reads frames.
//
// Peer credentials come from SO_PEERCRED. Request admission rate follows
// the flow-control directive applied to the service acceptor.
package localserver
