// Package connection is the client side of the daemon's local sockets
// and admin RPC service.
//
// A Client holds one library connection to a service socket. Dial
// completes the setup exchange, Call sends a request and waits for its
// response, and Events carries what the daemon pushes in between.
// Manager dials one client per service on demand. AdminClient talks to
// the HTTP admin service.
package connection
