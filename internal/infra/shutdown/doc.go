// Package shutdown coordinates daemon termination.
//
// SIGINT and SIGTERM, or cancellation of the context passed to Wait, run
// the registered hooks in reverse registration order under one deadline.
// SIGHUP runs the reload callbacks and keeps the daemon running.
//
// Usage:
//
//	h := shutdown.NewHandler(10*time.Second, logger)
//	h.OnShutdown("http", srv.Shutdown)
//	h.OnReload(reloadConfig)
//	err := h.Wait(ctx)
package shutdown
