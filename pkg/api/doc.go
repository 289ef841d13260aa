/*
Package api implements the Control API (C11): the JSON-over-HTTP surface
through which an operator, a script, or the bundled CLI lists configured
packages, checks whether an upgrade is available, and triggers an update.

	GET  /packages          -> cached package list from the registry
	GET  /upgrades/{name}   -> current vs. newest-available version for one package
	POST /update/{name}     -> starts an update, returns immediately
	POST /update-all        -> starts an update for every package not already busy
	GET  /health, /ready    -> liveness/readiness probes
	GET  /metrics           -> Prometheus exposition

Every write-shaped endpoint (/update/{name}, /update-all) only ever
*starts* work: Server never blocks a request on an Engine.Update
completing. The terminal result reaches callers through the event broker
pkg/registry already publishes to, and through the registry cache that
the next GET /packages reflects.

Server deliberately does not reach for gRPC the way the teacher's cluster
API does — see DESIGN.md for why a single-process, single-host control
surface doesn't need what mTLS+protobuf buys a multi-node cluster.
*/
package api
