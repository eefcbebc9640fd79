/*
Package api serves the operator agent's HTTP endpoints.

	GET  /health              liveness, from metrics.HealthChecker
	GET  /ready               readiness; requires every critical component
	GET  /metrics             Prometheus metrics
	GET  /v1/status           persisted unit state as JSON
	POST /v1/events/{kind}    dispatch one lifecycle event

The event endpoint answers with a client.EventResult. Status codes follow
the dispatch outcome: 200 for handled or ignored events, 202 for an event
deferred until the workload is reachable, 409 for a failed handler.
*/
package api
