/*
Package metrics defines the operator's Prometheus metrics and health report.

All collectors are registered with the default registry at init and served
by Handler. Counters are incremented inline by the reconciler, the dispatcher
and the ingress requirer; gauges describing the unit and its supervised
services are refreshed by a Collector on an interval.

	norris_reconciliations_total{outcome}   noop | applied | not_ready | apply_failed
	norris_reconciliation_duration_seconds
	norris_layer_applies_total{service}
	norris_service_starts_total{service}
	norris_service_stops_total{service}
	norris_ingress_updates_total{result}
	norris_events_dispatched_total{event,result}
	norris_unit_status{status}
	norris_unit_restarts
	norris_service_running{service}
	norris_supervisor_reachable

HealthChecker aggregates named component health for the /health and /ready
endpoints. Readiness requires every critical component to be healthy.
*/
package metrics
