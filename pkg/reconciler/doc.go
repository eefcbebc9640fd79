/*
Package reconciler converges the process supervisor onto a desired plan.

One reconciliation fetches the plan the supervisor currently runs, compares
its services with the desired plan, and when they differ pushes the desired
definition as a combined layer and restarts each service. Matching plans
produce no calls beyond the fetch, so repeated events with the same config
never restart the workload.

	desired ──┐
	          ├─► equal? ──yes──► Active
	current ──┘      │
	                 no
	                 ▼
	        Apply ─► Stop (if running) ─► Start ─► Active

Failures are typed: an unreachable supervisor yields a not_ready error and
any rejected apply or lifecycle call yields apply_failed. Nothing is retried
here; the next event triggers a fresh attempt.

The pure Reconcile function carries the algorithm. Reconciler wraps it with
structured logging, prometheus counters and an OpenTelemetry span.
*/
package reconciler
