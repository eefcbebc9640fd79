/*
Package charm wires the norris workload into the platform's lifecycle events.

A Charm owns three handlers, bound into an events.Dispatcher by Register:

  - norris-pebble-ready: reconcile the supervisor plan, then autostart
    enabled services so a restarted container comes back up.
  - config-changed: reconcile, then send the ingress hostname and port to
    the ingress provider whether or not the plan changed.
  - ingress-relation-joined / ingress-relation-changed: republish the full
    ingress config.

Unit state is loaded from the store before each handler, handed to it
explicitly, and saved afterwards. Status follows the outcome: Active on
success, Waiting while the supervisor is unreachable (the event is deferred),
Blocked with the cause on any other failure, and Maintenance while an
updated layer is being rolled out.
*/
package charm
