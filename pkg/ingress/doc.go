// Package ingress implements the requiring side of the ingress relation.
//
// The Requirer owns the hostname, service name and port the operator wants
// exposed and writes them into the relation data bag once an ingress
// provider has joined. Updates made before that are kept and published on
// join. Routing itself is the provider's job.
package ingress
