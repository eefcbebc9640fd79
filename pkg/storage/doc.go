/*
Package storage persists operator state in a single BoltDB file.

Buckets:

	unit       the UnitState carried between events (single key)
	relations  relation data bags, keyed by relation name
	layers     layers held by the local supervisor, keyed by label
	processes  process state under the local supervisor, keyed by name

Values are JSON encoded. Lookups of missing keys return a not_found
DomainError, except the unit state, which starts out empty.
*/
package storage
