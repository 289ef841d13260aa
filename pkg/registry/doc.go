/*
Package registry implements the Registry & Reconciler (C10): the
immutable set of configured packages plus the background loop that,
per package and on a fixed interval, fetches the repository mirror,
compares the newest tag to the installed version, and publishes an
upgrade-available event when the tag is newer. When the package's
AutoApply flag is set, the tick then runs Engine.Update itself and
records the result, the same two calls an on-demand TriggerUpdate makes
on its own goroutine.

A package with an update already in flight is skipped on the next
tick rather than queued, mirroring the engine's own per-package
serialization one level up.

The Store type is a small bbolt-backed cache of RegistryEntry records,
refreshed after every tick and after every engine result, so reads
answering the Control API never need a live mirror fetch.
*/
package registry
