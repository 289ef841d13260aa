/*
Package metrics implements the ambient observability surface (§6.2):
four Prometheus series exposed on the Control API's /metrics endpoint.

	autoupdater_packages_total{status}             gauge, snapshot of the registry cache
	autoupdater_updates_total{package,outcome}      counter, one per finished Engine.Update
	autoupdater_update_duration_seconds{package}    histogram, wall time of a finished update
	autoupdater_recovery_total{package}             counter, incremented on backup restore

Collector ticker-polls the registry for the gauge and subscribes to the
event broker for the rest, pairing each update.started event with the
update.finished event that eventually follows it to derive a duration.
*/
package metrics
