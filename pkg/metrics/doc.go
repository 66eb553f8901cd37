/*
Package metrics provides Prometheus metrics collection and exposition for
the replicated client.

Two kinds of metric live here. A handful of package-level gauges and
counters cover state that exists independently of any single client
call: the installed cluster view's number and transition state, the
communication monitor's alarm, and configuration reload outcomes. The
Collector then periodically mirrors every row of a stats.Engine (one
series per backend server, per operation, or per whatever index a
managed table was given) into the StatAccumulator* and StatCounterCount gauges,
so a new row that appears at runtime is scraped without a corresponding
metric having been declared for it ahead of time.

Metrics are served over HTTP via Handler for scraping by Prometheus.
HealthHandler, ReadyHandler, and LivenessHandler expose a small
component health registry for orchestrators that probe a long-running
process rather than scrape it.
*/
package metrics
