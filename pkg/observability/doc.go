/*
Package observability turns engine lifecycle events into Prometheus metrics
and structured log records.

Both are exposed as domain.LifecycleHooks and can be combined with Merge:

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	hooks := metrics.Hooks().Merge(observability.LogHooks(logger))
*/
package observability
