// Package http exposes the router over HTTP.
//
//	POST /tasks          route a task asynchronously; 202 with its run ID
//	GET  /tasks/{id}     the run's checkpoint
//	GET  /workers        registered workers
//	GET  /graph?name=    Mermaid diagram of the tot or router machine
//	GET  /events?run_id= server-sent lifecycle events
//	GET  /health
//	GET  /openapi.yaml   the embedded contract (api/openapi.yaml)
//	GET  /swagger        Swagger UI
//	GET  /metrics        Prometheus exposition
package http
