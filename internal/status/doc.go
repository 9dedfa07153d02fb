// ABOUTME: Package status documentation
// ABOUTME: Lists the operator endpoints

// Package status serves operator endpoints over HTTP:
//
//   - GET /health - liveness
//   - GET /health/ready - 503 until the chat frontend is connected
//   - GET /status - in-flight tasks and admission state as JSON
//   - GET /metrics - Prometheus exposition (path configurable)
package status
