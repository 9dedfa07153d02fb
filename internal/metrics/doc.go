// Package metrics holds the Prometheus collectors for vito-gateway.
//
// All recording methods accept a nil *Metrics, so components and tests can
// run with metrics disabled.
package metrics
