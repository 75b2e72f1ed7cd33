// Package observability sets up logging and Prometheus metrics for matrixctl.
package observability
