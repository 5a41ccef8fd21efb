// Package internaldefs holds the metric names, help strings, and histogram bounds
// shared by the exporters.
//
// Both the Prometheus and OTel exporters read their definitions from here so that the
// two emit identical series. It performs no I/O and imports no exporter package.
package internaldefs
