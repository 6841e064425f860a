// Package middleware provides HTTP middleware for the gallery server.
//
// It includes:
//   - Request logging in W3C Extended Log Format
//   - Prometheus request metrics with bounded path cardinality
//   - Response compression for text responses, with media and
//     partial-content responses always passed through untouched
package middleware
