// Package domain holds the value types and error vocabulary shared by the
// serial capture utility and the echo WebSocket service.
//
// Nothing in this package performs I/O. The capture loop and the echo
// handlers live in internal/capture and internal/echo; adapters for the
// serial device, the file system and logging live in internal/adapters.
package domain
