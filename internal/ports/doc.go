// Package ports defines the interfaces (ports) that connect the capture and
// echo cores to infrastructure adapters.
//
// Ports are the boundary between the application core and the outside
// world. They describe what the core needs from a serial device, an output
// file or a logger without saying how those needs are met.
//
// # Port Interfaces
//
//   - [SerialPort]: Reads raw chunks from a serial device
//   - [PortOpener]: Opens a [SerialPort] at a baud rate and read timeout
//   - [Sink]: Receives captured chunks
//   - [SinkOpener]: Creates a [Sink] for an output path
//   - [Logger]: Structured logging abstraction
//
// # Usage
//
// internal/capture and internal/echo depend only on these interfaces.
// internal/adapters implements them with tarm/serial, the file system and
// zerolog. Tests substitute scripted fakes.
package ports
