// Package arq implements stop-and-wait ARQ over an established duplex
// connection: a Sender that transmits one segment at a time and resends on
// NACK, and a Receiver that accepts or rejects each segment through a
// FaultInjector and reassembles what it accepts.
package arq
