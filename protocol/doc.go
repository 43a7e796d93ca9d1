// Package protocol is the wire format of the stop-and-wait file transfer.
//
//  Client                                        |   Server
//  HELLO <segsize> <size> <name>        ---->
//                                       <----    ACK(1,0) | NACK(2,2)
//
// The server refuses a transfer whose segment size or announced size is
// above its limits.
//
//  SEGMENT <bytes>                      ---->
//                                       <----    ACK(1,0)    accepted
//                                       <----    NACK(2,2)   resend the same bytes
//  ...
//  SEGMENT[END] <bytes> 0x00            ---->
//                                       <----    ACK(1,0)
//
// Only one segment is in flight. The last segment carries the END flag and
// one trailing sentinel byte that is not part of the file.
//
// Every message is framed as
//
//	Length(4) | 'S' 'W' | Version(1) | Type(1) | Flags(1) | Payload
//
// where Length counts the bytes after itself.
package protocol
