// Package wire defines the CBOR payload structures exchanged during an
// ISO 18013-5 proximity presentation.
//
// All payloads are CBOR (RFC 8949). The device engagement uses integer keys
// per the standard; session establishment and session data use text keys.
// Payloads are read-only values once constructed: they are produced and
// consumed transiently by the orchestrator and crypto layers and are never
// stored inside a session except as derived key material.
//
// # Payload flow
//
//	Holder                                  Verifier
//	------                                  --------
//	DeviceEngagement  --(QR out-of-band)--> decode
//	                  <---(transport)-----  SessionEstablishment
//	                                          (encrypted DeviceRequest)
//	DeviceResponse    ----(transport)---->  validate
//	  (encrypted, in SessionData)
//
// SessionData also carries status codes for error reporting and clean
// session termination.
package wire
