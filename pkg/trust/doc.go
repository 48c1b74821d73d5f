// Package trust manages the verifier's trust anchors (IACA root
// certificates) and validates issuer certificate chains against them.
//
// A credential document carries the issuer's DER certificate chain, leaf
// first. The verifier accepts the document only if the chain verifies to
// one of its configured anchors and the issuer signature and item digests
// check out (pkg/sessioncrypto). Any validation failure is fatal to the
// session; there is no partial trust.
//
// Anchors are held in a Store: in memory, or loaded from a YAML file
// listing PEM-encoded certificates for deployment.
package trust
