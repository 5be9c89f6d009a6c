// Package security implements the cluster's certificate authority and the
// encryption of its root private key at rest.
//
// One manager node mints the root CA when it bootstraps the cluster
// (CertAuthority.Initialize, then SaveToStore) and reloads it from its own
// store with LoadFromStore on a later bootstrap. The CA key is kept only in
// that node's local store, so that node alone signs certificates — for a
// joining manager or a CLI client requesting one with a join token — with
// IssueCertificate. The control-plane gRPC listener always terminates TLS
// using a certificate this CA issued; whether the caller must also present
// one is enforced above the transport, in pkg/manager's RPC dispatch, so
// that the bootstrap actions (joining the cluster, requesting a first
// certificate) can still reach an otherwise cert-gated server.
package security
