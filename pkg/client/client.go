package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"time"

	"github.com/clustercore/lifecyclectl/pkg/security"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// Client dispatches admin actions to a target node. Execute is
// fire-and-forget: it returns immediately and the result is delivered to
// onDone on its own goroutine, so DSLC and AAS never block their control
// loop waiting on a remote node.
type Client interface {
	Execute(ctx context.Context, action ActionType, req any, onDone func(resp any, err error))
	Close() error
}

// ObserveFunc is notified after every Execute call completes, letting
// callers record request metrics without this package depending on
// pkg/metrics directly.
type ObserveFunc func(action ActionType, ok bool, duration time.Duration)

// GRPCClient is the production Client, dialing a target node's admin
// endpoint over gRPC with the hand-rolled Control service and JSON codec.
type GRPCClient struct {
	conn    *grpc.ClientConn
	observe ObserveFunc
}

// SetObserver registers fn to be called after every Execute completes.
func (c *GRPCClient) SetObserver(fn ObserveFunc) {
	c.observe = fn
}

// NewClient dials addr and returns a ready-to-use Client. When certDir
// holds a previously issued certificate and the cluster CA certificate, the
// connection presents that certificate and verifies the server against the
// CA — full mTLS. Otherwise the connection is TLS-encrypted but does not
// verify the server, which is only safe for the bootstrap actions
// (ActionJoinCluster, ActionRequestCertificate) a node has no certificate
// to dial normally with yet.
func NewClient(addr, certDir string) (*GRPCClient, error) {
	tlsConfig, err := dialTLSConfig(certDir)
	if err != nil {
		return nil, err
	}

	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(credentials.NewTLS(tlsConfig)),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(jsonCodecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	return &GRPCClient{conn: conn}, nil
}

// dialTLSConfig builds the client-side TLS config for NewClient: mTLS when
// certDir has a full cert+CA pair, otherwise a CA-blind TLS config used
// only to reach bootstrap actions.
func dialTLSConfig(certDir string) (*tls.Config, error) {
	if certDir == "" || !security.CertExists(certDir) {
		return &tls.Config{InsecureSkipVerify: true}, nil
	}

	cert, err := security.LoadCertFromFile(certDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate: %w", err)
	}

	caCert, err := security.LoadCACertFromFile(certDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load CA certificate: %w", err)
	}

	pool := x509.NewCertPool()
	pool.AddCert(caCert)

	return &tls.Config{
		Certificates: []tls.Certificate{*cert},
		RootCAs:      pool,
	}, nil
}

// Close closes the underlying connection.
func (c *GRPCClient) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Execute marshals req, dispatches it as action, and reports the result to
// onDone once the remote node replies.
func (c *GRPCClient) Execute(ctx context.Context, action ActionType, req any, onDone func(resp any, err error)) {
	go func() {
		start := time.Now()

		payload, err := json.Marshal(req)
		if err != nil {
			onDone(nil, fmt.Errorf("failed to marshal request: %w", err))
			return
		}

		in := &Envelope{
			Action:    action,
			Payload:   payload,
			Timestamp: timestamppb.Now(),
		}
		out := new(Envelope)

		callCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		err = c.conn.Invoke(callCtx, "/"+controlServiceName+"/Execute", in, out)
		ok := err == nil && out.Error == ""

		if c.observe != nil {
			c.observe(action, ok, time.Since(start))
		}

		if err != nil {
			onDone(nil, err)
			return
		}
		if out.Error != "" {
			onDone(nil, fmt.Errorf("%s", out.Error))
			return
		}

		onDone(out.Payload, nil)
	}()
}

// JoinCluster sends an ActionJoinCluster request to the leader at addr and
// waits for its acknowledgment, then persists the certificate the leader
// issued for this node to certDir. Unlike Execute, this blocks: it is only
// used during manager startup, before any control loop is running, and
// before this node has a certificate of its own — so it dials addr without
// verifying the server.
func JoinCluster(addr, nodeID, bindAddr, token, certDir string) error {
	c, err := NewClient(addr, "")
	if err != nil {
		return err
	}
	defer c.Close()

	done := make(chan error, 1)
	c.Execute(context.Background(), ActionJoinCluster, &JoinClusterRequest{
		NodeID:   nodeID,
		BindAddr: bindAddr,
		Token:    token,
	}, func(resp any, err error) {
		if err != nil {
			done <- err
			return
		}
		var jr JoinClusterResponse
		raw, _ := resp.(json.RawMessage)
		if uerr := json.Unmarshal(raw, &jr); uerr != nil {
			done <- uerr
			return
		}
		if !jr.Acknowledged {
			done <- fmt.Errorf("join request was not acknowledged")
			return
		}
		if err := security.SavePEMCertToFile(jr.Certificate, jr.PrivateKey, certDir); err != nil {
			done <- fmt.Errorf("failed to save issued certificate: %w", err)
			return
		}
		if err := security.SavePEMCACertToFile(jr.CACert, certDir); err != nil {
			done <- fmt.Errorf("failed to save CA certificate: %w", err)
			return
		}
		done <- nil
	})

	return <-done
}

// RequestCertificate asks the manager at addr to issue a certificate for
// identity, gated on token, and persists the result to certDir. Used by CLI
// clients bootstrapping their first certificate.
func RequestCertificate(addr, identity, token, certDir string) error {
	c, err := NewClient(addr, "")
	if err != nil {
		return err
	}
	defer c.Close()

	done := make(chan error, 1)
	c.Execute(context.Background(), ActionRequestCertificate, &RequestCertificateRequest{
		Identity: identity,
		Token:    token,
	}, func(resp any, err error) {
		if err != nil {
			done <- err
			return
		}
		var cr RequestCertificateResponse
		raw, _ := resp.(json.RawMessage)
		if uerr := json.Unmarshal(raw, &cr); uerr != nil {
			done <- uerr
			return
		}
		if err := security.SavePEMCertToFile(cr.Certificate, cr.PrivateKey, certDir); err != nil {
			done <- fmt.Errorf("failed to save issued certificate: %w", err)
			return
		}
		if err := security.SavePEMCACertToFile(cr.CACert, certDir); err != nil {
			done <- fmt.Errorf("failed to save CA certificate: %w", err)
			return
		}
		done <- nil
	})

	return <-done
}
