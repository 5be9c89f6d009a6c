/*
Package client implements the RPC transport DSLC and AAS use to dispatch
actions to the nodes that actually execute them — rollover, delete, settings
update, force-merge, and allocation changes — plus the manager-to-manager
JoinCluster call used during cluster bootstrap.

There is deliberately one RPC, Execute, carrying an Envelope whose Action
field selects the request/response shape out of this package's typed
structs (RolloverRequest, ForceMergeRequest, ...). This stands in for the
protoc-generated service a real deployment would define from a .proto file:
ControlServiceDesc hand-rolls the grpc.ServiceDesc protoc would normally
produce, and a registered JSON encoding.Codec replaces the protobuf wire
codec, so no code generation step is required to exercise the same
google.golang.org/grpc server and client paths a generated stub would use.

Every connection is TLS; whether it is also mutually authenticated depends
on certDir: a node dials with the certificate pkg/security issued it and
verifies the server against the cluster CA, while a node with no
certificate yet (requesting its first one, or joining) dials without
verifying the server, reaching only the bootstrap actions the server
exempts from requiring a client certificate of its own.

Execute is asynchronous by design — DSLC issues many deduplicated actions
without waiting on any one of them, and AAS only blocks at the edges of its
own tick:

	c, _ := client.NewClient("node-1:9100", certDir)
	c.Execute(ctx, client.ActionRollover, &client.RolloverRequest{
		StreamName:   "logs-app-default",
		NewIndexName: "logs-app-default-000002",
	}, func(resp any, err error) {
		if err != nil {
			log.Error("rollover failed: " + err.Error())
			return
		}
		// resp is the response Envelope's Payload, still JSON-encoded.
	})
*/
package client
