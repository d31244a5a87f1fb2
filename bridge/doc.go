// Package bridge implements the bridge registry: the component that
// accepts topic bridge requests, discovers the source domain's
// publishers, derives the destination endpoint's QoS profile from the
// discovered set, and keeps the mirrored endpoint pair reconciled as
// publishers come and go.
//
// Lifecycle per bridge: Requested -> Provisional (endpoint pair with the
// default profile, created immediately) -> Matched (profile equals the
// merge of the discovered publishers) -> Removed. Profile changes destroy
// and recreate the endpoint pair; an unchanged merge is a no-op.
//
// Basic usage:
//
//	reg := bridge.NewRegistry(rt)
//	id, err := reg.BridgeTopic(ctx, runtime.Topic{Name: "chatter", Type: "example/String"}, 1, 2)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer reg.RemoveBridge(id)
package bridge
