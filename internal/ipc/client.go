package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func call[Resp any](c *Client, method string, req any) (*Resp, error) {
	var resp Resp
	if err := c.client.Call(ServiceName+"."+method, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	return call[StatusResponse](c, "Status", StatusRequest{})
}

// Swap requests promotion of the up-next item.
func (c *Client) Swap() (*SwapResponse, error) {
	return call[SwapResponse](c, "Swap", SwapRequest{})
}

// Resume clears a rotation halt.
func (c *Client) Resume() (*ResumeResponse, error) {
	return call[ResumeResponse](c, "Resume", ResumeRequest{})
}

// Reclaim evicts retained items until the budget is satisfied.
func (c *Client) Reclaim() (*ReclaimResponse, error) {
	return call[ReclaimResponse](c, "Reclaim", ReclaimRequest{})
}

// Evict removes one retained item.
func (c *Client) Evict(identifier string) (*EvictResponse, error) {
	return call[EvictResponse](c, "Evict", EvictRequest{Identifier: identifier})
}

// StoreList returns held items in eviction order.
func (c *Client) StoreList() (*StoreListResponse, error) {
	return call[StoreListResponse](c, "StoreList", StoreListRequest{})
}

// StoreStats measures the content store.
func (c *Client) StoreStats() (*StoreStatsResponse, error) {
	return call[StoreStatsResponse](c, "StoreStats", StoreStatsRequest{})
}

// Reconcile drops index rows whose files vanished.
func (c *Client) Reconcile() (*ReconcileResponse, error) {
	return call[ReconcileResponse](c, "Reconcile", ReconcileRequest{})
}
