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

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("Podmill.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop asks the daemon process to shut down.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.client.Call("Podmill.Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// JobsList returns tracked jobs, optionally only active ones.
func (c *Client) JobsList(active bool) (*JobsListResponse, error) {
	var resp JobsListResponse
	if err := c.client.Call("Podmill.JobsList", JobsListRequest{Active: active}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// JobGet returns details for a single job.
func (c *Client) JobGet(id string) (*JobGetResponse, error) {
	var resp JobGetResponse
	if err := c.client.Call("Podmill.JobGet", JobGetRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// JobCancel cancels a job by ID.
func (c *Client) JobCancel(id string) (*JobCancelResponse, error) {
	var resp JobCancelResponse
	if err := c.client.Call("Podmill.JobCancel", JobCancelRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// JobsCleanup evicts jobs past the retention window.
func (c *Client) JobsCleanup() (*JobsCleanupResponse, error) {
	var resp JobsCleanupResponse
	if err := c.client.Call("Podmill.JobsCleanup", JobsCleanupRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueStats returns the deferred-request backlog per priority.
func (c *Client) QueueStats() (*QueueStatsResponse, error) {
	var resp QueueStatsResponse
	if err := c.client.Call("Podmill.QueueStats", QueueStatsRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueDrain removes queued requests, highest priority first.
func (c *Client) QueueDrain(max int) (*QueueDrainResponse, error) {
	var resp QueueDrainResponse
	if err := c.client.Call("Podmill.QueueDrain", QueueDrainRequest{Max: max}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	var resp TestNotificationResponse
	if err := c.client.Call("Podmill.TestNotification", TestNotificationRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
