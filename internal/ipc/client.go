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
		return c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Client) call(method string, req, resp any) error {
	return decodeError(c.client.Call(ServiceName+"."+method, req, resp))
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.call("Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop asks the daemon to shut down.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.call("Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Add submits a source for retrieval and delivery.
func (c *Client) Add(source, quality string) (*Task, error) {
	var resp TaskResponse
	if err := c.call("Add", AddRequest{Source: source, Quality: quality}, &resp); err != nil {
		return nil, err
	}
	return &resp.Task, nil
}

// Analyze fetches metadata and registers a task awaiting a quality choice.
func (c *Client) Analyze(source string) (*AnalyzeResponse, error) {
	var resp AnalyzeResponse
	if err := c.call("Analyze", AnalyzeRequest{Source: source}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Start launches an analyzed task.
func (c *Client) Start(id, quality string) (*Task, error) {
	var resp TaskResponse
	if err := c.call("Start", StartRequest{ID: id, Quality: quality}, &resp); err != nil {
		return nil, err
	}
	return &resp.Task, nil
}

// Show returns a single task.
func (c *Client) Show(id string) (*Task, error) {
	return c.taskCall("Show", id)
}

// Cancel requests cancellation of an active task.
func (c *Client) Cancel(id string) (*Task, error) {
	return c.taskCall("Cancel", id)
}

// Retry re-arms a failed task.
func (c *Client) Retry(id string) (*Task, error) {
	return c.taskCall("Retry", id)
}

// Upload starts delivering a downloaded task.
func (c *Client) Upload(id string) (*Task, error) {
	return c.taskCall("Upload", id)
}

// Delete removes a task and its artifact.
func (c *Client) Delete(id string) (*Task, error) {
	return c.taskCall("Delete", id)
}

func (c *Client) taskCall(method, id string) (*Task, error) {
	var resp TaskResponse
	if err := c.call(method, TaskRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp.Task, nil
}

// List returns tasks, optionally filtered.
func (c *Client) List(req ListRequest) ([]Task, error) {
	var resp ListResponse
	if err := c.call("List", req, &resp); err != nil {
		return nil, err
	}
	return resp.Tasks, nil
}

// Clear drops finished and failed task records.
func (c *Client) Clear() (int, error) {
	var resp CountResponse
	if err := c.call("Clear", ClearRequest{}, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// Files lists the work directory.
func (c *Client) Files() ([]File, error) {
	var resp FilesResponse
	if err := c.call("Files", FilesRequest{}, &resp); err != nil {
		return nil, err
	}
	return resp.Files, nil
}

// FileUpload registers a work-dir file and uploads it.
func (c *Client) FileUpload(ref string) (*Task, error) {
	var resp TaskResponse
	if err := c.call("FileUpload", FileRequest{Ref: ref}, &resp); err != nil {
		return nil, err
	}
	return &resp.Task, nil
}

// FileDelete removes a work-dir file.
func (c *Client) FileDelete(ref string) (string, error) {
	var resp FileDeleteResponse
	if err := c.call("FileDelete", FileRequest{Ref: ref}, &resp); err != nil {
		return "", err
	}
	return resp.Name, nil
}

// CleanArchive empties the archive directory.
func (c *Client) CleanArchive() (int, error) {
	var resp CountResponse
	if err := c.call("CleanArchive", CleanArchiveRequest{}, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// Settings returns the session settings.
func (c *Client) Settings() (*SettingsResponse, error) {
	var resp SettingsResponse
	if err := c.call("Settings", SettingsRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SetQuality changes the default quality.
func (c *Client) SetQuality(quality string) (*SettingsResponse, error) {
	var resp SettingsResponse
	if err := c.call("SetQuality", SetQualityRequest{Quality: quality}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SetLanguage changes the session language. detect enables loose locale
// matching.
func (c *Client) SetLanguage(language string, detect bool) (*SettingsResponse, error) {
	var resp SettingsResponse
	if err := c.call("SetLanguage", SetLanguageRequest{Language: language, Detect: detect}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	var resp TestNotificationResponse
	if err := c.call("TestNotification", TestNotificationRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
