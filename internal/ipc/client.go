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

func (c *Client) call(method string, req, resp any) error {
	return c.client.Call(ServiceName+"."+method, req, resp)
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.call("Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop asks the daemon process to shut down.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.call("Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Transcribe queues an episode for transcription.
func (c *Client) Transcribe(episodeID int64) (*EnqueueResponse, error) {
	var resp EnqueueResponse
	if err := c.call("Transcribe", EpisodeRequest{EpisodeID: episodeID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TranscribeAll queues every episode that is ready for transcription.
func (c *Client) TranscribeAll() (*BatchResponse, error) {
	var resp BatchResponse
	if err := c.call("TranscribeAll", BatchRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CancelTranscription cancels the running transcription job.
func (c *Client) CancelTranscription() (*CancelResponse, error) {
	var resp CancelResponse
	if err := c.call("CancelTranscription", CancelRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Diarize queues an episode for diarization.
func (c *Client) Diarize(episodeID int64) (*EnqueueResponse, error) {
	var resp EnqueueResponse
	if err := c.call("Diarize", EpisodeRequest{EpisodeID: episodeID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DiarizeAll queues every transcribed episode for diarization.
func (c *Client) DiarizeAll() (*BatchResponse, error) {
	var resp BatchResponse
	if err := c.call("DiarizeAll", BatchRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CancelDiarization cancels the running diarization job.
func (c *Client) CancelDiarization() (*CancelResponse, error) {
	var resp CancelResponse
	if err := c.call("CancelDiarization", CancelRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueStatus returns both stage queue snapshots.
func (c *Client) QueueStatus() (*QueueStatusResponse, error) {
	var resp QueueStatusResponse
	if err := c.call("QueueStatus", QueueStatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Episodes lists registered episodes.
func (c *Client) Episodes(limit int) (*EpisodesResponse, error) {
	var resp EpisodesResponse
	if err := c.call("Episodes", EpisodesRequest{Limit: limit}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AddEpisode registers an episode.
func (c *Client) AddEpisode(req AddEpisodeRequest) (*AddEpisodeResponse, error) {
	var resp AddEpisodeResponse
	if err := c.call("AddEpisode", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Transcript fetches an episode's stored transcript.
func (c *Client) Transcript(episodeID int64) (*TranscriptResponse, error) {
	var resp TranscriptResponse
	if err := c.call("Transcript", EpisodeRequest{EpisodeID: episodeID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Segments fetches an episode's speaker segments.
func (c *Client) Segments(episodeID int64) (*SegmentsResponse, error) {
	var resp SegmentsResponse
	if err := c.call("Segments", EpisodeRequest{EpisodeID: episodeID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Models reports model availability.
func (c *Client) Models() (*ModelsResponse, error) {
	var resp ModelsResponse
	if err := c.call("Models", ModelsRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Events polls the event stream from the given cursor.
func (c *Client) Events(req EventsRequest) (*EventsResponse, error) {
	var resp EventsResponse
	if err := c.call("Events", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Language reads the transcription language, or sets it when value is
// non-empty.
func (c *Client) Language(value string) (*LanguageResponse, error) {
	var resp LanguageResponse
	if err := c.call("Language", LanguageRequest{Value: value}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
