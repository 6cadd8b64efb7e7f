package aria2

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/italolelis/filebot/internal/logctx"
	"github.com/italolelis/filebot/internal/transfer"
)

const listPageSize = 1000

// Client talks to an aria2 daemon over its JSON-RPC HTTP endpoint.
type Client struct {
	rpcURL string
	secret string
	http   *resty.Client
	seq    atomic.Uint64
}

var _ transfer.Engine = (*Client)(nil)

func NewClient(rpcURL, secret string, timeout time.Duration) *Client {
	return &Client{
		rpcURL: rpcURL,
		secret: secret,
		http: resty.New().
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json"),
	}
}

func (c *Client) AddMagnet(ctx context.Context, link string, opts transfer.AddOptions) (string, error) {
	var gid string
	if err := c.call(ctx, "aria2.addUri", &gid, []string{link}, addOptions(opts)); err != nil {
		return "", err
	}

	return gid, nil
}

func (c *Client) AddTorrent(ctx context.Context, content []byte, opts transfer.AddOptions) (string, error) {
	var gid string

	encoded := base64.StdEncoding.EncodeToString(content)
	if err := c.call(ctx, "aria2.addTorrent", &gid, encoded, []string{}, addOptions(opts)); err != nil {
		return "", err
	}

	return gid, nil
}

func (c *Client) GetJob(ctx context.Context, id string) (*transfer.Job, error) {
	var status statusResponse
	if err := c.call(ctx, "aria2.tellStatus", &status, id, statusKeys); err != nil {
		return nil, err
	}

	return toJob(&status), nil
}

// ListJobs returns active, waiting and stopped jobs in that order.
func (c *Client) ListJobs(ctx context.Context) ([]*transfer.Job, error) {
	var active, waiting, stopped []statusResponse

	if err := c.call(ctx, "aria2.tellActive", &active, statusKeys); err != nil {
		return nil, err
	}

	if err := c.call(ctx, "aria2.tellWaiting", &waiting, 0, listPageSize, statusKeys); err != nil {
		return nil, err
	}

	if err := c.call(ctx, "aria2.tellStopped", &stopped, 0, listPageSize, statusKeys); err != nil {
		return nil, err
	}

	jobs := make([]*transfer.Job, 0, len(active)+len(waiting)+len(stopped))
	for _, group := range [][]statusResponse{active, waiting, stopped} {
		for i := range group {
			jobs = append(jobs, toJob(&group[i]))
		}
	}

	return jobs, nil
}

func (c *Client) PauseJob(ctx context.Context, id string) error {
	return c.call(ctx, "aria2.pause", nil, id)
}

func (c *Client) ForceRemove(ctx context.Context, id string) error {
	return c.call(ctx, "aria2.forceRemove", nil, id)
}

func (c *Client) RemoveResult(ctx context.Context, id string) error {
	return c.call(ctx, "aria2.removeDownloadResult", nil, id)
}

func (c *Client) Version(ctx context.Context) (string, error) {
	var v versionResponse
	if err := c.call(ctx, "aria2.getVersion", &v); err != nil {
		return "", err
	}

	return v.Version, nil
}

func (c *Client) call(ctx context.Context, method string, result any, params ...any) error {
	logger := logctx.LoggerFromContext(ctx).With("method", method)

	if c.secret != "" {
		params = append([]any{"token:" + c.secret}, params...)
	}

	if params == nil {
		params = []any{}
	}

	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      strconv.FormatUint(c.seq.Add(1), 10),
		Method:  method,
		Params:  params,
	}

	logger.DebugContext(ctx, "sending rpc request", "id", req.ID)

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		Post(c.rpcURL)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", method, err)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(resp.Body(), &rpcResp); err != nil {
		if resp.IsError() {
			return fmt.Errorf("%s request failed with status %d", method, resp.StatusCode())
		}

		return fmt.Errorf("failed to decode %s response: %w", method, err)
	}

	if rpcResp.Error != nil {
		rpcResp.Error.Method = method
		logger.DebugContext(ctx, "rpc error", "code", rpcResp.Error.Code, "err", rpcResp.Error.Message)

		return rpcResp.Error
	}

	if resp.IsError() {
		return fmt.Errorf("%s request failed with status %d", method, resp.StatusCode())
	}

	if result == nil {
		return nil
	}

	if err := json.Unmarshal(rpcResp.Result, result); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}

	return nil
}

func addOptions(opts transfer.AddOptions) map[string]string {
	out := map[string]string{}
	if opts.Dir != "" {
		out["dir"] = opts.Dir
	}

	return out
}

func toJob(s *statusResponse) *transfer.Job {
	return &transfer.Job{
		ID:              s.GID,
		Name:            jobName(s),
		Status:          toStatus(s.Status),
		Dir:             s.Dir,
		InfoHash:        s.InfoHash,
		TotalLength:     parseInt(s.TotalLength),
		CompletedLength: parseInt(s.CompletedLength),
		DownloadSpeed:   parseInt(s.DownloadSpeed),
		ErrorCode:       s.ErrorCode,
		ErrorMessage:    s.ErrorMessage,
		FollowedBy:      transfer.DecodeSuccessor(s.FollowedBy),
	}
}

func toStatus(s string) transfer.Status {
	if s == "waiting" {
		return transfer.StatusQueued
	}

	return transfer.Status(s)
}

func jobName(s *statusResponse) string {
	if s.BitTorrent != nil && s.BitTorrent.Info.Name != "" {
		return s.BitTorrent.Info.Name
	}

	if len(s.Files) > 0 && s.Files[0].Path != "" && !strings.HasPrefix(s.Files[0].Path, "[METADATA]") {
		return filepath.Base(s.Files[0].Path)
	}

	if s.InfoHash != "" {
		return "[METADATA] " + s.InfoHash
	}

	return "unknown"
}

func parseInt(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}

	return n
}
