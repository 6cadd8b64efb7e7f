package aria2

import (
	"encoding/json"
	"strings"

	"github.com/italolelis/filebot/internal/transfer"
)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error,omitempty"`
}

// RPCError is an error object returned by the daemon.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Method  string `json:"-"`
}

func (e *RPCError) Error() string {
	return e.Message
}

// Is reports transfer.ErrNotActive for the messages aria2 uses when a removal
// targets a job that is no longer running. aria2 has no dedicated error code
// for this, so the match is on message text.
func (e *RPCError) Is(target error) bool {
	if target != transfer.ErrNotActive {
		return false
	}

	if strings.Contains(e.Message, "Active Download not found") {
		return true
	}

	return e.Method == "aria2.forceRemove" && strings.Contains(e.Message, "is not found")
}

type statusResponse struct {
	GID             string          `json:"gid"`
	Status          string          `json:"status"`
	TotalLength     string          `json:"totalLength"`
	CompletedLength string          `json:"completedLength"`
	DownloadSpeed   string          `json:"downloadSpeed"`
	ErrorCode       string          `json:"errorCode"`
	ErrorMessage    string          `json:"errorMessage"`
	Dir             string          `json:"dir"`
	InfoHash        string          `json:"infoHash"`
	BitTorrent      *btInfo         `json:"bittorrent"`
	Files           []fileEntry     `json:"files"`
	FollowedBy      json.RawMessage `json:"followedBy"`
}

type btInfo struct {
	Info struct {
		Name string `json:"name"`
	} `json:"info"`
}

type fileEntry struct {
	Index  string `json:"index"`
	Path   string `json:"path"`
	Length string `json:"length"`
}

type versionResponse struct {
	Version         string   `json:"version"`
	EnabledFeatures []string `json:"enabledFeatures"`
}

// statusKeys limits list responses to what a Job needs.
var statusKeys = []string{
	"gid", "status", "totalLength", "completedLength", "downloadSpeed",
	"errorCode", "errorMessage", "dir", "infoHash", "bittorrent", "files", "followedBy",
}
