package downloader

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/zeebo/bencode"

	"github.com/italolelis/filebot/internal/transfer"
)

// MaxTorrentSize bounds .torrent documents accepted from chat.
const MaxTorrentSize = 10 << 20

// ValidateTorrent checks that content looks like a torrent metainfo
// document before it is sent to the engine.
func ValidateTorrent(filename string, content []byte) error {
	if !strings.EqualFold(filepath.Ext(filename), ".torrent") {
		return &transfer.ValidationError{Input: filename, Reason: "missing .torrent extension"}
	}

	if len(content) == 0 {
		return &transfer.ValidationError{Input: filename, Reason: "file is empty"}
	}

	if len(content) > MaxTorrentSize {
		return &transfer.ValidationError{
			Input:  filename,
			Reason: fmt.Sprintf("file exceeds %d bytes", MaxTorrentSize),
		}
	}

	var torrentData interface{}
	if err := bencode.DecodeBytes(content, &torrentData); err != nil {
		return &transfer.ValidationError{Input: filename, Reason: fmt.Sprintf("invalid bencode structure: %v", err)}
	}

	dict, ok := torrentData.(map[string]interface{})
	if !ok {
		return &transfer.ValidationError{Input: filename, Reason: "bencode root must be a dictionary"}
	}

	if _, hasInfo := dict["info"]; !hasInfo {
		return &transfer.ValidationError{Input: filename, Reason: "bencode missing required 'info' dictionary"}
	}

	return nil
}
