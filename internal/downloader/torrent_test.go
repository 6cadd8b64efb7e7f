package downloader

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/italolelis/filebot/internal/transfer"
)

func TestValidateTorrent(t *testing.T) {
	tests := []struct {
		name       string
		filename   string
		content    []byte
		wantReason string
	}{
		{"valid", "ubuntu.torrent", []byte("d4:infod4:name3:abcee"), ""},
		{"upper case extension", "UBUNTU.TORRENT", []byte("d4:infod4:name3:abcee"), ""},
		{"wrong extension", "ubuntu.iso", []byte("d4:infod4:name3:abcee"), "missing .torrent extension"},
		{"empty", "a.torrent", nil, "file is empty"},
		{"too large", "a.torrent", bytes.Repeat([]byte("a"), MaxTorrentSize+1), "exceeds"},
		{"not bencode", "a.torrent", []byte("<html>"), "invalid bencode structure"},
		{"list root", "a.torrent", []byte("l4:infoe"), "root must be a dictionary"},
		{"missing info", "a.torrent", []byte("d8:announce3:urle"), "missing required 'info'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTorrent(tt.filename, tt.content)
			if tt.wantReason == "" {
				require.NoError(t, err)

				return
			}

			var validationErr *transfer.ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Contains(t, validationErr.Reason, tt.wantReason)
		})
	}
}
