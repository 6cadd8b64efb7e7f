package downloader

import (
	"github.com/anacrolix/torrent/metainfo"
)

// MagnetInfo is what can be learned from a magnet link without the engine.
type MagnetInfo struct {
	InfoHash    string
	DisplayName string
}

// Label returns a short human name for the magnet.
func (i MagnetInfo) Label() string {
	if i.DisplayName != "" {
		return i.DisplayName
	}

	if i.InfoHash != "" {
		return i.InfoHash
	}

	return "magnet"
}

// InspectMagnet parses link for display purposes. A link the parser rejects
// still yields a usable zero MagnetInfo; the engine has the final say.
func InspectMagnet(link string) MagnetInfo {
	m, err := metainfo.ParseMagnetUri(link)
	if err != nil {
		return MagnetInfo{}
	}

	return MagnetInfo{
		InfoHash:    m.InfoHash.HexString(),
		DisplayName: m.DisplayName,
	}
}
