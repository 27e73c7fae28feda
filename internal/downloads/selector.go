package downloads

import (
	"strings"

	"github.com/bindery/bindery/internal/downloader/types"
)

// ClientSelector picks a backend for a release. Implementations are pure.
type ClientSelector interface {
	Select(release *Release, clients []*DownloadClient) *DownloadClient
}

// FirstEnabledSelector returns the first enabled client.
type FirstEnabledSelector struct{}

func (FirstEnabledSelector) Select(_ *Release, clients []*DownloadClient) *DownloadClient {
	for _, c := range clients {
		if c.Enabled {
			return c
		}
	}
	return nil
}

// ProtocolSelector matches the release's inferred protocol against each
// client's capabilities. It fails open to the first enabled client when the
// protocol cannot be inferred or no client supports it.
type ProtocolSelector struct{}

func (ProtocolSelector) Select(release *Release, clients []*DownloadClient) *DownloadClient {
	first := FirstEnabledSelector{}.Select(release, clients)
	if first == nil {
		return nil
	}

	protocol := InferProtocol(release)
	if protocol == types.ProtocolUnknown {
		return first
	}

	for _, c := range clients {
		if c.Enabled && c.Supports(protocol) {
			return c
		}
	}
	return first
}

// InferProtocol guesses the protocol of a release from its URL and swarm
// fields. Rules are evaluated in order; the first that applies wins.
func InferProtocol(release *Release) types.Protocol {
	if release == nil {
		return types.ProtocolUnknown
	}
	u := strings.ToLower(strings.TrimSpace(release.DownloadURL))

	switch {
	case strings.HasPrefix(u, "magnet:"):
		return types.ProtocolTorrent
	case strings.Contains(u, ".nzb") && !strings.HasSuffix(u, ".nzb"):
		return types.ProtocolUsenet
	case release.Seeders != nil || release.Leechers != nil:
		return types.ProtocolTorrent
	case strings.HasSuffix(u, ".torrent"), strings.HasSuffix(u, ".magnet"):
		return types.ProtocolTorrent
	case strings.HasSuffix(u, ".nzb"):
		return types.ProtocolUsenet
	case strings.HasPrefix(u, "http://"), strings.HasPrefix(u, "https://"):
		return types.ProtocolHTTP
	default:
		return types.ProtocolUnknown
	}
}
