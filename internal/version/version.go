// Package version carries build information, set with ldflags:
//
//	go build -ldflags "-X github.com/rickgao/livefeed/internal/version.Version=1.4.0 \
//	                   -X github.com/rickgao/livefeed/internal/version.Commit=$(git rev-parse --short HEAD)" ./cmd/livefeed
package version

var (
	Version = "dev"
	Commit  = "unknown"
)

// UserAgent identifies livefeed on WebSocket handshakes and collector posts.
func UserAgent() string {
	return "livefeed/" + Version + " (" + Commit + ")"
}
