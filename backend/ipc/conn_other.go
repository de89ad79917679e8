//go:build !windows

package ipc

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/user"
	"path"
	"runtime"
)

// socketDir is initialized based on platform conventions:
//   - macOS: ~/Library/Caches/localsonic (or /tmp as fallback)
//   - Linux/Unix: $XDG_RUNTIME_DIR (or /tmp as fallback)
//
// Sockets are named <name>.sock, or <name>-<uid>.sock in /tmp.
var socketDir, socketSuffix = "/tmp", ".sock"

func init() {
	if runtime.GOOS == "darwin" {
		if home, err := os.UserHomeDir(); err == nil {
			socketDir = path.Join(home, "Library", "Caches", "localsonic")
			return
		}
	} else if runtime := os.Getenv("XDG_RUNTIME_DIR"); runtime != "" {
		socketDir = runtime
		return
	}
	if user, err := user.Current(); err == nil {
		socketSuffix = fmt.Sprintf("-%s.sock", user.Uid)
	}
}

// SocketPath returns the path of the socket for the given name.
func SocketPath(name string) string {
	if path.IsAbs(name) {
		return name
	}
	return path.Join(socketDir, name+socketSuffix)
}

// DialContext establishes a connection to the named IPC socket.
// Returns an error if the socket doesn't exist or connection fails.
func DialContext(ctx context.Context, name string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "unix", SocketPath(name))
}

// Listen creates a Unix domain socket listener for the given name.
// A stale socket file left by a crashed process is replaced.
// The socket file should be cleaned up with DestroyConn when done.
func Listen(name string) (net.Listener, error) {
	p := SocketPath(name)
	if err := os.MkdirAll(path.Dir(p), 0o700); err != nil {
		return nil, err
	}
	l, err := net.Listen("unix", p)
	if err != nil {
		if c, dialErr := net.Dial("unix", p); dialErr == nil {
			c.Close()
			return nil, err // socket is live
		}
		os.Remove(p)
		return net.Listen("unix", p)
	}
	return l, nil
}

// DestroyConn removes the Unix socket file from the filesystem.
// Should be called during application shutdown.
func DestroyConn(name string) error {
	return os.Remove(SocketPath(name))
}
