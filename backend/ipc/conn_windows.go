//go:build windows

package ipc

import (
	"context"
	"net"
	"os/user"
	"regexp"
	"strings"

	"github.com/Microsoft/go-winio"
)

var pipeSuffix string

func init() {
	if user, err := user.Current(); err == nil {
		pipeSuffix = regexp.MustCompile(`[^a-zA-Z0-9]+`).ReplaceAllString(user.Name, "")
	}
}

// SocketPath returns the named pipe path for the given name.
func SocketPath(name string) string {
	if strings.HasPrefix(name, `\\.\pipe\`) {
		return name
	}
	return `\\.\pipe\` + name + pipeSuffix
}

func DialContext(ctx context.Context, name string) (net.Conn, error) {
	return winio.DialPipeContext(ctx, SocketPath(name))
}

func Listen(name string) (net.Listener, error) {
	return winio.ListenPipe(SocketPath(name), nil)
}

func DestroyConn(string) error {
	// Windows named pipes automatically clean up
	return nil
}
