package server

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"

	"github.com/greymass/ramindex/libraries/encoding"
	"github.com/greymass/ramindex/libraries/enforce"
)

// Listen opens a unix socket when the address ends in ".sock", TCP otherwise.
func Listen(socket string) (net.Listener, error) {
	if strings.HasSuffix(socket, ".sock") {
		os.Remove(socket)
		unixListener, err := net.Listen("unix", socket)
		if err != nil {
			return nil, fmt.Errorf("listen failure (unix socket) %s: %w", socket, err)
		}
		if err := os.Chmod(socket, 0777); err != nil {
			unixListener.Close()
			return nil, err
		}
		return unixListener, nil
	}
	tcpListener, err := net.Listen("tcp", socket)
	if err != nil {
		return nil, fmt.Errorf("listen failure (tcp) %s: %w", socket, err)
	}
	return tcpListener, nil
}

func SocketListen(socket string) net.Listener {
	l, err := Listen(socket)
	enforce.ENFORCE(err)
	return l
}

// GetRequestParams reads query parameters, falling back to a JSON object body.
// An empty body yields an empty map.
func GetRequestParams(r *http.Request) (map[string]interface{}, error) {
	ret := make(map[string]interface{})
	query := r.URL.Query()
	for k, values := range query {
		if len(values) == 1 {
			ret[k] = values[0]
			continue
		}
		assn := make([]interface{}, len(values))
		for i, v := range values {
			assn[i] = v
		}
		ret[k] = assn
	}
	if len(ret) > 0 || r.Body == nil {
		return ret, nil
	}

	defer r.Body.Close()
	err := encoding.JSONiter.NewDecoder(r.Body).Decode(&ret)
	if errors.Is(err, io.EOF) {
		return ret, nil
	}
	return ret, err
}
