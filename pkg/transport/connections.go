package transport

import (
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// SetupConnections creates one client connection per target address.
// On failure every connection created so far is closed.
func SetupConnections(targets []string, opts ...grpc.DialOption) ([]*grpc.ClientConn, func() error, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}

	var err error
	conns := make([]*grpc.ClientConn, len(targets))
	for i, addr := range targets {
		conn, clientError := grpc.NewClient(addr, opts...)
		if clientError != nil {
			err = errors.Join(err, fmt.Errorf("replica %d (%s): %w", i, addr, clientError))
			for j := range i {
				closeErr := conns[j].Close()
				if closeErr != nil {
					err = errors.Join(err, fmt.Errorf("failed to close replica %d connection: %w", j, closeErr))
				}
			}
			return nil, nil, err
		}
		conns[i] = conn
	}

	closeFunc := func() error {
		var cferr error
		for i, conn := range conns {
			if cerr := conn.Close(); cerr != nil {
				cferr = errors.Join(cferr, fmt.Errorf("failed to close replica %d connection: %w", i, cerr))
			}
		}
		return cferr
	}

	return conns, closeFunc, nil
}
