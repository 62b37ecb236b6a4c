package main

import (
	"fmt"

	"github.com/adamnew123456/jobmon/internal/frontend"
	"github.com/adamnew123456/jobmon/internal/wire"
)

// call opens one control connection, sends a single request, and reads
// back the matching response.
func call(endpoint string, req wire.Request) (wire.Response, error) {
	conn, err := frontend.Dial(endpoint)
	if err != nil {
		return wire.Response{}, err
	}
	defer conn.Close()

	if err := wire.Encode(conn, req); err != nil {
		return wire.Response{}, fmt.Errorf("send request: %w", err)
	}

	var resp wire.Response
	if err := wire.NewScanner(conn).Next(&resp); err != nil {
		return wire.Response{}, fmt.Errorf("read response: %w", err)
	}
	return resp, nil
}
