// Copyright (c) 2026 Cilo Authors
// SPDX-License-Identifier: MIT
// See LICENSES/MIT.txt for full license text

package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/sharedco/wsync/internal/wsyncerr"
)

// Conn wraps one accepted (or dialed) stream-socket connection and frames
// exactly one command envelope, one optional data envelope, and one
// response envelope, in that order, as required by the transport design.
type Conn struct {
	netConn net.Conn
	dec     *json.Decoder
}

// NewConn wraps c for framed JSON exchange.
func NewConn(c net.Conn) *Conn {
	return &Conn{netConn: c, dec: json.NewDecoder(c)}
}

// ReadValue decodes exactly one JSON value into v. A connection closed (or
// truncated) before a full value is parsed is reported as a Protocol error.
func (c *Conn) ReadValue(v any) error {
	if err := c.dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return wsyncerr.New(wsyncerr.KindProtocol,
				fmt.Sprintf("connection closed before a complete JSON value was read: %v", err),
				"connection closed unexpectedly")
		}
		return wsyncerr.New(wsyncerr.KindSerde,
			fmt.Sprintf("failed to decode JSON value: %v", err),
			"malformed request")
	}
	return nil
}

// WriteValue marshals v and writes it as a single JSON document.
func (c *Conn) WriteValue(v any) error {
	enc := json.NewEncoder(c.netConn)
	if err := enc.Encode(v); err != nil {
		return wsyncerr.Wrap(wsyncerr.KindIO, err, "failed to write response")
	}
	return nil
}

// ReadCommand reads the command envelope and validates the tag.
func (c *Conn) ReadCommand() (Command, error) {
	var env CommandEnvelope
	if err := c.ReadValue(&env); err != nil {
		return "", err
	}
	cmd := Command(env.Command)
	if !cmd.IsValid() {
		return "", wsyncerr.New(wsyncerr.KindProtocol,
			fmt.Sprintf("received invalid command %q", env.Command),
			fmt.Sprintf("Received invalid command '%s'", env.Command))
	}
	return cmd, nil
}

// WriteResponse writes the final response envelope for this exchange.
func (c *Conn) WriteResponse(resp ResponseEnvelope) error {
	return c.WriteValue(resp)
}

// Shutdown closes the underlying connection; per the transport design the
// daemon always shuts the connection down after writing its response.
func (c *Conn) Shutdown() error {
	return c.netConn.Close()
}
