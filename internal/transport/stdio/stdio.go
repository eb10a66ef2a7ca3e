// Package stdio is the thin newline-delimited JSON framing used when
// cmd/ui-server runs in "stdio" mode. The richer tool-call protocol this
// framing would sit behind is an external-collaborator concern and out of
// scope; this is enough surface for the Dispatcher to have a concrete
// stdio caller to run behind.
package stdio

import (
	"bufio"
	"context"
	"encoding/json"
	"io"

	"github.com/8agana/unified-intelligence/internal/dispatch"
	"github.com/8agana/unified-intelligence/internal/observability"
)

// request is a single line of stdin: the tool name, the tenant instance,
// and its raw parameters.
type request struct {
	Tool       string          `json:"tool"`
	InstanceID string          `json:"instance_id"`
	Params     dispatch.Params `json:"params"`
}

type response struct {
	Result interface{}             `json:"result,omitempty"`
	Error  *dispatch.TransportError `json:"error,omitempty"`
}

// Serve reads one JSON request per line from r and writes one JSON response
// per line to w, until r is exhausted or ctx is canceled.
func Serve(ctx context.Context, d *dispatch.Dispatcher, log *observability.Logger, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	enc := json.NewEncoder(w)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			_ = enc.Encode(response{Error: &dispatch.TransportError{Code: "invalid_params", Message: "malformed JSON request line"}})
			continue
		}
		if req.Params == nil {
			req.Params = dispatch.Params{}
		}

		result, err := d.Dispatch(ctx, req.InstanceID, req.Tool, req.Params)
		if err != nil {
			te := dispatch.MapError(err)
			log.WithInstance(req.InstanceID).WithTool(req.Tool).Warn().Err(err).Msg("tool dispatch failed")
			_ = enc.Encode(response{Error: &te})
			continue
		}

		_ = enc.Encode(response{Result: result})
	}
	return scanner.Err()
}
