package procpool

import (
	"encoding/json"
	"errors"
	"io"
)

// ServeChild is the subprocess side of the pool protocol: it decodes task
// requests from in, runs each through run, and encodes the result to out.
// It returns nil when the parent closes the pipe.
func ServeChild(in io.Reader, out io.Writer, run func(token, input string) Result) error {
	decoder := json.NewDecoder(in)
	encoder := json.NewEncoder(out)

	for {
		var req request
		if err := decoder.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		if err := encoder.Encode(run(req.Token, req.Input)); err != nil {
			return err
		}
	}
}
