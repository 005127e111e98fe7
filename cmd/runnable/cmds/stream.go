package cmds

import (
	"encoding/json"
	"fmt"

	"github.com/go-go-golems/runnable/pkg/runnables"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func NewStreamCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stream <pipeline.yaml>",
		Short: "Stream a pipeline, printing chunks as they arrive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := parseInput(mustGetString(cmd, "input"), cmd.InOrStdin())
			if err != nil {
				return err
			}
			lines, _ := cmd.Flags().GetBool("lines")

			s, err := newSession(cmd.Context(), cmd.ErrOrStderr(), args[0])
			if err != nil {
				return err
			}
			defer s.close()

			st, err := runnables.StreamOf(s.ctx, s.pipeline.Runnable, input, s.cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			w := cmd.OutOrStdout()
			for st.Next() {
				// strings are printed raw so that text streams read naturally
				if str, ok := st.Value().(string); ok && !lines {
					if _, err := fmt.Fprint(w, str); err != nil {
						return err
					}
					continue
				}
				b, err := json.Marshal(st.Value())
				if err != nil {
					return errors.Wrap(err, "could not serialize chunk")
				}
				if _, err := fmt.Fprintln(w, string(b)); err != nil {
					return err
				}
			}
			if !lines {
				_, _ = fmt.Fprintln(w)
			}
			return st.Err()
		},
	}
	cmd.Flags().String("input", "null", "Input value as JSON (raw strings are passed as is), - for stdin")
	cmd.Flags().Bool("lines", false, "Print every chunk as a line of JSON")
	return cmd
}
