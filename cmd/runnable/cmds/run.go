package cmds

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// NewRunCommand prints the single output of a pipeline as JSON. Structured listings go
// through glazed, see NewBatchCommand.
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <pipeline.yaml>",
		Short: "Invoke a pipeline once and print its output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := parseInput(mustGetString(cmd, "input"), cmd.InOrStdin())
			if err != nil {
				return err
			}

			s, err := newSession(cmd.Context(), cmd.ErrOrStderr(), args[0])
			if err != nil {
				return err
			}
			defer s.close()

			log.Debug().Str("pipeline", s.pipeline.Name).Interface("input", input).Msg("invoking pipeline")
			out, err := s.pipeline.Runnable.Invoke(s.ctx, input, s.cfg)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().String("input", "null", "Input value as JSON (raw strings are passed as is), - for stdin")
	return cmd
}

func mustGetString(cmd *cobra.Command, name string) string {
	v, err := cmd.Flags().GetString(name)
	cobra.CheckErr(err)
	return v
}
