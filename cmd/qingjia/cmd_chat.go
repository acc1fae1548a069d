package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jayceecory-tech/ai-qingjia/internal/runtime"
)

var chatEmployee string

func init() {
	chatCmd.Flags().StringVarP(&chatEmployee, "employee", "e", "", "employee id for the session (e.g. EMP001)")
	rootCmd.AddCommand(chatCmd)
}

var chatCmd = &cobra.Command{
	Use:   "chat <message>",
	Short: "Send one message and stream the answer to the terminal",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}

		req := runtime.Request{
			Message:    strings.Join(args, " "),
			EmployeeID: chatEmployee,
		}
		_, err = a.gateway.Handle(ctx, req, &terminalSink{out: os.Stdout, info: os.Stderr})
		if errors.Is(err, runtime.ErrAbandoned) {
			return nil
		}
		// Transport failures were already printed as an error event.
		if err != nil {
			return errors.New("exchange failed")
		}
		return nil
	},
}

// terminalSink prints answer text to out and skill activity to info.
type terminalSink struct {
	out  io.Writer
	info io.Writer
}

func (s *terminalSink) Send(e runtime.Event) error {
	var err error
	switch e.Type {
	case runtime.EventContent:
		_, err = io.WriteString(s.out, e.Content)
	case runtime.EventSkillCall:
		_, err = fmt.Fprintf(s.info, "\n[skill] %s %s\n", e.Skill, e.Arguments)
	case runtime.EventSkillResult:
		_, err = fmt.Fprintf(s.info, "[result] %s %s\n", e.Skill, e.Result)
	case runtime.EventError:
		_, err = fmt.Fprintf(s.info, "\n%s\n", e.Message)
	case runtime.EventDone:
		_, err = fmt.Fprintln(s.out)
	}
	return err
}
