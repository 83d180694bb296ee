package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nfrund/pubsubd/internal/client"
	"github.com/nfrund/pubsubd/internal/transport"
)

var (
	clientAddr    string
	clientUser    string
	clientMaxLine int
)

func addClientFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&clientAddr, "addr", "localhost:7000", "broker TCP address")
	cmd.Flags().StringVar(&clientUser, "as", "", "identify as this user before sending")
	cmd.Flags().IntVar(&clientMaxLine, "max-line-bytes", transport.DefaultMaxLineBytes, "longest message line accepted")
}

var subCmd = &cobra.Command{
	Use:   "sub <topic>...",
	Short: "Subscribe to topics and print incoming messages",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		c, err := client.Dial(ctx, clientAddr, client.WithMaxLineBytes(clientMaxLine))
		if err != nil {
			return err
		}
		defer c.Close()

		if clientUser != "" {
			if err := c.Identify(clientUser); err != nil {
				return err
			}
		}
		for _, topic := range args {
			if err := c.Subscribe(topic); err != nil {
				return err
			}
		}

		out := cmd.OutOrStdout()
		for {
			msg, err := c.Receive(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				if errors.Is(err, client.ErrUnexpectedCommand) {
					continue
				}
				return err
			}
			fmt.Fprintf(out, "[%s] %s: %s\n", msg.Topic, msg.User, msg.Payload)
		}
	},
}

func init() {
	addClientFlags(subCmd)
	rootCmd.AddCommand(subCmd)
}
