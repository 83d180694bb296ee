package cmd

import (
	"github.com/spf13/cobra"

	"github.com/nfrund/pubsubd/internal/client"
)

var pubCmd = &cobra.Command{
	Use:   "pub <topic> <message>",
	Short: "Publish one message to a topic",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := client.Dial(cmd.Context(), clientAddr)
		if err != nil {
			return err
		}
		defer c.Close()

		if clientUser != "" {
			if err := c.Identify(clientUser); err != nil {
				return err
			}
		}
		return c.Publish(args[0], args[1])
	},
}

func init() {
	addClientFlags(pubCmd)
	rootCmd.AddCommand(pubCmd)
}
