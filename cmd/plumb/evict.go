// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var evictCmd = &cobra.Command{
	Use:   "evict <address> <version>",
	Short: "Remove a cached package version",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCache()
		if err != nil {
			return err
		}
		if !c.Evict(args[0], args[1]) {
			fmt.Fprintln(cmd.OutOrStdout(),
				WarningStyle.Render(fmt.Sprintf("%s@%s is not cached", args[0], args[1])))
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(),
			SuccessStyle.Render("evicted ")+AddressStyle.Render(args[0]+"@"+args[1]))
		return nil
	},
}
