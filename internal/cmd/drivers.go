// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gogpu/cmdqueue/backend"
)

var driversCmd = &cobra.Command{
	Use:   "drivers",
	Short: "List registered drivers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		for _, st := range backend.Statuses() {
			status := "ok"
			if st.Err != nil {
				status = st.Err.Error()
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-12s %s\n", st.Name, status)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(driversCmd)
}
