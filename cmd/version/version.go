// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stratastor/preclear-ng/internal/constants"
)

// NewVersionCmd prints build identity and exits.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show preclear-ng version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("preclear-ng version: %s\n", constants.Version)
			fmt.Printf("commit: %s\n", constants.CommitSHA)
			fmt.Printf("build time: %s\n", constants.BuildTime)
			return nil
		},
	}
}
