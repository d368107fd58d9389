// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// questgraphctl is the offline admin tool for sync service data
// directories: dumping document snapshots, inspecting operation logs,
// and checking versions without the service running.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var dataDir string

	root := &cobra.Command{
		Use:   "questgraphctl",
		Short: "Inspect QuestGraph sync service data directories",
		Long: `questgraphctl opens a sync service BadgerDB data directory directly
and prints stored documents, versions, and operation logs. The service
must not be running against the same directory (BadgerDB is
single-process).`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&dataDir, "data-dir", "./data/questgraph",
		"path to the sync service data directory")

	root.AddCommand(newDumpCmd(&dataDir))
	root.AddCommand(newVersionCmd(&dataDir))
	root.AddCommand(newHistoryCmd(&dataDir))
	root.AddCommand(newOpLogCmd(&dataDir))
	return root
}
