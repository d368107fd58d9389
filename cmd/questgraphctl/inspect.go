// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/questgraph/services/sync/storage/badger"
	"github.com/AleutianAI/questgraph/services/sync/store"
)

func withStore(dataDir string, fn func(ctx context.Context, st *store.GraphStore) error) error {
	cfg := badger.DefaultConfig()
	cfg.Path = dataDir
	cfg.GCInterval = 0
	db, err := badger.Open(cfg)
	if err != nil {
		return fmt.Errorf("open data directory %s: %w", dataDir, err)
	}
	defer db.Close()

	return fn(context.Background(), store.New(db, store.DefaultConfig()))
}

func newDumpCmd(dataDir *string) *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "dump <docId>",
		Short: "Print a stored document as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(*dataDir, func(ctx context.Context, st *store.GraphStore) error {
				doc, err := st.Load(ctx, owner, args[0])
				if err != nil {
					return err
				}
				out, err := json.MarshalIndent(doc, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "local-user", "document owner id")
	return cmd
}

func newVersionCmd(dataDir *string) *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "version <docId>",
		Short: "Print the stored version of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(*dataDir, func(ctx context.Context, st *store.GraphStore) error {
				version, err := st.Version(ctx, owner, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), version)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "local-user", "document owner id")
	return cmd
}

func newHistoryCmd(dataDir *string) *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "history <docId> <version>",
		Short: "Print the history snapshot stored at a specific version",
		Long: `Prints the snapshot written when the document reached the given
version. History copies expire after the configured TTL; an expired or
never-written version reports not found.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("version must be an integer: %q", args[1])
			}
			return withStore(*dataDir, func(ctx context.Context, st *store.GraphStore) error {
				doc, ok, err := st.History(ctx, owner, args[0], version)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("no history snapshot for %s@%d (expired or never written)", args[0], version)
				}
				out, err := json.MarshalIndent(doc, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "local-user", "document owner id")
	return cmd
}

func newOpLogCmd(dataDir *string) *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "oplog <docId>",
		Short: "Print the bounded operation log for a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(*dataDir, func(ctx context.Context, st *store.GraphStore) error {
				entries, err := st.OpLog(ctx, owner, args[0])
				if err != nil {
					return err
				}
				for _, e := range entries {
					raw, err := json.Marshal(e)
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), string(raw))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "local-user", "document owner id")
	return cmd
}
