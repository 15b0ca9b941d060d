package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leafsii/sqlkv/internal/api"
	"github.com/leafsii/sqlkv/internal/config"
	"github.com/leafsii/sqlkv/pkg/kv"

	_ "github.com/leafsii/sqlkv/pkg/kv/postgres"
	_ "github.com/leafsii/sqlkv/pkg/kv/sqlite"
)

// session holds the store opened for a single command invocation.
type session struct {
	store *kv.Store
	db    kv.Database
}

func newRootCmd() *cobra.Command {
	s := &session{}

	root := &cobra.Command{
		Use:   "kvctl",
		Short: "Inspect and edit an sqlkv table",
		Long: `kvctl opens the configured sqlkv database directly and runs a single
store operation against it. Keys and values are JSON, for example:

  kvctl set '["users",42]' '{"name":"ada"}' --ex 60
  kvctl list '["users"]' --limit 10 --order desc`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return s.open(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if s.db == nil {
				return nil
			}
			return s.db.Close()
		},
	}

	root.PersistentFlags().String("driver", "", "database driver (sqlite, memory, postgres); defaults to SQLKV_DRIVER")
	root.PersistentFlags().String("dsn", "", "data source name; defaults to SQLKV_DSN")
	root.PersistentFlags().String("table", "", "table name; defaults to SQLKV_TABLE")

	root.AddCommand(s.getCmd(), s.setCmd(), s.delCmd(), s.listCmd(), s.reapCmd())
	return root
}

func (s *session) open(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	kvCfg := cfg.KV(nil)
	if v, _ := cmd.Flags().GetString("driver"); v != "" {
		kvCfg.Driver = kv.Driver(v)
	}
	if v, _ := cmd.Flags().GetString("dsn"); v != "" {
		kvCfg.DSN = v
	}
	if v, _ := cmd.Flags().GetString("table"); v != "" {
		kvCfg.Table = v
	}

	s.store, s.db, err = kv.Open(ctx(cmd), kvCfg)
	return err
}

func (s *session) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the live record for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseKey(args[0])
			if err != nil {
				return err
			}
			res, err := s.store.Get(ctx(cmd), key)
			if err != nil {
				return err
			}
			return printJSON(cmd, api.NewResultResponse(res))
		},
	}
}

func (s *session) setCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Writes a JSON value under a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseKey(args[0])
			if err != nil {
				return err
			}
			if !json.Valid([]byte(args[1])) {
				return fmt.Errorf("%w: value must be JSON", kv.ErrInvalidValue)
			}

			var opts []kv.Option
			if cmd.Flags().Changed("ex") {
				ex, _ := cmd.Flags().GetInt64("ex")
				opts = append(opts, kv.WithEX(ex))
			}
			if nx, _ := cmd.Flags().GetBool("nx"); nx {
				opts = append(opts, kv.WithNX())
			}
			if get, _ := cmd.Flags().GetBool("get"); get {
				opts = append(opts, kv.WithGet())
			}

			res, err := s.store.Set(ctx(cmd), key, json.RawMessage(args[1]), opts...)
			if err != nil {
				return err
			}
			return printJSON(cmd, api.NewResultResponse(res))
		},
	}
	cmd.Flags().Int64("ex", 0, "expire the record this many seconds after the write")
	cmd.Flags().Bool("nx", false, "only write when no live record exists")
	cmd.Flags().Bool("get", false, "print the record as it was before the write")
	return cmd
}

func (s *session) delCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "del [key]",
		Short: "Deletes the record stored under a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseKey(args[0])
			if err != nil {
				return err
			}
			var opts []kv.Option
			if get, _ := cmd.Flags().GetBool("get"); get {
				opts = append(opts, kv.WithGet())
			}
			res, err := s.store.Del(ctx(cmd), key, opts...)
			if err != nil {
				return err
			}
			return printJSON(cmd, api.NewResultResponse(res))
		},
	}
	cmd.Flags().Bool("get", false, "print the record as it was before deletion")
	return cmd
}

func (s *session) listCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list [prefix]",
		Short: "Lists live records whose keys extend a prefix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix, err := parseKey(args[0])
			if err != nil {
				return err
			}
			offset, _ := cmd.Flags().GetInt("offset")
			limit, _ := cmd.Flags().GetInt("limit")
			sort, _ := cmd.Flags().GetString("sort")
			order, _ := cmd.Flags().GetString("order")

			results, err := s.store.List(ctx(cmd), kv.ListOptions{
				Prefix:    prefix,
				Offset:    offset,
				Limit:     limit,
				SortTrait: kv.SortTrait(sort),
				Order:     kv.Order(order),
			})
			if err != nil {
				return err
			}
			resp := api.ListResponse{Results: make([]api.ResultResponse, 0, len(results))}
			for _, res := range results {
				resp.Results = append(resp.Results, api.NewResultResponse(res))
			}
			return printJSON(cmd, resp)
		},
	}
	cmd.Flags().Int("offset", 0, "number of records to skip")
	cmd.Flags().Int("limit", 100, "maximum number of records")
	cmd.Flags().String("sort", string(kv.SortByKey), "sort trait (key, created_at, updated_at)")
	cmd.Flags().String("order", string(kv.Asc), "sort order (asc, desc)")
	return cmd
}

func (s *session) reapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reap",
		Short: "Deletes every expired record in the table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := s.store.Reap(ctx(cmd)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reaped %s\n", s.store.Table())
			return nil
		},
	}
}

func ctx(cmd *cobra.Command) context.Context {
	if c := cmd.Context(); c != nil {
		return c
	}
	return context.Background()
}

func parseKey(arg string) (kv.Key, error) {
	key, err := kv.DecodeKey(arg)
	if err != nil {
		return nil, fmt.Errorf("key %q: %w", arg, err)
	}
	return key, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	return enc.Encode(v)
}
