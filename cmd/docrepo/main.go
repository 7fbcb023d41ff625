/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/tomoncle/docrepo/database"
	"github.com/tomoncle/docrepo/repository"
	"github.com/tomoncle/docrepo/types"
	"github.com/tomoncle/docrepo/utils"
)

type cliOptions struct {
	configPath string
	envFiles   []string
	logLevel   string
	logFormat  string
	logBackend string
	timeout    time.Duration
	config     *database.Config
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &cliOptions{}
	root := &cobra.Command{
		Use:          "docrepo",
		Short:        "Inspect document collections through the docrepo connection manager",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load()
		},
	}
	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "YAML config file")
	flags.StringSliceVar(&opts.envFiles, "env-file", []string{".env"}, "dotenv files loaded before the config")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level, overrides the config")
	flags.StringVar(&opts.logFormat, "log-format", "", "log format (text or json), overrides the config")
	flags.StringVar(&opts.logBackend, "logger", "", "database logger backend (logrus or zerolog), overrides the config")
	flags.DurationVar(&opts.timeout, "timeout", 30*time.Second, "time to wait for the connection to open")

	root.AddCommand(
		newPingCommand(opts),
		newWatchCommand(opts),
		newFindCommand(opts),
		newCountCommand(opts),
	)
	return root
}

func (o *cliOptions) load() error {
	if err := database.LoadDotEnv(o.envFiles...); err != nil {
		return err
	}
	cfg, err := database.LoadConfig(o.configPath)
	if err != nil {
		return err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Logging.Format = o.logFormat
	}
	if o.logBackend != "" {
		cfg.Logging.Backend = o.logBackend
	}
	utils.ConfigureLogLevel(cfg.Logging.Level)
	utils.ConfigureConsoleLogFormat(cfg.Logging.Format)
	database.SetLogger(database.NewLoggerFromConfig(cfg.Logging, os.Stderr))
	o.config = cfg
	return nil
}

// open connects the process-wide handle and blocks until it is usable.
func (o *cliOptions) open(ctx context.Context) (database.AbstractConnectionManager, error) {
	opened := make(chan struct{}, 1)
	manager, err := database.InitDB(o.config)
	if err != nil {
		return nil, err
	}
	manager.OnEvent(func(e database.Event) {
		if e.Type == database.EventOpen || e.Type == database.EventReconnected {
			select {
			case opened <- struct{}{}:
			default:
			}
		}
	})
	if manager.State() == database.StateOpen {
		return manager, nil
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	select {
	case <-opened:
		return manager, nil
	case <-ctx.Done():
		_ = database.CloseDB()
		if last := manager.Stats().LastError; last != "" {
			return nil, fmt.Errorf("connection not open after %s: %s", o.timeout, last)
		}
		return nil, fmt.Errorf("connection not open after %s", o.timeout)
	}
}

func newPingCommand(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Connect, ping the database and print its health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			manager, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = database.CloseDB() }()

			status := manager.HealthCheck(cmd.Context())
			if err := printJSON(cmd.OutOrStdout(), status); err != nil {
				return err
			}
			if !status.Healthy {
				return fmt.Errorf("database unhealthy: %s", status.LastError)
			}
			return nil
		},
	}
}

func newWatchCommand(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print lifecycle events of the connection until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			manager, err := database.InitDB(opts.config)
			if err != nil {
				return err
			}
			defer func() { _ = database.CloseDB() }()

			out := cmd.OutOrStdout()
			manager.OnEvent(func(e database.Event) {
				_, _ = fmt.Fprintln(out, formatEvent(e, manager.State()))
			})
			<-ctx.Done()
			return nil
		},
	}
}

func newFindCommand(opts *cliOptions) *cobra.Command {
	var (
		filter     string
		sort       string
		projection string
		limit      int64
		skip       int64
	)
	cmd := &cobra.Command{
		Use:   "find <collection>",
		Short: "Print documents of a collection as extended JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := parseDocument(filter)
			if err != nil {
				return fmt.Errorf("invalid --filter: %w", err)
			}
			findOptions := types.Find()
			if sort != "" {
				var order bson.D
				if err := bson.UnmarshalExtJSON([]byte(sort), false, &order); err != nil {
					return fmt.Errorf("invalid --sort: %w", err)
				}
				findOptions.SetSort(order)
			}
			if projection != "" {
				fields, err := parseDocument(projection)
				if err != nil {
					return fmt.Errorf("invalid --projection: %w", err)
				}
				findOptions.SetProjection(fields)
			}
			if limit > 0 {
				findOptions.SetLimit(limit)
			}
			if skip > 0 {
				findOptions.SetSkip(skip)
			}

			manager, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = database.CloseDB() }()

			repo := repository.NewRepository[bson.M](manager, args[0], repository.WithoutValidation())
			docs, err := repo.Find(cmd.Context(), query, findOptions)
			if err != nil {
				return fmt.Errorf("find failed (%s): %w", database.Classify(err), err)
			}
			for _, doc := range docs {
				b, err := bson.MarshalExtJSON(doc, false, false)
				if err != nil {
					return err
				}
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), string(b)); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&filter, "filter", "f", "{}", "filter as extended JSON")
	cmd.Flags().StringVarP(&sort, "sort", "s", "", `sort as extended JSON, e.g. {"age": -1}`)
	cmd.Flags().StringVarP(&projection, "projection", "p", "", "projection as extended JSON")
	cmd.Flags().Int64VarP(&limit, "limit", "l", 0, "maximum number of documents")
	cmd.Flags().Int64Var(&skip, "skip", 0, "number of documents to skip")
	return cmd
}

func newCountCommand(opts *cliOptions) *cobra.Command {
	var filter string
	cmd := &cobra.Command{
		Use:   "count <collection>",
		Short: "Count documents of a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := parseDocument(filter)
			if err != nil {
				return fmt.Errorf("invalid --filter: %w", err)
			}
			manager, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = database.CloseDB() }()

			repo := repository.NewRepository[bson.M](manager, args[0])
			n, err := repo.Count(cmd.Context(), query)
			if err != nil {
				return fmt.Errorf("count failed (%s): %w", database.Classify(err), err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), n)
			return err
		},
	}
	cmd.Flags().StringVarP(&filter, "filter", "f", "{}", "filter as extended JSON")
	return cmd
}

// parseDocument decodes relaxed or canonical extended JSON.
func parseDocument(s string) (bson.M, error) {
	if s == "" {
		return bson.M{}, nil
	}
	doc := bson.M{}
	if err := bson.UnmarshalExtJSON([]byte(s), false, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func printJSON(w io.Writer, v interface{}) error {
	b, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

// formatEvent renders one lifecycle event for the watch command.
func formatEvent(e database.Event, state types.BaseEnum) string {
	line := fmt.Sprintf("%s %-12s %s; state=%s",
		e.At.Format(time.RFC3339), e.Type.Name(), e.Type.Desc(), types.Label(state))
	if e.Err != nil {
		line += " error=" + e.Err.Error()
	}
	return line
}
