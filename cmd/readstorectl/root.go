package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	es "github.com/terraskye/eventsourcing-readstore"
	"github.com/terraskye/eventsourcing-readstore/readstore/mongodb"
)

type connectFunc func(ctx context.Context, logger *logrus.Entry) (*mongo.Database, func(context.Context) error, error)

type app struct {
	logger  *logrus.Entry
	connect connectFunc

	collection string
	envFile    string
	verbose    bool

	store      *mongodb.Store[bson.M]
	disconnect func(context.Context) error
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:          "readstorectl",
		Short:        "Inspect and maintain read model collections",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// cobra validates required flags after this hook; check before connecting.
			if err := cmd.ValidateRequiredFlags(); err != nil {
				return err
			}
			if a.envFile != "" {
				if err := godotenv.Load(a.envFile); err != nil {
					return fmt.Errorf("load env file: %w", err)
				}
			}
			if a.verbose {
				a.logger.Logger.SetLevel(logrus.TraceLevel)
			}

			db, disconnect, err := a.connect(cmd.Context(), a.logger)
			if err != nil {
				return err
			}
			a.disconnect = disconnect
			a.store = mongodb.NewStore[bson.M](db,
				mongodb.WithLogger(a.logger),
				mongodb.WithDescriptionProvider(es.NewStaticDescriptionProvider(a.collection)),
			)
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&a.collection, "collection", "c", "", "read model collection to operate on")
	root.PersistentFlags().StringVar(&a.envFile, "env-file", "", "load MONGODB_* settings from this file")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log every store call")
	_ = root.MarkPersistentFlagRequired("collection")

	root.AddCommand(
		newGetCmd(a),
		newFindCmd(a),
		newDeleteCmd(a),
		newDropCmd(a),
	)
	return root
}

// close releases the connection opened for the command, if any.
func (a *app) close() {
	if a.disconnect == nil {
		return
	}
	if err := a.disconnect(context.Background()); err != nil {
		a.logger.WithError(err).Warn("Failed to disconnect from MongoDB")
	}
	a.disconnect = nil
}

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Print one read model as extended JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := a.store.Get(cmd.Context(), args[0])
			if errors.Is(err, es.ErrReadModelNotFound) {
				return fmt.Errorf("read model %q not found in %q", args[0], a.collection)
			}
			if err != nil {
				return err
			}
			return printDocument(cmd, *env.ReadModel)
		},
	}
}

func newFindCmd(a *app) *cobra.Command {
	var (
		filter string
		limit  int64
	)

	cmd := &cobra.Command{
		Use:   "find",
		Short: "Print the read models matching a filter, one per line",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := parseFilter(filter)
			if err != nil {
				return err
			}

			opts := options.Find()
			if limit > 0 {
				opts.SetLimit(limit)
			}

			iter, err := a.store.Find(cmd.Context(), f, opts)
			if err != nil {
				return err
			}
			defer iter.Close(cmd.Context())

			for iter.Next(cmd.Context()) {
				if err := printDocument(cmd, *iter.Value()); err != nil {
					return err
				}
			}
			return iter.Err()
		},
	}

	cmd.Flags().StringVarP(&filter, "filter", "f", "", `extended JSON filter, e.g. '{"status":"open"}'`)
	cmd.Flags().Int64VarP(&limit, "limit", "n", 0, "maximum number of read models to print (0 = all)")
	return cmd
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete one read model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.store.Delete(cmd.Context(), args[0])
		},
	}
}

func newDropCmd(a *app) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "drop",
		Short: "Drop the whole read model collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to drop %q without --yes", a.collection)
			}
			return a.store.DeleteAll(cmd.Context())
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm dropping the collection")
	return cmd
}

// parseFilter turns an extended JSON document into a filter. An empty string
// matches every document.
func parseFilter(s string) (bson.D, error) {
	if s == "" {
		return bson.D{}, nil
	}
	var d bson.D
	if err := bson.UnmarshalExtJSON([]byte(s), false, &d); err != nil {
		return nil, fmt.Errorf("parse filter: %w", err)
	}
	return d, nil
}

func printDocument(cmd *cobra.Command, doc bson.M) error {
	out, err := bson.MarshalExtJSON(doc, false, false)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return err
}
