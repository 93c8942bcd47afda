package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/vx-labs/grid/api"
	"github.com/vx-labs/grid/cli"
	"github.com/vx-labs/grid/cluster"
	"github.com/vx-labs/grid/rpc"
	"github.com/vx-labs/grid/store"
	"github.com/vx-labs/grid/transport"
	"go.uber.org/zap"
)

func main() {
	config := viper.New()
	config.SetEnvPrefix("grid")
	config.AutomaticEnv()
	root := &cobra.Command{
		Use:   "gridnode",
		Short: "Run a replicated key-value node",
		Run: func(cmd *cobra.Command, args []string) {
			ctx, err := cli.Bootstrap(cmd, config)
			if err != nil {
				log.Fatalf("FATAL: failed to bootstrap node: %v", err)
			}
			if err := run(ctx); err != nil {
				ctx.Logger.Fatal("node failed", zap.Error(err))
			}
		},
	}
	cli.AddClusterFlags(root, config)
	root.Flags().StringP("data-dir", "d", os.TempDir(), "Store data in this directory")
	config.BindPFlag("data-dir", root.Flags().Lookup("data-dir"))
	root.Flags().StringSliceP("fetch-state", "", []string{}, "Fetch the state of these resources from the coordinator once joined")
	config.BindPFlag("fetch-state", root.Flags().Lookup("fetch-state"))
	root.Flags().BoolP("sync-replication", "", true, "Wait for every member to acknowledge writes")
	config.BindPFlag("sync-replication", root.Flags().Lookup("sync-replication"))
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the node version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(cli.Version())
		},
	})
	root.Execute()
}

func run(ctx *cli.Context) error {
	logger := ctx.Logger
	db, err := store.New(store.Options{
		Path: filepath.Join(ctx.Config.GetString("data-dir"), fmt.Sprintf("grid-%s.db", ctx.ID)),
	})
	if err != nil {
		return err
	}
	ctx.OnShutdown(func() {
		if err := db.Close(); err != nil {
			logger.Error("failed to close store", zap.Error(err))
		}
	})

	fetcher := &stateFetcher{resources: ctx.Config.GetStringSlice("fetch-state"), logger: logger}
	tr := transport.New(logger, transport.Config{
		Global:           ctx.Global(),
		ChannelFactory:   ctx.ChannelFactory(),
		Handler:          store.NewHandler(logger, db),
		StateProvider:    db,
		Listener:         fetcher,
		Registerer:       prometheus.DefaultRegisterer,
		EnableStatistics: true,
	})
	fetcher.transport = tr
	if err := tr.Start(); err != nil {
		return err
	}
	ctx.OnShutdown(tr.Stop)

	mode := rpc.Synchronous
	if !ctx.Config.GetBool("sync-replication") {
		mode = rpc.FireAndForget
	}
	replicated := store.NewReplicated(db, tr, mode, 5*time.Second)
	mux := cli.NewServeMux(tr)
	resources := api.New(logger, replicated, tr, api.Config{})
	mux.Handle("/resources/", resources)
	mux.Handle("/stats", resources)

	addr := fmt.Sprintf("[::]:%d", ctx.Config.GetInt("health-port"))
	return ctx.Run(
		func(runCtx context.Context) error {
			return cli.ServeHTTP(runCtx, logger, addr, mux)
		},
		func(runCtx context.Context) error {
			fetcher.wait(runCtx)
			return nil
		},
	)
}

// stateFetcher pulls the configured resources from the coordinator after the first view
// was installed, unless the local node is the coordinator.
type stateFetcher struct {
	resources []string
	logger    *zap.Logger
	transport *transport.Transport
	once      sync.Once
	wg        sync.WaitGroup
}

func (f *stateFetcher) MembershipChanged(members []cluster.Address, self cluster.Address) {
	if len(f.resources) == 0 || len(members) == 0 {
		return
	}
	f.once.Do(func() {
		coordinator := members[0]
		if coordinator == self {
			f.logger.Info("node is the coordinator: skipping state fetch")
			return
		}
		f.wg.Add(1)
		go func() {
			defer f.wg.Done()
			for _, resource := range f.resources {
				ok, err := f.transport.RetrieveState(context.Background(), resource, coordinator, 30*time.Second)
				if err != nil || !ok {
					f.logger.Warn("failed to fetch resource state", zap.String("resource_name", resource), zap.Error(err))
					continue
				}
				f.logger.Info("fetched resource state", zap.String("resource_name", resource))
			}
		}()
	})
}

func (f *stateFetcher) wait(ctx context.Context) {
	<-ctx.Done()
	f.wg.Wait()
}
