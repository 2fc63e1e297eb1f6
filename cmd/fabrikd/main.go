// replication-manager - Replication Manager Monitoring and CLI for MariaDB and MySQL
// Copyright 2017-2021 SIGNAL18 CLOUD SAS
// Author: Stephane Varoqui  <svaroqui@gmail.com>
// License: GNU General Public License, version 3. Redistribution/Reuse of this code is permitted under the GNU v3 license, as an additional term ALL code must carry the original Author(s) credit in comment form.
// See LICENSE in this directory for the integral text.

// Command fabrikd is the daemon entrypoint: load config, connect the
// state store, hydrate the topology cache, start the procedure
// executor and HTTP API, and run the periodic read-only reconciliation
// sweep on a cron schedule. Grounded on the teacher's root command
// wiring InitConfig then server.Run, generalized into cobra's
// command/flag registration since this fleet has one subcommand rather
// than the teacher's monitor/bootstrap/version split.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/fabrikd/fabrikd/config"
	"github.com/fabrikd/fabrikd/events"
	"github.com/fabrikd/fabrikd/executor"
	"github.com/fabrikd/fabrikd/fanout"
	"github.com/fabrikd/fabrikd/ha"
	"github.com/fabrikd/fabrikd/pool"
	"github.com/fabrikd/fabrikd/replication"
	"github.com/fabrikd/fabrikd/server"
	"github.com/fabrikd/fabrikd/sharding"
	"github.com/fabrikd/fabrikd/store"
	"github.com/fabrikd/fabrikd/topology"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fabrikd",
		Short: "fabrikd orchestrates HA promotion/demotion and range/hash sharding over a fleet of relational database groups",
		RunE:  runServe,
	}
	config.BindFlags(cmd.Flags())
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}
	if err := config.ApplyLogging(cfg); err != nil {
		return err
	}

	gw, err := store.Open("mysql", cfg.StoreDSN)
	if err != nil {
		return err
	}
	defer gw.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.StoreMigrate {
		log.Info("fabrikd: running state store migrations")
		if err := gw.Migrate(ctx); err != nil {
			return err
		}
	}

	cache := topology.NewCache()
	if err := topology.Load(ctx, gw, cache); err != nil {
		return err
	}

	bus := events.NewBus()
	connPool := pool.New(pool.SqlOpener("mysql"))
	drv := replication.NewMysqlDriver(connPool)
	coord := ha.NewCoordinator(drv, bus, cache)
	eng := sharding.NewEngine(cache, drv)
	bk := sharding.NewMysqldumpBackupper(cfg.ReplicationUser, cfg.ReplicationPasswd)

	exec := executor.New(gw, bus, cfg.ExecutorWorkers)
	exec.Run(ctx)
	defer exec.Shutdown()

	registerFanout(bus, cache, drv, cfg)

	srv := server.New(server.Deps{
		Executor:      exec,
		Coordinator:   coord,
		Engine:        eng,
		Cache:         cache,
		Gateway:       gw,
		Backupper:     bk,
		Pool:          connPool,
		ListenAddress: cfg.ListenAddress,
		JWTSecret:     cfg.JWTSecret,
		AdminUser:     "admin",
		AdminPasswd:   cfg.JWTSecret,
		ReplUser:      cfg.ReplicationUser,
		ReplPasswd:    cfg.ReplicationPasswd,
	})

	sched := cron.New()
	reconcileSpec := "@every " + cfg.ReconcileInterval.String()
	if _, err := sched.AddFunc(reconcileSpec, func() {
		exec.Trigger("group.reconcile", nil, func(ctx context.Context, tx *store.Tx) ([]executor.Step, error) {
			if err := coord.ReconcileReadOnly(ctx); err != nil {
				return nil, err
			}
			for _, g := range cache.AllGroups() {
				if err := ha.PersistGroupState(ctx, tx, cache, g.ID); err != nil {
					return nil, err
				}
			}
			return nil, nil
		})
	}); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	return srv.Run(ctx)
}

// registerFanout wires the global fan-out relation to the HA event
// bus so a promote/demote anywhere in the fleet repoints every
// ENABLED shard's hosting group at the new global master without an
// operator having to move shards by hand.
func registerFanout(bus *events.Bus, cache *topology.Cache, drv replication.Driver, cfg config.Config) *fanout.Fanout {
	f := fanout.New(cache, drv)
	f.Subscribe(bus, fanout.ReplicationCreds{User: cfg.ReplicationUser, Passwd: cfg.ReplicationPasswd})
	return f
}
