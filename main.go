/*
Sharedauto infers a human operator's latent goal from noisy control input
and blends the operator's command with an assistive one. A session runs
one inference+assistance+arbitration computation per control tick; this
binary wires a session to its collaborators: synthesized or file-loaded
goal tables, a SQLite run log, a websocket telemetry server with a
prometheus endpoint, and a simulated operator standing in for real input
capture.
*/

package main

import (
	"context"
	"errors"
	"flag"
	"math"
	"math/rand"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	channerics "github.com/niceyeti/channerics/channels"
	"golang.org/x/sync/errgroup"

	"sharedauto/grid_world"
	"sharedauto/policies"
	"sharedauto/server"
	"sharedauto/session"
	"sharedauto/storage"
)

var (
	dbg        *bool
	host       *string
	port       *string
	configPath *string
	dbPath     *string
	tick       *time.Duration
	addr       string
)

func init() {
	dbg = flag.Bool("debug", false, "debug mode")
	host = flag.String("host", "", "The host ip")
	port = flag.String("port", "8080", "The host port")
	configPath = flag.String("config", "./config.yaml", "session config file")
	dbPath = flag.String("db", "sharedauto.db", "run log database path; empty disables logging")
	tick = flag.Duration("tick", 100*time.Millisecond, "control step period")
	flag.Parse()
	addr = *host + ":" + *port
}

// buildTables loads the goal tables from the configured file, or falls
// back to synthesized tables for the configured goal cells. The session
// cannot tell the difference; that is the supplier contract.
func buildTables(cfg *session.Config) ([]*policies.QTable, []string, error) {
	cells := cfg.Grid.Cells
	if cells == 0 {
		cells = grid_world.DefaultCells
	}

	if cfg.TableFile != "" {
		tables, err := policies.LoadFile(cfg.TableFile)
		if err != nil {
			return nil, nil, err
		}
		names := make([]string, len(tables))
		for i, t := range tables {
			names[i] = t.Name()
		}
		return tables, names, nil
	}

	goals := cfg.Goals
	if len(goals) == 0 {
		goals = []session.GoalConfig{
			{Name: "northwest", X: 1, Y: 1},
			{Name: "northeast", X: cells - 2, Y: 1},
			{Name: "south", X: cells / 2, Y: cells - 2},
		}
	}

	tables := make([]*policies.QTable, 0, len(goals))
	names := make([]string, 0, len(goals))
	for _, g := range goals {
		table, err := policies.Synthesize(g.Name, grid_world.State{X: g.X, Y: g.Y}, cells)
		if err != nil {
			return nil, nil, err
		}
		tables = append(tables, table)
		names = append(names, g.Name)
	}
	return tables, names, nil
}

func runApp() error {
	cfg, err := session.FromYaml(*configPath)
	if err != nil {
		return err
	}

	tables, goalNames, err := buildTables(cfg)
	if err != nil {
		return err
	}

	cells := tables[0].Cells()
	extent := cfg.Grid.Extent
	if extent == 0 {
		extent = float64(cells)
	}

	if *dbg {
		for _, t := range tables {
			log.Debug("goal table", "name", t.Name())
			grid_world.ShowPolicy(cells, t.BestAction)
		}
	}

	var store *storage.Store
	if *dbPath != "" {
		if store, err = storage.New(*dbPath); err != nil {
			return err
		}
		defer store.Close()
	}

	metrics := server.NewMetrics()
	updates := make(chan session.StepResult, 16)

	// lastStep is written only from the simulation goroutine's telemetry
	// callback and read after the group exits.
	var lastStep int
	telemetry := func(ctx context.Context, res session.StepResult) {
		lastStep = res.Step
		metrics.Observe(res, goalNames)
		if store != nil {
			if err := store.RecordStep(res); err != nil {
				log.Error("record step", "error", err)
			}
		}
		// Drop frames rather than stall the control loop on a slow viewer.
		select {
		case updates <- res:
		default:
		}
	}

	sess, err := session.New(tables, cfg, telemetry)
	if err != nil {
		return err
	}

	strategy := "user_only"
	if v, ok := cfg.Arbitration["strategy"]; ok {
		strategy = v
	}
	if store != nil {
		if err := store.BeginRun(sess.ID(), sess.PredictorName(), strategy); err != nil {
			return err
		}
	}

	log.Info("session ready",
		"run", sess.ID(),
		"predictor", sess.PredictorName(),
		"strategy", strategy,
		"goals", len(tables),
		"addr", addr)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	grp, grpCtx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		return server.NewServer(addr, updates, metrics).Serve(grpCtx)
	})
	grp.Go(func() error {
		defer close(updates)
		return simulate(grpCtx, sess, tables, extent, cells)
	})

	err = grp.Wait()
	if store != nil {
		if endErr := store.EndRun(sess.ID(), lastStep); endErr != nil {
			log.Error("end run", "error", endErr)
		}
	}
	return err
}

// simulate drives the session as a stand-in operator: an epsilon-noisy
// policy pursuing a hidden true goal, with occasional idle ticks and
// occasional goal switches. The blended output vector is applied to the
// continuous position here, since motion is the execution collaborator's
// job, not the core's.
func simulate(
	ctx context.Context,
	sess *session.Session,
	tables []*policies.QTable,
	extent float64,
	cells int,
) error {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	const (
		epsilon    = 0.2  // operator noise
		idleRate   = 0.05 // chance of no input on a tick
		switchRate = 0.002
	)

	trueGoal := rng.Intn(len(tables))
	pos := grid_world.Vec2{X: extent / 2, Y: extent / 2}
	speed := extent / float64(cells)

	for range channerics.NewTicker(ctx.Done(), *tick) {
		if rng.Float64() < switchRate {
			trueGoal = rng.Intn(len(tables))
			log.Info("operator switched goal", "goal", tables[trueGoal].Name())
		}

		action := grid_world.ActionNone
		if rng.Float64() >= idleRate {
			if rng.Float64() <= epsilon {
				action = grid_world.Action(rng.Intn(grid_world.ActionCount))
			} else {
				var err error
				if action, err = tables[trueGoal].BestAction(sess.Discretize(pos)); err != nil {
					return err
				}
			}
		}

		res, emitted, err := sess.Step(ctx, pos, action)
		if err != nil {
			// Core failures are fatal for the run; do not guess a
			// corrective action.
			return err
		}
		if !emitted {
			continue
		}

		pos = pos.Add(res.Blend.Scale(speed))
		pos.X = math.Max(0, math.Min(pos.X, extent-1))
		pos.Y = math.Max(0, math.Min(pos.Y, extent-1))

		if *dbg && res.Step%50 == 0 {
			log.Debug("step", "n", res.Step, "state", res.State, "confidence", res.Confidence)
			grid_world.ShowBelief(res.Belief)
		}
	}
	return ctx.Err()
}

func main() {
	log.SetLevel(log.InfoLevel)
	if *dbg {
		log.SetLevel(log.DebugLevel)
	}
	if err := runApp(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("run", "error", err)
	}
	log.Info("shutdown complete")
}
