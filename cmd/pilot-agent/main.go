// Command pilot-agent is agent_0: the pilot's bootstrap process. It
// discovers the batch allocation, builds the scheduler and launch method
// named by its configuration, and runs the stage-in/exec/stage-out/
// updater pipeline under the agent supervisor until the pilot reaches a
// terminal state (spec.md §4, "Pilot agent (agent_0)").
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/hpc-pilot/agent/pkg/config"
	"github.com/hpc-pilot/agent/pkg/cu"
	"github.com/hpc-pilot/agent/pkg/launch"
	"github.com/hpc-pilot/agent/pkg/lrms"
	"github.com/hpc-pilot/agent/pkg/pipeline"
	"github.com/hpc-pilot/agent/pkg/profiling"
	"github.com/hpc-pilot/agent/pkg/scheduler"
	"github.com/hpc-pilot/agent/pkg/spawner"
	"github.com/hpc-pilot/agent/pkg/store"
	"github.com/hpc-pilot/agent/pkg/supervisor"
	"github.com/hpc-pilot/agent/pkg/version"
)

// Exit codes (spec.md §4.9 "Process exit codes").
const (
	exitClean         = 0
	exitFailed        = 1
	exitSignalCancel  = 2
	exitWalltimeAlarm = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	cfgPath := flag.String("config", "./agent_0.cfg", "path to the agent configuration file")
	mongoURI := flag.String("mongodb-url", os.Getenv("RADICAL_PILOT_DB_URL"), "coordination store connection URI; empty uses an in-memory store")
	printVersion := flag.Bool("version", false, "print the pilot agent version and exit")
	flag.Parse()

	if *printVersion {
		fmt.Println(version.Full())
		return exitClean
	}

	// Batch systems commonly drop a sandbox-local .env alongside the
	// agent config (queue-injected credentials, proxy settings); load it
	// before config.Load so ${VAR} expansion sees it. Its absence is
	// normal outside a queue-managed sandbox, so a missing file is not an
	// error.
	envPath := filepath.Join(filepath.Dir(*cfgPath), ".env")
	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load sandbox .env", "path", envPath, "error", err)
	}

	slog.Info("starting pilot agent", "version", version.Full(), "go", version.GoRuntime())

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		return exitFailed
	}

	sink := profiling.New(os.Stdout, time.Now())

	st, closeStore, err := openStore(context.Background(), *mongoURI, cfg.SessionID)
	if err != nil {
		slog.Error("failed to open coordination store", "error", err)
		return exitFailed
	}
	defer closeStore()

	res, err := lrms.Discover(cfg.LRMS, lrms.OSEnvironment{}, cfg.Cores)
	if err != nil {
		slog.Error("LRMS discovery failed", "error", err)
		return exitFailed
	}

	sched, nodeNames, err := buildScheduler(cfg, res)
	if err != nil {
		slog.Error("failed to build scheduler", "error", err)
		return exitFailed
	}

	taskMethod, err := launch.New(cfg.TaskLaunchMethod, exec.LookPath)
	if err != nil {
		slog.Error("task launch method unavailable", "error", err)
		return exitFailed
	}
	mpiMethod := taskMethod
	if cfg.MPILaunchMethod != "" {
		mpiMethod, err = launch.New(cfg.MPILaunchMethod, exec.LookPath)
		if err != nil {
			slog.Error("mpi launch method unavailable", "error", err)
			return exitFailed
		}
	}

	execQ := pipeline.NewQueue[*cu.Record]()
	stageInQ := pipeline.NewQueue[*cu.Record]()
	stageOutQ := pipeline.NewQueue[*cu.Record]()
	updateQ := pipeline.NewQueue[pipeline.UpdateRequest]()

	exe := pipeline.NewExec(execQ, stageInQ, stageOutQ, updateQ, pipeline.ExecConfig{
		Scheduler:    sched,
		TaskMethod:   taskMethod,
		MPIMethod:    mpiMethod,
		Spawn:        spawner.New(),
		NodeList:     nodeNames,
		CoresPerNode: res.CoresPerNode,
		Sandbox:      cfg.PilotSandbox,
		MaxTailBytes: cfg.Derived.TailSize,
	})
	stageIn := pipeline.NewStageIn(stageInQ, execQ, updateQ, pipeline.OSStager{}, cfg.PilotSandbox, cfg.Derived.QueuePollSleeptime)
	stageOut := pipeline.NewStageOut(stageOutQ, nil, updateQ, pipeline.OSStager{}, cfg.PilotSandbox, cfg.Derived.QueuePollSleeptime)

	updater := pipeline.New(st, cfg.Derived.BulkCollectionTime, 64)
	defer func() {
		if err := updater.Shutdown(context.Background()); err != nil {
			slog.Error("updater shutdown failed", "error", err)
		}
	}()
	go drainUpdates(context.Background(), updater, updateQ, cfg.Derived.QueuePollSleeptime)

	sup := supervisor.New(st, cfg, exe, stageIn, stageOut)
	sup.WatchFatal(context.Background(), updater.Fatal())

	launchSubAgents(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sink.Record(profiling.EventCUNew, cfg.PilotID, time.Now())
	finalState := sup.Run(ctx)

	switch finalState {
	case cu.PilotDone:
		return exitClean
	case cu.PilotCanceled:
		if ctx.Err() != nil {
			return exitSignalCancel
		}
		return exitWalltimeAlarm
	default:
		return exitFailed
	}
}

// buildScheduler constructs the continuous or torus scheduler named by
// cfg.Scheduler from the LRMS discovery result (spec.md §4.2).
func buildScheduler(cfg *config.Config, res *lrms.Result) (scheduler.Scheduler, []string, error) {
	names := make([]string, len(res.Nodes))
	for i, n := range res.Nodes {
		names[i] = n.Name
	}

	switch cfg.Scheduler {
	case "torus":
		if res.Torus == nil {
			return nil, nil, fmt.Errorf("scheduler: torus requested but LRMS reported no torus block")
		}
		return scheduler.NewTorus(res.Torus.Nodes, res.CoresPerNode), names, nil
	default:
		return scheduler.NewContinuous(names, res.CoresPerNode), names, nil
	}
}

// openStore connects to Mongo when uri is non-empty, otherwise falls
// back to an in-memory store suitable for single-node testing
// deployments (spec.md §6).
func openStore(ctx context.Context, uri, sessionID string) (store.Store, func(), error) {
	if uri == "" {
		st := store.NewMemoryStore()
		return st, func() {}, nil
	}
	st, err := store.Connect(ctx, uri, sessionID)
	if err != nil {
		return nil, nil, err
	}
	return st, func() { _ = st.Close(context.Background()) }, nil
}

// drainUpdates forwards UpdateRequests from the pipeline's shared queue
// into the updater's microbatcher (spec.md §4.7).
func drainUpdates(ctx context.Context, u *pipeline.Updater, q *pipeline.Queue[pipeline.UpdateRequest], sleep time.Duration) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		req, ok := q.TryPop()
		if !ok {
			time.Sleep(sleep)
			continue
		}
		if err := u.Enqueue(ctx, req); err != nil {
			slog.Error("failed to enqueue update", "error", err)
		}
	}
}

// bootstrapScriptPath is the fixed name of the sub-agent bootstrap script
// written alongside agent_0.cfg, invoked as "/bin/sh bootstrap_2.sh
// <name>" for locally-targeted sub-agents (spec.md §4.9).
func bootstrapScriptPath(sandbox string) string {
	return filepath.Join(sandbox, "bootstrap_2.sh")
}

// launchSubAgents starts every locally-targeted sub-agent named in the
// configuration (spec.md §4.9 "local vs node dispatch"). Node-targeted
// sub-agents are skipped: nothing in this binary starts them. A local
// sub-agent that exits is only logged; it does not end the pilot.
func launchSubAgents(cfg *config.Config) {
	script := bootstrapScriptPath(cfg.PilotSandbox)
	if _, err := os.Stat(script); err != nil {
		return
	}
	for name, sub := range cfg.Agents {
		if sub.Target != config.AgentTargetLocal {
			continue
		}
		cmd := exec.Command("/bin/sh", script, name)
		cmd.Dir = cfg.PilotSandbox
		if err := cmd.Start(); err != nil {
			slog.Error("failed to launch local sub-agent", "agent", name, "error", err)
			continue
		}
		go func(n string, c *exec.Cmd) {
			if err := c.Wait(); err != nil {
				slog.Warn("sub-agent exited", "agent", n, "error", err)
			}
		}(name, cmd)
	}
}
