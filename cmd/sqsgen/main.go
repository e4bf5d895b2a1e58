// Command sqsgen runs the Special Quasirandom Structure optimizer against
// a JSON configuration document and writes the resulting top-K result
// pack next to it.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sarat-asymmetrica/sqsgen/internal/binformat"
	"github.com/sarat-asymmetrica/sqsgen/internal/config"
	"github.com/sarat-asymmetrica/sqsgen/internal/coordinator"
	"github.com/sarat-asymmetrica/sqsgen/internal/optimizer"
	"github.com/sarat-asymmetrica/sqsgen/internal/results"
	"github.com/sarat-asymmetrica/sqsgen/internal/setup"
	"github.com/sarat-asymmetrica/sqsgen/internal/sqserr"
	"github.com/sarat-asymmetrica/sqsgen/internal/stats"
)

// Version, BuildTime, and Commit are set with -ldflags at build time.
var (
	Version   = "dev"
	BuildTime = "unknown"
	Commit    = "unknown"
)

const (
	flagRanks     = "ranks"
	flagRankIndex = "rank-index"
	flagHeadAddr  = "head-addr"
)

var rootCmd = &cobra.Command{
	Use:           "sqsgen [config]",
	Short:         "Optimize a crystal structure towards a target short-range-order tensor",
	Args:          cobra.MaximumNArgs(1),
	Version:       fmt.Sprintf("%s (built %s, commit %s)", Version, BuildTime, Commit),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runOptimization,
}

func init() {
	rootCmd.Flags().Int(flagRanks, 1, "total number of cooperating processes; >1 coordinates over TCP instead of running standalone")
	rootCmd.Flags().Int(flagRankIndex, 0, "this process's rank index; rank 0 is the head and writes the merged result pack")
	rootCmd.Flags().String(flagHeadAddr, "127.0.0.1:7777", "address the head listens on and every other rank dials")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError(err)
		os.Exit(1)
	}
	os.Exit(0)
}

func runOptimization(cmd *cobra.Command, args []string) error {
	path := "sqs.json"
	if len(args) > 0 {
		path = args[0]
	}
	ranks, _ := cmd.Flags().GetInt(flagRanks)
	if ranks <= 0 {
		ranks = 1
	}
	rankIndex, _ := cmd.Flags().GetInt(flagRankIndex)
	headAddr, _ := cmd.Flags().GetString(flagHeadAddr)

	logger := newLogger().With(zap.Int("rank", rankIndex))
	defer logger.Sync()

	runID := uuid.New()
	logger.Info("loading configuration", zap.String("run_id", runID.String()), zap.String("path", path))

	doc, err := config.Load(path)
	if err != nil {
		return err
	}
	resolved, err := doc.Resolve(rankIndex)
	if err != nil {
		return err
	}

	contexts, err := setup.Build(resolved.Options)
	if err != nil {
		return err
	}

	threads := resolved.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}

	opt := optimizer.New(contexts, resolved.OptimizerConfig(rankIndex, ranks, logger, nil))

	var coord *coordinator.Coordinator
	var peers []io.Closer
	if ranks > 1 {
		coord, peers, err = connectRanks(rankIndex, ranks, headAddr, opt, logger)
		if err != nil {
			return err
		}
		defer closeAll(peers)
	}

	logger.Info("starting optimization run",
		zap.String("run_id", runID.String()),
		zap.Int("threads", threads),
		zap.Uint64("iterations", resolved.Iterations),
	)
	if err := opt.Run(threads); err != nil {
		return sqserr.Unknownf("optimizer", "optimization run failed: %v", err)
	}
	logger.Info("optimization run finished",
		zap.String("run_id", runID.String()),
		zap.Uint64("finished", opt.Stats.Finished()),
		zap.Float64("best_objective", opt.BestObjective()),
	)

	if coord != nil && rankIndex != 0 {
		if err := coord.ReportToHead(); err != nil {
			return sqserr.Unknownf("coordinator", "report to head: %v", err)
		}
		logger.Info("reported results to head", zap.String("run_id", runID.String()))
		return nil
	}
	if coord != nil {
		if err := coord.GatherFromWorkers(); err != nil {
			return sqserr.Unknownf("coordinator", "gather from workers: %v", err)
		}
		logger.Info("gathered results from every worker rank", zap.Int("ranks", ranks))
	}

	finalized := opt.FinalizeOrder()

	outPath := resultPackPath(path)
	if err := writeResultPack(outPath, finalized, opt.Stats, resolved); err != nil {
		return sqserr.Unknownf("output", "cannot write result pack %q: %v", outPath, err)
	}
	logger.Info("wrote result pack", zap.String("path", outPath))
	return nil
}

// connectRanks establishes this process's side of the cross-process
// coordinator: the head (rank 0) listens on headAddr and accepts one
// connection per other rank; every other rank dials the head. Per
// SPEC_FULL.md §6, TCPTransport is the backend used whenever more than one
// rank is configured; a standalone run uses no coordinator and no
// transport.
func connectRanks(rankIndex, ranks int, headAddr string, opt *optimizer.Optimizer, logger *zap.Logger) (*coordinator.Coordinator, []io.Closer, error) {
	if rankIndex == 0 {
		ln, err := coordinator.ListenTCP(headAddr)
		if err != nil {
			return nil, nil, sqserr.Unknownf("coordinator", "listen on %s: %v", headAddr, err)
		}
		defer ln.Close()

		peerTransports := make([]coordinator.Transport, 0, ranks-1)
		closers := make([]io.Closer, 0, ranks-1)
		for i := 0; i < ranks-1; i++ {
			conn, err := ln.Accept()
			if err != nil {
				return nil, nil, sqserr.Unknownf("coordinator", "accept peer %d: %v", i, err)
			}
			t := coordinator.AcceptTCP(conn)
			peerTransports = append(peerTransports, t)
			closers = append(closers, t)
		}
		logger.Info("head accepted every peer connection", zap.Int("peers", len(peerTransports)))
		return coordinator.NewHead(opt.Collection, opt.Stats, peerTransports), closers, nil
	}

	toHead, err := coordinator.DialTCP(headAddr)
	if err != nil {
		return nil, nil, sqserr.Unknownf("coordinator", "dial head at %s: %v", headAddr, err)
	}
	logger.Info("connected to head", zap.String("head_addr", headAddr))
	return coordinator.NewWorker(rankIndex, opt.Collection, opt.Stats, toHead), []io.Closer{toHead}, nil
}

func closeAll(closers []io.Closer) {
	for _, c := range closers {
		c.Close()
	}
}

func resultPackPath(configPath string) string {
	ext := filepath.Ext(configPath)
	return strings.TrimSuffix(configPath, ext) + ".sqs.result"
}

func writeResultPack(path string, collection *results.Collection, st *stats.Stats, resolved *config.Resolved) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	snapshot := binformat.ConfigSnapshot{
		Mode:          resolved.Options.Mode,
		IterationMode: resolved.Options.IterationMode,
		Iterations:    resolved.Iterations,
		ChunkSize:     resolved.ChunkSize,
		Keep:          resolved.Keep,
	}
	return binformat.WriteResultPack(f, collection, snapshot, st)
}

// newLogger builds the run's structured logger; SQSGEN_LOG_LEVEL=debug
// switches to zap's development encoder (human-readable, caller-annotated)
// in place of the default production JSON encoder.
func newLogger() *zap.Logger {
	var logger *zap.Logger
	var err error
	if strings.EqualFold(os.Getenv("SQSGEN_LOG_LEVEL"), "debug") {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// printError renders the red "Error:" banner of spec.md §7: the offending
// key, the message, and a help URL when the error names a documented
// parameter.
func printError(err error) {
	red := color.New(color.FgRed, color.Bold).SprintFunc()
	de, ok := sqserr.As(err)
	if !ok {
		fmt.Fprintf(os.Stderr, "%s %v\n", red("Error:"), err)
		return
	}
	if de.KeyPath != "" {
		fmt.Fprintf(os.Stderr, "%s %s (key=%q)\n", red("Error:"), de.Message, de.KeyPath)
	} else {
		fmt.Fprintf(os.Stderr, "%s %s\n", red("Error:"), de.Message)
	}
	if url := de.HelpURL(); url != "" {
		fmt.Fprintf(os.Stderr, "  see %s\n", url)
	}
}
