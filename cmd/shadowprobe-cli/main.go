// Command shadowprobe-cli drives one run of the shadow-value engine over
// a recorded session-trace file and writes the resulting error report,
// following the teacher's cmd/kanso-cli split into a small main that reads
// a file, processes it, and prints a colorized success/failure summary.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"shadowprobe/internal/config"
	"shadowprobe/internal/engine"
	"shadowprobe/internal/hostir"
	"shadowprobe/internal/realop"
	"shadowprobe/internal/session"
	"shadowprobe/internal/shadowval"
)

func main() {
	cfg := config.Default()

	var configPath string
	root := &cobra.Command{
		Use:   "shadowprobe-cli <session.yaml>",
		Short: "Run the shadow-value engine over a recorded session trace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, cfg, args[0])
		},
	}
	root.Flags().StringVar(&configPath, "config", "", "optional shadowprobe.yaml backfilling any flag not passed explicitly")
	config.BindFlags(root, cfg)
	root.PreRunE = func(cmd *cobra.Command, args []string) error {
		return config.ApplyFileDefaults(cmd, cfg, configPath)
	}

	if err := root.Execute(); err != nil {
		color.Red("❌ %s", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, cfg *config.Config, sessionPath string) error {
	sess, err := session.Load(sessionPath)
	if err != nil {
		return fmt.Errorf("failed to read session: %w", err)
	}

	if cfg.PrintSemanticOps || cfg.PrintExprUpdates {
		logrus.SetLevel(logrus.DebugLevel)
	}

	eng := engine.New(cfg)
	eng.InitInstrumentation()

	for _, sp := range sess.SpecialOps {
		eng.DefineSpecialOp(sp.Name, sp.NArgs, sumOp())
	}

	eng.HandleClientRequest(hostir.ClientRequest{Code: hostir.ReqBegin})
	for _, call := range sess.Calls {
		eng.HandleClientRequest(buildRequest(call))
	}
	eng.HandleClientRequest(hostir.ClientRequest{Code: hostir.ReqEnd})

	out, err := os.Create(cfg.ReportPath)
	if err != nil {
		return fmt.Errorf("failed to open report file: %w", err)
	}
	defer out.Close()

	if err := eng.WriteOutput(out); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	color.Green("✅ wrote report for %d calls to %s", len(sess.Calls), cfg.ReportPath)
	return nil
}

func buildRequest(call session.Call) hostir.ClientRequest {
	code := hostir.ReqPerformOp
	if call.Single {
		code = hostir.ReqPerformOpF
	}
	if _, builtin := builtinNames[call.Op]; !builtin {
		code = hostir.ReqPerformSpecialOp
	}
	return hostir.ClientRequest{
		Code:           code,
		OpName:         call.Op,
		ResultAddr:     call.Site,
		ConcreteArgs:   call.Args,
		ConcreteResult: call.Result,
	}
}

var builtinNames = map[string]struct{}{
	"add": {}, "sub": {}, "mul": {}, "div": {}, "neg": {}, "abs": {},
	"sqrt": {}, "sin": {}, "cos": {}, "exp": {}, "log": {}, "fma": {},
}

// sumOp is the generic real-valued implementation a session's declared
// special ops get: a session file names a special op's arity, not its
// real-valued semantics, so every registered special op sums its
// arguments -- sufficient to exercise PERFORM_SPECIAL_OP's dispatch path
// and error accounting without a host-supplied implementation.
func sumOp() realop.Func {
	return func(dst *shadowval.Real, args []*shadowval.Real) {
		dst.SetFloat64(0)
		for _, a := range args {
			dst.Add(dst, a)
		}
	}
}
