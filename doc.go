// Package relaunch re-enters a Go program inside an isolated execution
// context and manages its orderly shutdown.
//
// A program calls Main (or Relauncher.Launch) at the top of main. If the
// process already runs inside an isolated context the call returns at once
// and main carries on. Otherwise the relauncher captures the program's
// entry, resolves the isolated path list (agent paths found in the launch
// arguments followed by the system loader's paths), hands everything to a
// launcher, waits for every non-daemon thread the application spawned, and
// exits with status 0.
//
// Basic usage:
//
//	func main() {
//	    cfg := relaunch.DefaultConfig()
//	    cfg.Entry = run
//	    relaunch.Main(cfg, os.Args[1:])
//
//	    // Only reached in an already isolated process.
//	    if err := run(context.Background(), os.Args[1:]); err != nil {
//	        log.Fatal(err)
//	    }
//	}
//
//	func run(ctx context.Context, args []string) error {
//	    // application logic, running with an isolated loader in ctx
//	}
//
// With IsolationExec the binary is re-executed and the child's own Main
// returns immediately, so the code after Main is the isolated application.
package relaunch
