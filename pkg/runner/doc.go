/*
Package runner implements the interactive task loop behind `canopy run`.

It reads one task per line, hands it to a TaskHandler (usually a
*router.Router) and prints the outcome. SIGINT during a run interrupts that
run only: the worker finalizes it as failed and the loop waits for the next
task. SIGINT while idle, EOF or "exit" end the loop.

# Usage

	r := runner.New(rt,
		runner.WithIO(os.Stdin, os.Stdout),
		runner.WithRenderer(tui.RendererFor(os.Stdout)),
	)

	if err := r.Run(ctx); err != nil {
		log.Fatal(err)
	}
*/
package runner
