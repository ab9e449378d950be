// Package process runs and supervises a single external executable.
//
// A Controller owns at most one OS process at a time:
//   - The executable is launched through sh -c with its argument string
//     forwarded verbatim, in its own process group
//   - stdout and stderr are read line by line and delivered to a LogSink in
//     batches of up to 20 entries or every 50ms
//   - every lifecycle transition is published to a StateObserver as a RunState
//   - Stop sends SIGTERM, escalates to SIGKILL after a grace period and always
//     returns within a bounded time
//
// Restart decisions live one level up, in package supervisor.
//
// Example usage:
//
//	c := process.NewController(process.ControllerOptions{
//	    Sink: process.LogSinkFunc(func(entries []process.LogEntry) {
//	        for _, e := range entries {
//	            fmt.Println(e)
//	        }
//	    }),
//	})
//	c.Start("/usr/local/bin/app", process.Config{Executable: "app", Arguments: "--port 8080"})
//	defer c.Stop()
package process
