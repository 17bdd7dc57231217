// Package supervisor manages Claude CLI processes: it locates the binary,
// spawns runs with a strictly ordered argument vector, extracts the
// session id from the first lines of output, parses the streaming JSON
// protocol into typed events, and accumulates token usage per session.
//
// Every spawned process is tracked by a registry that guarantees it is
// eventually gone, whether it exits normally, is interrupted, or has to be
// killed. Each run delivers its events on a dedicated channel, in the
// order they were read from the child's stdout.
//
// Basic usage:
//
//	sup, err := supervisor.New(supervisor.WithLogger(logger))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer sup.Close(context.Background())
//
//	runID, events, err := sup.StartConversation(ctx, "explain this repo", "", ".")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	for ev := range events {
//		switch ev := ev.(type) {
//		case supervisor.SessionReady:
//			fmt.Println("session:", ev.SessionID)
//		case supervisor.TextDelta:
//			fmt.Print(ev.Text)
//		case supervisor.Completed:
//			fmt.Println("\ndone")
//		}
//	}
//	_ = runID
package supervisor
