// Package runtime wires config, the segmented queue and the cursor store
// into a single-node flolog instance.
//
// Example:
//
//	cfg := config.Default()
//	cfg.DataDir = "./data"
//	rt, _ := runtime.Open(runtime.Options{Config: cfg})
//	defer rt.Close()
//	_ = rt.CheckHealth(context.Background())
//	seq, _ := rt.Queue().NewAppender().Append(ctx, []byte("hello"))
//	_ = rt.Cursors().Commit(ctx, "billing", seq)
package runtime
