// Package analytics is the application-facing side of the event pipeline.
//
// A Client buffers events in memory and delivers them in batches: when the
// buffer reaches BatchSize, every FlushInterval, and once more on Close.
// Track never reports delivery problems to the caller; failed batches are
// kept and retried on the next flush. A Server sends each event immediately
// and returns the delivery error, for request handlers that must know.
//
//	client, err := analytics.NewClient(analytics.Config{APIKey: key})
//	if err != nil {
//		return err
//	}
//	defer client.Close(context.Background())
//
//	client.Track("signup", map[string]any{"plan": "pro"}, userID)
//
// Neither type is a process-wide singleton; construct one where the
// application is wired together and pass it down.
package analytics
