// Package email is the untrusted edge of the pipeline. It reads messages from
// a mailbox, hardens them into intake candidates and hands each one to the
// publish gateway, which opens the trace.
//
//	ts, err := email.NewTokenSource(ctx, conf.Gmail)
//	src, err := email.NewGmailSource(ctx, conf.Gmail.Query, option.WithTokenSource(ts))
//	adapter, err := email.NewAdapter(src, gateway, logger, email.WithDedupWindow(conf.Poll.DedupWindow))
//	summary := adapter.Poll(ctx, conf.Poll.MaxResults)
//
// Nothing here mutates the mailbox or retries a failed message.
package email
