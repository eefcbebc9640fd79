/*
Package client is a small HTTP client for a running norris-operator agent.

While the agent runs it holds the unit's state database, so one-shot
commands send events through the agent instead of opening the store:

	c := client.NewClient("127.0.0.1:9090")
	result, err := c.Dispatch(ctx, "config-changed")

Dispatch returns the handler's outcome ("ok", "deferred", "ignored" or
"error") in EventResult; only transport and protocol failures are errors.
*/
package client
