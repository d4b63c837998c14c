/*
Package clients provides a client library for the registration HTTP bridge.

RegistrarClient mirrors the bridge endpoints one method per route. Reads are
retried on transient failures; writes are sent once, since a registration
that reached the wallet must not be repeated behind the user's back.

	client := clients.NewRegistrarClient("http://127.0.0.1:8080", logger)
	if _, err := client.Connect(ctx); err != nil {
	    return err
	}
	resp, err := client.Register(ctx, "alice")
*/
package clients
