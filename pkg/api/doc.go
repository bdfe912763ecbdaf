/*
Package api implements the HTTP status server of a herald component.

The server is read-only. It reports process health, readiness of the
transport, manager and scheduler, the Prometheus metrics, and a JSON view
of the event repository and the peers the reconciler has heard from.

# Endpoints

	GET /health    component health, repository counts and build version
	GET /ready     owner address set and critical components healthy
	GET /live      plain liveness check
	GET /metrics   Prometheus exposition
	GET /events    produced, subscribed and periodic events with sizes
	GET /peers     peers and the time each was last heard

# Usage

	hs := api.NewHealthServer(n, version)
	go func() {
		if err := hs.Start(cfg.Metrics.Addr); err != nil {
			log.Logger.Error().Err(err).Msg("Status server failed")
		}
	}()
	defer hs.Shutdown(context.Background())

Any value with Address, Manager and Peers methods can be served, which is
how the tests drive the handlers without a network.
*/
package api
