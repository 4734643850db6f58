package api

import (
	"context"

	"github.com/nerrad567/thinglink-core/internal/provider"
	"github.com/nerrad567/thinglink-core/internal/status"
)

// relayEvents forwards coordinator events, status changes and home
// changes to their hub channels until ctx ends.
func (s *Server) relayEvents(ctx context.Context) {
	events, unsubscribe := s.coordinator.Subscribe()

	removeStatus := s.status.OnChange(func(c status.Change) {
		s.hub.Broadcast(ChannelDeviceStatus, c)
	})

	removeHome := func() {}
	if s.homeEvents != nil {
		removeHome = s.homeEvents.OnHomeEvent(func(ev provider.HomeEvent) {
			s.hub.Broadcast(ChannelHomeChanged, ev)
		})
	}

	s.relayers.Add(1)
	go func() {
		defer s.relayers.Done()
		defer removeHome()
		defer removeStatus()
		defer unsubscribe()

		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				s.hub.Broadcast(ChannelPairing, ev)
			case <-ctx.Done():
				return
			}
		}
	}()
}
