package session

import (
	"context"
	"log"
	"time"

	"ride-detector/internal/detect"
	"ride-detector/internal/gps"
)

// UpdatePeers atomically replaces the cluster snapshot. The session's own
// entries are dropped. The slice is never mutated after it is stored.
func (c *Classifier) UpdatePeers(peers []gps.Peer) {
	snap := make([]gps.Peer, 0, len(peers))
	for _, p := range peers {
		if p.SessionID == c.id {
			continue
		}
		snap = append(snap, p)
	}
	c.peers.Store(&snap)
	if c.metrics != nil {
		c.metrics.ActivePeers.Set(float64(len(snap)))
	}
}

// Peers returns the current snapshot.
func (c *Classifier) Peers() []gps.Peer {
	snap := c.peers.Load()
	if snap == nil {
		return nil
	}
	return *snap
}

// corroborated reports whether any peer agrees with f in position and speed.
func (c *Classifier) corroborated(f gps.Fix) bool {
	for _, p := range c.Peers() {
		if detect.ValidateCluster([]gps.Fix{f, p.Fix}, c.th) {
			return true
		}
	}
	return false
}

// StartPeerPolling launches a background loop pulling peers reported within
// window from feed every interval. It stops on ctx cancellation or Close.
// A running poller is stopped first, so at most one polls at a time.
func (c *Classifier) StartPeerPolling(parent context.Context, feed PeerFeed, interval, window time.Duration) {
	if feed == nil || interval <= 0 {
		return
	}
	c.stopPolling()
	ctx, cancel := context.WithCancel(parent)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cancel()
		return
	}
	c.pollCancel = cancel
	c.pollWG.Add(1)
	c.mu.Unlock()
	go func() {
		defer c.pollWG.Done()
		// immediate poll on start
		c.pollPeers(ctx, feed, window)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.pollPeers(ctx, feed, window)
			}
		}
	}()
}

// pollPeers refreshes the snapshot. A failed poll clears it so that
// classification falls back to local history alone.
func (c *Classifier) pollPeers(ctx context.Context, feed PeerFeed, window time.Duration) {
	if c.metrics != nil {
		c.metrics.PeerPolls.Inc()
	}
	peers, err := feed.ActivePeers(ctx, time.Now().Add(-window))
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Printf("[%s] peer poll failed: %v", c.id, err)
		if c.metrics != nil {
			c.metrics.PeerPollErrs.Inc()
		}
		c.UpdatePeers(nil)
		return
	}
	c.UpdatePeers(peers)
}

func (c *Classifier) stopPolling() {
	c.mu.Lock()
	cancel := c.pollCancel
	c.pollCancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	c.pollWG.Wait()
}
