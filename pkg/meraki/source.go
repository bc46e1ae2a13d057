package meraki

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gokaycavdar/go-nightguard/pkg/models"
)

// NetworkSource exposes the wireless events of one network as an event
// source for the baseline assembler.
type NetworkSource struct {
	client    *Client
	networkID string
}

// Source binds the client to a network.
func (c *Client) Source(networkID string) *NetworkSource {
	return &NetworkSource{client: c, networkID: networkID}
}

// NetworkID returns the bound network.
func (s *NetworkSource) NetworkID() string {
	return s.networkID
}

// Events returns the events in [start, end).
func (s *NetworkSource) Events(ctx context.Context, start, end time.Time) ([]models.RawEvent, error) {
	return s.client.NetworkEvents(ctx, s.networkID, start, end)
}

// ErrNoActiveNetwork is returned by SelectNetwork when no wireless network
// of the organization reported recent events.
var ErrNoActiveNetwork = errors.New("meraki: no active wireless network")

// recentCheckSize is how many recent events are requested to decide
// whether a network is live.
const recentCheckSize = 3

// Active reports whether a network returned any recent wireless event.
func (c *Client) Active(ctx context.Context, networkID string) (bool, error) {
	events, err := c.RecentEvents(ctx, networkID, recentCheckSize)
	if err != nil {
		return false, err
	}
	return len(events) > 0, nil
}

// SelectNetwork returns the first wireless network of an organization that
// reported recent events. Networks that fail the check are skipped.
func (c *Client) SelectNetwork(ctx context.Context, orgID string) (*Network, error) {
	nets, err := c.OrganizationNetworks(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("networks of %s: %w", orgID, err)
	}
	for i := range nets {
		if !nets[i].HasProduct(productWireless) {
			continue
		}
		ok, err := c.Active(ctx, nets[i].ID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.Logger.Warn("network check failed", "network", nets[i].Name, "error", err)
			continue
		}
		if !ok {
			c.Logger.Info("network has no recent wireless events", "network", nets[i].Name)
			continue
		}
		return &nets[i], nil
	}
	return nil, fmt.Errorf("%w in organization %s", ErrNoActiveNetwork, orgID)
}

// HasProduct reports whether the network carries the given product type.
func (n Network) HasProduct(product string) bool {
	for _, p := range n.ProductTypes {
		if p == product {
			return true
		}
	}
	return false
}
