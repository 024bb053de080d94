package plugwise

import (
	"context"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	ServiceType   = "_plugwise._tcp"
	ServiceDomain = "local."
)

// ZeroconfProducts maps the advertised product to the marketing name.
var ZeroconfProducts = map[string]string{
	"smile":            "P1",
	"smile_thermo":     "Anna",
	"smile_open_therm": "Adam",
	"stretch":          "Stretch",
}

type DiscoveredGateway struct {
	Instance string `json:"instance"`
	Host     string `json:"host"`
	Address  string `json:"address,omitempty"`
	Port     int    `json:"port"`
	Product  string `json:"product"`
	Model    string `json:"model"`
	Version  string `json:"version,omitempty"`
}

// Discover browses the local network for Plugwise gateways until timeout or
// ctx expires.
func Discover(ctx context.Context, timeout time.Duration) ([]DiscoveredGateway, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, err
	}

	entries := make(chan *zeroconf.ServiceEntry, 10)
	discoveryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := resolver.Browse(discoveryCtx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, err
	}

	var found []DiscoveredGateway
	seen := map[string]bool{}
	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return found, nil
			}
			gw := gatewayFromEntry(entry)
			if gw == nil || seen[gw.Instance] {
				continue
			}
			seen[gw.Instance] = true
			found = append(found, *gw)
		case <-discoveryCtx.Done():
			return found, nil
		}
	}
}

func gatewayFromEntry(entry *zeroconf.ServiceEntry) *DiscoveredGateway {
	if entry == nil {
		return nil
	}
	txt := parseTXT(entry.Text)
	product := txt["product"]
	model, ok := ZeroconfProducts[product]
	if !ok {
		return nil
	}
	gw := &DiscoveredGateway{
		Instance: entry.Instance,
		Host:     strings.TrimSuffix(entry.HostName, "."),
		Port:     entry.Port,
		Product:  product,
		Model:    model,
		Version:  txt["version"],
	}
	if len(entry.AddrIPv4) > 0 {
		gw.Address = entry.AddrIPv4[0].String()
	}
	return gw
}

func parseTXT(records []string) map[string]string {
	out := make(map[string]string, len(records))
	for _, r := range records {
		k, v, _ := strings.Cut(r, "=")
		out[strings.ToLower(k)] = v
	}
	return out
}
