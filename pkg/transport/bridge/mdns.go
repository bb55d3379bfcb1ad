package bridge

import (
	"context"
	"fmt"
	"net"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"

	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/transport"
)

// mDNS constants.
const (
	// ServiceType is the DNS-SD service type bridges advertise.
	ServiceType = "_ledctl._tcp"

	// Domain is the mDNS domain.
	Domain = "local."

	// DefaultTTL is the advertised record TTL.
	DefaultTTL = 120 * time.Second
)

// TXT record keys.
const (
	txtName    = "name"
	txtService = "svc"
	txtRSSI    = "rssi"
)

// AdvertiserConfig configures mDNS advertisement.
type AdvertiserConfig struct {
	// Interface restricts advertisement to one network interface.
	// Empty means all interfaces.
	Interface string

	// TTL of the advertised records. Zero uses DefaultTTL.
	TTL time.Duration
}

// Advertiser publishes bridged controllers over mDNS.
type Advertiser struct {
	cfg AdvertiserConfig

	mu      sync.Mutex
	servers map[string]*zeroconf.Server
}

// NewAdvertiser creates an advertiser.
func NewAdvertiser(cfg AdvertiserConfig) *Advertiser {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	return &Advertiser{
		cfg:     cfg,
		servers: make(map[string]*zeroconf.Server),
	}
}

// Advertise publishes the controller id reachable on port. An existing
// advertisement for id is replaced.
func (a *Advertiser) Advertise(id, name string, port int, rssi int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if old, ok := a.servers[id]; ok {
		old.Shutdown()
		delete(a.servers, id)
	}

	server, err := zeroconf.Register(
		id,
		ServiceType,
		Domain,
		port,
		encodeTXT(name, rssi),
		interfaces(a.cfg.Interface),
		zeroconf.TTL(uint32(a.cfg.TTL.Seconds())),
	)
	if err != nil {
		return fmt.Errorf("register %s: %w", id, err)
	}
	a.servers[id] = server
	return nil
}

// Stop withdraws the advertisement for id.
func (a *Advertiser) Stop(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok := a.servers[id]; ok {
		s.Shutdown()
		delete(a.servers, id)
	}
}

// StopAll withdraws every advertisement.
func (a *Advertiser) StopAll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, s := range a.servers {
		s.Shutdown()
		delete(a.servers, id)
	}
}

func encodeTXT(name string, rssi int) []string {
	return []string{
		txtName + "=" + name,
		txtService + "=" + transport.ServiceUUID,
		txtRSSI + "=" + strconv.Itoa(rssi),
	}
}

func decodeTXT(txt []string) (name string, services []string, rssi int) {
	for _, kv := range txt {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		switch k {
		case txtName:
			name = v
		case txtService:
			services = append(services, v)
		case txtRSSI:
			rssi, _ = strconv.Atoi(v)
		}
	}
	return name, services, rssi
}

func interfaces(name string) []net.Interface {
	if name == "" {
		return nil
	}
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil
	}
	return []net.Interface{*iface}
}

// peer is one browsed bridge with the addresses seen on every interface.
type peer struct {
	adv   transport.Discovered
	port  int
	addrs []string
}

// dialAddrs returns every address as host:port, best first: loopback, then
// addresses inside one of the local networks, then the rest as advertised.
func (p *peer) dialAddrs(local []*net.IPNet) []string {
	rank := func(host string) int {
		ip := net.ParseIP(host)
		switch {
		case ip == nil:
			return 2
		case ip.IsLoopback():
			return 0
		}
		for _, n := range local {
			if n.Contains(ip) {
				return 1
			}
		}
		return 2
	}

	hosts := slices.Clone(p.addrs)
	slices.SortStableFunc(hosts, func(a, b string) int { return rank(a) - rank(b) })

	out := make([]string, len(hosts))
	for i, h := range hosts {
		out[i] = net.JoinHostPort(h, strconv.Itoa(p.port))
	}
	return out
}

// localNets lists the networks of this host's interfaces.
func localNets() []*net.IPNet {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil
	}
	var nets []*net.IPNet
	for _, a := range addrs {
		if n, ok := a.(*net.IPNet); ok {
			nets = append(nets, n)
		}
	}
	return nets
}

// browse reports bridges as they appear. Entries are aggregated by instance
// name and found receives a copy whenever the address set grows.
func browse(ctx context.Context, iface string, found func(peer)) {
	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	var opts []zeroconf.ClientOption
	if ifs := interfaces(iface); ifs != nil {
		opts = append(opts, zeroconf.SelectIfaces(ifs))
	}

	go func() {
		peers := make(map[string]*peer)
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				p := entryToPeer(entry)
				if existing, seen := peers[entry.Instance]; seen {
					existing.addrs = mergeAddresses(existing.addrs, p.addrs)
					p = existing
				} else {
					peers[entry.Instance] = p
				}
				snapshot := *p
				snapshot.addrs = append([]string(nil), p.addrs...)
				found(snapshot)

			case entry, ok := <-removed:
				if !ok {
					continue
				}
				if existing, seen := peers[entry.Instance]; seen {
					existing.addrs = removeAddresses(existing.addrs, entry)
					if len(existing.addrs) == 0 {
						delete(peers, entry.Instance)
					}
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		_ = zeroconf.Browse(ctx, ServiceType, Domain, entries, removed, opts...)
	}()
}

func entryToPeer(entry *zeroconf.ServiceEntry) *peer {
	name, services, rssi := decodeTXT(entry.Text)
	return &peer{
		adv: transport.Discovered{
			ID:           entry.Instance,
			Name:         name,
			RSSI:         rssi,
			ServiceUUIDs: services,
		},
		port:  entry.Port,
		addrs: entryAddresses(entry),
	}
}

func entryAddresses(entry *zeroconf.ServiceEntry) []string {
	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}
	return addrs
}

// mergeAddresses appends addresses not already present.
func mergeAddresses(existing, added []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, a := range existing {
		seen[a] = true
	}
	for _, a := range added {
		if !seen[a] {
			existing = append(existing, a)
			seen[a] = true
		}
	}
	return existing
}

// removeAddresses drops the addresses carried by entry.
func removeAddresses(addrs []string, entry *zeroconf.ServiceEntry) []string {
	gone := make(map[string]bool)
	for _, a := range entryAddresses(entry) {
		gone[a] = true
	}
	out := addrs[:0]
	for _, a := range addrs {
		if !gone[a] {
			out = append(out, a)
		}
	}
	return out
}
