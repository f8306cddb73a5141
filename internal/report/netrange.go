package report

import (
	"context"
	"fmt"
	"math/bits"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/likexian/whois"
	"github.com/sirupsen/logrus"

	"github.com/bios000/scouter/internal/workpool"
)

// WhoisFunc returns the raw whois record for an IP address.
type WhoisFunc func(ip string) (string, error)

// NewWhois queries the registry whois servers with a per-query timeout.
func NewWhois(timeout time.Duration) WhoisFunc {
	client := whois.NewClient()
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return func(ip string) (string, error) {
		return client.Whois(ip)
	}
}

type netRangeSet struct {
	mu       sync.Mutex
	prefixes []net.IPNet
}

func (s *netRangeSet) contains(ip net.IP) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.prefixes {
		if p.Contains(ip) {
			return true
		}
	}
	return false
}

func (s *netRangeSet) add(p net.IPNet) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, n := range s.prefixes {
		if n.IP.Equal(p.IP) && n.Mask.String() == p.Mask.String() {
			return false
		}
	}
	s.prefixes = append(s.prefixes, p)
	return true
}

func (s *netRangeSet) strings() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	nets := make([]net.IPNet, len(s.prefixes))
	copy(nets, s.prefixes)
	sort.Slice(nets, func(i, j int) bool {
		a, b := ipToUint32(nets[i].IP), ipToUint32(nets[j].IP)
		if a != b {
			return a < b
		}
		return nets[i].Mask.String() < nets[j].Mask.String()
	})
	out := make([]string, 0, len(nets))
	for _, n := range nets {
		out = append(out, n.String())
	}
	return out
}

// NetRanges maps public addresses to the network blocks their whois
// records announce. One address per /24 is looked up; when the record
// has no usable range the /24 itself is used.
func NetRanges(
	ctx context.Context,
	ips []string,
	lookup WhoisFunc,
	threads int,
	log logrus.FieldLogger,
) []string {
	if log == nil {
		log = logrus.StandardLogger()
	}

	var probes []string
	seen := make(map[string]bool)
	for _, ip := range sortIPs(ips) {
		if isPrivate(ip) {
			continue
		}
		octets := strings.Split(ip, ".")
		base := strings.Join(octets[:3], ".")
		if seen[base] {
			continue
		}
		seen[base] = true
		probes = append(probes, ip)
	}

	set := &netRangeSet{}
	workpool.Run(ctx, probes, threads, func(_ context.Context, ip string) {
		addr := net.ParseIP(ip)
		if set.contains(addr) {
			return
		}

		var block *net.IPNet
		body, err := lookup(ip)
		if err == nil {
			block = parseWhoisRange(body)
		}
		if block == nil {
			mask := net.CIDRMask(24, 32)
			block = &net.IPNet{IP: addr.Mask(mask), Mask: mask}
			log.WithError(err).
				WithFields(logrus.Fields{"ip": ip, "range": block.String()}).
				Debug("whois netrange lookup failed, using class C")
		}
		set.add(*block)
	})
	return set.strings()
}

func parseWhoisRange(body string) *net.IPNet {
	for _, line := range strings.Split(body, "\n") {
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(parts[0]))
		if key != "inetnum" && key != "netrange" && key != "cidr" {
			continue
		}
		val := strings.TrimSpace(parts[1])

		if strings.Contains(val, "/") {
			first := strings.TrimSpace(strings.Split(val, ",")[0])
			if _, block, err := net.ParseCIDR(first); err == nil {
				return block
			}
		}
		if strings.Contains(val, "-") {
			if ips := rangeBounds(val); len(ips) == 2 {
				return coverRange(ips[0], ips[1])
			}
		}
	}
	return nil
}

// IPBlocks compacts addresses into the fewest CIDR blocks that cover
// exactly them.
func IPBlocks(ips []string) []string {
	sorted := sortIPs(ips)
	if len(sorted) == 0 {
		return nil
	}

	var ranges []string
	start := ipToUint32(net.ParseIP(sorted[0]))
	prev := start

	for i := 1; i < len(sorted); i++ {
		cur := ipToUint32(net.ParseIP(sorted[i]))
		if cur == prev+1 {
			prev = cur
			continue
		}
		ranges = append(ranges, rangeToCIDR(start, prev)...)
		start, prev = cur, cur
	}
	return append(ranges, rangeToCIDR(start, prev)...)
}

func sortIPs(ips []string) []string {
	var nums []uint32
	seen := make(map[uint32]bool)
	for _, ip := range ips {
		parsed := net.ParseIP(ip)
		if parsed == nil || parsed.To4() == nil {
			continue
		}
		val := ipToUint32(parsed)
		if seen[val] {
			continue
		}
		seen[val] = true
		nums = append(nums, val)
	}

	sort.Slice(nums, func(i, j int) bool {
		return nums[i] < nums[j]
	})

	out := make([]string, 0, len(nums))
	for _, n := range nums {
		out = append(out, uint32ToIP(n).String())
	}
	return out
}

func isPrivate(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	o := ip.To4()
	if o == nil {
		return false
	}
	return o[0] == 10 ||
		o[0] == 127 ||
		(o[0] == 169 && o[1] == 254) ||
		(o[0] == 172 && o[1] > 15 && o[1] < 32) ||
		(o[0] == 192 && o[1] == 168)
}

func rangeBounds(text string) []net.IP {
	parts := strings.FieldsFunc(text, func(r rune) bool {
		return r == '-' || r == ' '
	})
	if len(parts) < 2 {
		return nil
	}
	start := net.ParseIP(parts[0])
	end := net.ParseIP(parts[1])
	if start == nil || end == nil {
		return nil
	}
	return []net.IP{start, end}
}

// coverRange returns the smallest block aligned on start that reaches end.
func coverRange(start, end net.IP) *net.IPNet {
	s := ipToUint32(start)
	e := ipToUint32(end)
	for mask := 32; mask >= 0; mask-- {
		size := uint64(1) << (32 - uint(mask))
		network := uint64(s) &^ (size - 1)
		broadcast := network + size - 1
		if network == uint64(s) && broadcast >= uint64(e) {
			return &net.IPNet{
				IP:   uint32ToIP(uint32(network)),
				Mask: net.CIDRMask(mask, 32),
			}
		}
	}
	return nil
}

func rangeToCIDR(start, end uint32) []string {
	var blocks []string
	for {
		maxMask := 0
		if start != 0 {
			maxMask = 32 - bits.TrailingZeros32(start)
		}
		remain := uint64(end) - uint64(start) + 1
		for (uint64(1) << (32 - maxMask)) > remain {
			maxMask++
		}

		blocks = append(blocks, fmt.Sprintf("%s/%d", uint32ToIP(start), maxMask))
		next := uint64(start) + uint64(1)<<(32-maxMask)
		if next > uint64(end) {
			return blocks
		}
		start = uint32(next)
	}
}

func ipToUint32(ip net.IP) uint32 {
	o := ip.To4()
	if o == nil {
		return 0
	}
	return uint32(o[0])<<24 |
		uint32(o[1])<<16 |
		uint32(o[2])<<8 |
		uint32(o[3])
}

func uint32ToIP(n uint32) net.IP {
	return net.IPv4(
		byte(n>>24),
		byte(n>>16),
		byte(n>>8),
		byte(n),
	)
}
