package resolvers

import (
	"sync"
	"sync/atomic"
	"time"
)

const maxLatencySamples = 64

// DNSServer is a recursive resolver that passed the health check. Its
// address and weight are fixed; the counters are safe for concurrent use.
type DNSServer struct {
	Address string
	Weight  int

	successes atomic.Int64
	failures  atomic.Int64

	mu        sync.Mutex
	latencies []time.Duration
}

func NewDNSServer(addr string, weight int) *DNSServer {
	if weight < 1 {
		weight = 1
	}
	return &DNSServer{Address: addr, Weight: weight}
}

// Record counts one query outcome against the server.
func (s *DNSServer) Record(latency time.Duration, err error) {
	if err != nil {
		s.failures.Add(1)
		return
	}
	s.successes.Add(1)

	s.mu.Lock()
	if len(s.latencies) == maxLatencySamples {
		s.latencies = s.latencies[1:]
	}
	s.latencies = append(s.latencies, latency)
	s.mu.Unlock()
}

func (s *DNSServer) Successes() int64 { return s.successes.Load() }

func (s *DNSServer) Failures() int64 { return s.failures.Load() }

// AvgLatency averages the most recent successful queries.
func (s *DNSServer) AvgLatency() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.latencies) == 0 {
		return 0
	}
	var total time.Duration
	for _, l := range s.latencies {
		total += l
	}
	return total / time.Duration(len(s.latencies))
}
