// Package report merges the outputs of every scan stage into the final
// result and renders it.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bios000/scouter/internal/axfr"
	"github.com/bios000/scouter/internal/massresolve"
	"github.com/bios000/scouter/internal/takeover"
	"github.com/bios000/scouter/internal/wildcard"
)

type Host struct {
	Name  string   `json:"name"`
	IPs   []string `json:"ips,omitempty"`
	CNAME []string `json:"cname,omitempty"`
}

type Report struct {
	RunID         string              `json:"run_id"`
	Domain        string              `json:"domain"`
	StartedAt     time.Time           `json:"started_at"`
	FinishedAt    time.Time           `json:"finished_at"`
	Wildcard      *wildcard.Signature `json:"wildcard,omitempty"`
	Hosts         []Host              `json:"hosts"`
	Takeovers     []takeover.Finding  `json:"takeovers"`
	ZoneTransfers []axfr.Finding      `json:"zone_transfers"`
	IPBlocks      []string            `json:"ip_blocks,omitempty"`
	NetRanges     []string            `json:"net_ranges,omitempty"`
	Unresolved    []string            `json:"unresolved,omitempty"`
}

// Input is everything the pipeline hands over for assembly.
type Input struct {
	Domain        string
	StartedAt     time.Time
	Wildcard      *wildcard.Signature
	Hosts         []massresolve.Record
	Takeovers     []takeover.Finding
	ZoneTransfers []axfr.Finding
	NetRanges     []string
	Unresolved    []string
}

// Assemble builds the report. Hosts confirmed by a takeover finding or
// leaked by a zone transfer are verified hosts too, even without an
// address of their own.
func Assemble(in Input) *Report {
	hosts := make(map[string]*Host)
	add := func(name string) *Host {
		name = strings.ToLower(name)
		h, ok := hosts[name]
		if !ok {
			h = &Host{Name: name}
			hosts[name] = h
		}
		return h
	}

	var allIPs []string
	for _, rec := range in.Hosts {
		h := add(rec.Name)
		h.IPs = sortIPs(append(h.IPs, rec.A...))
		if len(h.CNAME) == 0 {
			h.CNAME = rec.CNAME
		}
		allIPs = append(allIPs, rec.A...)
	}
	for _, f := range in.Takeovers {
		h := add(f.Hostname)
		if len(h.CNAME) == 0 {
			h.CNAME = []string{f.CNAME}
		}
	}
	for _, zt := range in.ZoneTransfers {
		for _, name := range zt.LeakedHostnames {
			add(name)
		}
	}

	r := &Report{
		RunID:         uuid.NewString(),
		Domain:        in.Domain,
		StartedAt:     in.StartedAt,
		FinishedAt:    time.Now(),
		Wildcard:      in.Wildcard,
		Hosts:         make([]Host, 0, len(hosts)),
		Takeovers:     in.Takeovers,
		ZoneTransfers: in.ZoneTransfers,
		IPBlocks:      IPBlocks(allIPs),
		NetRanges:     in.NetRanges,
		Unresolved:    in.Unresolved,
	}
	for _, h := range hosts {
		r.Hosts = append(r.Hosts, *h)
	}
	sort.Slice(r.Hosts, func(i, j int) bool {
		return r.Hosts[i].Name < r.Hosts[j].Name
	})
	if r.Takeovers == nil {
		r.Takeovers = []takeover.Finding{}
	}
	if r.ZoneTransfers == nil {
		r.ZoneTransfers = []axfr.Finding{}
	}
	return r
}

func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteText prints one host per line followed by the findings.
func (r *Report) WriteText(w io.Writer) error {
	var b strings.Builder

	for _, h := range r.Hosts {
		line := h.Name
		if len(h.IPs) > 0 {
			line += "\t" + strings.Join(h.IPs, ",")
		} else if len(h.CNAME) > 0 {
			line += "\tCNAME " + h.CNAME[len(h.CNAME)-1]
		}
		b.WriteString(line + "\n")
	}

	if r.Wildcard != nil {
		fmt.Fprintf(&b, "\n[wildcard] %s\n", r.Wildcard)
	}
	for _, f := range r.Takeovers {
		fmt.Fprintf(&b, "[takeover] %s -> %s (%s): %s\n", f.Hostname, f.CNAME, f.Service, f.Evidence)
	}
	for _, zt := range r.ZoneTransfers {
		fmt.Fprintf(&b, "[axfr] %s (%s) leaked %d names\n", zt.Nameserver, zt.Address, len(zt.LeakedHostnames))
	}
	for _, block := range r.NetRanges {
		fmt.Fprintf(&b, "[netrange] %s\n", block)
	}
	if len(r.Unresolved) > 0 {
		fmt.Fprintf(&b, "\n%d candidates left unresolved\n", len(r.Unresolved))
	}

	_, err := io.WriteString(w, b.String())
	return err
}
