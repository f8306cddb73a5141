package massresolve

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Record is one name with its answers. A is a sorted set; CNAME keeps
// the chain order, so the last element is the canonical target.
type Record struct {
	Name  string   `json:"name"`
	A     []string `json:"a,omitempty"`
	CNAME []string `json:"cname,omitempty"`
}

func (r Record) Resolved() bool { return len(r.A) > 0 }

// Canonical is the final CNAME target, or "" when there is none.
func (r Record) Canonical() string {
	if len(r.CNAME) == 0 {
		return ""
	}
	return r.CNAME[len(r.CNAME)-1]
}

type Result struct {
	Resolved  []Record
	CNAMEOnly []Record
	// Skipped counts output lines that could not be decoded.
	Skipped int
}

// ParseError describes a malformed output line. It is logged and the
// line skipped; it never aborts a run.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("massdns output line %d: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

type line struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Data   struct {
		Answers []struct {
			Type string `json:"type"`
			Data string `json:"data"`
		} `json:"answers"`
	} `json:"data"`
}

// Parse reads massdns "-o J" output. Lines for the same name are merged;
// names with neither A nor CNAME answers are dropped.
func Parse(r io.Reader) (*Result, []error) {
	type acc struct {
		a     map[string]bool
		cname []string
	}
	byName := make(map[string]*acc)
	var errs []error

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)

	n := 0
	for sc.Scan() {
		n++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}

		var ln line
		if err := json.Unmarshal([]byte(text), &ln); err != nil {
			errs = append(errs, &ParseError{Line: n, Err: err})
			continue
		}
		if ln.Name == "" {
			errs = append(errs, &ParseError{Line: n, Err: fmt.Errorf("missing name")})
			continue
		}
		if ln.Status != "NOERROR" {
			continue
		}

		name := normalize(ln.Name)
		cur := byName[name]
		if cur == nil {
			cur = &acc{a: make(map[string]bool)}
			byName[name] = cur
		}
		for _, ans := range ln.Data.Answers {
			switch ans.Type {
			case "A":
				cur.a[strings.TrimSpace(ans.Data)] = true
			case "CNAME":
				target := normalize(ans.Data)
				if !contains(cur.cname, target) {
					cur.cname = append(cur.cname, target)
				}
			}
		}
	}
	if err := sc.Err(); err != nil {
		errs = append(errs, &ParseError{Line: n + 1, Err: err})
	}

	res := &Result{Skipped: len(errs)}
	for name, cur := range byName {
		rec := Record{Name: name, CNAME: cur.cname}
		for ip := range cur.a {
			rec.A = append(rec.A, ip)
		}
		sort.Strings(rec.A)

		switch {
		case len(rec.A) > 0:
			res.Resolved = append(res.Resolved, rec)
		case len(rec.CNAME) > 0:
			res.CNAMEOnly = append(res.CNAMEOnly, rec)
		}
	}
	sortRecords(res.Resolved)
	sortRecords(res.CNAMEOnly)
	return res, errs
}

func normalize(name string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(name)), ".")
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func sortRecords(recs []Record) {
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].Name < recs[j].Name
	})
}
