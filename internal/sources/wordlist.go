package sources

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
)

// Wordlist expands every prefix of a brute-force list into
// "<prefix>.<domain>". Blank lines and # comments are ignored.
type Wordlist struct {
	Path string
}

func (s *Wordlist) Name() string           { return "brute" }
func (s *Wordlist) Capability() Capability { return CapabilityLocal }

func (s *Wordlist) Search(ctx context.Context, domain string) ([]string, error) {
	file, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("wordlist: %w", err)
	}
	defer file.Close()

	var words []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		sub := strings.TrimSpace(scanner.Text())
		if sub == "" || strings.HasPrefix(sub, "#") {
			continue
		}
		words = append(words, sub+"."+domain)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("wordlist: %w", err)
	}
	return words, nil
}
