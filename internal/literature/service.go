package literature

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Service fans in every configured source concurrently, deduplicates by
// stable key, and forwards papers in arrival order until the limit is hit.
type Service struct {
	sources []Source
}

func NewService(sources ...Source) *Service {
	return &Service{sources: sources}
}

func (s *Service) SourceNames() []string {
	names := make([]string, 0, len(s.sources))
	for _, src := range s.sources {
		names = append(names, src.Name())
	}
	return names
}

// StreamPapers runs the aggregation. A degraded source is logged and skipped;
// the call fails only when every source failed before anything was emitted.
func (s *Service) StreamPapers(ctx context.Context, query string, limit int, onPaper func(Paper) error) error {
	if len(s.sources) == 0 {
		return errors.New("no literature sources configured")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	papers := make(chan Paper, 32)
	var (
		mu      sync.Mutex
		srcErrs []error
	)

	var g errgroup.Group
	for _, src := range s.sources {
		src := src
		g.Go(func() error {
			err := src.Search(ctx, query, limit, func(p Paper) error {
				select {
				case papers <- p:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			})
			if err != nil && ctx.Err() == nil {
				mu.Lock()
				srcErrs = append(srcErrs, fmt.Errorf("%s: %w", src.Name(), err))
				mu.Unlock()
			}
			// Source failures are collected, not propagated: one slow or
			// broken source must not cancel its siblings.
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(papers)
	}()

	drain := func() {
		cancel()
		for range papers {
		}
	}

	seen := make(map[string]bool)
	emitted := 0
	for p := range papers {
		key := p.StableKey()
		if key != "" {
			if seen[key] {
				continue
			}
			seen[key] = true
		}
		if err := onPaper(p); err != nil {
			drain()
			return err
		}
		emitted++
		if emitted >= limit {
			drain()
			break
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if emitted == 0 && len(srcErrs) == len(s.sources) {
		return errors.Join(srcErrs...)
	}
	for _, err := range srcErrs {
		log.Printf("literature: source degraded: %v", err)
	}
	return nil
}
