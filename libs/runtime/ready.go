package runtime

import (
	"context"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// ReadyCheck is a named dependency check for /readyz. A nil Check is skipped.
type ReadyCheck struct {
	Name  string
	Check func(context.Context) error
}

const readyCheckTimeout = 2 * time.Second

func NewBaseMuxWithReady(checks ...ReadyCheck) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if failures := runChecks(r.Context(), checks); len(failures) > 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(strings.Join(failures, "; ")))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// runChecks runs every check in parallel and returns failures in check order.
func runChecks(ctx context.Context, checks []ReadyCheck) []string {
	results := make([]string, len(checks))
	var g errgroup.Group
	for i, check := range checks {
		if check.Check == nil {
			continue
		}
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, readyCheckTimeout)
			defer cancel()
			if err := check.Check(cctx); err != nil {
				name := check.Name
				if name == "" {
					name = "dependency"
				}
				results[i] = name + ": " + err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()

	var failures []string
	for _, f := range results {
		if f != "" {
			failures = append(failures, f)
		}
	}
	return failures
}
