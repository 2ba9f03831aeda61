package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"google.golang.org/api/googleapi"
)

// stdin is swapped in tests
var stdin io.Reader = os.Stdin

// readIDsFromStdin reads IDs (messages, members, ...) from stdin, one per line
func readIDsFromStdin() ([]string, error) {
	var ids []string
	scanner := bufio.NewScanner(stdin)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			ids = append(ids, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading stdin: %w", err)
	}

	if len(ids) == 0 {
		return nil, fmt.Errorf("no IDs received from stdin")
	}

	return ids, nil
}

// collectIDs returns the single positional ID or the IDs piped on stdin
func collectIDs(id string, fromStdin bool, what string) ([]string, error) {
	if fromStdin {
		return readIDsFromStdin()
	}
	if id == "" {
		return nil, fmt.Errorf("either provide %s or use --stdin", what)
	}
	return []string{id}, nil
}

// limiter gates each request of a batch
type limiter interface {
	Wait(ctx context.Context) error
	Backoff(d time.Duration)
}

// batchProcessor handles batch operations with progress reporting
type batchProcessor struct {
	total     int
	processed int
	errs      *multierror.Error
	verbose   bool
	limiter   limiter
	errOut    io.Writer
}

func newBatchProcessor(total int, verbose bool, l limiter) *batchProcessor {
	return &batchProcessor{
		total:   total,
		verbose: verbose,
		limiter: l,
		errOut:  os.Stderr,
	}
}

// failed returns the number of failed items
func (bp *batchProcessor) failed() int {
	if bp.errs == nil {
		return 0
	}
	return len(bp.errs.Errors)
}

// succeeded returns the number of successful items
func (bp *batchProcessor) succeeded() int {
	return bp.processed - bp.failed()
}

// process executes fn for each ID with progress reporting. Individual
// failures are collected; only cancellation stops the batch early.
func (bp *batchProcessor) process(ctx context.Context, ids []string, fn func(context.Context, string) error) error {
	for i, id := range ids {
		if bp.limiter != nil {
			if err := bp.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		if err := fn(ctx, id); err != nil {
			if bp.limiter != nil && isRateLimited(err) {
				bp.limiter.Backoff(0)
			}
			bp.errs = multierror.Append(bp.errs, fmt.Errorf("ID %s: %w", id, err))
			if bp.verbose {
				fmt.Fprintf(bp.errOut, "Warning: failed to process %s: %v\n", id, err)
			}
		}
		bp.processed++

		if bp.verbose && len(ids) > 10 && (i+1)%10 == 0 {
			fmt.Fprintf(bp.errOut, "Progress: %d/%d\n", i+1, len(ids))
		}
	}

	return nil
}

// err returns the aggregated failures, or nil
func (bp *batchProcessor) err() error {
	return bp.errs.ErrorOrNil()
}

// report prints final batch processing report
func (bp *batchProcessor) report(w io.Writer) {
	fmt.Fprintf(w, "Processed %d/%d items\n", bp.succeeded(), bp.total)
	if bp.failed() > 0 {
		fmt.Fprintf(w, "Errors: %d\n", bp.failed())
		if bp.verbose {
			for _, err := range bp.errs.Errors {
				fmt.Fprintf(bp.errOut, "  - %v\n", err)
			}
		}
	}
}

// isNotFound reports whether err is a 404 from a Google API
func isNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}

// isRateLimited reports whether err is a 429 from a Google API
func isRateLimited(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusTooManyRequests
}
