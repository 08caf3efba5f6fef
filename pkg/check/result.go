package check

import (
	"encoding/json"
	"fmt"
	"time"
)

// Result captures the outcome of a single breach check.
// A Result either carries both counts or an error, never both.
// The zero Result is a failure with no error attached; use Succeeded and
// Failed to build real ones.
type Result struct {
	ok        bool
	total     int
	breached  int
	err       error
	timestamp time.Time
}

// Succeeded returns a successful Result. Counts that cannot describe a
// real credential store produce a failed Result wrapping ErrInvalidCounts.
func Succeeded(total, breached int) Result {
	if total < 0 || breached < 0 || breached > total {
		return Failed(fmt.Errorf("%w: total=%d breached=%d", ErrInvalidCounts, total, breached))
	}
	return Result{
		ok:        true,
		total:     total,
		breached:  breached,
		timestamp: time.Now(),
	}
}

// Failed returns a failed Result carrying err verbatim.
func Failed(err error) Result {
	if err == nil {
		err = ErrUnknown
	}
	return Result{
		err:       err,
		timestamp: time.Now(),
	}
}

// OK reports whether the check produced counts.
func (r Result) OK() bool {
	return r.ok
}

// Counts returns the saved and breached counts. ok is false for a failed
// Result, in which case both counts are zero.
func (r Result) Counts() (total, breached int, ok bool) {
	return r.total, r.breached, r.ok
}

// Err returns the failure, or nil for a successful Result.
func (r Result) Err() error {
	return r.err
}

// Timestamp is when the outcome was determined.
func (r Result) Timestamp() time.Time {
	return r.timestamp
}

func (r Result) String() string {
	if r.ok {
		return fmt.Sprintf("total=%d breached=%d", r.total, r.breached)
	}
	return fmt.Sprintf("error=%v", r.err)
}

type resultJSON struct {
	OK        bool      `json:"ok"`
	Total     *int      `json:"total,omitempty"`
	Breached  *int      `json:"breached,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// MarshalJSON implements json.Marshaler.
func (r Result) MarshalJSON() ([]byte, error) {
	out := resultJSON{OK: r.ok, Timestamp: r.timestamp}
	if r.ok {
		total, breached := r.total, r.breached
		out.Total = &total
		out.Breached = &breached
	} else if r.err != nil {
		out.Error = r.err.Error()
	}
	return json.Marshal(out)
}
