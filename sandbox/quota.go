package sandbox

import (
	"go.uber.org/zap"
)

// Quota accounts allocations made on behalf of one VM against a byte budget.
//
// A Quota is owned by exactly one Sandbox and is only touched from calls made
// by that Sandbox's VM, so it carries no lock.
type Quota struct {
	limit     int64
	remaining int64
	logger    *zap.Logger
}

// NewQuota creates a quota with limit bytes available.
func NewQuota(limit int64, logger *zap.Logger) *Quota {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Quota{
		limit:     limit,
		remaining: limit,
		logger:    logger,
	}
}

// Realloc resizes a block from osize to nsize bytes. osize is 0 for a fresh
// allocation and nsize is 0 for a free. resize performs the underlying
// operation and may be nil when only the accounting is needed.
//
// Frees always succeed and credit osize back. Growth beyond the remaining
// budget is refused with ErrQuotaExceeded before resize is called. When resize
// fails the quota is left untouched.
func (q *Quota) Realloc(osize, nsize int64, resize func() error) error {
	if nsize == 0 {
		if resize != nil {
			_ = resize()
		}
		q.remaining += osize
		return nil
	}

	if nsize > osize && q.remaining < nsize-osize {
		q.logger.Error("out of memory",
			zap.Int64("requested", nsize-osize),
			zap.Int64("remaining", q.remaining),
			zap.Int64("limit", q.limit))
		return ErrQuotaExceeded
	}

	if resize != nil {
		if err := resize(); err != nil {
			return err
		}
	}

	if nsize > osize {
		q.remaining -= nsize - osize
	} else {
		q.remaining += osize - nsize
	}
	return nil
}

// Overdraw is Realloc without the refusal. It is used for allocations the VM
// cannot survive failing, and may leave Remaining negative until enough is
// freed.
func (q *Quota) Overdraw(osize, nsize int64, resize func() error) error {
	if resize != nil {
		if err := resize(); err != nil {
			return err
		}
	}

	before := q.remaining
	q.remaining += osize - nsize
	if before >= 0 && q.remaining < 0 {
		q.logger.Warn("memory quota overdrawn",
			zap.Int64("remaining", q.remaining),
			zap.Int64("limit", q.limit))
	}
	return nil
}

// Alloc is shorthand for a fresh allocation of n bytes.
func (q *Quota) Alloc(n int64, alloc func() error) error {
	return q.Realloc(0, n, alloc)
}

// Free releases a block of n bytes.
func (q *Quota) Free(n int64) {
	_ = q.Realloc(n, 0, nil)
}

// Remaining returns the number of bytes still available.
func (q *Quota) Remaining() int64 {
	return q.remaining
}

// Limit returns the configured budget.
func (q *Quota) Limit() int64 {
	return q.limit
}

// Used returns the number of bytes currently accounted.
func (q *Quota) Used() int64 {
	return q.limit - q.remaining
}
