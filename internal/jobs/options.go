package jobs

import (
	"time"

	"docflow/internal/queue"
)

// RetryPolicy controls re-invocation after retryable failures.
type RetryPolicy struct {
	MaxRetries int
	Countdown  time.Duration
	// Incremental multiplies Countdown by the retry number.
	Incremental bool
}

// Options are the per-type execution defaults copied onto every job.
type Options struct {
	Device    queue.Device
	Priority  int
	Timeout   time.Duration // zero means no limit
	ResultTTL time.Duration // zero falls back to the registry default
	Retry     RetryPolicy
	// Router exposes the type on the HTTP surface.
	Router      bool
	Description string
}

func (o Options) normalized(defaultTTL time.Duration) (Options, error) {
	device, err := queue.ParseDevice(string(o.Device))
	if err != nil {
		return o, err
	}
	o.Device = device
	if o.ResultTTL == 0 {
		o.ResultTTL = defaultTTL
	}
	if o.Timeout < 0 || o.ResultTTL < 0 || o.Retry.MaxRetries < 0 || o.Retry.Countdown < 0 {
		return o, errSignedOption
	}
	return o, nil
}
