package driver

import "github.com/cockroachdb/errors"

var (
	// ErrNoSuitableAdapter is returned when no enumerated adapter satisfies
	// the requested capabilities. The process cannot continue.
	ErrNoSuitableAdapter = errors.New("no suitable adapter found")

	// ErrDeviceLost marks a device that stopped making progress, either
	// reported by the driver or inferred from a fence wait timeout.
	ErrDeviceLost = errors.New("device lost")

	// ErrWaitTimeout is returned by Fence.Wait when the timeout elapsed
	// before the fence reached the requested value.
	ErrWaitTimeout = errors.New("fence wait timed out")

	// ErrOutOfDate is returned by Swapchain.Acquire and Swapchain.Present
	// when the surface changed and the chain must be recreated.
	ErrOutOfDate = errors.New("swapchain out of date")

	// ErrSuboptimal is returned by Swapchain.Present when the image was
	// presented but the chain no longer matches the surface exactly.
	ErrSuboptimal = errors.New("swapchain suboptimal")

	// ErrNotDrained is returned when a resource release is attempted while
	// GPU work may still reference it.
	ErrNotDrained = errors.New("frames still in flight")
)
