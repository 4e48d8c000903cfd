package vulkan

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/core1_0"

	"github.com/vkngwrapper/framepipe/driver"
)

// Fence presents a binary VkFence as a monotonically increasing counter.
// Each submission carries the next value; the fence reaches it when the
// submission completes. Only one submission may be outstanding, which
// holds for the per-slot fences of the frame synchronizer since a slot is
// reused only after its previous value was reached.
type Fence struct {
	dev       *Device
	fence     core1_0.Fence
	submitted uint64
	completed uint64
}

// prepare resets the VkFence ahead of a submission signaling value.
func (f *Fence) prepare(value uint64) error {
	if value <= f.submitted {
		return errors.Newf("fence value %d does not advance past %d", value, f.submitted)
	}
	if f.completed < f.submitted {
		return errors.Newf("fence still pending value %d", f.submitted)
	}
	_, err := f.dev.device.ResetFences([]core1_0.Fence{f.fence})
	return errors.Wrap(err, "reset fence")
}

// Completed polls the fence without blocking.
func (f *Fence) Completed() (uint64, error) {
	if f.completed >= f.submitted {
		return f.completed, nil
	}
	res, err := f.fence.Wait(0)
	if res == core1_0.VKTimeout {
		return f.completed, nil
	}
	if err != nil {
		return f.completed, errors.Wrap(err, "poll fence")
	}
	f.completed = f.submitted
	return f.completed, nil
}

// Wait blocks until the fence reaches value or timeout elapses, in which
// case the error wraps driver.ErrWaitTimeout.
func (f *Fence) Wait(value uint64, timeout time.Duration) error {
	if value <= f.completed {
		return nil
	}
	if value > f.submitted {
		return errors.Newf("wait for fence value %d, only %d submitted", value, f.submitted)
	}

	res, err := f.fence.Wait(timeout)
	if res == core1_0.VKTimeout {
		return errors.Wrapf(driver.ErrWaitTimeout, "fence value %d after %s", value, timeout)
	}
	if err != nil {
		return errors.Wrapf(err, "wait for fence value %d", value)
	}
	f.completed = f.submitted
	return nil
}

func (f *Fence) Destroy() {
	if f.fence != nil {
		f.fence.Destroy(nil)
		f.fence = nil
	}
}
