package frame

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/framepipe/driver"
)

// SlotState is the lifecycle state of a frame slot.
type SlotState int

const (
	SlotIdle SlotState = iota
	SlotRecording
	SlotSubmitted
	SlotPresentPending
)

func (s SlotState) String() string {
	switch s {
	case SlotIdle:
		return "idle"
	case SlotRecording:
		return "recording"
	case SlotSubmitted:
		return "submitted"
	case SlotPresentPending:
		return "present-pending"
	}
	return fmt.Sprintf("SlotState(%d)", int(s))
}

// Slot holds the resources of one frame in flight. Value is the fence value
// of the slot's last submission; the slot may be reused once the fence has
// reached it.
type Slot struct {
	Index          int
	Fence          driver.Fence
	Value          uint64
	ImageAvailable driver.Semaphore
	RenderFinished driver.Semaphore
	Commands       driver.CommandBuffer
	Uniform        driver.UniformBuffer
	State          SlotState
}

type imageOwner struct {
	slot  int
	value uint64
	valid bool
}

// Synchronizer keeps the CPU from reusing a slot, or writing a swapchain
// image, while the GPU may still be reading it.
type Synchronizer struct {
	slots    []*Slot
	owners   []imageOwner
	timeout  time.Duration
	released bool
}

// NewSynchronizer creates frames slots on dev. uniformSize of 0 creates no
// uniform buffers.
func NewSynchronizer(dev driver.Device, frames, uniformSize int, timeout time.Duration) (*Synchronizer, error) {
	if frames < 1 {
		return nil, errors.Newf("frame slot count %d", frames)
	}
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}
	s := &Synchronizer{timeout: timeout}
	for i := 0; i < frames; i++ {
		slot, err := newSlot(dev, i, uniformSize)
		if err != nil {
			s.free()
			return nil, errors.Wrapf(err, "frame slot %d", i)
		}
		s.slots = append(s.slots, slot)
	}
	return s, nil
}

func newSlot(dev driver.Device, index, uniformSize int) (*Slot, error) {
	slot := &Slot{Index: index}
	var err error
	defer func() {
		if err != nil {
			slot.free()
		}
	}()

	if slot.Fence, err = dev.CreateFence(); err != nil {
		return nil, err
	}
	if slot.ImageAvailable, err = dev.CreateSemaphore(); err != nil {
		return nil, err
	}
	if slot.RenderFinished, err = dev.CreateSemaphore(); err != nil {
		return nil, err
	}
	if slot.Commands, err = dev.CreateCommandBuffer(); err != nil {
		return nil, err
	}
	if uniformSize > 0 {
		if slot.Uniform, err = dev.CreateUniformBuffer(uniformSize); err != nil {
			return nil, err
		}
	}
	return slot, nil
}

func (s *Slot) free() {
	if s.Uniform != nil {
		s.Uniform.Destroy()
		s.Uniform = nil
	}
	if s.Commands != nil {
		s.Commands.Destroy()
		s.Commands = nil
	}
	if s.RenderFinished != nil {
		s.RenderFinished.Destroy()
		s.RenderFinished = nil
	}
	if s.ImageAvailable != nil {
		s.ImageAvailable.Destroy()
		s.ImageAvailable = nil
	}
	if s.Fence != nil {
		s.Fence.Destroy()
		s.Fence = nil
	}
}

// Len returns the number of slots.
func (s *Synchronizer) Len() int { return len(s.slots) }

// Slot returns slot i.
func (s *Synchronizer) Slot(i int) *Slot { return s.slots[i] }

func (s *Synchronizer) slot(i int) (*Slot, error) {
	if s.released {
		return nil, errors.New("synchronizer released")
	}
	if i < 0 || i >= len(s.slots) {
		return nil, errors.Newf("frame slot %d out of range [0,%d)", i, len(s.slots))
	}
	return s.slots[i], nil
}

// wait blocks until the slot fence reaches value. A timeout is a lost
// device: it is never retried.
func (s *Synchronizer) wait(slot *Slot, value uint64) error {
	completed, err := slot.Fence.Completed()
	if err != nil {
		return errors.Wrapf(err, "frame slot %d fence", slot.Index)
	}
	if completed >= value {
		return nil
	}
	driver.Logger().Debug("waiting for frame slot", "slot", slot.Index, "value", value, "completed", completed)
	return s.waitFence(slot, value)
}

func (s *Synchronizer) waitFence(slot *Slot, value uint64) error {
	if err := slot.Fence.Wait(value, s.timeout); err != nil {
		err = errors.Wrapf(err, "frame slot %d value %d", slot.Index, value)
		if errors.Is(err, driver.ErrWaitTimeout) {
			err = errors.Mark(err, driver.ErrDeviceLost)
		}
		return err
	}
	return nil
}

// BeginFrame blocks until the slot's previous submission completed on the
// GPU, then moves the slot to SlotRecording.
func (s *Synchronizer) BeginFrame(i int) error {
	slot, err := s.slot(i)
	if err != nil {
		return err
	}
	if slot.State == SlotRecording || slot.State == SlotSubmitted {
		return errors.Newf("begin frame on slot %d in state %s", i, slot.State)
	}
	if err := s.wait(slot, slot.Value); err != nil {
		return err
	}
	slot.State = SlotRecording
	return nil
}

// ClaimImage records that slot i is about to render into image, first
// waiting for whichever submission last rendered into it.
func (s *Synchronizer) ClaimImage(image, i int) error {
	slot, err := s.slot(i)
	if err != nil {
		return err
	}
	if slot.State != SlotRecording {
		return errors.Newf("claim image %d on slot %d in state %s", image, i, slot.State)
	}
	if image < 0 {
		return errors.Newf("invalid image index %d", image)
	}
	for image >= len(s.owners) {
		s.owners = append(s.owners, imageOwner{})
	}
	if owner := s.owners[image]; owner.valid && owner.slot != i {
		if err := s.wait(s.slots[owner.slot], owner.value); err != nil {
			return errors.Wrapf(err, "image %d", image)
		}
	}
	s.owners[image] = imageOwner{slot: i, value: slot.Value + 1, valid: true}
	return nil
}

// EndFrame records that slot i was submitted with a fence target of value.
// Values are strictly increasing per slot.
func (s *Synchronizer) EndFrame(i int, value uint64) error {
	slot, err := s.slot(i)
	if err != nil {
		return err
	}
	if slot.State != SlotRecording {
		return errors.Newf("end frame on slot %d in state %s", i, slot.State)
	}
	if value <= slot.Value {
		return errors.Newf("slot %d fence value %d does not advance past %d", i, value, slot.Value)
	}
	slot.Value = value
	slot.State = SlotSubmitted
	return nil
}

// Presented marks the slot's image as queued for presentation. The present
// is gated on the GPU-side RenderFinished semaphore; nothing waits here.
func (s *Synchronizer) Presented(i int) error {
	slot, err := s.slot(i)
	if err != nil {
		return err
	}
	if slot.State != SlotSubmitted {
		return errors.Newf("present on slot %d in state %s", i, slot.State)
	}
	slot.State = SlotPresentPending
	return nil
}

// Rewind returns a slot that began recording but never submitted to idle,
// as when image acquisition reported an out-of-date swapchain.
func (s *Synchronizer) Rewind(i int) error {
	slot, err := s.slot(i)
	if err != nil {
		return err
	}
	if slot.State != SlotRecording {
		return errors.Newf("rewind slot %d in state %s", i, slot.State)
	}
	slot.State = SlotIdle
	for img, owner := range s.owners {
		if owner.valid && owner.slot == i && owner.value > slot.Value {
			s.owners[img] = imageOwner{}
		}
	}
	return nil
}

// ResetImages forgets image ownership, for use after the swapchain was
// recreated. Callers drain first.
func (s *Synchronizer) ResetImages() {
	s.owners = s.owners[:0]
}

// Drain waits for every slot's last submission, leaving all slots idle.
func (s *Synchronizer) Drain() error {
	if s.released {
		return nil
	}
	for _, slot := range s.slots {
		if slot.State == SlotRecording {
			return errors.Wrapf(driver.ErrNotDrained, "slot %d is recording", slot.Index)
		}
		if err := s.waitFence(slot, slot.Value); err != nil {
			return err
		}
		slot.State = SlotIdle
	}
	return nil
}

// Release drains every slot and then frees the slot resources. When the
// drain fails nothing is freed.
func (s *Synchronizer) Release() error {
	if s.released {
		return nil
	}
	if err := s.Drain(); err != nil {
		return errors.Wrap(err, "drain before release")
	}
	s.free()
	s.released = true
	return nil
}

func (s *Synchronizer) free() {
	for _, slot := range s.slots {
		slot.free()
	}
}
