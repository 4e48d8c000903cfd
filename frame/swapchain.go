package frame

import (
	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/framepipe/driver"
)

// TargetDependent is an object built from a swapchain's images, format or
// extent (a graphics pipeline, framebuffers). The manager releases it before
// the chain it was built from and rebuilds it for every new chain.
type TargetDependent interface {
	BuildTarget(chain driver.Swapchain) error
	ReleaseTarget()
}

// SwapchainConfig is fixed for the life of a SwapchainManager.
type SwapchainConfig struct {
	ImageCount int
	Format     driver.Format
	Depth      bool
}

// RecreateStatus reports what Recreate did.
type RecreateStatus int

const (
	RecreateDone RecreateStatus = iota
	RecreateSkipped
)

func (s RecreateStatus) String() string {
	if s == RecreateSkipped {
		return "skipped"
	}
	return "recreated"
}

// SwapchainManager owns the swapchain bound to one surface together with
// the objects that depend on it. Only one chain is ever live: recreation
// releases the old chain and its dependents before creating the new one.
//
// The manager does not synchronize with the GPU; callers drain in-flight
// frames before Recreate or Destroy.
type SwapchainManager struct {
	dev     driver.Device
	surface driver.Surface
	cfg     SwapchainConfig

	chain      driver.Swapchain
	imageCount int
	dependents []TargetDependent
	built      int
}

// NewSwapchainManager returns a manager with no live chain.
func NewSwapchainManager(dev driver.Device, surface driver.Surface, cfg SwapchainConfig) (*SwapchainManager, error) {
	if cfg.ImageCount < 2 {
		return nil, errors.Newf("swapchain image count %d: at least 2 images are required", cfg.ImageCount)
	}
	return &SwapchainManager{dev: dev, surface: surface, cfg: cfg}, nil
}

// Register adds a dependent. If a chain is live the dependent is built for
// it immediately.
func (m *SwapchainManager) Register(d TargetDependent) error {
	m.dependents = append(m.dependents, d)
	if m.chain == nil {
		return nil
	}
	if err := d.BuildTarget(m.chain); err != nil {
		m.dependents = m.dependents[:len(m.dependents)-1]
		return errors.Wrap(err, "build swapchain dependent")
	}
	m.built++
	return nil
}

// Chain returns the live swapchain, or nil.
func (m *SwapchainManager) Chain() driver.Swapchain {
	return m.chain
}

// ImageCount returns the image count established by the first chain.
func (m *SwapchainManager) ImageCount() int {
	if m.imageCount == 0 {
		return m.cfg.ImageCount
	}
	return m.imageCount
}

// Stale reports whether the live chain does not match extent.
func (m *SwapchainManager) Stale(extent driver.Extent) bool {
	return m.chain == nil || m.chain.Extent() != extent
}

// Create builds the first chain and its dependents.
func (m *SwapchainManager) Create(extent driver.Extent) error {
	if m.chain != nil {
		return errors.New("swapchain already created")
	}
	if extent.Zero() {
		return errors.Newf("cannot create swapchain with extent %s", extent)
	}
	return m.create(extent)
}

// Recreate replaces the live chain with one of the given extent, keeping
// image count and format. A zero extent leaves everything untouched and
// returns RecreateSkipped.
func (m *SwapchainManager) Recreate(extent driver.Extent) (RecreateStatus, error) {
	if extent.Zero() {
		driver.Logger().Debug("swapchain recreation skipped", "extent", extent.String())
		return RecreateSkipped, nil
	}
	m.release()
	if err := m.create(extent); err != nil {
		return RecreateDone, err
	}
	return RecreateDone, nil
}

// Destroy releases the dependents and the chain. It is safe to call twice.
func (m *SwapchainManager) Destroy() {
	m.release()
}

func (m *SwapchainManager) create(extent driver.Extent) error {
	chain, err := m.dev.CreateSwapchain(driver.SwapchainDesc{
		Surface:    m.surface,
		ImageCount: m.ImageCount(),
		Format:     m.cfg.Format,
		Extent:     extent,
		Depth:      m.cfg.Depth,
	})
	if err != nil {
		return errors.Wrapf(err, "create swapchain %s", extent)
	}

	count := chain.ImageCount()
	if m.imageCount == 0 {
		if count != m.cfg.ImageCount {
			driver.Logger().Warn("driver adjusted swapchain image count", "requested", m.cfg.ImageCount, "actual", count)
		}
		if count < 2 {
			chain.Destroy()
			return errors.Newf("swapchain created with %d image(s)", count)
		}
		m.imageCount = count
	} else if count != m.imageCount {
		chain.Destroy()
		return errors.Newf("recreated swapchain has %d images, expected %d", count, m.imageCount)
	}
	m.chain = chain

	for _, d := range m.dependents {
		if err := d.BuildTarget(chain); err != nil {
			m.release()
			return errors.Wrap(err, "build swapchain dependent")
		}
		m.built++
	}

	driver.Logger().Info("swapchain created", "images", count, "format", chain.Format().String(), "extent", chain.Extent().String())
	return nil
}

func (m *SwapchainManager) release() {
	for i := m.built - 1; i >= 0; i-- {
		m.dependents[i].ReleaseTarget()
	}
	m.built = 0
	if m.chain != nil {
		m.chain.Destroy()
		m.chain = nil
	}
}
