package frame

import (
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/framepipe/driver"
)

// SelectDevice opens a device on the first adapter, in enumeration order,
// that is not a software renderer, satisfies req, and accepts device
// creation. There is no scoring. When nothing qualifies the error wraps
// driver.ErrNoSuitableAdapter and carries every rejection reason.
func SelectDevice(inst driver.Instance, req driver.Requirements) (driver.Device, driver.AdapterInfo, error) {
	log := driver.Logger()

	adapters, err := inst.Adapters()
	if err != nil {
		return nil, driver.AdapterInfo{}, errors.Wrap(err, "enumerate adapters")
	}

	var rejected error
	for i, adapter := range adapters {
		info := adapter.Info()
		if reason := rejectReason(info, req); reason != "" {
			log.Debug("adapter skipped", "index", i, "name", info.Name, "reason", reason)
			rejected = errors.CombineErrors(rejected, errors.Newf("adapter %d %q: %s", i, info.Name, reason))
			continue
		}

		dev, err := adapter.CreateDevice(req)
		if err != nil {
			log.Warn("device creation rejected", "index", i, "name", info.Name, "err", err)
			rejected = errors.CombineErrors(rejected, errors.Wrapf(err, "adapter %d %q", i, info.Name))
			continue
		}

		log.Info("adapter selected", "index", i, "name", info.Name, "api", info.APIVersion.String(), "capabilities", info.Capabilities.String())
		return dev, info, nil
	}

	err = errors.Wrapf(driver.ErrNoSuitableAdapter, "%d adapter(s) enumerated", len(adapters))
	if rejected != nil {
		err = errors.WithSecondaryError(err, rejected)
	}
	return nil, driver.AdapterInfo{}, err
}

func rejectReason(info driver.AdapterInfo, req driver.Requirements) string {
	if info.Software {
		return "software renderer"
	}
	if req.RequireDiscrete && !info.Discrete {
		return "not a discrete GPU"
	}
	if !info.Capabilities.Has(req.Capabilities) {
		missing := req.Capabilities &^ info.Capabilities
		return "missing capabilities " + missing.String()
	}
	var missing []string
	for _, ext := range req.Extensions {
		if !info.HasExtension(ext) {
			missing = append(missing, ext)
		}
	}
	if len(missing) > 0 {
		return "missing extensions " + strings.Join(missing, ", ")
	}
	return ""
}
