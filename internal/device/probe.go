package device

import (
	"fmt"

	"github.com/openfluke/webgpu/wgpu"
)

// Report is a portable summary of the adapter kiln would run on and
// the limits that bound launch geometry.
type Report struct {
	Adapter     string `json:"adapter"`
	Driver      string `json:"driver,omitempty"`
	Backend     string `json:"backend"`
	AdapterType string `json:"adapter_type"`
	VendorID    string `json:"vendor_id_hex"`
	DeviceID    string `json:"device_id_hex"`

	LaneWidth     int  `json:"lane_width"`
	LaneSupported bool `json:"lane_supported"`

	Limits ReportLimits `json:"limits"`
}

// ReportLimits is the subset of device limits that constrain compute
// dispatch.
type ReportLimits struct {
	MaxThreadsPerGroup       uint32 `json:"max_threads_per_group"`
	MaxThreadGroupSizeX      uint32 `json:"max_thread_group_size_x"`
	MaxThreadGroupSizeY      uint32 `json:"max_thread_group_size_y"`
	MaxThreadGroupSizeZ      uint32 `json:"max_thread_group_size_z"`
	MaxWorkgroupsPerDim      uint32 `json:"max_workgroups_per_dimension"`
	MaxStorageBindingBytes   uint64 `json:"max_storage_binding_bytes"`
	MaxBufferSize            uint64 `json:"max_buffer_bytes"`
	MaxWorkgroupStorageBytes uint32 `json:"max_workgroup_storage_bytes"`
}

// Probe requests the default adapter and synthesizes a Report without
// constructing a full Context. Fails with ErrDeviceUnavailable when no
// adapter exists.
func Probe() (*Report, error) {
	instance := wgpu.CreateInstance(nil)
	if instance == nil {
		return nil, fmt.Errorf("%w: could not create WebGPU instance", ErrDeviceUnavailable)
	}
	defer instance.Release()

	adapter, err := requestAdapter(instance, wgpu.PowerPreferenceUndefined)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	defer adapter.Release()

	info := adapter.GetInfo()
	limits := adapter.GetLimits().Limits
	lane := laneWidthFor(info)

	return &Report{
		Adapter:       info.Name,
		Driver:        info.DriverDescription,
		Backend:       info.BackendType.String(),
		AdapterType:   info.AdapterType.String(),
		VendorID:      fmt.Sprintf("0x%04x", info.VendorId),
		DeviceID:      fmt.Sprintf("0x%04x", info.DeviceId),
		LaneWidth:     lane,
		LaneSupported: lane == supportedLaneWidth,
		Limits: ReportLimits{
			MaxThreadsPerGroup:       limits.MaxComputeInvocationsPerWorkgroup,
			MaxThreadGroupSizeX:      limits.MaxComputeWorkgroupSizeX,
			MaxThreadGroupSizeY:      limits.MaxComputeWorkgroupSizeY,
			MaxThreadGroupSizeZ:      limits.MaxComputeWorkgroupSizeZ,
			MaxWorkgroupsPerDim:      limits.MaxComputeWorkgroupsPerDimension,
			MaxStorageBindingBytes:   limits.MaxStorageBufferBindingSize,
			MaxBufferSize:            limits.MaxBufferSize,
			MaxWorkgroupStorageBytes: limits.MaxComputeWorkgroupStorageSize,
		},
	}, nil
}
