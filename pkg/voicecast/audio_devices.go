package voicecast

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// AudioDevice describes one device as seen by the broadcast stack: how
// many channels it can capture or play, and at which native sample rate.
type AudioDevice struct {
	ID               int
	Name             string
	CaptureChannels  int
	PlaybackChannels int
	SampleRate       float64
	Default          bool
	HostAPI          string
}

// CanCapture reports whether the device can act as a broadcast
// microphone.
func (d AudioDevice) CanCapture() bool {
	return d.CaptureChannels > 0
}

// CanPlay reports whether the device can play back broadcast chunks.
func (d AudioDevice) CanPlay() bool {
	return d.PlaybackChannels > 0
}

// AudioDeviceCatalog owns the PortAudio lifecycle and answers which
// devices a broadcast can record from or play to. One catalog per
// process; PortAudio must not be initialized twice.
type AudioDeviceCatalog struct {
	mu      sync.RWMutex
	devices []AudioDevice
	logger  *Logger
}

func NewAudioDeviceCatalog() *AudioDeviceCatalog {
	return &AudioDeviceCatalog{
		logger: GetGlobalLogger().WithComponent("AudioDeviceCatalog"),
	}
}

// Open initializes PortAudio and takes the first device snapshot.
func (c *AudioDeviceCatalog) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := portaudio.Initialize(); err != nil {
		c.logger.WithError(err).Error("PortAudio initialization failed")
		return WrapError(err, ErrCodeAudioDevice)
	}
	if err := c.snapshot(); err != nil {
		c.logger.WithError(err).Error("Device enumeration failed")
		return WrapError(err, ErrCodeAudioDevice)
	}

	c.logger.WithField("device_count", len(c.devices)).Info("Audio device catalog ready")
	return nil
}

// Close terminates PortAudio.
func (c *AudioDeviceCatalog) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := portaudio.Terminate(); err != nil {
		c.logger.WithError(err).Error("PortAudio termination failed")
	}
}

// Refresh re-enumerates the devices, picking up hot-plugged hardware.
func (c *AudioDeviceCatalog) Refresh() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

func (c *AudioDeviceCatalog) snapshot() error {
	infos, err := portaudio.Devices()
	if err != nil {
		return err
	}

	defaultCapture, err := portaudio.DefaultInputDevice()
	if err != nil {
		c.logger.WithError(err).Warn("System reports no default capture device")
	}
	defaultPlayback, err := portaudio.DefaultOutputDevice()
	if err != nil {
		c.logger.WithError(err).Warn("System reports no default playback device")
	}

	c.devices = c.devices[:0]
	for i, info := range infos {
		hostAPI := "Unknown"
		if info.HostApi != nil {
			hostAPI = info.HostApi.Name
		}
		c.devices = append(c.devices, AudioDevice{
			ID:               i,
			Name:             info.Name,
			CaptureChannels:  info.MaxInputChannels,
			PlaybackChannels: info.MaxOutputChannels,
			SampleRate:       info.DefaultSampleRate,
			Default:          info == defaultCapture || info == defaultPlayback,
			HostAPI:          hostAPI,
		})
	}
	return nil
}

// Devices returns a copy of the current device snapshot.
func (c *AudioDeviceCatalog) Devices() []AudioDevice {
	c.mu.RLock()
	defer c.mu.RUnlock()

	devices := make([]AudioDevice, len(c.devices))
	copy(devices, c.devices)
	return devices
}

// CaptureDevices returns the devices a broadcast can record from.
func (c *AudioDeviceCatalog) CaptureDevices() []AudioDevice {
	return c.filter(AudioDevice.CanCapture)
}

// PlaybackDevices returns the devices a broadcast can play to.
func (c *AudioDeviceCatalog) PlaybackDevices() []AudioDevice {
	return c.filter(AudioDevice.CanPlay)
}

func (c *AudioDeviceCatalog) filter(keep func(AudioDevice) bool) []AudioDevice {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var devices []AudioDevice
	for _, device := range c.devices {
		if keep(device) {
			devices = append(devices, device)
		}
	}
	return devices
}

// DefaultCaptureDevice returns the system default microphone.
func (c *AudioDeviceCatalog) DefaultCaptureDevice() (*AudioDevice, error) {
	return c.find(func(d AudioDevice) bool { return d.Default && d.CanCapture() },
		"no default capture device")
}

// DefaultPlaybackDevice returns the system default output.
func (c *AudioDeviceCatalog) DefaultPlaybackDevice() (*AudioDevice, error) {
	return c.find(func(d AudioDevice) bool { return d.Default && d.CanPlay() },
		"no default playback device")
}

// DeviceByID looks a device up by its snapshot id.
func (c *AudioDeviceCatalog) DeviceByID(id int) (*AudioDevice, error) {
	return c.find(func(d AudioDevice) bool { return d.ID == id },
		fmt.Sprintf("no device with id %d", id))
}

// DeviceByName looks a device up by its exact name.
func (c *AudioDeviceCatalog) DeviceByName(name string) (*AudioDevice, error) {
	return c.find(func(d AudioDevice) bool { return d.Name == name },
		fmt.Sprintf("no device named %q", name))
}

func (c *AudioDeviceCatalog) find(match func(AudioDevice) bool, missing string) (*AudioDevice, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, device := range c.devices {
		if match(device) {
			return &device, nil
		}
	}
	return nil, NewAudioError(missing)
}

// ValidateCaptureDevice checks that the device can record a broadcast
// with the given audio configuration. A nil config means the defaults
// the mic source would use.
func (c *AudioDeviceCatalog) ValidateCaptureDevice(deviceID int, config *AudioConfig) error {
	if config == nil {
		config = NewAudioConfig()
	}

	device, err := c.DeviceByID(deviceID)
	if err != nil {
		return err
	}
	if !device.CanCapture() {
		return NewAudioError(fmt.Sprintf("device %q cannot capture audio", device.Name))
	}
	if device.CaptureChannels < config.Channels {
		return NewAudioError(fmt.Sprintf("device %q captures at most %d channels, broadcast needs %d",
			device.Name, device.CaptureChannels, config.Channels))
	}

	c.warnOnSampleRateMismatch(device, float64(config.SampleRate))
	return nil
}

// ValidatePlaybackDevice checks that the device can play broadcast
// chunks with the given channel count and sample rate.
func (c *AudioDeviceCatalog) ValidatePlaybackDevice(deviceID int, channels int, sampleRate float64) error {
	device, err := c.DeviceByID(deviceID)
	if err != nil {
		return err
	}
	if !device.CanPlay() {
		return NewAudioError(fmt.Sprintf("device %q cannot play audio", device.Name))
	}
	if device.PlaybackChannels < channels {
		return NewAudioError(fmt.Sprintf("device %q plays at most %d channels, broadcast needs %d",
			device.Name, device.PlaybackChannels, channels))
	}

	c.warnOnSampleRateMismatch(device, sampleRate)
	return nil
}

func (c *AudioDeviceCatalog) warnOnSampleRateMismatch(device *AudioDevice, requested float64) {
	if requested <= 0 || device.SampleRate <= 0 {
		return
	}
	// resampling beyond a factor of two tends to degrade voice quality
	if ratio := requested / device.SampleRate; ratio < 0.5 || ratio > 2.0 {
		c.logger.WithFields(map[string]interface{}{
			"device_name":           device.Name,
			"device_sample_rate":    device.SampleRate,
			"requested_sample_rate": requested,
		}).Warn("Requested sample rate far from device native rate")
	}
}

// Describe renders one device for the CLI.
func (c *AudioDeviceCatalog) Describe(deviceID int) (string, error) {
	device, err := c.DeviceByID(deviceID)
	if err != nil {
		return "", err
	}

	var roles []string
	if device.CanCapture() {
		roles = append(roles, "Capture")
	}
	if device.CanPlay() {
		roles = append(roles, "Playback")
	}
	if len(roles) == 0 {
		roles = append(roles, "None")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Device: %s\n", device.Name)
	fmt.Fprintf(&b, "  ID: %d\n", device.ID)
	fmt.Fprintf(&b, "  Host API: %s\n", device.HostAPI)
	fmt.Fprintf(&b, "  Capture Channels: %d\n", device.CaptureChannels)
	fmt.Fprintf(&b, "  Playback Channels: %d\n", device.PlaybackChannels)
	fmt.Fprintf(&b, "  Native Sample Rate: %.1f Hz\n", device.SampleRate)
	fmt.Fprintf(&b, "  System Default: %v\n", device.Default)
	fmt.Fprintf(&b, "  Roles: %s\n", strings.Join(roles, ", "))
	return b.String(), nil
}
