package driver

import (
	"errors"
	"strconv"
	"time"

	"github.com/camctl/gigecam/internal/pvapi"
)

const (
	// maxPacketSize is requested during connect; the transport negotiates
	// down to what the network path supports.
	maxPacketSize = 8228

	defaultRetryCount    = 30
	defaultRetryInterval = time.Second
)

var errNotConnected = errors.New("camera not connected")

// Connect opens a session with the camera: resolve identity, wait for
// master access, open the handle, size and arm the transfer buffers, read
// the sensor description and refresh the parameter mirror. Any existing
// session is torn down first.
func (d *Driver) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connectLocked()
}

// Disconnect closes the session and releases the transfer buffers. Safe to
// call in any state.
func (d *Driver) Disconnect() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.disconnectLocked()
}

func (d *Driver) connectLocked() error {
	if err := d.disconnectLocked(); err != nil {
		d.log.Warn().Err(err).Msg("Teardown before reconnect reported an error")
	}

	info, byID, err := d.resolveLocked()
	if err != nil {
		return err
	}
	d.info = info
	d.uniqueID = info.UniqueID
	d.addr = info.Address
	d.byID = byID

	// Another host may still hold master access, typically right after the
	// camera rebooted. Poll until it frees up or the budget runs out.
	attempts := 0
	for info.PermittedAccess&pvapi.AccessMaster == 0 {
		if attempts >= d.retryCount {
			return &AccessDeniedError{
				UniqueID: d.uniqueID,
				Attempts: attempts,
				Access:   info.PermittedAccess,
			}
		}
		attempts++
		d.log.Debug().
			Int("attempt", attempts).
			Uint32("unique_id", d.uniqueID).
			Msg("Waiting for master access")
		d.sleep(d.retryInterval)
		info, err = d.transport.CameraInfoByID(d.uniqueID)
		if err != nil {
			return &TransportError{Op: "camera info", Err: err}
		}
		d.info = info
	}

	var h pvapi.Handle
	if byID {
		h, err = d.transport.OpenCamera(d.uniqueID, pvapi.AccessMaster)
	} else {
		h, err = d.transport.OpenCameraByAddr(d.addr, pvapi.AccessMaster)
	}
	if err != nil {
		return &TransportError{Op: "open camera", Err: err}
	}

	if err := h.AdjustPacketSize(maxPacketSize); err != nil {
		h.Close()
		return &TransportError{Op: "adjust packet size", Err: err}
	}
	if err := h.CaptureStart(); err != nil {
		h.Close()
		return &TransportError{Op: "capture start", Err: err}
	}

	b := &attrBatch{}
	var sensorType string
	if v, err := h.AttrEnum("SensorType"); b.check("get", "SensorType", err) {
		sensorType = v
	}
	var bits, width, height, freq uint32
	if v, err := h.AttrUint32("SensorBits"); b.check("get", "SensorBits", err) {
		bits = v
	}
	if v, err := h.AttrUint32("SensorWidth"); b.check("get", "SensorWidth", err) {
		width = v
	}
	if v, err := h.AttrUint32("SensorHeight"); b.check("get", "SensorHeight", err) {
		height = v
	}
	if v, err := h.AttrUint32("TimeStampFrequency"); b.check("get", "TimeStampFrequency", err) {
		freq = v
	}
	var ipAddr string
	if v, err := h.AttrString("DeviceIPAddress"); b.check("get", "DeviceIPAddress", err) {
		ipAddr = v
	}
	if !b.ok() {
		h.CaptureEnd()
		h.Close()
		return &TransportError{Op: "read sensor description", Err: b.err()}
	}

	d.sensorType = sensorType
	d.sensorColor = sensorType != "Mono"
	d.sensorBits = bits
	d.sensorWidth = width
	d.sensorHeight = height
	d.tickFreq = freq

	bytesPerPixel := int(bits-1)/8 + 1
	if d.sensorColor {
		bytesPerPixel *= 3
	}
	d.maxFrameSize = int(width) * int(height) * bytesPerPixel

	d.handle = h
	if err := d.pool.armAll(h, d.maxFrameSize, d.frameCallback); err != nil {
		d.handle = nil
		h.CaptureQueueClear()
		h.CaptureEnd()
		h.Close()
		d.pool.releaseAll()
		return &TransportError{Op: "arm transfer buffers", Err: err}
	}

	d.params.SetString(ParamManufacturer, "Prosilica")
	d.params.SetString(ParamModel, info.ModelName)
	d.params.SetString(ParamSerialNumber, info.SerialNumber)
	d.params.SetString(ParamFirmwareVersion, info.FirmwareVersion)
	d.params.SetString(ParamSDKVersion, d.transport.Version())
	d.params.SetString(ParamAddress, ipAddr)
	d.params.SetInt(ParamMaxSizeX, int(width))
	d.params.SetInt(ParamMaxSizeY, int(height))
	d.params.SetInt(ParamSizeX, int(width))
	d.params.SetInt(ParamSizeY, int(height))
	d.params.SetInt(ParamNumExposures, 1)

	if err := d.readParametersLocked(); err != nil {
		d.log.Warn().Err(err).Msg("Parameter refresh after connect incomplete")
	}
	if err := d.readStatsLocked(); err != nil {
		d.log.Warn().Err(err).Msg("Statistics refresh after connect incomplete")
	}

	// The camera may still be acquiring from a previous session.
	if err := h.RunCommand("AcquisitionAbort"); err != nil {
		d.log.Warn().Err(err).Msg("Aborting stale acquisition failed")
	}
	if err := d.syncClockLocked(); err != nil {
		d.log.Warn().Err(err).Msg("Camera clock sync failed")
	}

	d.params.SetInt(ParamConnected, 1)
	if d.onSession != nil {
		d.onSession(true)
	}
	d.log.Info().
		Uint32("unique_id", d.uniqueID).
		Str("model", info.ModelName).
		Str("address", ipAddr).
		Int("max_frame_size", d.maxFrameSize).
		Msg("Camera connected")
	return nil
}

func (d *Driver) disconnectLocked() error {
	if d.handle == nil {
		return nil
	}
	h := d.handle

	// The vendor delivers cancellation callbacks synchronously from inside
	// the queue clear, and the callback takes the session lock. Hold the
	// lock here and the teardown deadlocks.
	d.mu.Unlock()
	clearErr := h.CaptureQueueClear()
	endErr := h.CaptureEnd()
	closeErr := h.Close()
	d.mu.Lock()

	d.pool.releaseAll()
	d.handle = nil
	d.params.SetInt(ParamConnected, 0)
	d.params.SetInt(ParamAcquire, 0)
	d.params.SetInt(ParamStatus, StatusIdle)
	if d.onSession != nil {
		d.onSession(false)
	}
	d.log.Info().Uint32("unique_id", d.uniqueID).Msg("Camera disconnected")

	if err := errors.Join(clearErr, endErr, closeErr); err != nil {
		return &TransportError{Op: "close session", Err: err}
	}
	return nil
}

// resolveLocked maps the configured camera ID to a concrete device. An
// all-digits ID is a device unique ID; anything else is a network address
// or DNS name.
func (d *Driver) resolveLocked() (pvapi.CameraInfo, bool, error) {
	if id, err := strconv.ParseUint(d.cameraID, 10, 32); err == nil {
		info, err := d.transport.CameraInfoByID(uint32(id))
		if err != nil {
			return pvapi.CameraInfo{}, false, &ResolutionError{CameraID: d.cameraID, Err: err}
		}
		return info, true, nil
	}
	info, err := d.transport.CameraInfoByAddr(d.cameraID)
	if err != nil {
		return pvapi.CameraInfo{}, false, &ResolutionError{CameraID: d.cameraID, Err: err}
	}
	return info, false, nil
}

// syncClockLocked anchors tick-relative timestamp modes: remember the host
// time and zero the camera tick counter.
func (d *Driver) syncClockLocked() error {
	if d.handle == nil {
		return errNotConnected
	}
	d.lastSync = d.now()
	return d.handle.RunCommand("TimeStampReset")
}

// handleLinkAdd claims a link-add event if the camera is ours, then
// connects. Returns false on a failed connect so another instance could
// still claim the event.
func (d *Driver) handleLinkAdd(uniqueID uint32, eventAddr func() string) bool {
	d.mu.Lock()
	match := false
	if d.uniqueID != 0 {
		match = uniqueID == d.uniqueID
	} else if _, err := strconv.ParseUint(d.cameraID, 10, 32); err != nil {
		// Never resolved, configured by address: compare against the
		// address of the device that just appeared.
		a := eventAddr()
		match = a != "" && a == d.cameraID
	} else {
		match = d.cameraID == strconv.FormatUint(uint64(uniqueID), 10)
	}
	d.mu.Unlock()
	if !match {
		return false
	}

	d.log.Info().Uint32("unique_id", uniqueID).Msg("Camera appeared on the link")
	if err := d.Connect(); err != nil {
		d.log.Warn().Err(err).Msg("Connect after link-add failed")
		return false
	}
	return true
}

// handleLinkRemove claims a link-remove event and tears the session down.
func (d *Driver) handleLinkRemove(uniqueID uint32) bool {
	d.mu.Lock()
	match := d.uniqueID != 0 && uniqueID == d.uniqueID
	d.mu.Unlock()
	if !match {
		return false
	}

	d.log.Info().Uint32("unique_id", uniqueID).Msg("Camera left the link")
	if err := d.Disconnect(); err != nil {
		d.log.Warn().Err(err).Msg("Disconnect after link-remove failed")
	}
	return true
}
