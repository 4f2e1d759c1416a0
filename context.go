package authflow

import "context"

type deviceIDContextKey struct{}

// WithDeviceID attaches the device identifier to ctx. The controller copies
// it into the metadata of audit events emitted under ctx.
func WithDeviceID(ctx context.Context, deviceID string) context.Context {
	return context.WithValue(ctx, deviceIDContextKey{}, deviceID)
}

// DeviceIDFromContext returns the identifier set by [WithDeviceID], or "".
func DeviceIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	deviceID, _ := ctx.Value(deviceIDContextKey{}).(string)
	return deviceID
}
