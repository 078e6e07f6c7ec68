package events

const (
	// KindDeviceAction identifies device actions requested by the assistant.
	KindDeviceAction Kind = "assistant_output.device_action"
	// KindScreenRendered identifies rendered screen payloads.
	KindScreenRendered Kind = "assistant_output.screen_rendered"
	// KindRenderFailed identifies screen payloads the renderer rejected.
	KindRenderFailed Kind = "assistant_output.render_failed"
)

// DeviceAction carries an opaque device action payload.
type DeviceAction struct {
	Base
	SessionID string
	Payload   []byte
}

// NewDeviceAction creates a device action event.
func NewDeviceAction(sessionID string, payload []byte) DeviceAction {
	return DeviceAction{Base: NewBase(KindDeviceAction), SessionID: sessionID, Payload: payload}
}

// ScreenRendered carries the rendered form of the turn at Index.
type ScreenRendered struct {
	Base
	Index    int
	Rendered string
}

// NewScreenRendered creates a screen rendered event.
func NewScreenRendered(index int, rendered string) ScreenRendered {
	return ScreenRendered{Base: NewBase(KindScreenRendered), Index: index, Rendered: rendered}
}

// RenderFailed carries the error returned while rendering the turn at Index.
type RenderFailed struct {
	Base
	Index int
	Err   error
}

// NewRenderFailed creates a render failed event.
func NewRenderFailed(index int, err error) RenderFailed {
	return RenderFailed{Base: NewBase(KindRenderFailed), Index: index, Err: err}
}
