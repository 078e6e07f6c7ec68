// Package events defines the typed lifecycle events a Supervisor emits.
//
// Event kinds are grouped by receiver-facing namespaces:
//
//   - session_state.*
//   - user_input.*
//   - assistant_output.*
//   - turn_state.*
//   - auth.*
//
// Events are delivered in emission order by a single goroutine, so handlers
// may call back into the Supervisor.
//
// session_state events
//
//   - SessionStateChanged (session_state.changed): the live session moved to
//     a new state.
//
// user_input events
//
//   - TranscriptUpdated (user_input.transcript_updated): transcription of the
//     spoken query. Done is set once, on the final update.
//   - MicLevel (user_input.mic_level): smoothed input amplitude in [0,1].
//
// assistant_output events
//
//   - DeviceAction (assistant_output.device_action): opaque device action
//     payload forwarded to the device action handler.
//   - ScreenRendered (assistant_output.screen_rendered): a turn's screen
//     payload was rendered.
//   - RenderFailed (assistant_output.render_failed): the renderer rejected a
//     payload. Never fatal.
//
// turn_state events
//
//   - TurnCompleted (turn_state.completed): the turn was stored in history.
//   - TurnFailed (turn_state.failed): the turn failed, carries the
//     classified recovery action.
//   - RecoveryGuidance (turn_state.recovery_guidance): user facing text for
//     a recovery action.
//
// auth events
//
//   - LoginRequested (auth.login_requested): credentials were cleared and a
//     new login was requested.
package events
