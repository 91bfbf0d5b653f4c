// Package live implements the client side of a real-time voice interview.
//
// A Session streams the candidate's microphone to a remote speech agent over
// a Duplex connection, schedules the agent's spoken replies for gapless
// playback, and builds a speaker-attributed transcript from the streaming
// transcription fragments. Around that conversation it enforces interview
// policy: a fixed time budget, a silence protocol that nudges and then skips,
// and a proctoring monitor that ends the interview after repeated integrity
// violations.
//
// # Architecture
//
//   - Session: the orchestrator; all mutable state lives on its Run goroutine
//   - VAD: adaptive-floor energy detector used for the speaking indicator
//   - Scheduler: cursor-based playback queue with flush on barge-in
//   - Transcript: fragment merger shared by the display list and the history
//   - Proctor: strike counter with a transient warning
//
// # Termination
//
// Every end path (agent tool call, countdown, proctoring, candidate exit)
// goes through Session.Terminate. The first call wins; the session waits
// GraceDelay so final audio can play, tears down, and hands the transcript
// and reason to OnComplete exactly once. Cancelling the Run context tears
// down without calling OnComplete.
//
// # Audio
//
// Capture frames arrive as float32 at CaptureSampleRate. They are resampled
// to SendSampleRate, packed as 16-bit little-endian PCM and sent base64
// encoded. Agent audio arrives the same way at ReceiveSampleRate.
package live
