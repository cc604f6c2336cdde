package session

import "errors"

// ErrEmptyRecording terminates a session whose recording was too short to
// contain speech. It is silent: no pipeline runs and nothing is typed.
var ErrEmptyRecording = errors.New("recording too short")

// ErrEmptyTranscript fails a session whose recognizer returned no text.
var ErrEmptyTranscript = errors.New("recognizer returned empty transcript")
