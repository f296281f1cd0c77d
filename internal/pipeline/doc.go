// Package pipeline defines the transcription engine contract and the
// exec-backed adapter that drives an external binary per queue item.
//
// The engine itself (speech-to-text, enhancement, routing) lives outside
// this process. This package only shapes its invocation and output.
package pipeline
