// Package ffmpeg wraps the ffmpeg binary to extract transcription-ready audio
// from uploaded video and audio files.
package ffmpeg
