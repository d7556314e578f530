// Package audio turns uploaded audio bytes into the mono float32 sample buffer
// the acoustic model expects.
//
// Decoding supports RIFF/WAVE (PCM and IEEE float) through go-audio/wav and
// MPEG audio through go-mp3. Multi-channel input is averaged to mono. When
// the source rate differs from the target rate the samples are resampled with
// a polyphase windowed-sinc resampler. The Buffer keeps the pre-resample frame
// count and rate so callers can report the duration of the original recording.
package audio
