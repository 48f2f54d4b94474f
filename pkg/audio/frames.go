package audio

import "time"

// Telephony frame constants. The media socket carries μ-law at 8 kHz mono,
// one byte per sample, so a 20 ms frame is exactly 160 bytes.
const (
	TelephonySampleRate = 8000
	TelephonyChannels   = 1

	FrameDuration = 20 * time.Millisecond

	// MuLawFrameSize is the byte length of one 20 ms μ-law frame.
	MuLawFrameSize = TelephonySampleRate / 1000 * 20
)

// SplitMuLawFrames splits a μ-law buffer into frameSize-byte frames for
// paced transmission. A trailing partial frame is padded with μ-law silence
// so every returned frame has the full length; empty input yields nil.
func SplitMuLawFrames(data []byte, frameSize int) [][]byte {
	if len(data) == 0 || frameSize <= 0 {
		return nil
	}

	frames := make([][]byte, 0, (len(data)+frameSize-1)/frameSize)
	for off := 0; off < len(data); off += frameSize {
		end := off + frameSize
		if end <= len(data) {
			frames = append(frames, data[off:end])
			continue
		}
		// Pad the final short frame to the full duration.
		frame := make([]byte, frameSize)
		n := copy(frame, data[off:])
		for i := n; i < frameSize; i++ {
			frame[i] = MuLawSilence
		}
		frames = append(frames, frame)
	}
	return frames
}
