package audio

import (
	"fmt"

	"github.com/asticode/go-astiav"
)

// Resampler converts 16-bit PCM between sample rates via FFmpeg's software
// resampler. One instance is tied to a fixed rate pair and channel layout
// and is not safe for concurrent use; callers own Free.
type Resampler struct {
	ctx      *astiav.SoftwareResampleContext
	inFrame  *astiav.Frame
	outFrame *astiav.Frame
	layout   astiav.ChannelLayout
	inRate   int
	outRate  int
}

// NewResampler creates a mono S16 resampler from inRate to outRate.
func NewResampler(inRate, outRate int) (*Resampler, error) {
	if inRate <= 0 {
		return nil, fmt.Errorf("invalid input sample rate: %d", inRate)
	}
	if outRate <= 0 {
		return nil, fmt.Errorf("invalid output sample rate: %d", outRate)
	}

	r := &Resampler{
		inRate:  inRate,
		outRate: outRate,
		layout:  astiav.ChannelLayoutMono,
	}

	r.ctx = astiav.AllocSoftwareResampleContext()
	if r.ctx == nil {
		return nil, fmt.Errorf("failed to allocate resample context")
	}

	r.inFrame = astiav.AllocFrame()
	if r.inFrame == nil {
		r.Free()
		return nil, fmt.Errorf("failed to allocate input frame")
	}

	r.outFrame = astiav.AllocFrame()
	if r.outFrame == nil {
		r.Free()
		return nil, fmt.Errorf("failed to allocate output frame")
	}

	return r, nil
}

// Free releases the FFmpeg contexts and frames.
func (r *Resampler) Free() {
	if r.ctx != nil {
		r.ctx.Free()
		r.ctx = nil
	}
	if r.inFrame != nil {
		r.inFrame.Free()
		r.inFrame = nil
	}
	if r.outFrame != nil {
		r.outFrame.Free()
		r.outFrame = nil
	}
}

// Convert resamples one buffer of 16-bit little-endian mono PCM.
func (r *Resampler) Convert(input []byte) ([]byte, error) {
	const align = 0
	const bytesPerSample = 2 // S16

	if len(input) == 0 {
		return nil, fmt.Errorf("empty input data")
	}

	numSamples := len(input) / bytesPerSample
	if numSamples == 0 {
		return nil, fmt.Errorf("input data too small")
	}

	r.inFrame.Unref()
	r.outFrame.Unref()

	r.inFrame.SetChannelLayout(r.layout)
	r.inFrame.SetSampleFormat(astiav.SampleFormatS16)
	r.inFrame.SetSampleRate(r.inRate)
	r.inFrame.SetNbSamples(numSamples)

	r.outFrame.SetChannelLayout(r.layout)
	r.outFrame.SetSampleFormat(astiav.SampleFormatS16)
	r.outFrame.SetSampleRate(r.outRate)

	outNumSamples := (numSamples * r.outRate) / r.inRate
	if outNumSamples == 0 {
		outNumSamples = 1
	}
	r.outFrame.SetNbSamples(outNumSamples)

	if err := r.inFrame.AllocBuffer(align); err != nil {
		return nil, fmt.Errorf("failed to allocate input buffer: %w", err)
	}
	if err := r.outFrame.AllocBuffer(align); err != nil {
		return nil, fmt.Errorf("failed to allocate output buffer: %w", err)
	}
	if err := r.inFrame.MakeWritable(); err != nil {
		return nil, fmt.Errorf("making frame writable failed: %w", err)
	}

	// FFmpeg may size the buffer past the sample payload for alignment;
	// zero-pad the input up to the actual buffer size.
	actualBufferSize, err := r.inFrame.SamplesBufferSize(align)
	if err != nil {
		return nil, fmt.Errorf("failed to get buffer size: %w", err)
	}
	buffer := input
	if len(input) < actualBufferSize {
		buffer = make([]byte, actualBufferSize)
		copy(buffer, input)
	}

	if err := r.inFrame.Data().SetBytes(buffer[:actualBufferSize], align); err != nil {
		return nil, fmt.Errorf("setting frame data failed: %w", err)
	}

	if err := r.ctx.ConvertFrame(r.inFrame, r.outFrame); err != nil {
		return nil, fmt.Errorf("failed to resample: %w", err)
	}

	output, err := r.outFrame.Data().Bytes(align)
	if err != nil {
		return nil, fmt.Errorf("getting output data failed: %w", err)
	}

	return output, nil
}
