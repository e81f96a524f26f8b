package audio

// Convert returns pcm in format to. Channels are remixed before the rate is
// changed. pcm is returned as is when the formats already match.
func Convert(pcm []byte, from, to Format) []byte {
	if from == to {
		return pcm
	}
	pcm = Remix(pcm, from.Channels, to.Channels)
	return Resample(pcm, to.Channels, from.SampleRate, to.SampleRate)
}

// Remix converts interleaved pcm between channel counts. Downmixing to mono
// averages all channels; any other change copies the first channel of every
// frame into each output channel.
func Remix(pcm []byte, from, to int) []byte {
	if from == to || from <= 0 || to <= 0 {
		return pcm
	}
	frames := len(pcm) / (from * BytesPerSample)
	out := make([]byte, frames*to*BytesPerSample)
	for i := range frames {
		var v int16
		if to == 1 {
			var sum int32
			for c := range from {
				sum += int32(sample(pcm, i*from+c))
			}
			v = int16(sum / int32(from))
		} else {
			v = sample(pcm, i*from)
		}
		for c := range to {
			putSample(out, i*to+c, v)
		}
	}
	return out
}

// Resample changes the rate of interleaved pcm by linear interpolation.
func Resample(pcm []byte, channels, from, to int) []byte {
	if from == to || from <= 0 || to <= 0 || channels <= 0 {
		return pcm
	}
	srcFrames := len(pcm) / (channels * BytesPerSample)
	if srcFrames == 0 {
		return nil
	}
	dstFrames := int(int64(srcFrames) * int64(to) / int64(from))
	out := make([]byte, dstFrames*channels*BytesPerSample)
	ratio := float64(from) / float64(to)

	for i := range dstFrames {
		pos := float64(i) * ratio
		j := int(pos)
		frac := pos - float64(j)
		next := min(j+1, srcFrames-1)
		for c := range channels {
			s0 := float64(sample(pcm, j*channels+c))
			s1 := float64(sample(pcm, next*channels+c))
			putSample(out, i*channels+c, int16(s0+(s1-s0)*frac))
		}
	}
	return out
}
