package audio

import (
	"fmt"
	"math"
)

func Normalize(samples []int16, channels, srcRate int) (NormalizedAudio, error) {
	if channels <= 0 {
		return NormalizedAudio{}, fmt.Errorf("normalize: invalid channel count %d", channels)
	}
	if srcRate <= 0 {
		return NormalizedAudio{}, fmt.Errorf("normalize: invalid sample rate %d", srcRate)
	}
	if channels == TargetChannels && srcRate == TargetSampleRate {
		return NormalizedAudio{Samples: samples, SampleRate: TargetSampleRate}, nil
	}

	mono := Downmix(samples, channels)
	if srcRate != TargetSampleRate {
		mono = Resample(mono, srcRate, TargetSampleRate)
	}
	return NormalizedAudio{Samples: mono, SampleRate: TargetSampleRate}, nil
}

// Downmix averages each interleaved frame into one sample, rounding half away from zero.
func Downmix(samples []int16, channels int) []int16 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	mono := make([]int16, frames)
	n := int64(channels)
	for i := 0; i < frames; i++ {
		var sum int64
		base := i * channels
		for ch := 0; ch < channels; ch++ {
			sum += int64(samples[base+ch])
		}
		mono[i] = clampPCM(roundedDiv(sum, n))
	}
	return mono
}

// Resample converts mono PCM16 between rates with linear interpolation.
// No anti-aliasing filter is applied; that is acceptable for speech.
func Resample(samples []int16, fromRate, toRate int) []int16 {
	if fromRate == toRate || len(samples) == 0 {
		return samples
	}
	from := int64(fromRate)
	to := int64(toRate)
	outLen := int(int64(len(samples)) * to / from)
	out := make([]int16, outLen)
	last := len(samples) - 1
	for i := 0; i < outLen; i++ {
		// source position i*from/to split exactly into integer and fractional parts
		num := int64(i) * from
		idx := int(num / to)
		if idx >= last {
			out[i] = samples[last]
			continue
		}
		frac := float64(num%to) / float64(to)
		s1 := float64(samples[idx])
		s2 := float64(samples[idx+1])
		out[i] = clampPCM(int64(math.Round(s1 + (s2-s1)*frac)))
	}
	return out
}

func roundedDiv(sum, n int64) int64 {
	if sum >= 0 {
		return (sum + n/2) / n
	}
	return (sum - n/2) / n
}

func clampPCM(v int64) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
