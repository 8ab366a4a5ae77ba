package audio

import (
	"encoding/binary"
	"math"
)

// Speech-band corner frequencies. Rumble below ~250Hz and hiss above ~3600Hz
// are attenuated before loudness is measured so the baseline tracks voice
// energy rather than HVAC noise or electrical whine.
const (
	highPassCutoffHz = 250.0
	lowPassCutoffHz  = 3600.0
)

// LevelMeter measures band-limited RMS loudness of successive PCM chunks.
// Filter state carries across chunks, so one meter serves one stream.
type LevelMeter struct {
	hpAlpha  float64
	hpPrevIn float64
	hpPrev   float64

	lpAlpha float64
	lpPrev  float64
}

// NewLevelMeter builds a meter for mono s16le PCM at the given rate.
func NewLevelMeter(sampleRate int) *LevelMeter {
	dt := 1.0 / float64(sampleRate)
	hpRC := 1.0 / (2 * math.Pi * highPassCutoffHz)
	lpRC := 1.0 / (2 * math.Pi * lowPassCutoffHz)

	return &LevelMeter{
		hpAlpha: hpRC / (hpRC + dt),
		lpAlpha: dt / (lpRC + dt),
	}
}

// Measure returns the RMS loudness of one chunk after band-limiting,
// normalized so full-scale PCM is 1.0. Odd trailing bytes are ignored.
func (m *LevelMeter) Measure(chunk []byte) float64 {
	sampleCount := len(chunk) / 2
	if sampleCount == 0 {
		return 0
	}

	var sumSquares float64
	for i := 0; i < sampleCount; i++ {
		raw := int16(binary.LittleEndian.Uint16(chunk[i*2 : i*2+2]))
		x := float64(raw) / 32768.0

		hp := m.hpAlpha * (m.hpPrev + x - m.hpPrevIn)
		m.hpPrevIn = x
		m.hpPrev = hp

		lp := m.lpPrev + m.lpAlpha*(hp-m.lpPrev)
		m.lpPrev = lp

		sumSquares += lp * lp
	}

	rms := math.Sqrt(sumSquares / float64(sampleCount))
	if math.IsNaN(rms) || math.IsInf(rms, 0) {
		return 0
	}
	return rms
}
