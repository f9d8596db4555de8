// Package motion scores accelerometer and gyroscope windows for
// physical threat patterns: violent shaking, falls, and struggle.
//
// The three detectors run over the same window and the combined score
// is their maximum. Windows shorter than ten samples score zero;
// there is not enough signal to separate a pocket bump from a fall.
package motion

import "math"

// Sample is one accelerometer/gyroscope reading. Accelerations are in
// m/s^2, angular velocities in rad/s.
type Sample struct {
	AccelX float64 `json:"accel_x"`
	AccelY float64 `json:"accel_y"`
	AccelZ float64 `json:"accel_z"`
	GyroX  float64 `json:"gyro_x"`
	GyroY  float64 `json:"gyro_y"`
	GyroZ  float64 `json:"gyro_z"`
}

const (
	minSamples = 10
	gravity    = 9.8

	// Shake: acceleration excursions beyond this (gravity removed)
	// count as violent movement.
	shakeAmplitude = 3.0

	// Fall: free-fall magnitude below the low threshold followed by an
	// impact above the high one within a five-sample window.
	fallLowAccel  = 2.0
	fallHighAccel = 20.0
	fallWindow    = 5
)

// Result is the per-window analysis breakdown.
type Result struct {
	Score    float64 `json:"score"`
	Shake    float64 `json:"shake"`
	Fall     float64 `json:"fall"`
	Struggle float64 `json:"struggle"`
	Samples  int     `json:"samples"`
}

// Analyze scores one motion window.
func Analyze(samples []Sample) Result {
	res := Result{Samples: len(samples)}
	if len(samples) < minSamples {
		return res
	}

	accel := make([]float64, len(samples))
	gyro := make([]float64, len(samples))
	for i, s := range samples {
		accel[i] = math.Sqrt(s.AccelX*s.AccelX + s.AccelY*s.AccelY + s.AccelZ*s.AccelZ)
		gyro[i] = math.Sqrt(s.GyroX*s.GyroX + s.GyroY*s.GyroY + s.GyroZ*s.GyroZ)
	}

	res.Shake = shakeScore(accel)
	res.Fall = fallScore(accel)
	res.Struggle = struggleScore(accel, gyro)
	res.Score = round3(math.Min(math.Max(res.Shake, math.Max(res.Fall, res.Struggle)), 1.0))
	return res
}

// shakeScore detects violent shaking: high variance plus repeated
// excursions past shakeAmplitude once gravity is removed.
func shakeScore(accel []float64) float64 {
	centered := make([]float64, len(accel))
	highAmp := 0
	for i, m := range accel {
		centered[i] = m - gravity
		if math.Abs(centered[i]) > shakeAmplitude {
			highAmp++
		}
	}
	v := variance(centered)
	return math.Min(v/10.0+float64(highAmp)/float64(len(accel))*2, 1.0)
}

// fallScore scans for a free-fall dip followed by an impact spike.
func fallScore(accel []float64) float64 {
	for i := 0; i+fallWindow <= len(accel); i++ {
		w := accel[i : i+fallWindow]
		if minOf(w[:3]) < fallLowAccel && maxOf(w[3:]) > fallHighAccel {
			return 0.9
		}
	}
	return 0.0
}

// struggleScore combines movement randomness (histogram entropy of
// both sensors) with average intensity. Erratic high-energy motion
// reads as a struggle.
func struggleScore(accel, gyro []float64) float64 {
	combined := (histogramEntropy(accel, 10) + histogramEntropy(gyro, 10)) / 2
	avg := mean(accel)
	return math.Min(combined/3.0+avg/20.0, 1.0)
}

// histogramEntropy is the Shannon entropy (nats) of the value
// distribution over bins equal-width buckets.
func histogramEntropy(values []float64, bins int) float64 {
	lo, hi := minOf(values), maxOf(values)
	counts := make([]float64, bins)
	if hi == lo {
		counts[0] = float64(len(values))
	} else {
		width := (hi - lo) / float64(bins)
		for _, v := range values {
			b := int((v - lo) / width)
			if b >= bins {
				b = bins - 1
			}
			counts[b]++
		}
	}

	// Smoothing keeps empty bins out of the log.
	const eps = 1e-10
	total := 0.0
	for i := range counts {
		counts[i] += eps
		total += counts[i]
	}
	h := 0.0
	for _, c := range counts {
		p := c / total
		h -= p * math.Log(p)
	}
	return h
}

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func variance(values []float64) float64 {
	m := mean(values)
	sum := 0.0
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return sum / float64(len(values))
}

func minOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
