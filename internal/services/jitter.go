package services

import "hash/fnv"

// stableHash returns the FNV-1a 32-bit hash of key. The same key always maps
// to the same value, across processes and restarts.
func stableHash(key string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(key))
	return h.Sum32()
}

// jitterUnit maps key to a deterministic offset in [-amp, amp].
func jitterUnit(key string, amp float64) float64 {
	r := float64(stableHash(key)%1000) / 1000.0
	return (r - 0.5) * 2 * amp
}

// jitterProb perturbs a probability, clamped to [0, 1].
func jitterProb(p float64, key string, amp float64) float64 {
	return clamp01(p + jitterUnit(key, amp))
}

// jitterVal perturbs a plain value without clamping.
func jitterVal(v float64, key string, amp float64) float64 {
	return v + jitterUnit(key, amp)
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// clampSym clamps x to [-0.5, 0.5], the sanity band for expected percentage
// moves.
func clampSym(x float64) float64 {
	if x < -0.5 {
		return -0.5
	}
	if x > 0.5 {
		return 0.5
	}
	return x
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
