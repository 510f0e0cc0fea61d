package simulate

import (
	"hash/fnv"
	"math"
)

// strengthScale sharpens the logistic so strong entities win reliably.
const strengthScale = 8

// Strength is the hidden quality of an entity in [0,1), derived from its id.
// The FNV sum goes through a splitmix64 finalizer so ids that differ only in
// their last bytes still land far apart.
func Strength(id string) float64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	return float64(mix64(h.Sum64())>>11) / (1 << 53)
}

func mix64(z uint64) uint64 {
	z ^= z >> 30
	z *= 0xbf58476d1ce4e5b9
	z ^= z >> 27
	z *= 0x94d049bb133111eb
	z ^= z >> 31
	return z
}

// WinProbability is the chance a synthetic voter prefers the side of strength
// left over the side of strength right.
func WinProbability(left, right float64) float64 {
	return 1 / (1 + math.Exp(-strengthScale*(left-right)))
}

// Concordance returns the share of ordered pairs in ids (best first) whose
// strengths agree with the order. One id or none counts as agreement.
func Concordance(ids []string, strength func(string) float64) float64 {
	var agree, total int
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			total++
			if strength(ids[i]) >= strength(ids[j]) {
				agree++
			}
		}
	}
	if total == 0 {
		return 1
	}
	return float64(agree) / float64(total)
}
