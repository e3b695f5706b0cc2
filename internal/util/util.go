package util

// splitmix64
func Hash(val uint64) uint64 {
	x := val
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	x =  x ^ (x >> 31)
	return x
}

// Fills buf with a deterministic byte pattern derived from seed.
func FillPattern(buf []byte, seed uint64) {
	var cur uint64
	for i := range buf {
		if i % 8 == 0 {
			cur = Hash(seed + uint64(i / 8))
		}
		buf[i] = byte(cur)
		cur >>= 8
	}
}
