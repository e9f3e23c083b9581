package arena

import "math"

const (
	// BlockBits is the number of bits per block (cache line size).
	BlockBits = 512
	// BlockWords is the number of uint64s per block.
	BlockWords = BlockBits / 64 // 8
	// ln2 is the natural logarithm of 2.
	ln2 = 0.6931471805599453
	// ln2Squared is ln(2)^2.
	ln2Squared = 0.4804530139182014
)

// primePartitions splits a 512-bit block into k strictly distinct partition
// sizes summing to exactly 512. Even k uses only primes; odd k needs one even
// filler since an odd count of odd numbers cannot sum to 512.
var primePartitions = map[uint32][]uint32{
	3:  {167, 173, 172},                                          // sum = 512 (172 is even filler)
	4:  {109, 127, 137, 139},                                     // sum = 512, all prime
	5:  {97, 101, 103, 109, 102},                                 // sum = 512 (102 is even filler)
	6:  {61, 79, 83, 89, 97, 103},                                // sum = 512, all prime
	7:  {61, 67, 71, 79, 83, 89, 62},                             // sum = 512 (62 is even filler)
	8:  {37, 47, 53, 61, 67, 71, 79, 97},                         // sum = 512, all prime
	9:  {41, 43, 47, 53, 59, 67, 71, 73, 58},                     // sum = 512 (58 is even filler)
	10: {31, 37, 41, 43, 47, 53, 59, 61, 67, 73},                 // sum = 512, all prime
	11: {29, 31, 37, 41, 43, 44, 47, 53, 59, 61, 67},             // sum = 512 (44 is even filler)
	12: {17, 23, 29, 31, 37, 41, 43, 47, 53, 59, 61, 71},         // sum = 512, all prime
	13: {17, 19, 23, 29, 31, 37, 41, 43, 47, 52, 53, 59, 61},     // sum = 512 (52 is even filler)
	14: {11, 13, 17, 19, 23, 29, 31, 37, 41, 47, 53, 59, 61, 71}, // sum = 512, all prime
}

// MinK and MaxK bound the number of partitions a block can be split into.
const (
	MinK = 3
	MaxK = 14
)

// MaxNumBlocks is the largest arena that can be built: 2^24 blocks, or 1 GiB
// of bits.
const MaxNumBlocks = 1 << 24

// Fits reports whether an arena for capacity items at fpRate stays within
// MaxNumBlocks.
func Fits(capacity uint64, fpRate float64) bool {
	numBlocks, _, _ := OptimalParams(capacity, fpRate)
	return numBlocks <= MaxNumBlocks
}

// OptimalParams sizes an arena for capacity items at the given false
// positive rate. Requests larger than MaxNumBlocks report MaxNumBlocks+1
// blocks. Returns the number of blocks, number of partitions (k), and
// the ideal bits per item before block rounding.
func OptimalParams(capacity uint64, fpRate float64) (numBlocks uint64, k uint32, bitsPerItem float64) {
	if capacity == 0 {
		capacity = 1
	}
	if fpRate <= 0 {
		fpRate = 0.0001
	}
	if fpRate >= 1 {
		fpRate = 0.99
	}

	// Optimal bits per item: -ln(fpRate) / ln(2)^2
	bitsPerItem = -math.Log(fpRate) / ln2Squared

	totalBits := float64(capacity) * bitsPerItem

	// Saturate before converting so that absurd capacities stay comparable
	// against MaxNumBlocks.
	blocks := math.Ceil(totalBits / BlockBits)
	if blocks > MaxNumBlocks {
		blocks = MaxNumBlocks + 1
	}
	numBlocks = uint64(blocks)

	// k = (m/n) * ln(2), using the bit count after block rounding.
	k = uint32(math.Round(float64(numBlocks) * BlockBits / float64(capacity) * ln2))
	k = min(max(k, MinK), MaxK)

	return numBlocks, k, bitsPerItem
}

// partition returns the partition sizes for k, or nil if k is not supported.
func partition(k uint32) []uint32 {
	return primePartitions[k]
}

// partitionOffsets returns the starting bit of each partition:
// offset[i] = sum of primes[0..i-1].
func partitionOffsets(primes []uint32) []uint32 {
	offsets := make([]uint32, len(primes))
	var cumulative uint32
	for i, p := range primes {
		offsets[i] = cumulative
		cumulative += p
	}
	return offsets
}

// EstimateFalsePositiveRate returns (1 - e^(-kn/m))^k for an arena of
// numBlocks blocks holding n items.
func EstimateFalsePositiveRate(numBlocks uint64, k uint32, n uint64) float64 {
	m := float64(numBlocks * BlockBits)
	nf := float64(n)
	kf := float64(k)

	if m == 0 || nf == 0 {
		return 0
	}
	return math.Pow(1-math.Exp(-kf*nf/m), kf)
}
