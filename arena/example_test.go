package arena_test

import (
	"fmt"

	"github.com/jcalabro/sketchkv/arena"
)

func Example() {
	// Arena for 10,000 items with 1% false positive rate
	a := arena.New(10_000, 0.01)

	a.Add([]byte("apple"))
	a.AddString("banana")

	fmt.Println("apple:", a.Test([]byte("apple")))
	fmt.Println("banana:", a.TestString("banana"))
	fmt.Println("grape:", a.TestString("grape"))

	// Output:
	// apple: true
	// banana: true
	// grape: false
}

// Chained arenas hash an item once and test every arena with the hash.
func Example_sharedHash() {
	older := arena.New(1000, 0.01)
	newer := arena.New(2000, 0.01)

	older.AddString("first")
	h := arena.HashString("first")
	fmt.Println("older:", older.TestHash(h))
	fmt.Println("newer:", newer.TestHash(h))

	// Output:
	// older: true
	// newer: false
}

func Example_statistics() {
	a := arena.New(10_000, 0.01)

	for i := range 5000 {
		a.Add(fmt.Appendf(nil, "item-%d", i))
	}

	fmt.Printf("Capacity: %d bits\n", a.Bits())
	fmt.Printf("Hash functions (k): %d\n", a.K())
	fmt.Printf("Items added: %d\n", a.Count())
	fmt.Printf("Fill ratio: %.1f%%\n", a.FillRatio()*100)

	// Output:
	// Capacity: 96256 bits
	// Hash functions (k): 7
	// Items added: 5000
	// Fill ratio: 30.4%
}

func ExampleNewWithParams() {
	// 1000 blocks * 512 bits = 512,000 bits.
	a := arena.NewWithParams(1000, 7)

	a.AddString("custom")
	fmt.Println("Contains 'custom':", a.TestString("custom"))
	fmt.Printf("Blocks: %d, K: %d\n", a.NumBlocks(), a.K())

	// Output:
	// Contains 'custom': true
	// Blocks: 1000, K: 7
}

func ExampleOptimalParams() {
	blocks, k, bitsPerItem := arena.OptimalParams(1_000_000, 0.01)

	fmt.Printf("For 1M items at 1%% FP rate:\n")
	fmt.Printf("  Blocks: %d\n", blocks)
	fmt.Printf("  Hash functions (k): %d\n", k)
	fmt.Printf("  Bits per item: %.1f\n", bitsPerItem)

	// Output:
	// For 1M items at 1% FP rate:
	//   Blocks: 18721
	//   Hash functions (k): 7
	//   Bits per item: 9.6
}

func ExampleEstimateFalsePositiveRate() {
	rate := arena.EstimateFalsePositiveRate(1000, 7, 50000)
	fmt.Printf("Estimated FP rate: %.2f%%\n", rate*100)

	// Output:
	// Estimated FP rate: 0.73%
}
