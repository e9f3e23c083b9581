package sketchkv_test

import (
	"fmt"

	"github.com/jcalabro/sketchkv"
	"github.com/jcalabro/sketchkv/bloom"
)

// This example demonstrates basic membership testing with a Bloom filter.
func Example() {
	s := sketchkv.New()

	if err := s.BFReserve("fruit", 0.01, 10_000, bloom.Options{}); err != nil {
		panic(err)
	}
	for _, item := range []string{"apple", "banana", "cherry"} {
		if _, err := s.BFAdd("fruit", item); err != nil {
			panic(err)
		}
	}

	found, _ := s.BFMExists("fruit", "apple", "banana", "grape")
	fmt.Println(found)

	// Output:
	// [true true false]
}

// This example shows the result of applying an operation to a key holding
// another kind of structure.
func Example_typeMismatch() {
	s := sketchkv.New()
	_ = s.CMSInitByDim("counts", 100, 4)

	_, err := s.BFAdd("counts", "x")
	fmt.Println(err)

	// Output:
	// type mismatch: "counts" holds a cms, not a bloom
}

// This example merges two Count-Min Sketches with weights.
func Example_cmsMerge() {
	s := sketchkv.New()
	for _, key := range []string{"monday", "tuesday", "week"} {
		_ = s.CMSInitByDim(key, 1000, 5)
	}
	_, _ = s.CMSIncrBy("monday", []string{"views"}, []uint64{10})
	_, _ = s.CMSIncrBy("tuesday", []string{"views"}, []uint64{4})

	if err := s.CMSMerge("week", []string{"monday", "tuesday"}, []int64{1, 2}); err != nil {
		panic(err)
	}
	counts, _ := s.CMSQuery("week", "views")
	fmt.Println("views:", counts[0])

	// Output:
	// views: 18
}

// This example copies a key by replaying its dump into another key.
func Example_dumpAndLoad() {
	s := sketchkv.New()
	_ = s.BFReserve("src", 0.001, 1000, bloom.Options{})
	_, _ = s.BFAdd("src", "hello")

	for it := int64(0); ; {
		next, data, err := s.ScanDump("src", it)
		if err != nil {
			panic(err)
		}
		if next == 0 {
			break
		}
		if err := s.LoadChunk("copy", next, data); err != nil {
			panic(err)
		}
		it = next
	}

	found, _ := s.BFExists("copy", "hello")
	fmt.Println("copy has hello:", found)
	fmt.Println(s.Keys())

	// Output:
	// copy has hello: true
	// [copy src]
}

// With k=1 a newcomer whose estimate ties the tracked item replaces it.
func ExampleStore_TopKAdd() {
	s := sketchkv.New()
	_ = s.TopKReserve("hits", 1, 8, 7, 0.9)

	expelled, _ := s.TopKAdd("hits", "a", "b", "b")
	for _, e := range expelled {
		if e == nil {
			fmt.Println("-")
		} else {
			fmt.Println(*e)
		}
	}

	// Output:
	// -
	// a
	// -
}

func ExampleStore_TDigestQuantile() {
	s := sketchkv.New()
	_ = s.TDigestCreate("latency", 100)
	_ = s.TDigestAdd("latency", []float64{1, 2, 3, 4, 5}, []float64{1, 1, 1, 1, 1})

	lo, _ := s.TDigestQuantile("latency", 0)
	hi, _ := s.TDigestQuantile("latency", 1)
	fmt.Println(lo, hi)

	// Output:
	// 1 5
}
