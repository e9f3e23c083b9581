// Package sketchkv provides a keyed store of probabilistic data structures.
//
// Each key holds exactly one structure. The structures trade exactness for
// bounded memory: membership filters may report false positives but never
// false negatives, and frequency estimators may overcount but never
// undercount.
//
// # Structures
//
// Five structure kinds are available, each implemented in its own package
// and usable without the store:
//
// [bloom.Filter] is a scalable Bloom filter. It is a chain of cache-line
// blocked bit arenas (see package arena). When the newest arena reaches its
// capacity a larger one is appended at the same error rate, so the filter
// keeps accepting items without exceeding its target false positive rate.
//
// [cuckoo.Filter] stores 16-bit fingerprints in buckets and supports
// deletion and counting. It grows by appending sub-filters.
//
// [cms.Sketch] is a Count-Min Sketch. Merges are additive and weighted.
//
// [topk.Tracker] tracks the k most frequent items using Heavy Keeper
// decaying counters.
//
// [tdigest.Digest] estimates quantiles and cumulative distribution values
// of a stream of weighted values.
//
// # Store
//
// [Store] maps string keys to structures. Operations on one key are
// serialized; operations on different keys run concurrently. Applying an
// operation to a key holding another kind of structure fails with
// [ErrTypeMismatch]:
//
//	s := sketchkv.New()
//	if err := s.BFReserve("seen", 0.001, 1_000_000, bloom.Options{}); err != nil {
//		return err
//	}
//	added, err := s.BFAdd("seen", "user:42")
//
// Batch operations report a status per item. Only whole-call failures, such
// as a missing key or mismatched argument lengths, are returned as the
// operation's error.
//
// # Dump and Load
//
// [Store.ScanDump] exports a key as an ordered sequence of chunks and
// [Store.LoadChunk] rebuilds it. The first call to ScanDump passes iterator
// 0; each call returns the next iterator together with a chunk, and an
// iterator of 0 ends the sequence:
//
//	var chunks []sketchkv.Chunk
//	for it := int64(0); ; {
//		next, data, err := s.ScanDump("seen", it)
//		if err != nil {
//			return err
//		}
//		if next == 0 {
//			break
//		}
//		chunks = append(chunks, sketchkv.Chunk{Iterator: next, Data: data})
//		it = next
//	}
//
// Replaying the chunks through LoadChunk in the same order on an empty key
// reconstructs a bit-identical structure, which [Store.Debug] can confirm.
//
// # Errors
//
// All errors wrap one of the sentinel errors re-exported from package
// sketcherr, so callers classify failures with [errors.Is].
package sketchkv
