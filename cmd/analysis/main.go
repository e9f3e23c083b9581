// Command analysis measures the accuracy of the sketchkv structures
// empirically: false-positive rates of the bloom and cuckoo filters,
// overestimation of the count-min sketch and rank error of the t-digest.
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/jcalabro/sketchkv/arena"
	"github.com/jcalabro/sketchkv/bloom"
	"github.com/jcalabro/sketchkv/cms"
	"github.com/jcalabro/sketchkv/cuckoo"
	"github.com/jcalabro/sketchkv/tdigest"
)

func main() {
	items := flag.Int("n", 100_000, "number of items inserted per run")
	queries := flag.Int("queries", 1_000_000, "number of absent items queried")
	seed := flag.Uint64("seed", 1, "random seed")
	flag.Parse()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	rng := rand.New(rand.NewPCG(*seed, *seed))

	fmt.Fprintln(w, "structure\tparams\tsize\tmeasured\texpected")
	for _, rate := range []float64{0.01, 0.001, 0.0001} {
		bloomRow(w, *items, *queries, rate)
	}
	for _, scale := range []int{1, 4} {
		scalingRow(w, *items, *queries, scale)
	}
	for _, bucket := range []uint16{2, 4} {
		cuckooRow(w, *items, *queries, bucket)
	}
	for _, eps := range []float64{0.01, 0.001} {
		cmsRow(w, rng, *items, eps)
	}
	for _, c := range []float64{50, 100, 500} {
		tdigestRow(w, rng, *items, c)
	}
}

func key(prefix string, i int) string {
	return fmt.Sprintf("%s-%d", prefix, i)
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

func falsePositives(queries int, test func(string) bool) float64 {
	var fp int
	for i := range queries {
		if test(key("absent", i)) {
			fp++
		}
	}
	return float64(fp) / float64(queries)
}

func bloomRow(w *tabwriter.Writer, n, queries int, rate float64) {
	f, err := bloom.New(rate, uint64(n), bloom.Options{NoScale: true})
	must(err)
	for i := range n {
		_, err := f.Add(key("item", i))
		must(err)
	}
	info := f.Info()
	numBlocks, k, _ := arena.OptimalParams(uint64(n), rate)
	fmt.Fprintf(w, "bloom\terror=%g n=%s\t%s\t%.5f%%\t%.5f%%\n",
		rate, humanize.Comma(int64(n)), humanize.Bytes(info.Size),
		100*falsePositives(queries, f.Exists),
		100*arena.EstimateFalsePositiveRate(numBlocks, k, uint64(n)))
}

// scalingRow inserts scale times the initial capacity to measure the
// compound error of a grown filter.
func scalingRow(w *tabwriter.Writer, n, queries, scale int) {
	const rate = 0.01
	f, err := bloom.New(rate, uint64(n), bloom.Options{})
	must(err)
	for i := range n * scale {
		_, err := f.Add(key("item", i))
		must(err)
	}
	info := f.Info()
	fmt.Fprintf(w, "scalable bloom\terror=%g n=%s x%d\t%s\t%.5f%%\t<%.5f%%\n",
		rate, humanize.Comma(int64(n)), scale, humanize.Bytes(info.Size),
		100*falsePositives(queries, f.Exists), 100*rate)
}

func cuckooRow(w *tabwriter.Writer, n, queries int, bucketSize uint16) {
	f, err := cuckoo.New(uint64(n), cuckoo.Options{BucketSize: &bucketSize})
	must(err)
	for i := range n {
		must(f.Add(key("item", i)))
	}
	info := f.Info()
	// each lookup compares against 2*bucketSize 16-bit fingerprints
	expected := 2 * float64(bucketSize) / 65535
	fmt.Fprintf(w, "cuckoo\tbucket=%d n=%s\t%s\t%.5f%%\t%.5f%%\n",
		bucketSize, humanize.Comma(int64(n)), humanize.Bytes(info.Size),
		100*falsePositives(queries, f.Exists), 100*expected)
}

// cmsRow reports the mean overestimate of a zipf-like stream relative to the
// total count, which the sketch bounds by epsilon.
func cmsRow(w *tabwriter.Writer, rng *rand.Rand, n int, eps float64) {
	s, err := cms.NewWithProb(eps, 0.01)
	must(err)
	zipf := rand.NewZipf(rng, 1.1, 1, uint64(n))
	truth := make(map[string]uint64)
	for range n {
		k := key("item", int(zipf.Uint64()))
		truth[k]++
		s.IncrBy(k, 1)
	}
	var over float64
	for k, c := range truth {
		over += float64(s.Query(k) - c)
	}
	info := s.Info()
	fmt.Fprintf(w, "cms\teps=%g %dx%d\t%s\t%.5f%%\t<%.5f%%\n",
		eps, info.Width, info.Depth, humanize.Bytes(uint64(info.Width)*uint64(info.Depth)*8),
		100*over/float64(len(truth))/float64(info.Count), 100*eps)
}

// tdigestRow reports the worst rank error over a set of quantiles of a
// normal sample.
func tdigestRow(w *tabwriter.Writer, rng *rand.Rand, n int, compression float64) {
	d, err := tdigest.New(compression)
	must(err)
	values := make([]float64, n)
	for i := range values {
		values[i] = rng.NormFloat64()
		must(d.Add(values[i], 1))
	}
	slices.Sort(values)

	var worst float64
	for _, q := range []float64{0.001, 0.01, 0.1, 0.25, 0.5, 0.75, 0.9, 0.99, 0.999} {
		est := d.Quantile(q)
		rank, _ := slices.BinarySearch(values, est)
		worst = math.Max(worst, math.Abs(float64(rank)/float64(n)-q))
	}
	info := d.Info()
	fmt.Fprintf(w, "tdigest\tcompression=%g\t%d centroids\t%.5f\t-\n",
		compression, info.MergedNodes+info.UnmergedNodes, worst)
}
