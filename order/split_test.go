package order_test

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/airbusgeo/reserve-monitor/order"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func makeIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("20210901_%06d_1032", i)
	}
	return ids
}

var _ = Describe("Split", func() {
	for _, n := range []int{0, 1, 499, 500, 501, 1000, 1234} {
		n := n
		It(fmt.Sprintf("should split %d ids in ceil(n/500) chunks preserving the order", n), func() {
			ids := makeIDs(n)
			chunks := order.Split(ids, order.MaxItemsPerOrder)
			Expect(chunks).To(HaveLen((n + 499) / 500))
			var all []string
			for _, c := range chunks {
				Expect(len(c)).To(BeNumerically("<=", order.MaxItemsPerOrder))
				all = append(all, c...)
			}
			if n == 0 {
				Expect(all).To(BeEmpty())
			} else {
				Expect(all).To(Equal(ids))
			}
		})
	}
})

var _ = Describe("FilterExisting", func() {
	It("should drop the ids that already have a file", func() {
		dir, err := os.MkdirTemp("", "scenes")
		Expect(err).NotTo(HaveOccurred())
		defer os.RemoveAll(dir)
		Expect(os.WriteFile(filepath.Join(dir, "20210901_180754_1032_3B_AnalyticMS_SR_harmonized_clip.tif"), nil, 0644)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(dir, "20210903_175959_3B_udm2_clip.tif"), nil, 0644)).To(Succeed())

		ids := []string{"20210901_180754_1032", "20210902_180001_1001", "20210903_175959_1003"}
		filtered, err := order.FilterExisting(ids, dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(filtered).To(Equal([]string{"20210902_180001_1001"}))
	})

	It("should keep all the ids if the directory does not exist", func() {
		ids := []string{"20210901_180754_1032"}
		filtered, err := order.FilterExisting(ids, filepath.Join(os.TempDir(), "does-not-exist-reserve"))
		Expect(err).NotTo(HaveOccurred())
		Expect(filtered).To(Equal(ids))
	})
})
