package csav

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/andreyvit/csav/csavtest"
)

func TestLayoutChunks_anchoredAtLowestFileOffset(t *testing.T) {
	sorted, base, err := layoutChunks([]ChunkDescriptor{
		{FileOffset: 130, CompressedSize: 28, DecompressedSize: 20},
		{FileOffset: 100, CompressedSize: 18, DecompressedSize: 10},
	})
	if err != nil {
		t.Fatal(err)
	}
	if base != 100 {
		t.Errorf("base = %d, wanted 100", base)
	}
	if sorted[0].FileOffset != 100 || sorted[0].BufferOffset != 100 {
		t.Errorf("sorted[0] = %v, wanted file 100 / buffer 100", sorted[0])
	}
	if sorted[1].FileOffset != 130 || sorted[1].BufferOffset != 110 {
		t.Errorf("sorted[1] = %v, wanted file 130 / buffer 110", sorted[1])
	}
}

func TestLayoutChunks_overflow(t *testing.T) {
	_, _, err := layoutChunks([]ChunkDescriptor{
		{FileOffset: 0xFFFF_FF00, DecompressedSize: 0x1000},
	})
	if !errors.Is(err, ErrCorrupted) {
		t.Fatalf("err = %v, wanted ErrCorrupted", err)
	}
}

func TestReservedTableSize(t *testing.T) {
	tests := []struct {
		size     int
		expected int
	}{
		{0, 8 + 12*2},
		{100, 8 + 12*2},
		{3 * ChunkSize, 8 + 12*5},
	}
	for _, tt := range tests {
		if a := reservedTableSize(tt.size); a != tt.expected {
			t.Errorf("reservedTableSize(%d) = %d, wanted %d", tt.size, a, tt.expected)
		}
	}
}

func TestChunks_roundTrip(t *testing.T) {
	rnd := rand.New(rand.NewPCG(1, 2))
	for _, size := range []int{0, 1, 1000, ChunkSize - 1, ChunkSize, ChunkSize + 1, 3*ChunkSize + 17} {
		for _, kind := range []string{"text", "random"} {
			t.Run(fmt.Sprintf("%s_%d", kind, size), func(t *testing.T) {
				buf := make([]byte, size)
				if kind == "random" {
					for i := range buf {
						buf[i] = byte(rnd.UintN(256))
					}
				} else {
					for i := range buf {
						buf[i] = "the quick brown fox "[i%20]
					}
				}

				const fileOffset = 1000
				chunks, data, err := CompressChunks(buf, fileOffset)
				if err != nil {
					t.Fatal(err)
				}
				if a, e := len(chunks), (size+ChunkSize-1)/ChunkSize; a != e {
					t.Fatalf("got %d chunks, wanted %d", a, e)
				}
				for _, c := range chunks {
					if c.DecompressedSize > ChunkSize {
						t.Fatalf("%v larger than ChunkSize", c)
					}
				}

				file := append(make([]byte, fileOffset), data...)
				out, base, err := DecompressChunks(file, chunks, Options{Logger: csavtest.Logger(t)})
				if err != nil {
					t.Fatal(err)
				}
				if size > 0 && base != fileOffset {
					t.Errorf("base = %d, wanted %d", base, fileOffset)
				}
				if !bytes.Equal(out, buf) {
					t.Fatalf("round trip mismatch: got %d bytes, wanted %d", len(out), len(buf))
				}
			})
		}
	}
}

func TestChunks_secondChunkPlacedAfterFirst(t *testing.T) {
	first := bytes.Repeat([]byte{0xAA}, 10)
	second := bytes.Repeat([]byte{0xBB}, 20)

	c1, d1 := must2(CompressChunks(first, 100))
	c2, d2 := must2(CompressChunks(second, 100+uint32(len(d1))))

	file := append(make([]byte, 100), d1...)
	file = append(file, d2...)

	// table order does not matter
	chunks := []ChunkDescriptor{c2[0], c1[0]}
	out, base := must2(DecompressChunks(file, chunks, Options{}))
	if base != 100 {
		t.Errorf("base = %d, wanted 100", base)
	}
	csavtest.BytesEq(t, out, append(first, second...))
}

func TestChunks_uncompressedFirstChunk(t *testing.T) {
	raw := []byte("0123456789" + "xyxyxyxyxyxyxyxyxyxy")
	file := append(make([]byte, 100), raw...)

	chunks := []ChunkDescriptor{
		{FileOffset: 100, CompressedSize: 10, DecompressedSize: 10},
		{FileOffset: 110, CompressedSize: 20, DecompressedSize: 20},
	}
	out, base := must2(DecompressChunks(file, chunks, Options{Logger: csavtest.Logger(t)}))
	if base != 100 {
		t.Errorf("base = %d, wanted 100", base)
	}
	csavtest.BytesEq(t, out, raw)

	if _, _, err := DecompressChunks(file[:120], chunks, Options{}); !errors.Is(err, ErrCorrupted) {
		t.Errorf("truncated raw file err = %v, wanted ErrCorrupted", err)
	}
}

func TestChunks_untaggedLaterChunkIsCorruption(t *testing.T) {
	first := bytes.Repeat([]byte("ab"), 5)
	c1, d1 := must2(CompressChunks(first, 100))
	file := append(make([]byte, 100), d1...)
	rawOff := uint32(len(file))
	file = append(file, "0123456789"...)

	chunks := []ChunkDescriptor{
		c1[0],
		{FileOffset: rawOff, CompressedSize: 10, DecompressedSize: 10},
	}
	_, _, err := DecompressChunks(file, chunks, Options{})
	if !errors.Is(err, ErrCorrupted) {
		t.Fatalf("err = %v, wanted ErrCorrupted", err)
	}
}

func TestChunks_corruption(t *testing.T) {
	buf := bytes.Repeat([]byte("save data "), 100)
	chunks, data := must2(CompressChunks(buf, 0))

	tests := []struct {
		name   string
		mutate func(file []byte, c []ChunkDescriptor) ([]byte, []ChunkDescriptor)
	}{
		{"past end of file", func(f []byte, c []ChunkDescriptor) ([]byte, []ChunkDescriptor) {
			c[0].CompressedSize += 100
			return f, c
		}},
		{"size mismatch", func(f []byte, c []ChunkDescriptor) ([]byte, []ChunkDescriptor) {
			c[0].DecompressedSize--
			return f, c
		}},
		{"garbage payload", func(f []byte, c []ChunkDescriptor) ([]byte, []ChunkDescriptor) {
			for i := chunkHeaderSize; i < len(f); i++ {
				f[i] = 0xFF
			}
			return f, c
		}},
		{"implausible size", func(f []byte, c []ChunkDescriptor) ([]byte, []ChunkDescriptor) {
			c[0].DecompressedSize = 0xFFFF_0000
			return f, c
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			file, c := tt.mutate(bytes.Clone(data), append([]ChunkDescriptor(nil), chunks...))
			_, _, err := DecompressChunks(file, c, Options{})
			if !errors.Is(err, ErrCorrupted) {
				t.Fatalf("err = %v, wanted ErrCorrupted", err)
			}
		})
	}
}
